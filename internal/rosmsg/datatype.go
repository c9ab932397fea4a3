package rosmsg

import "github.com/rosnode/rosnode/internal/rerr"

// Kind tags the variant a DataType holds.
type Kind int

const (
	Bool Kind = iota
	I8
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F32
	F64
	String
	Time
	Duration
	LocalMessage
	GlobalMessage
)

// DataType is the tagged variant described in spec.md §3. I8/U8 carry
// a Spelling ("int8" vs "byte", "uint8" vs "char") because the
// spelling participates in the MD5 representation but not in wire
// semantics: both spellings encode/decode identically.
type DataType struct {
	Kind     Kind
	Spelling string // only meaningful for I8/U8; "int8"/"byte" or "uint8"/"char"
	Local    string // only meaningful for LocalMessage
	Global   Path    // only meaningful for GlobalMessage
}

// IsBuiltin is true for everything except LocalMessage/GlobalMessage.
func (d DataType) IsBuiltin() bool {
	return d.Kind != LocalMessage && d.Kind != GlobalMessage
}

// builtinTokens maps every recognized builtin token to its DataType.
// byte/char are spelling aliases of
// int8/uint8 respectively and keep their own Spelling for MD5 purposes.
var builtinTokens = map[string]DataType{
	"bool":     {Kind: Bool},
	"int8":     {Kind: I8, Spelling: "int8"},
	"byte":     {Kind: I8, Spelling: "byte"},
	"int16":    {Kind: I16},
	"uint16":   {Kind: U16},
	"int32":    {Kind: I32},
	"uint32":   {Kind: U32},
	"int64":    {Kind: I64},
	"uint64":   {Kind: U64},
	"uint8":    {Kind: U8, Spelling: "uint8"},
	"char":     {Kind: U8, Spelling: "char"},
	"float32":  {Kind: F32},
	"float64":  {Kind: F64},
	"string":   {Kind: String},
	"time":     {Kind: Time},
	"duration": {Kind: Duration},
}

// TypeSpelling returns the token to print for this DataType in the MD5
// representation and message definition text: for I8/U8 it's the
// original spelling (int8/byte, uint8/char); for other builtins it's
// the canonical name; for messages it's handled by the caller (the
// hash replaces it, the source text keeps the original token).
func (d DataType) TypeSpelling() string {
	switch d.Kind {
	case I8, U8:
		return d.Spelling
	case Bool:
		return "bool"
	case I16:
		return "int16"
	case U16:
		return "uint16"
	case I32:
		return "int32"
	case U32:
		return "uint32"
	case I64:
		return "int64"
	case U64:
		return "uint64"
	case F32:
		return "float32"
	case F64:
		return "float64"
	case String:
		return "string"
	case Time:
		return "time"
	case Duration:
		return "duration"
	case LocalMessage:
		return d.Local
	case GlobalMessage:
		return d.Global.String()
	}
	return ""
}

// ParseDataType resolves a type token per spec.md §4.1. Builtin tokens
// and the "Header" sugar are recognized first; any other bare token
// parses to LocalMessage. Lifting a local reference against the
// enclosing package happens later in the dependency walk, not at parse
// time.
func ParseDataType(token string) (DataType, error) {
	if dt, ok := builtinTokens[token]; ok {
		return dt, nil
	}

	if token == "Header" {
		p, _ := NewPath("std_msgs", "Header")
		return DataType{Kind: GlobalMessage, Global: p}, nil
	}

	parts := splitSlash(token)
	switch len(parts) {
	case 1:
		if !fieldTypeTokenRe.MatchString(parts[0]) {
			return DataType{}, &rerr.UnsupportedDataType{Token: token}
		}
		return DataType{Kind: LocalMessage, Local: parts[0]}, nil
	case 2:
		p, err := NewPath(parts[0], parts[1])
		if err != nil {
			return DataType{}, &rerr.UnsupportedDataType{Token: token}
		}
		return DataType{Kind: GlobalMessage, Global: p}, nil
	default:
		return DataType{}, &rerr.UnsupportedDataType{Token: token}
	}
}

func splitSlash(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}
