package rosmsg

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rosnode/rosnode/internal/rerr"
)

// declRe matches "type[n]? name" with the array spec optional and the
// brackets empty (vector) or holding digits (fixed array).
var declRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_/]*)(\[(\d*)\])?\s+([A-Za-z][A-Za-z0-9_]*)\s*$`)

var numericLiteralRe = regexp.MustCompile(`^-?[0-9.eE+\-]+$`)

// ParseFields parses the body of a .msg source (one field declaration
// per line) into an ordered list of Fields, per spec.md §4.1.
func ParseFields(source string) ([]Field, error) {
	var fields []Field

	for _, raw := range strings.Split(source, "\n") {
		line := raw

		// a bare comment line, or blank line, contributes nothing
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		// a '#' before any '=' comments out the rest of the line, so
		// "int32 x  # a=b" is a declaration, not a constant
		eq := strings.IndexByte(line, '=')
		if h := strings.IndexByte(line, '#'); h >= 0 && (eq < 0 || h < eq) {
			eq = -1
		}
		if eq < 0 {
			// no constant: strip a trailing comment, then parse the decl
			decl := line
			if h := strings.IndexByte(decl, '#'); h >= 0 {
				decl = decl[:h]
			}
			decl = strings.TrimSpace(decl)
			if decl == "" {
				continue
			}

			f, err := parseDecl(decl)
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
			continue
		}

		decl := strings.TrimSpace(line[:eq])
		rest := line[eq+1:]

		typeToken, arrayCase, name, err := splitDecl(decl)
		if err != nil {
			return nil, err
		}

		dt, err := ParseDataType(typeToken)
		if err != nil {
			return nil, err
		}

		var literal string
		if dt.Kind == String {
			// everything after '=' to end of line is literal, including '#'
			literal = strings.TrimRight(rest, " \t\r")
			literal = strings.TrimPrefix(literal, " ")
		} else {
			val := rest
			if h := strings.IndexByte(val, '#'); h >= 0 {
				val = val[:h]
			}
			val = strings.TrimSpace(val)
			if !numericLiteralRe.MatchString(val) {
				return nil, &rerr.Protocol{Detail: "invalid constant literal: " + val}
			}
			literal = val
		}

		_ = arrayCase // consts are always Unit case in this grammar
		fields = append(fields, Field{
			Type: dt,
			Name: name,
			Case: FieldCase{Kind: Const, Literal: literal},
		})
	}

	return fields, nil
}

func parseDecl(decl string) (Field, error) {
	typeToken, arrayCase, name, err := splitDecl(decl)
	if err != nil {
		return Field{}, err
	}

	dt, err := ParseDataType(typeToken)
	if err != nil {
		return Field{}, err
	}

	return Field{Type: dt, Name: name, Case: arrayCase}, nil
}

func splitDecl(decl string) (typeToken string, fc FieldCase, name string, err error) {
	m := declRe.FindStringSubmatch(decl)
	if m == nil {
		return "", FieldCase{}, "", &rerr.Protocol{Detail: "malformed field declaration: " + decl}
	}

	typeToken = m[1]
	name = m[4]

	switch {
	case m[2] == "":
		fc = FieldCase{Kind: Unit}
	case m[3] == "":
		fc = FieldCase{Kind: Vector}
	default:
		n, convErr := strconv.Atoi(m[3])
		if convErr != nil {
			return "", FieldCase{}, "", &rerr.Protocol{Detail: "invalid array length: " + m[3]}
		}
		fc = FieldCase{Kind: Array, ArrayN: n}
	}

	return typeToken, fc, name, nil
}
