// Package rosxmlrpc implements the XML-RPC plane (spec.md §4.4): the
// master client used to register/unregister/query, and the slave HTTP
// server each node runs to answer peer and master callbacks.
//
// No example repository in the retrieval pack imports a generic
// XML-RPC client/server library (see DESIGN.md) — like rosgo's own
// xmlrpc subpackage and rosrust's rosxmlrpc module, this hand-rolls
// request/response encoding on top of stdlib encoding/xml and
// net/http, matching the same strategy the original implementation and
// its sibling Go port both used.
package rosxmlrpc

import (
	"fmt"
)

// Kind tags a Value's XML-RPC type.
type Kind int

const (
	KInt Kind = iota
	KBool
	KString
	KDouble
	KArray
	KStruct
	KNil
)

// Value is a tagged XML-RPC parameter or return value.
type Value struct {
	Kind   Kind
	Int    int
	Bool   bool
	Str    string
	Double float64
	Array  []Value
	Struct map[string]Value
}

func Int(v int) Value                 { return Value{Kind: KInt, Int: v} }
func Bool(v bool) Value               { return Value{Kind: KBool, Bool: v} }
func Str(v string) Value              { return Value{Kind: KString, Str: v} }
func Double(v float64) Value          { return Value{Kind: KDouble, Double: v} }
func Arr(v ...Value) Value            { return Value{Kind: KArray, Array: v} }
func Struct(v map[string]Value) Value { return Value{Kind: KStruct, Struct: v} }
func Nil() Value                      { return Value{Kind: KNil} }

// AsString returns the string payload, or an error if Kind isn't
// KString. Used by handlers pulling out required string arguments.
func (v Value) AsString() (string, error) {
	if v.Kind != KString {
		return "", fmt.Errorf("rosxmlrpc: expected string, got kind %d", v.Kind)
	}
	return v.Str, nil
}

func (v Value) AsInt() (int, error) {
	if v.Kind != KInt {
		return 0, fmt.Errorf("rosxmlrpc: expected int, got kind %d", v.Kind)
	}
	return v.Int, nil
}

func (v Value) AsArray() ([]Value, error) {
	if v.Kind != KArray {
		return nil, fmt.Errorf("rosxmlrpc: expected array, got kind %d", v.Kind)
	}
	return v.Array, nil
}

// AsStringArray is a convenience for the common case of an array of
// strings (publisher URI lists, protocol name lists, ...).
func (v Value) AsStringArray() ([]string, error) {
	arr, err := v.AsArray()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(arr))
	for i, e := range arr {
		s, err := e.AsString()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// Triple builds the (code, message, value) return value every master
// and slave XML-RPC method produces, per spec.md §4.4.
func Triple(code int, message string, value Value) Value {
	return Arr(Int(code), Str(message), value)
}

const (
	StatusError   = -1
	StatusFailure = 0
	StatusSuccess = 1
)
