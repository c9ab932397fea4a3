package rosxmlrpc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Fault carries an XML-RPC <fault> response, distinct from the
// (code, message, value) triple every ROS XML-RPC method returns on
// success: a fault means the call itself was malformed (unknown
// method, bad argument count), not a ROS-level failure.
type Fault struct {
	Code    int
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("rosxmlrpc: fault %d: %s", f.Code, f.Message)
}

// EncodeCall renders a methodCall document for method with params.
func EncodeCall(method string, params []Value) ([]byte, error) {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<methodCall><methodName>")
	xml.EscapeText(&b, []byte(method))
	b.WriteString("</methodName>")
	writeParams(&b, params)
	b.WriteString("</methodCall>")
	return []byte(b.String()), nil
}

// EncodeResponse renders a methodResponse document carrying a single
// return value, as every ROS XML-RPC handler does (spec.md §4.4: the
// return is always the one (code,message,value) triple).
func EncodeResponse(value Value) ([]byte, error) {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<methodResponse>")
	writeParams(&b, []Value{value})
	b.WriteString("</methodResponse>")
	return []byte(b.String()), nil
}

// EncodeFault renders a methodResponse carrying a <fault>.
func EncodeFault(code int, message string) ([]byte, error) {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<methodResponse><fault><value><struct>")
	writeMember(&b, "faultCode", Int(code))
	writeMember(&b, "faultString", Str(message))
	b.WriteString("</struct></value></fault></methodResponse>")
	return []byte(b.String()), nil
}

func writeParams(b *strings.Builder, params []Value) {
	b.WriteString("<params>")
	for _, p := range params {
		b.WriteString("<param>")
		writeValue(b, p)
		b.WriteString("</param>")
	}
	b.WriteString("</params>")
}

func writeMember(b *strings.Builder, name string, v Value) {
	b.WriteString("<member><name>")
	xml.EscapeText(b, []byte(name))
	b.WriteString("</name>")
	writeValue(b, v)
	b.WriteString("</member>")
}

func writeValue(b *strings.Builder, v Value) {
	b.WriteString("<value>")
	switch v.Kind {
	case KInt:
		b.WriteString("<int>")
		b.WriteString(strconv.Itoa(v.Int))
		b.WriteString("</int>")
	case KBool:
		b.WriteString("<boolean>")
		if v.Bool {
			b.WriteString("1")
		} else {
			b.WriteString("0")
		}
		b.WriteString("</boolean>")
	case KString:
		b.WriteString("<string>")
		xml.EscapeText(b, []byte(v.Str))
		b.WriteString("</string>")
	case KDouble:
		b.WriteString("<double>")
		b.WriteString(strconv.FormatFloat(v.Double, 'g', -1, 64))
		b.WriteString("</double>")
	case KArray:
		b.WriteString("<array><data>")
		for _, e := range v.Array {
			writeValue(b, e)
		}
		b.WriteString("</data></array>")
	case KStruct:
		b.WriteString("<struct>")
		for name, e := range v.Struct {
			writeMember(b, name, e)
		}
		b.WriteString("</struct>")
	case KNil:
		// no body: an empty <value></value> defaults to string "" in
		// most implementations, which is an acceptable placeholder
		// for a ROS API that never actually emits KNil on the wire.
	}
	b.WriteString("</value>")
}

// DecodeCall parses a methodCall document into its method name and
// parameters.
func DecodeCall(body []byte) (string, []Value, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var method string
	var params []Value

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("rosxmlrpc: decode call: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "methodName":
			s, err := readCharData(dec)
			if err != nil {
				return "", nil, err
			}
			method = s
		case "params":
			params, err = readParams(dec)
			if err != nil {
				return "", nil, err
			}
		}
	}
	if method == "" {
		return "", nil, fmt.Errorf("rosxmlrpc: decode call: missing methodName")
	}
	return method, params, nil
}

// DecodeResponse parses a methodResponse document into its single
// return value, or a *Fault if the peer signaled a fault.
func DecodeResponse(body []byte) (Value, *Fault, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Value{}, nil, fmt.Errorf("rosxmlrpc: decode response: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "params":
			params, err := readParams(dec)
			if err != nil {
				return Value{}, nil, err
			}
			if len(params) == 0 {
				return Value{}, nil, fmt.Errorf("rosxmlrpc: decode response: empty params")
			}
			return params[0], nil, nil
		case "fault":
			v, err := readValue(dec)
			if err != nil {
				return Value{}, nil, err
			}
			if v.Kind != KStruct {
				return Value{}, nil, fmt.Errorf("rosxmlrpc: fault value is not a struct")
			}
			code, _ := v.Struct["faultCode"].AsInt()
			msg, _ := v.Struct["faultString"].AsString()
			return Value{}, &Fault{Code: code, Message: msg}, nil
		}
	}
	return Value{}, nil, fmt.Errorf("rosxmlrpc: decode response: no params or fault")
}

func readParams(dec *xml.Decoder) ([]Value, error) {
	var out []Value
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("rosxmlrpc: read params: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "param" {
				v, err := readParam(dec)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
		case xml.EndElement:
			if t.Name.Local == "params" {
				return out, nil
			}
		}
	}
}

func readParam(dec *xml.Decoder) (Value, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, fmt.Errorf("rosxmlrpc: read param: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "value" {
				return readValueBody(dec)
			}
		case xml.EndElement:
			if t.Name.Local == "param" {
				return Value{}, fmt.Errorf("rosxmlrpc: param with no value")
			}
		}
	}
}

// readValue expects the next start element to be <value> and parses
// its body.
func readValue(dec *xml.Decoder) (Value, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, fmt.Errorf("rosxmlrpc: read value: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "value" {
			return readValueBody(dec)
		}
	}
}

// readValueBody parses the content of an already-opened <value>
// element and consumes its matching </value>.
func readValueBody(dec *xml.Decoder) (Value, error) {
	var result Value
	haveTyped := false
	var rawText strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, fmt.Errorf("rosxmlrpc: read value body: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			rawText.Write(t)
		case xml.StartElement:
			haveTyped = true
			v, err := readTypedValue(dec, t)
			if err != nil {
				return Value{}, err
			}
			result = v
		case xml.EndElement:
			if t.Name.Local == "value" {
				if !haveTyped {
					return Str(rawText.String()), nil
				}
				return result, nil
			}
		}
	}
}

func readTypedValue(dec *xml.Decoder, se xml.StartElement) (Value, error) {
	switch se.Name.Local {
	case "int", "i4", "i8":
		s, err := readCharDataUntil(dec, se.Name.Local)
		if err != nil {
			return Value{}, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return Value{}, fmt.Errorf("rosxmlrpc: bad int %q: %w", s, err)
		}
		return Int(n), nil
	case "boolean":
		s, err := readCharDataUntil(dec, se.Name.Local)
		if err != nil {
			return Value{}, err
		}
		return Bool(strings.TrimSpace(s) == "1"), nil
	case "string":
		s, err := readCharDataUntil(dec, se.Name.Local)
		if err != nil {
			return Value{}, err
		}
		return Str(s), nil
	case "double":
		s, err := readCharDataUntil(dec, se.Name.Local)
		if err != nil {
			return Value{}, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, fmt.Errorf("rosxmlrpc: bad double %q: %w", s, err)
		}
		return Double(f), nil
	case "array":
		return readArray(dec)
	case "struct":
		return readStruct(dec)
	default:
		// Unrecognized scalar tag: treat its text as a string, matching
		// permissive XML-RPC peers that add vendor extension types.
		s, err := readCharDataUntil(dec, se.Name.Local)
		if err != nil {
			return Value{}, err
		}
		return Str(s), nil
	}
}

func readArray(dec *xml.Decoder) (Value, error) {
	var items []Value
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, fmt.Errorf("rosxmlrpc: read array: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "value" {
				v, err := readValueBody(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, v)
			}
		case xml.EndElement:
			if t.Name.Local == "array" {
				return Value{Kind: KArray, Array: items}, nil
			}
		}
	}
}

func readStruct(dec *xml.Decoder) (Value, error) {
	m := make(map[string]Value)
	var curName string
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, fmt.Errorf("rosxmlrpc: read struct: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				s, err := readCharData(dec)
				if err != nil {
					return Value{}, err
				}
				curName = s
			case "value":
				v, err := readValueBody(dec)
				if err != nil {
					return Value{}, err
				}
				m[curName] = v
			}
		case xml.EndElement:
			if t.Name.Local == "struct" {
				return Value{Kind: KStruct, Struct: m}, nil
			}
		}
	}
}

// readCharData reads character data up to the next end element
// (whichever tag is currently open) and returns it.
func readCharData(dec *xml.Decoder) (string, error) {
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("rosxmlrpc: read char data: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.EndElement:
			return b.String(), nil
		}
	}
}

func readCharDataUntil(dec *xml.Decoder, local string) (string, error) {
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("rosxmlrpc: read %s: %w", local, err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.EndElement:
			if t.Name.Local == local {
				return b.String(), nil
			}
		}
	}
}
