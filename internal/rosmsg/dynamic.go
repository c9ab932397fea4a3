package rosmsg

import (
	"fmt"

	"github.com/rosnode/rosnode/internal/wire"
)

// TimeVal and DurationVal give the dynamic codec a concrete Go type for
// the two-int32 wire layout, keeping sign semantics explicit (Duration
// may be negative; spec.md §4.2). Named distinctly from the Time/
// Duration Kind constants they correspond to.
type TimeVal struct{ Sec, Nsec int32 }
type DurationVal struct{ Sec, Nsec int32 }

// Value is the dynamic message view's runtime representation of a
// decoded field: one of bool, intN/uintN, float32/float64, string,
// TimeVal, DurationVal, map[string]any (nested message), or []any (vector
// or fixed array).
type Value = any

// DynamicView resolves local-message references against its own
// package and walks a registry of known messages to encode/decode
// values without generated per-type code, per spec.md §4.1's "dynamic
// message view". It is the only codec in this package: no per-type
// codec is generated, and Compiled wraps a DynamicView for every
// message type.
type DynamicView struct {
	Msg      Msg
	Registry map[Path]Msg // must contain every transitively reachable dependency
}

// NewDynamicView builds a view from a (msg_type, full_definition_blob)
// pair received over TCPROS, splitting the blob into primary and
// secondary sections and parsing each.
func NewDynamicView(msgType string, definitionBlob string) (*DynamicView, error) {
	parts := splitSlash(msgType)
	if len(parts) != 2 {
		return nil, fmt.Errorf("rosmsg: invalid message type %q", msgType)
	}
	path, err := NewPath(parts[0], parts[1])
	if err != nil {
		return nil, err
	}

	primarySrc, secondary := DefinitionSections(definitionBlob)

	m, err := Parse(path, primarySrc)
	if err != nil {
		return nil, err
	}

	registry := map[Path]Msg{path: m}
	for p, src := range secondary {
		dm, err := Parse(p, src)
		if err != nil {
			return nil, err
		}
		registry[p] = dm
	}

	return &DynamicView{Msg: m, Registry: registry}, nil
}

// Encode walks v's fields against the schema, writing each non-const
// field's encoding in declaration order.
func (d *DynamicView) Encode(w *wire.Writer, v map[string]any) error {
	return encodeFields(w, d.Msg.Path.Package, d.Msg.Fields, v, d.Registry)
}

// Decode reads a value for d.Msg from r.
func (d *DynamicView) Decode(r *wire.Reader) (map[string]any, error) {
	return decodeFields(r, d.Msg.Path.Package, d.Msg.Fields, d.Registry)
}

func encodeFields(w *wire.Writer, ownPackage string, fields []Field, v map[string]any, registry map[Path]Msg) error {
	for _, f := range fields {
		if f.Case.Kind == Const {
			continue
		}
		val, ok := v[f.Name]
		if !ok {
			return fmt.Errorf("rosmsg: missing field %q", f.Name)
		}
		if err := encodeField(w, ownPackage, f, val, registry); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return nil
}

func decodeFields(r *wire.Reader, ownPackage string, fields []Field, registry map[Path]Msg) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if f.Case.Kind == Const {
			continue
		}
		val, err := decodeField(r, ownPackage, f, registry)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		out[f.Name] = val
	}
	return out, nil
}

func encodeField(w *wire.Writer, ownPackage string, f Field, val any, registry map[Path]Msg) error {
	switch f.Case.Kind {
	case Unit:
		return encodeScalar(w, ownPackage, f.Type, val, registry)
	case Vector:
		items, ok := val.([]any)
		if !ok {
			return fmt.Errorf("expected []any for vector field")
		}
		w.WriteU32(uint32(len(items)))
		for _, item := range items {
			if err := encodeScalar(w, ownPackage, f.Type, item, registry); err != nil {
				return err
			}
		}
		return nil
	case Array:
		items, ok := val.([]any)
		if !ok {
			return fmt.Errorf("expected []any for array field")
		}
		if len(items) != f.Case.ArrayN {
			return fmt.Errorf("array field expects %d elements, got %d", f.Case.ArrayN, len(items))
		}
		for _, item := range items {
			if err := encodeScalar(w, ownPackage, f.Type, item, registry); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported field case")
}

func decodeField(r *wire.Reader, ownPackage string, f Field, registry map[Path]Msg) (any, error) {
	switch f.Case.Kind {
	case Unit:
		return decodeScalar(r, ownPackage, f.Type, registry)
	case Vector:
		n, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		items := make([]any, n)
		for i := range items {
			items[i], err = decodeScalar(r, ownPackage, f.Type, registry)
			if err != nil {
				return nil, err
			}
		}
		return items, nil
	case Array:
		items := make([]any, f.Case.ArrayN)
		var err error
		for i := range items {
			items[i], err = decodeScalar(r, ownPackage, f.Type, registry)
			if err != nil {
				return nil, err
			}
		}
		return items, nil
	}
	return nil, fmt.Errorf("unsupported field case")
}

func encodeScalar(w *wire.Writer, ownPackage string, dt DataType, val any, registry map[Path]Msg) error {
	switch dt.Kind {
	case Bool:
		w.WriteBool(val.(bool))
	case I8:
		w.WriteI8(val.(int8))
	case U8:
		w.WriteU8(val.(uint8))
	case I16:
		w.WriteI16(val.(int16))
	case U16:
		w.WriteU16(val.(uint16))
	case I32:
		w.WriteI32(val.(int32))
	case U32:
		w.WriteU32(val.(uint32))
	case I64:
		w.WriteI64(val.(int64))
	case U64:
		w.WriteU64(val.(uint64))
	case F32:
		w.WriteF32(val.(float32))
	case F64:
		w.WriteF64(val.(float64))
	case String:
		w.WriteString(val.(string))
	case Time:
		t := val.(TimeVal)
		w.WriteTime(t.Sec, t.Nsec)
	case Duration:
		d := val.(DurationVal)
		w.WriteDuration(d.Sec, d.Nsec)
	case LocalMessage, GlobalMessage:
		dep := resolvedDep(ownPackage, dt)
		depMsg, ok := registry[dep]
		if !ok {
			return fmt.Errorf("rosmsg: unresolved nested message %s", dep)
		}
		sub, ok := val.(map[string]any)
		if !ok {
			return fmt.Errorf("rosmsg: expected map[string]any for nested message %s", dep)
		}
		return encodeFields(w, depMsg.Path.Package, depMsg.Fields, sub, registry)
	default:
		return fmt.Errorf("rosmsg: unknown data type kind")
	}
	return nil
}

func decodeScalar(r *wire.Reader, ownPackage string, dt DataType, registry map[Path]Msg) (any, error) {
	switch dt.Kind {
	case Bool:
		return r.ReadBool()
	case I8:
		return r.ReadI8()
	case U8:
		return r.ReadU8()
	case I16:
		return r.ReadI16()
	case U16:
		return r.ReadU16()
	case I32:
		return r.ReadI32()
	case U32:
		return r.ReadU32()
	case I64:
		return r.ReadI64()
	case U64:
		return r.ReadU64()
	case F32:
		return r.ReadF32()
	case F64:
		return r.ReadF64()
	case String:
		return r.ReadString()
	case Time:
		sec, nsec, err := r.ReadTime()
		return TimeVal{Sec: sec, Nsec: nsec}, err
	case Duration:
		sec, nsec, err := r.ReadDuration()
		return DurationVal{Sec: sec, Nsec: nsec}, err
	case LocalMessage, GlobalMessage:
		dep := resolvedDep(ownPackage, dt)
		depMsg, ok := registry[dep]
		if !ok {
			return nil, fmt.Errorf("rosmsg: unresolved nested message %s", dep)
		}
		return decodeFields(r, depMsg.Path.Package, depMsg.Fields, registry)
	default:
		return nil, fmt.Errorf("rosmsg: unknown data type kind")
	}
}
