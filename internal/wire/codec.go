// Package wire implements the TCPROS binary codec: little-endian
// length-prefixed primitives, strings, arrays, and time/duration, per
// spec.md §4.2. Grounded on the teacher's meshage wire framing
// conventions (length-prefixed exchanges in internal/meshage) adapted
// from gob encoding to the fixed binary layout REP 2 prescribes.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Writer accumulates an encoded message body.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *Writer) WriteI8(v int8)   { w.buf.WriteByte(byte(v)) }
func (w *Writer) WriteU8(v uint8)  { w.buf.WriteByte(v) }

func (w *Writer) WriteI16(v int16)   { w.writeUint(uint64(uint16(v)), 2) }
func (w *Writer) WriteU16(v uint16)  { w.writeUint(uint64(v), 2) }
func (w *Writer) WriteI32(v int32)   { w.writeUint(uint64(uint32(v)), 4) }
func (w *Writer) WriteU32(v uint32)  { w.writeUint(uint64(v), 4) }
func (w *Writer) WriteI64(v int64)   { w.writeUint(uint64(v), 8) }
func (w *Writer) WriteU64(v uint64)  { w.writeUint(v, 8) }

func (w *Writer) writeUint(v uint64, n int) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:n])
}

func (w *Writer) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }
func (w *Writer) WriteF64(v float64) { w.WriteU64(math.Float64bits(v)) }

func (w *Writer) WriteString(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
}

// WriteTime/WriteDuration encode two signed i32 (seconds, nanoseconds),
// per spec.md §4.2. Duration may be negative; Time in ROS is not, but
// the wire layout is identical.
func (w *Writer) WriteTime(sec, nsec int32) {
	w.WriteI32(sec)
	w.WriteI32(nsec)
}

func (w *Writer) WriteDuration(sec, nsec int32) {
	w.WriteI32(sec)
	w.WriteI32(nsec)
}

// WriteRaw appends already-encoded bytes verbatim (used for nested
// struct encodings produced by a separate Writer).
func (w *Writer) WriteRaw(b []byte) { w.buf.Write(b) }

// Reader consumes an encoded message body.
type Reader struct {
	b   []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{b: b} }

func (r *Reader) Remaining() int { return len(r.b) - r.pos }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("wire: short read, need %d bytes, have %d", n, r.Remaining())
	}
	return nil
}

func (r *Reader) ReadBool() (bool, error) {
	if err := r.need(1); err != nil {
		return false, err
	}
	v := r.b[r.pos] != 0
	r.pos++
	return v, nil
}

func (r *Reader) ReadI8() (int8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := int8(r.b[r.pos])
	r.pos++
	return v, nil
}

func (r *Reader) ReadU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) readUint(n int) (uint64, error) {
	if err := r.need(n); err != nil {
		return 0, err
	}
	var b [8]byte
	copy(b[:n], r.b[r.pos:r.pos+n])
	r.pos += n
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (r *Reader) ReadI16() (int16, error) { v, err := r.readUint(2); return int16(uint16(v)), err }
func (r *Reader) ReadU16() (uint16, error) { v, err := r.readUint(2); return uint16(v), err }
func (r *Reader) ReadI32() (int32, error) { v, err := r.readUint(4); return int32(uint32(v)), err }
func (r *Reader) ReadU32() (uint32, error) { v, err := r.readUint(4); return uint32(v), err }
func (r *Reader) ReadI64() (int64, error) { v, err := r.readUint(8); return int64(v), err }
func (r *Reader) ReadU64() (uint64, error) { return r.readUint(8) }

func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	return math.Float64frombits(v), err
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.b[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *Reader) ReadTime() (sec, nsec int32, err error) {
	sec, err = r.ReadI32()
	if err != nil {
		return
	}
	nsec, err = r.ReadI32()
	return
}

func (r *Reader) ReadDuration() (sec, nsec int32, err error) {
	return r.ReadTime()
}

// ReadRaw consumes exactly n bytes verbatim, for nested struct decode
// delegation.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.b[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// helper conversions to/from time.Time, used by engines that want Go
// time values rather than raw (sec, nsec) pairs.
func GoTime(sec, nsec int32) time.Time {
	return time.Unix(int64(sec), int64(nsec)).UTC()
}

func SplitGoTime(t time.Time) (sec, nsec int32) {
	return int32(t.Unix()), int32(t.Nanosecond())
}
