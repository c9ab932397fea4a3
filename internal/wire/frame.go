package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameLen bounds a single frame body to protect against a
// misbehaving peer sending an absurd length prefix; well above any
// legitimate ROS message.
const MaxFrameLen = 512 * 1024 * 1024

// ReadFrame reads a u32 length prefix followed by that many bytes, per
// spec.md §4.2's frame format.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxFrameLen {
		return nil, fmt.Errorf("wire: frame length %d exceeds maximum", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteFrame writes a u32 length prefix followed by body.
func WriteFrame(w io.Writer, body []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// EncodeLengthPrefixed returns a standalone frame (length prefix plus
// body) as one slice, used by the publication engine so every queued
// frame is self-contained and can be written with a single syscall.
func EncodeLengthPrefixed(body []byte) []byte {
	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out
}
