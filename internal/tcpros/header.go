// Package tcpros implements the TCPROS handshake (spec.md §4.5): a
// pair of length-prefixed key=value header maps exchanged as the first
// thing on any TCPROS socket, before publish/subscribe frames or
// service request/response frames start flowing.
//
// Grounded on the teacher's internal/ron handshake (a fixed magic-byte
// preamble followed by a gob-encoded struct, internal/ron/server.go
// handshake) generalized here to REP 2's map-of-strings preamble.
package tcpros

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/rosnode/rosnode/internal/rerr"
)

// Header is a key=value map as exchanged during the
// handshake. Map order on the wire doesn't matter to either peer; we
// sort keys on write for deterministic framing in tests.
type Header map[string]string

// WriteHeader encodes h as: u32 total_len, then for each pair u32
// strlen | "key=value" bytes (strlen includes the '=').
func WriteHeader(w io.Writer, h Header) error {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var body []byte
	for _, k := range keys {
		pair := k + "=" + h[k]
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(pair)))
		body = append(body, lenBuf[:]...)
		body = append(body, pair...)
	}

	var totalBuf [4]byte
	binary.LittleEndian.PutUint32(totalBuf[:], uint32(len(body)))
	if _, err := w.Write(totalBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadHeader decodes a header map written by WriteHeader.
func ReadHeader(r io.Reader) (Header, error) {
	var totalBuf [4]byte
	if _, err := io.ReadFull(r, totalBuf[:]); err != nil {
		return nil, err
	}
	total := binary.LittleEndian.Uint32(totalBuf[:])

	body := make([]byte, total)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	h := make(Header)
	pos := 0
	for pos < len(body) {
		if pos+4 > len(body) {
			return nil, &rerr.Protocol{Detail: "truncated header field length"}
		}
		n := int(binary.LittleEndian.Uint32(body[pos : pos+4]))
		pos += 4
		if pos+n > len(body) {
			return nil, &rerr.Protocol{Detail: "truncated header field body"}
		}
		pair := string(body[pos : pos+n])
		pos += n

		eq := -1
		for i := 0; i < len(pair); i++ {
			if pair[i] == '=' {
				eq = i
				break
			}
		}
		if eq < 0 {
			return nil, &rerr.Protocol{Detail: "header field missing '='"}
		}
		h[pair[:eq]] = pair[eq+1:]
	}

	return h, nil
}

// Require fetches a required field, or returns HeaderMissingField.
func (h Header) Require(field string) (string, error) {
	v, ok := h[field]
	if !ok {
		return "", &rerr.HeaderMissingField{Field: field}
	}
	return v, nil
}

// Agree compares a locally expected value against the peer's value for
// field, treating "*" on either side as a wildcard match. Returns
// HeaderMismatch on disagreement.
func Agree(field, expected, actual string) error {
	if expected == "*" || actual == "*" || expected == actual {
		return nil
	}
	return &rerr.HeaderMismatch{Field: field, Expected: expected, Actual: actual}
}
