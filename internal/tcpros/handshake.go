package tcpros

import (
	"io"

	"github.com/rosnode/rosnode/internal/rerr"
)

// SubscriberDial writes the subscriber-initiated handshake map on conn,
// per spec.md §4.5. It does not read the publisher's reply; callers
// read and validate that with SubscriberReadReply.
func SubscriberDial(conn io.Writer, callerID, topic, md5sum, msgType, messageDefinition string) error {
	return WriteHeader(conn, Header{
		"message_definition": messageDefinition,
		"callerid":           callerID,
		"topic":              topic,
		"md5sum":             md5sum,
		"type":               msgType,
	})
}

// SubscriberReadReply reads and validates the publisher's reply header
// against what the subscriber expects.
func SubscriberReadReply(conn io.Reader, expectMD5, expectType string) (Header, error) {
	reply, err := ReadHeader(conn)
	if err != nil {
		return nil, err
	}

	gotMD5, err := reply.Require("md5sum")
	if err != nil {
		return nil, err
	}
	gotType, err := reply.Require("type")
	if err != nil {
		return nil, err
	}

	if err := Agree("md5sum", expectMD5, gotMD5); err != nil {
		return nil, err
	}
	if err := Agree("type", expectType, gotType); err != nil {
		return nil, err
	}

	return reply, nil
}

// PublisherAccept reads the subscriber's initial map and validates it
// against the publication's own (topic, md5sum, type), per spec.md
// §4.5: the publisher refuses on any mismatch, "*" matching anything.
func PublisherAccept(conn io.Reader, topic, md5sum, msgType string) (Header, error) {
	h, err := ReadHeader(conn)
	if err != nil {
		return nil, err
	}

	for _, field := range []string{"callerid", "topic", "md5sum", "type"} {
		if _, err := h.Require(field); err != nil {
			return nil, err
		}
	}

	if h["topic"] != topic {
		return nil, &rerr.HeaderMismatch{Field: "topic", Expected: topic, Actual: h["topic"]}
	}
	if err := Agree("md5sum", md5sum, h["md5sum"]); err != nil {
		return nil, err
	}
	if err := Agree("type", msgType, h["type"]); err != nil {
		return nil, err
	}

	return h, nil
}

// PublisherReply writes the publisher's reply map: md5sum, type.
func PublisherReply(conn io.Writer, md5sum, msgType string) error {
	return WriteHeader(conn, Header{"md5sum": md5sum, "type": msgType})
}

// ServiceClientDial writes a service client's initial map, either a
// full request (probe=false) or a probe-only handshake (probe=true,
// md5sum sent as "*").
func ServiceClientDial(conn io.Writer, callerID, service, md5sum, msgType string, probe bool) error {
	h := Header{
		"callerid": callerID,
		"service":  service,
	}
	if probe {
		h["probe"] = "1"
		h["md5sum"] = "*"
	} else {
		h["md5sum"] = md5sum
		h["type"] = msgType
	}
	return WriteHeader(conn, h)
}

// ServiceServerAccept reads and validates a service client's initial
// map against the server's own (service, md5sum), per spec.md §4.5. A
// probe handshake (md5sum "*") skips md5sum validation.
func ServiceServerAccept(conn io.Reader, service, md5sum string) (h Header, probe bool, err error) {
	h, err = ReadHeader(conn)
	if err != nil {
		return nil, false, err
	}

	if _, err := h.Require("callerid"); err != nil {
		return nil, false, err
	}
	gotService, err := h.Require("service")
	if err != nil {
		return nil, false, err
	}
	if gotService != service {
		return nil, false, &rerr.HeaderMismatch{Field: "service", Expected: service, Actual: gotService}
	}

	probe = h["probe"] == "1"
	if !probe {
		gotMD5, err := h.Require("md5sum")
		if err != nil {
			return nil, false, err
		}
		if err := Agree("md5sum", md5sum, gotMD5); err != nil {
			return nil, false, err
		}
	}

	return h, probe, nil
}

// ServiceServerReply writes the server's reply map: callerid, md5sum, type.
func ServiceServerReply(conn io.Writer, callerID, md5sum, msgType string) error {
	return WriteHeader(conn, Header{"callerid": callerID, "md5sum": md5sum, "type": msgType})
}

// ServiceClientReadReply reads the server's reply to a non-probe
// handshake and validates md5sum.
func ServiceClientReadReply(conn io.Reader, expectMD5 string) (Header, error) {
	h, err := ReadHeader(conn)
	if err != nil {
		return nil, err
	}
	gotMD5, err := h.Require("md5sum")
	if err != nil {
		return nil, err
	}
	if err := Agree("md5sum", expectMD5, gotMD5); err != nil {
		return nil, err
	}
	return h, nil
}
