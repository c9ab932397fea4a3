package tcpros

import (
	"net"
	"testing"
	"time"
)

func TestHeaderWriteReadRoundTrip(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	h := Header{"callerid": "/talker", "topic": "/chatter", "md5sum": "992ce8a1687cec8c8bd883ec73ca41d1", "type": "std_msgs/String"}

	errCh := make(chan error, 1)
	go func() { errCh <- WriteHeader(c1, h) }()

	got, err := ReadHeader(c2)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	for k, v := range h {
		if got[k] != v {
			t.Errorf("header[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestAgreeWildcard(t *testing.T) {
	if err := Agree("md5sum", "*", "abc123"); err != nil {
		t.Errorf("expected wildcard on expected side to match, got %v", err)
	}
	if err := Agree("md5sum", "abc123", "*"); err != nil {
		t.Errorf("expected wildcard on actual side to match, got %v", err)
	}
	if err := Agree("md5sum", "abc", "def"); err == nil {
		t.Error("expected mismatch error for differing values")
	}
}

func TestSubscriberPublisherHandshakeHappyPath(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	const md5 = "992ce8a1687cec8c8bd883ec73ca41d1"
	const msgType = "std_msgs/String"

	go func() {
		SubscriberDial(c1, "/listener", "/chatter", md5, msgType, "string data\n")
		SubscriberReadReply(c1, md5, msgType)
	}()

	h, err := PublisherAccept(c2, "/chatter", md5, msgType)
	if err != nil {
		t.Fatalf("PublisherAccept: %v", err)
	}
	if h["callerid"] != "/listener" {
		t.Errorf("callerid = %q", h["callerid"])
	}
	if err := PublisherReply(c2, md5, msgType); err != nil {
		t.Fatalf("PublisherReply: %v", err)
	}
}

// TestPublisherRejectsWrongMD5 verifies spec.md §8: "a subscriber
// handshake that advertises wrong md5 must cause the publisher to
// refuse the connection."
func TestPublisherRejectsWrongMD5(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	const serverMD5 = "992ce8a1687cec8c8bd883ec73ca41d1"
	const msgType = "std_msgs/String"

	go func() {
		SubscriberDial(c1, "/listener", "/chatter", "wrongmd5wrongmd5wrongmd5wrongmd5", msgType, "string data\n")
	}()

	_, err := PublisherAccept(c2, "/chatter", serverMD5, msgType)
	if err == nil {
		t.Fatal("expected PublisherAccept to reject mismatched md5sum")
	}
}

func TestPublisherRejectsWrongTopic(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	const md5 = "992ce8a1687cec8c8bd883ec73ca41d1"
	const msgType = "std_msgs/String"

	go func() {
		SubscriberDial(c1, "/listener", "/wrong_topic", md5, msgType, "string data\n")
	}()

	_, err := PublisherAccept(c2, "/chatter", md5, msgType)
	if err == nil {
		t.Fatal("expected PublisherAccept to reject mismatched topic")
	}
}

func TestPublisherAcceptsWildcardType(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	const md5 = "992ce8a1687cec8c8bd883ec73ca41d1"

	go func() {
		SubscriberDial(c1, "/listener", "/chatter", md5, "*", "string data\n")
	}()

	if _, err := PublisherAccept(c2, "/chatter", md5, "std_msgs/String"); err != nil {
		t.Fatalf("PublisherAccept with wildcard type should succeed: %v", err)
	}
}

func TestServiceHandshakeProbe(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	const md5 = "abcdefabcdefabcdefabcdefabcdefab"

	go func() {
		ServiceClientDial(c1, "/caller", "/add_two_ints", md5, "test_msgs/AddTwoInts", true)
	}()

	h, probe, err := ServiceServerAccept(c2, "/add_two_ints", md5)
	if err != nil {
		t.Fatalf("ServiceServerAccept: %v", err)
	}
	if !probe {
		t.Fatal("expected probe=true")
	}
	if h["callerid"] != "/caller" {
		t.Errorf("callerid = %q", h["callerid"])
	}
}

func TestServiceHandshakeFullRequest(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	const md5 = "abcdefabcdefabcdefabcdefabcdefab"

	go func() {
		ServiceClientDial(c1, "/caller", "/add_two_ints", md5, "test_msgs/AddTwoInts", false)
		ServiceClientReadReply(c1, md5)
	}()

	h, probe, err := ServiceServerAccept(c2, "/add_two_ints", md5)
	if err != nil {
		t.Fatalf("ServiceServerAccept: %v", err)
	}
	if probe {
		t.Fatal("expected probe=false")
	}
	if err := ServiceServerReply(c2, h["callerid"], md5, "test_msgs/AddTwoInts"); err != nil {
		t.Fatalf("ServiceServerReply: %v", err)
	}
}

func TestServiceServerRejectsWrongService(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	const md5 = "abcdefabcdefabcdefabcdefabcdefab"

	go func() {
		ServiceClientDial(c1, "/caller", "/wrong_service", md5, "test_msgs/AddTwoInts", false)
	}()

	_, _, err := ServiceServerAccept(c2, "/add_two_ints", md5)
	if err == nil {
		t.Fatal("expected ServiceServerAccept to reject mismatched service name")
	}
}

func TestHeaderRequireMissingField(t *testing.T) {
	h := Header{"a": "1"}
	if _, err := h.Require("b"); err == nil {
		t.Fatal("expected HeaderMissingField error")
	}
}

// TestHandshakeDeadlineTimeout exercises a peer that never completes
// its side of the handshake; ReadHeader must respect a deadline rather
// than block forever.
func TestHandshakeDeadlineTimeout(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	c2.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	if _, err := ReadHeader(c2); err == nil {
		t.Fatal("expected deadline error when peer never writes")
	}
}
