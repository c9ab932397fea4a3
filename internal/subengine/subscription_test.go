package subengine

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rosnode/rosnode/internal/rosmsg"
	"github.com/rosnode/rosnode/internal/rosxmlrpc"
	"github.com/rosnode/rosnode/internal/tcpros"
	"github.com/rosnode/rosnode/internal/wire"
)

// rosxmlrpcRequestTopicHandler answers every requestTopic call with a
// fixed TCPROS (host, port) triple, standing in for a peer publisher's
// slave XML-RPC endpoint.
func rosxmlrpcRequestTopicHandler(host string, port int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		method, _, err := rosxmlrpc.DecodeCall(body)
		if err != nil || method != "requestTopic" {
			resp, _ := rosxmlrpc.EncodeFault(1, "unexpected call")
			w.Write(resp)
			return
		}
		triple := rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "", rosxmlrpc.Arr(
			rosxmlrpc.Str("TCPROS"), rosxmlrpc.Str(host), rosxmlrpc.Int(port),
		))
		resp, _ := rosxmlrpc.EncodeResponse(triple)
		w.Header().Set("Content-Type", "text/xml")
		w.Write(resp)
	}
}

const testMD5 = "992ce8a1687cec8c8bd883ec73ca41d1"

func mustCompiledString(t testing.TB) *rosmsg.Compiled {
	t.Helper()
	path, err := rosmsg.NewPath("std_msgs", "String")
	if err != nil {
		t.Fatalf("NewPath: %v", err)
	}
	m, err := rosmsg.Parse(path, "string data\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c, err := rosmsg.Compile(path, map[rosmsg.Path]rosmsg.Msg{path: m})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return c
}

// fakePublisher listens for one TCPROS subscriber connection, performs
// the publisher side of the handshake, and returns a function to push
// a raw payload frame to the connected reader.
type fakePublisher struct {
	ln    net.Listener
	ready chan net.Conn

	mu   sync.Mutex
	conn net.Conn
}

func startFakePublisher(t *testing.T, topic, md5, msgType string) *fakePublisher {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	fp := &fakePublisher{ln: ln, ready: make(chan net.Conn, 1)}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if _, err := tcpros.PublisherAccept(conn, topic, md5, msgType); err != nil {
			conn.Close()
			return
		}
		if err := tcpros.PublisherReply(conn, md5, msgType); err != nil {
			conn.Close()
			return
		}
		fp.mu.Lock()
		fp.conn = conn
		fp.mu.Unlock()
		fp.ready <- conn
	}()
	return fp
}

func (fp *fakePublisher) addr() (string, int) {
	tcpAddr := fp.ln.Addr().(*net.TCPAddr)
	return tcpAddr.IP.String(), tcpAddr.Port
}

func (fp *fakePublisher) waitConnected(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-fp.ready:
		fp.ready <- conn
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("fake publisher never accepted a connection")
		return nil
	}
}

func (fp *fakePublisher) push(t *testing.T, payload []byte) {
	t.Helper()
	conn := fp.waitConnected(t)
	if err := wire.WriteFrame(conn, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
}

func (fp *fakePublisher) close() {
	fp.mu.Lock()
	conn := fp.conn
	fp.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	fp.ln.Close()
}

// slaveAnswering builds an httptest server answering requestTopic with
// a fixed (host, port) TCPROS reply, standing in for a peer publisher's
// slave XML-RPC endpoint.
func slaveAnswering(t *testing.T, host string, port int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(rosxmlrpcRequestTopicHandler(host, port))
}

func TestSubscriptionReceivesPublishedFrame(t *testing.T) {
	compiled := mustCompiledString(t)
	fp := startFakePublisher(t, "/chatter", testMD5, compiled.MsgType())
	defer fp.close()
	host, port := fp.addr()
	slave := slaveAnswering(t, host, port)
	defer slave.Close()

	sub := New("/listener", "http://listener/", "/chatter", compiled)
	defer sub.Close()

	var mu sync.Mutex
	var received map[string]any
	done := make(chan struct{})
	sub.AddSubscriber(8, func(msg map[string]any, callerID string) {
		mu.Lock()
		received = msg
		mu.Unlock()
		close(done)
	})

	sub.PublisherUpdate([]string{slave.URL})

	body, err := compiled.Encode(map[string]any{"data": "hello"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	fp.push(t, body)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for frame delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if received["data"] != "hello" {
		t.Fatalf("received = %#v", received)
	}
}

func TestRegistryRejectsTypeMismatch(t *testing.T) {
	r := NewRegistry("/listener", "http://listener/")
	compiled := mustCompiledString(t)

	_, err := r.AddSubscriber("/chatter", compiled, 8, func(map[string]any, string) {})
	if err != nil {
		t.Fatalf("first AddSubscriber: %v", err)
	}
	defer r.CloseAll()

	mismatched := &rosmsg.Compiled{}
	*mismatched = *compiled
	mismatched.MD5Sum = "deadbeefdeadbeefdeadbeefdeadbeef"

	_, err = r.AddSubscriber("/chatter", mismatched, 8, func(map[string]any, string) {})
	if err == nil {
		t.Fatal("expected type-mismatch error on incompatible second subscriber")
	}
}

func TestRegistryDestroysRecordWhenLastHandleRemoved(t *testing.T) {
	r := NewRegistry("/listener", "http://listener/")
	compiled := mustCompiledString(t)

	id, err := r.AddSubscriber("/chatter", compiled, 8, func(map[string]any, string) {})
	if err != nil {
		t.Fatalf("AddSubscriber: %v", err)
	}
	if len(r.Topics()) != 1 {
		t.Fatalf("Topics() = %v, want 1 entry", r.Topics())
	}
	r.RemoveSubscriber("/chatter", id)
	if len(r.Topics()) != 0 {
		t.Fatalf("Topics() after last remove = %v, want empty", r.Topics())
	}
}

func TestPublisherUpdateDroppingPeerClosesConnection(t *testing.T) {
	compiled := mustCompiledString(t)
	fp1 := startFakePublisher(t, "/chatter", testMD5, compiled.MsgType())
	defer fp1.close()
	host1, port1 := fp1.addr()
	slave1 := slaveAnswering(t, host1, port1)
	defer slave1.Close()

	sub := New("/listener", "http://listener/", "/chatter", compiled)
	defer sub.Close()
	sub.AddSubscriber(8, func(map[string]any, string) {})

	sub.PublisherUpdate([]string{slave1.URL})
	conn := fp1.waitConnected(t)

	// Dropping the publisher from the URI set must close the
	// connection; detect it from the publisher's side via a failed
	// subsequent write.
	sub.PublisherUpdate(nil)
	time.Sleep(200 * time.Millisecond)

	if err := wire.WriteFrame(conn, []byte("x")); err == nil {
		// The write itself may still succeed into the OS buffer before
		// the close propagates; read the other side to confirm EOF.
		buf := make([]byte, 1)
		conn.SetReadDeadline(time.Now().Add(time.Second))
		if _, err := conn.Read(buf); err == nil {
			t.Fatal("expected subscriber-side close to be observable after PublisherUpdate drops the peer")
		}
	}
}
