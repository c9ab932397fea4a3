package node

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rosnode/rosnode/internal/rosmsg"
)

func mustStringCompiled(t *testing.T) *rosmsg.Compiled {
	t.Helper()
	path, err := rosmsg.NewPath("std_msgs", "String")
	if err != nil {
		t.Fatal(err)
	}
	m, err := rosmsg.Parse(path, "string data\n")
	if err != nil {
		t.Fatal(err)
	}
	c, err := rosmsg.Compile(path, map[rosmsg.Path]rosmsg.Msg{path: m})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func mustAddTwoInts(t *testing.T) (req, resp *rosmsg.Compiled) {
	t.Helper()
	path, err := rosmsg.NewPath("test_msgs", "AddTwoInts")
	if err != nil {
		t.Fatal(err)
	}
	srv, err := rosmsg.ParseSrv(path, "int64 a\nint64 b\n---\nint64 sum\n")
	if err != nil {
		t.Fatal(err)
	}
	req, resp, err = rosmsg.CompileService(srv, map[rosmsg.Path]rosmsg.Msg{})
	if err != nil {
		t.Fatal(err)
	}
	return req, resp
}

func mustNode(t *testing.T, master *fakeMaster, name string) *Node {
	t.Helper()
	n, err := New(context.Background(), Config{
		MasterURI: master.URL(),
		NodeName:  name,
		Host:      "127.0.0.1",
	})
	if err != nil {
		t.Fatalf("New(%s): %v", name, err)
	}
	return n
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestEndToEndPublishSubscribe(t *testing.T) {
	master := newFakeMaster()
	defer master.Close()

	talker := mustNode(t, master, "/talker")
	defer talker.Close(context.Background())
	listener := mustNode(t, master, "/listener")
	defer listener.Close(context.Background())

	strMsg := mustStringCompiled(t)

	var mu sync.Mutex
	var got string
	received := make(chan struct{})
	_, err := listener.Subscribe(context.Background(), "/chatter", strMsg, 8, func(msg map[string]any, callerID string) {
		mu.Lock()
		got = msg["data"].(string)
		mu.Unlock()
		select {
		case received <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	pub, err := talker.Publish(context.Background(), "/chatter", strMsg, 8, false)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitUntil(t, 3*time.Second, func() bool { return pub.NumSubscribers() > 0 })

	if err := pub.Publish(map[string]any{"data": "hello"}); err != nil {
		t.Fatalf("Publish msg: %v", err)
	}

	select {
	case <-received:
	case <-time.After(3 * time.Second):
		t.Fatal("listener never received the message")
	}

	mu.Lock()
	defer mu.Unlock()
	if got != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestEndToEndFanOutSlowAndFastSubscriber(t *testing.T) {
	master := newFakeMaster()
	defer master.Close()

	talker := mustNode(t, master, "/talker")
	defer talker.Close(context.Background())
	listener := mustNode(t, master, "/listener")
	defer listener.Close(context.Background())

	strMsg := mustStringCompiled(t)

	var fastCount int32
	fastDone := make(chan struct{}, 1)
	_, err := listener.Subscribe(context.Background(), "/chatter", strMsg, 1, func(msg map[string]any, callerID string) {
		if atomic.AddInt32(&fastCount, 1) == 1 {
			select {
			case fastDone <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		t.Fatalf("Subscribe fast: %v", err)
	}

	slowGate := make(chan struct{})
	_, err = listener.Subscribe(context.Background(), "/chatter", strMsg, 1, func(msg map[string]any, callerID string) {
		<-slowGate // blocks until the test releases it
	})
	if err != nil {
		t.Fatalf("Subscribe slow: %v", err)
	}

	pub, err := talker.Publish(context.Background(), "/chatter", strMsg, 8, false)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// both handlers share the listener node's one subscription, so the
	// publisher sees a single connection for them.
	waitUntil(t, 3*time.Second, func() bool { return pub.NumSubscribers() == 1 })

	for i := 0; i < 20; i++ {
		pub.Publish(map[string]any{"data": "msg"})
	}

	select {
	case <-fastDone:
	case <-time.After(3 * time.Second):
		t.Fatal("fast subscriber starved by a slow one")
	}
	close(slowGate)
}

func TestEndToEndLatchedPublisherLateSubscriber(t *testing.T) {
	master := newFakeMaster()
	defer master.Close()

	talker := mustNode(t, master, "/talker")
	defer talker.Close(context.Background())

	strMsg := mustStringCompiled(t)

	pub, err := talker.Publish(context.Background(), "/chatter", strMsg, 8, true)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Publish(map[string]any{"data": "latched"}); err != nil {
		t.Fatalf("Publish msg: %v", err)
	}

	late := mustNode(t, master, "/late_listener")
	defer late.Close(context.Background())

	received := make(chan string, 1)
	_, err = late.Subscribe(context.Background(), "/chatter", strMsg, 8, func(msg map[string]any, callerID string) {
		received <- msg["data"].(string)
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case got := <-received:
		if got != "latched" {
			t.Fatalf("got %q, want latched", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("late subscriber never received the latched message")
	}
}

func TestEndToEndSubscriberBeforePublisher(t *testing.T) {
	master := newFakeMaster()
	defer master.Close()

	listener := mustNode(t, master, "/listener")
	defer listener.Close(context.Background())
	strMsg := mustStringCompiled(t)

	received := make(chan string, 1)
	_, err := listener.Subscribe(context.Background(), "/chatter", strMsg, 8, func(msg map[string]any, callerID string) {
		received <- msg["data"].(string)
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	talker := mustNode(t, master, "/talker")
	defer talker.Close(context.Background())

	pub, err := talker.Publish(context.Background(), "/chatter", strMsg, 8, false)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitUntil(t, 3*time.Second, func() bool { return pub.NumSubscribers() > 0 })
	if err := pub.Publish(map[string]any{"data": "discovered"}); err != nil {
		t.Fatalf("Publish msg: %v", err)
	}

	select {
	case got := <-received:
		if got != "discovered" {
			t.Fatalf("got %q, want discovered", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscriber registered before the publisher never discovered it via publisherUpdate")
	}
}

func TestEndToEndAddTwoIntsServiceParallelRequests(t *testing.T) {
	master := newFakeMaster()
	defer master.Close()

	server := mustNode(t, master, "/add_server")
	defer server.Close(context.Background())

	req, resp := mustAddTwoInts(t)
	_, err := server.Advertise(context.Background(), "/add_two_ints", req, resp, func(r map[string]any) (map[string]any, error) {
		a := r["a"].(int64)
		b := r["b"].(int64)
		return map[string]any{"sum": a + b}, nil
	})
	if err != nil {
		t.Fatalf("Advertise: %v", err)
	}

	caller := mustNode(t, master, "/add_caller")
	defer caller.Close(context.Background())

	const n = 50
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			client, err := caller.NewClient("/add_two_ints", req, resp)
			if err != nil {
				errCh <- err
				return
			}
			got, err := client.Call(context.Background(), map[string]any{"a": int64(i), "b": int64(100)})
			if err != nil {
				errCh <- err
				return
			}
			if got["sum"] != int64(i+100) {
				errCh <- &handlerErr{"sum mismatch"}
				return
			}
			errCh <- nil
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-errCh; err != nil {
			t.Errorf("request %d failed: %v", i, err)
		}
	}
}

type handlerErr struct{ msg string }

func (e *handlerErr) Error() string { return e.msg }

func TestNodeShutdownFlipsIsOKAndSpinReturns(t *testing.T) {
	master := newFakeMaster()
	defer master.Close()

	n := mustNode(t, master, "/lifecycle")

	spinDone := make(chan struct{})
	go func() {
		n.Spin()
		close(spinDone)
	}()

	if !n.IsOK() {
		t.Fatal("IsOK() should be true before shutdown")
	}

	if err := n.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if n.IsOK() {
		t.Fatal("IsOK() should be false after shutdown")
	}

	select {
	case <-spinDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Spin() never returned after Close")
	}

	// A second Close must be a safe no-op.
	if err := n.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestPublisherRefcountUnregistersOnlyOnLastHandleClose(t *testing.T) {
	master := newFakeMaster()
	defer master.Close()

	talker := mustNode(t, master, "/talker")
	defer talker.Close(context.Background())

	strMsg := mustStringCompiled(t)

	p1, err := talker.Publish(context.Background(), "/chatter", strMsg, 8, false)
	if err != nil {
		t.Fatalf("Publish #1: %v", err)
	}
	p2, err := talker.Publish(context.Background(), "/chatter", strMsg, 8, false)
	if err != nil {
		t.Fatalf("Publish #2: %v", err)
	}

	master.mu.Lock()
	before := len(master.pubs["/chatter"])
	master.mu.Unlock()
	if before != 1 {
		t.Fatalf("registered publisher count = %d, want 1 (one master registration shared by two handles)", before)
	}

	if err := p1.Close(context.Background()); err != nil {
		t.Fatalf("Close p1: %v", err)
	}

	master.mu.Lock()
	stillThere := len(master.pubs["/chatter"])
	master.mu.Unlock()
	if stillThere != 1 {
		t.Fatalf("publisher unregistered after closing only one of two handles")
	}

	if err := p2.Close(context.Background()); err != nil {
		t.Fatalf("Close p2: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		master.mu.Lock()
		defer master.mu.Unlock()
		return len(master.pubs["/chatter"]) == 0
	})
}
