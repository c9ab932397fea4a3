// Package pubengine implements the publication side of topic
// transport (spec.md §4.6): a TCPROS listener per topic, a
// handshake-then-fan-out accept loop, and a bounded lossy queue per
// connected subscriber. Grounded on the accept-loop/goroutine-per-
// connection shape of the teacher's internal/ron Server.serve plus
// its listener bookkeeping, generalized from ron's gob wire format to
// the length-prefixed TCPROS frame in internal/wire.
package pubengine

import (
	"context"
	"net"
	"strconv"
	"sync"

	"golang.org/x/net/netutil"

	"github.com/rosnode/rosnode/internal/queue"
	"github.com/rosnode/rosnode/internal/rerr"
	"github.com/rosnode/rosnode/internal/tcpros"
	"github.com/rosnode/rosnode/internal/wire"
	"github.com/rosnode/rosnode/pkg/roslog"
)

// maxSubscriberConns bounds concurrent inbound subscriber connections
// per published topic.
const maxSubscriberConns = 256

// subscriberQueueLen is the default per-subscriber drop-oldest queue
// capacity, per spec.md §5.
const subscriberQueueLen = 64

type subscriberConn struct {
	callerID string
	conn     net.Conn
	queue    *queue.Lossy[[]byte]
	ctx      context.Context
	cancel   context.CancelFunc
}

// Publication owns one topic's TCPROS listener and its connected
// subscribers.
type Publication struct {
	NodeName      string
	Topic         string
	MsgType       string
	MD5Sum        string
	Definition    string
	AdvertiseHost string
	Port          int

	queueSize int
	ln        net.Listener

	mu      sync.Mutex
	subs    map[string]*subscriberConn
	latch   bool
	lastMsg []byte
	closed  bool
}

// New starts listening on bindHost:0 and returns the Publication and
// the URI peers should use to connect (advertiseHost:port), per
// spec.md §4.4's bind/advertise split. queueSize bounds each connected
// subscriber's drop-oldest queue; non-positive means the default.
func New(nodeName, topic, msgType, md5sum, definition string, latch bool, queueSize int, bindHost, advertiseHost string) (*Publication, string, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(bindHost, "0"))
	if err != nil {
		return nil, "", &rerr.Io{Cause: err}
	}
	limited := netutil.LimitListener(ln, maxSubscriberConns)

	port := ln.Addr().(*net.TCPAddr).Port

	if queueSize <= 0 {
		queueSize = subscriberQueueLen
	}

	p := &Publication{
		NodeName:      nodeName,
		Topic:         topic,
		MsgType:       msgType,
		MD5Sum:        md5sum,
		Definition:    definition,
		AdvertiseHost: advertiseHost,
		Port:          port,
		queueSize:     queueSize,
		ln:            limited,
		subs:          make(map[string]*subscriberConn),
		latch:         latch,
	}

	uri := net.JoinHostPort(advertiseHost, strconv.Itoa(port))

	go p.acceptLoop()

	return p, uri, nil
}

func (p *Publication) acceptLoop() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			roslog.Debug("pubengine: listener for %s closed: %v", p.Topic, err)
			return
		}
		go p.handleConn(conn)
	}
}

func (p *Publication) handleConn(conn net.Conn) {
	h, err := tcpros.PublisherAccept(conn, p.Topic, p.MD5Sum, p.MsgType)
	if err != nil {
		roslog.Warn("pubengine: handshake rejected on %s from %s: %v", p.Topic, conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	if err := tcpros.PublisherReply(conn, p.MD5Sum, p.MsgType); err != nil {
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	callerID := h["callerid"]
	sc := &subscriberConn{
		callerID: callerID,
		conn:     conn,
		queue:    queue.NewLossy[[]byte](p.queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		conn.Close()
		return
	}
	p.subs[callerID+"@"+conn.RemoteAddr().String()] = sc
	if p.latch && p.lastMsg != nil {
		sc.queue.Push(p.lastMsg)
	}
	p.mu.Unlock()

	roslog.Info("pubengine: subscriber %s connected to %s", callerID, p.Topic)

	go p.writerLoop(sc)
}

func (p *Publication) writerLoop(sc *subscriberConn) {
	defer func() {
		sc.conn.Close()
		sc.cancel()
		sc.queue.Close()
		p.mu.Lock()
		for k, v := range p.subs {
			if v == sc {
				delete(p.subs, k)
				break
			}
		}
		p.mu.Unlock()
	}()

	for {
		frame, ok := sc.queue.Pop(sc.ctx)
		if !ok {
			return
		}
		if err := wire.WriteFrame(sc.conn, frame); err != nil {
			roslog.Debug("pubengine: write to %s on %s failed: %v", sc.callerID, p.Topic, err)
			return
		}
	}
}

// Publish serializes payload to every connected subscriber's queue,
// and, when the topic is latched, remembers it for future connections.
func (p *Publication) Publish(payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.latch {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		p.lastMsg = cp
	}
	for _, sc := range p.subs {
		sc.queue.Push(payload)
	}
}

// NumSubscribers reports the current connected-subscriber count.
func (p *Publication) NumSubscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// SubscriberCallerIDs lists the caller IDs of currently connected
// subscribers, for getBusInfo-style diagnostics.
func (p *Publication) SubscriberCallerIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.subs))
	for _, sc := range p.subs {
		out = append(out, sc.callerID)
	}
	return out
}

// Close stops accepting new subscribers and disconnects existing ones.
func (p *Publication) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	subs := make([]*subscriberConn, 0, len(p.subs))
	for _, sc := range p.subs {
		subs = append(subs, sc)
	}
	p.mu.Unlock()

	p.ln.Close()
	for _, sc := range subs {
		sc.cancel()
		sc.conn.Close()
	}
}
