// Package subengine implements the subscription side of topic
// transport (spec.md §4.7): one coordinator goroutine per topic owning
// publisher-URI membership, TCP reader tasks, and the fan-in into each
// subscriber handle's bounded lossy queue. Grounded on the same
// accept/serve goroutine shape pubengine borrows from the teacher's
// internal/ron, mirrored here for the inbound direction, with the
// coordinator pattern modeled on the teacher's internal/meshage route
// table goroutine (a single owner goroutine serializing membership
// changes via a command channel instead of a raw mutex, because
// publisherUpdate's synchronous-teardown requirement needs an ordering
// point a plain mutex doesn't give you).
package subengine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rosnode/rosnode/internal/queue"
	"github.com/rosnode/rosnode/internal/rerr"
	"github.com/rosnode/rosnode/internal/rosmsg"
	"github.com/rosnode/rosnode/internal/rosxmlrpc"
	"github.com/rosnode/rosnode/internal/tcpros"
	"github.com/rosnode/rosnode/internal/wire"
	"github.com/rosnode/rosnode/pkg/roslog"
)

// Handler is invoked by the callback task for every decoded frame.
// callerID identifies the originating publisher; this implementation
// uses the publisher's slave URI for it, since the TCPROS publisher
// reply header (spec.md §4.5) carries only md5sum/type, never a
// caller ID.
type Handler func(msg map[string]any, callerID string)

type subscriber struct {
	id       uint64
	queue    *queue.Lossy[incomingFrame]
	handler  Handler
	headerCh chan tcpros.Header
	done     chan struct{}
}

type peerConn struct {
	uri    string
	conn   net.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

type incomingFrame struct {
	uri  string
	body []byte
}

type headerEvent struct {
	uri string
	h   tcpros.Header
}

type cmdKind int

const (
	cmdAddSub cmdKind = iota
	cmdRemoveSub
	cmdPublishers
	cmdFrame
	cmdConnected
	cmdHeaderSeen
)

// command is the single input multiplexed onto the coordinator
// goroutine, covering the three input classes spec.md §4.7 names:
// subscriber-handle control (add/remove), publisher URI set updates,
// and incoming decoded-frame/connection events from reader tasks.
type command struct {
	kind       cmdKind
	sub        *subscriber
	removeID   uint64
	publishers []string
	frame      *incomingFrame
	connected  *peerConn
	header     headerEvent
}

// Subscription is one topic's subscription-side coordinator: it owns
// the set of publisher connections and fans decoded frames out to
// every subscriber handle's own queue.
type Subscription struct {
	NodeName  string
	CallerURI string
	Topic     string
	Compiled  *rosmsg.Compiled

	cmd      chan command
	quit     chan struct{}
	closeOne sync.Once

	nextID   uint64
	subCount int32
}

// New starts a Subscription's coordinator goroutine. callerURI is this
// node's own slave XML-RPC URI, sent to peers' requestTopic calls so
// they can identify the caller.
func New(nodeName, callerURI, topic string, compiled *rosmsg.Compiled) *Subscription {
	s := &Subscription{
		NodeName:  nodeName,
		CallerURI: callerURI,
		Topic:     topic,
		Compiled:  compiled,
		cmd:       make(chan command, 32),
		quit:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Subscription) run() {
	conns := make(map[string]*peerConn)
	subs := make(map[uint64]*subscriber)
	var seenHeaders []tcpros.Header

	for {
		select {
		case <-s.quit:
			for _, pc := range conns {
				teardown(pc)
			}
			for _, sub := range subs {
				sub.queue.Close()
				close(sub.headerCh)
			}
			return

		case c := <-s.cmd:
			switch c.kind {
			case cmdAddSub:
				subs[c.sub.id] = c.sub
				for _, h := range seenHeaders {
					select {
					case c.sub.headerCh <- h:
					default:
					}
				}

			case cmdRemoveSub:
				if sub, ok := subs[c.removeID]; ok {
					sub.queue.Close()
					close(sub.headerCh)
					delete(subs, c.removeID)
				}

			case cmdPublishers:
				reconcile(s, conns, c.publishers)

			case cmdFrame:
				for _, sub := range subs {
					sub.queue.Push(*c.frame)
				}

			case cmdConnected:
				conns[c.connected.uri] = c.connected

			case cmdHeaderSeen:
				seenHeaders = append(seenHeaders, c.header.h)
				for _, sub := range subs {
					select {
					case sub.headerCh <- c.header.h:
					default:
					}
				}
			}
		}
	}
}

// reconcile applies the spec.md §4.6/§4.7 publisherUpdate rule:
// disconnect readers whose URI left the set synchronously (before
// this call returns), then kick off connection attempts for URIs
// newly present.
func reconcile(s *Subscription, conns map[string]*peerConn, newURIs []string) {
	wanted := make(map[string]bool, len(newURIs))
	for _, u := range newURIs {
		wanted[u] = true
	}

	for uri, pc := range conns {
		if !wanted[uri] {
			teardown(pc)
			delete(conns, uri)
		}
	}

	for uri := range wanted {
		if _, ok := conns[uri]; !ok {
			go s.connect(uri)
		}
	}
}

func teardown(pc *peerConn) {
	pc.cancel()
	pc.conn.Close()
	<-pc.done
}

// connect performs the full per-publisher handshake sequence (spec.md
// §4.7): requestTopic against the peer's slave API, dial, TCPROS
// handshake, then hands a reader goroutine to the coordinator.
func (s *Subscription) connect(peerURI string) {
	host, port, err := requestTopic(s.CallerURI, peerURI, s.Topic)
	if err != nil {
		roslog.Warn("subengine: requestTopic to %s for %s failed: %v", peerURI, s.Topic, err)
		return
	}

	addr := net.JoinHostPort(host, fmt.Sprint(port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		roslog.Warn("subengine: %v", &rerr.TopicConnectionFail{Topic: s.Topic, URI: peerURI, Cause: err})
		return
	}

	if err := tcpros.SubscriberDial(conn, s.NodeName, s.Topic, s.Compiled.MD5Sum, s.Compiled.MsgType(), s.Compiled.Definition); err != nil {
		conn.Close()
		return
	}
	reply, err := tcpros.SubscriberReadReply(conn, s.Compiled.MD5Sum, s.Compiled.MsgType())
	if err != nil {
		roslog.Warn("subengine: handshake with %s for %s failed: %v", peerURI, s.Topic, err)
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	pc := &peerConn{uri: peerURI, conn: conn, cancel: cancel, done: make(chan struct{})}

	select {
	case s.cmd <- command{kind: cmdConnected, connected: pc}:
	case <-s.quit:
		cancel()
		conn.Close()
		return
	}
	select {
	case s.cmd <- command{kind: cmdHeaderSeen, header: headerEvent{uri: peerURI, h: reply}}:
	case <-s.quit:
	}

	go s.readLoop(ctx, pc)
}

func (s *Subscription) readLoop(ctx context.Context, pc *peerConn) {
	defer close(pc.done)
	for {
		body, err := wire.ReadFrame(pc.conn)
		if err != nil {
			roslog.Debug("subengine: reader for %s on %s ended: %v", pc.uri, s.Topic, err)
			return
		}
		select {
		case s.cmd <- command{kind: cmdFrame, frame: &incomingFrame{uri: pc.uri, body: body}}:
		case <-ctx.Done():
			return
		}
	}
}

// requestTopic calls the peer slave's requestTopic method offering
// TCPROS and returns the (host, port) it replies with.
func requestTopic(callerURI, peerURI, topic string) (string, int, error) {
	c := rosxmlrpc.NewClient(peerURI)
	ctx := context.Background()
	v, err := c.CallTriple(ctx, "requestTopic",
		rosxmlrpc.Str(callerURI),
		rosxmlrpc.Str(topic),
		rosxmlrpc.Arr(rosxmlrpc.Arr(rosxmlrpc.Str("TCPROS"))),
	)
	if err != nil {
		return "", 0, err
	}
	arr, err := v.AsArray()
	if err != nil || len(arr) != 3 {
		return "", 0, fmt.Errorf("subengine: malformed requestTopic reply")
	}
	proto, _ := arr[0].AsString()
	if proto != "TCPROS" {
		return "", 0, fmt.Errorf("subengine: peer offered unsupported protocol %q", proto)
	}
	host, err := arr[1].AsString()
	if err != nil {
		return "", 0, err
	}
	port, err := arr[2].AsInt()
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// AddSubscriber registers a new subscriber handle with its own bounded
// lossy queue and spawns its callback task. Returns the handle id,
// used by RemoveSubscriber.
func (s *Subscription) AddSubscriber(queueSize int, handler Handler) uint64 {
	id := atomic.AddUint64(&s.nextID, 1)
	sub := &subscriber{
		id:       id,
		queue:    queue.NewLossy[incomingFrame](queueSize),
		handler:  handler,
		headerCh: make(chan tcpros.Header, 64),
		done:     make(chan struct{}),
	}
	atomic.AddInt32(&s.subCount, 1)

	go s.callbackLoop(sub)

	select {
	case s.cmd <- command{kind: cmdAddSub, sub: sub}:
	case <-s.quit:
	}
	return id
}

func (s *Subscription) callbackLoop(sub *subscriber) {
	defer close(sub.done)
	ctx := context.Background()
	for {
		frame, ok := sub.queue.Pop(ctx)
		if !ok {
			return
		}
		msg, err := s.Compiled.Decode(frame.body)
		if err != nil {
			roslog.Warn("subengine: decode error on %s: %v", s.Topic, err)
			continue
		}
		sub.handler(msg, frame.uri)
	}
}

// RemoveSubscriber tears down one subscriber handle. When the last
// handle is removed, the caller (Registry) is responsible for calling
// Close on the whole Subscription, per spec.md §4.7's "zero
// subscribers is forbidden" lifetime rule.
func (s *Subscription) RemoveSubscriber(id uint64) {
	atomic.AddInt32(&s.subCount, -1)
	select {
	case s.cmd <- command{kind: cmdRemoveSub, removeID: id}:
	case <-s.quit:
	}
}

// NumSubscribers reports the current live subscriber-handle count.
func (s *Subscription) NumSubscribers() int {
	return int(atomic.LoadInt32(&s.subCount))
}

// PublisherUpdate reconciles connections against a fresh URI set
// (spec.md §4.4's publisherUpdate slave method).
func (s *Subscription) PublisherUpdate(uris []string) {
	select {
	case s.cmd <- command{kind: cmdPublishers, publishers: uris}:
	case <-s.quit:
	}
}

// Close tears down every connection and subscriber handle and stops
// the coordinator goroutine.
func (s *Subscription) Close() {
	s.closeOne.Do(func() { close(s.quit) })
}
