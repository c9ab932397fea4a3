package node

import (
	"context"

	"github.com/rosnode/rosnode/internal/rosmsg"
	"github.com/rosnode/rosnode/internal/subengine"
)

// Subscriber is the node-facing subscribe(T, cb) handle (spec.md
// §4.9). Dropping the last Subscriber handle for a topic tears down
// its Subscription coordinator and unregisters the topic with the
// master, mirroring Publisher's RAII contract.
type Subscriber struct {
	node   *Node
	topic  string
	handle uint64
}

// Subscribe resolves topic, registers it with the master (on first
// local subscriber), and attaches a new handler to the topic's shared
// Subscription coordinator.
func (n *Node) Subscribe(ctx context.Context, topic string, msg *rosmsg.Compiled, queueSize int, handler subengine.Handler) (*Subscriber, error) {
	resolved, err := n.ResolveName(topic)
	if err != nil {
		return nil, err
	}
	if queueSize <= 0 {
		queueSize = n.queueSize
	}

	id, err := n.subs.AddSubscriber(resolved, msg, queueSize, handler)
	if err != nil {
		return nil, err
	}

	n.subRefsMu.Lock()
	n.subRefs[resolved]++
	first := n.subRefs[resolved] == 1
	n.subRefsMu.Unlock()

	if first {
		uris, err := n.master.RegisterSubscriber(ctx, resolved, msg.MsgType())
		if err != nil {
			n.subs.RemoveSubscriber(resolved, id)
			n.subRefsMu.Lock()
			n.subRefs[resolved]--
			n.subRefsMu.Unlock()
			return nil, err
		}
		n.subs.PublisherUpdate(resolved, uris)
	}

	return &Subscriber{node: n, topic: resolved, handle: id}, nil
}

// Topic returns the subscriber's resolved topic name.
func (s *Subscriber) Topic() string { return s.topic }

// Close drops this handle; when it was the last live handle for the
// topic, the Subscription is closed and the topic unregistered with
// the master.
func (s *Subscriber) Close(ctx context.Context) error {
	s.node.subs.RemoveSubscriber(s.topic, s.handle)

	s.node.subRefsMu.Lock()
	s.node.subRefs[s.topic]--
	last := s.node.subRefs[s.topic] <= 0
	if last {
		delete(s.node.subRefs, s.topic)
	}
	s.node.subRefsMu.Unlock()

	if !last {
		return nil
	}

	return s.node.master.UnregisterSubscriber(ctx, s.topic)
}
