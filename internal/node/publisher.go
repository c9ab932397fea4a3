package node

import (
	"context"

	"github.com/rosnode/rosnode/internal/pubengine"
	"github.com/rosnode/rosnode/internal/rerr"
	"github.com/rosnode/rosnode/internal/rosmsg"
)

// Publisher is the node-facing publish(T) handle (spec.md §4.9). It is
// cloneable in the sense spec.md §4.6 describes: calling Node.Publish
// again for the same topic returns another Publisher sharing the same
// underlying pubengine.Publication (same fan-out, same latch slot);
// the Publication itself is closed only when the last such handle is
// dropped, which Node tracks via a per-topic reference count.
type Publisher struct {
	node  *Node
	topic string
	msg   *rosmsg.Compiled
	pub   *pubengine.Publication
}

// Publish advertises topic (after resolving it through the node's
// namespace/remap rules) and registers it with the master. queueSize
// bounds each connected subscriber's drop-oldest queue (non-positive
// means the node default); latch controls whether the last sent
// message is replayed to new subscribers, per spec.md §4.6.
func (n *Node) Publish(ctx context.Context, topic string, msg *rosmsg.Compiled, queueSize int, latch bool) (*Publisher, error) {
	resolved, err := n.ResolveName(topic)
	if err != nil {
		return nil, err
	}

	n.pubRefsMu.Lock()
	if ref, ok := n.pubRefs[resolved]; ok {
		if !wildcardAgree(ref.msgType, msg.MsgType()) || !wildcardAgree(ref.md5, msg.MD5Sum) {
			n.pubRefsMu.Unlock()
			return nil, &rerr.TypeMismatch{Topic: resolved, Expected: ref.msgType, Actual: msg.MsgType()}
		}
		ref.count++
		pub := ref.pub
		n.pubRefsMu.Unlock()
		return &Publisher{node: n, topic: resolved, msg: msg, pub: pub}, nil
	}
	n.pubRefsMu.Unlock()

	if queueSize <= 0 {
		queueSize = n.queueSize
	}
	pub, _, err := pubengine.New(n.name, resolved, msg.MsgType(), msg.MD5Sum, msg.Definition, latch, queueSize, n.bindHost, n.advertiseHost)
	if err != nil {
		return nil, err
	}
	if err := n.pubs.Add(resolved, pub); err != nil {
		pub.Close()
		return nil, err
	}
	if _, err := n.master.RegisterPublisher(ctx, resolved, msg.MsgType()); err != nil {
		n.pubs.Remove(resolved)
		return nil, err
	}

	n.pubRefsMu.Lock()
	n.pubRefs[resolved] = &pubRef{pub: pub, msgType: msg.MsgType(), md5: msg.MD5Sum, count: 1}
	n.pubRefsMu.Unlock()

	return &Publisher{node: n, topic: resolved, msg: msg, pub: pub}, nil
}

func wildcardAgree(a, b string) bool {
	return a == "*" || b == "*" || a == b
}

// Publish encodes msg against the publisher's compiled schema and
// fans it out to every connected subscriber.
func (p *Publisher) Publish(msg map[string]any) error {
	body, err := p.msg.Encode(msg)
	if err != nil {
		return err
	}
	p.pub.Publish(body)
	return nil
}

// NumSubscribers reports the currently connected subscriber count.
func (p *Publisher) NumSubscribers() int { return p.pub.NumSubscribers() }

// Topic returns the publisher's resolved topic name.
func (p *Publisher) Topic() string { return p.topic }

// Close drops this handle; when it was the last live handle for the
// topic, the Publication is closed and the topic unregistered with
// the master, per spec.md §4.9's RAII contract.
func (p *Publisher) Close(ctx context.Context) error {
	p.node.pubRefsMu.Lock()
	ref, ok := p.node.pubRefs[p.topic]
	if !ok {
		p.node.pubRefsMu.Unlock()
		return nil
	}
	ref.count--
	last := ref.count <= 0
	if last {
		delete(p.node.pubRefs, p.topic)
	}
	p.node.pubRefsMu.Unlock()

	if !last {
		return nil
	}

	p.node.pubs.Remove(p.topic)
	return p.node.master.UnregisterPublisher(ctx, p.topic)
}
