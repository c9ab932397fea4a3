package subengine

import (
	"fmt"
	"sync"

	"github.com/rosnode/rosnode/internal/rerr"
	"github.com/rosnode/rosnode/internal/rosmsg"
)

// record pairs a topic's Subscription with the reference count of live
// subscriber handles, so Registry can enforce spec.md §4.7's lifetime
// rule: "destroyed when the last subscriber handle for that topic is
// dropped; leaving a record with zero subscribers is forbidden."
type record struct {
	sub   *Subscription
	count int
}

// Registry tracks every Subscription a node currently owns, keyed by
// resolved topic name, mirroring pubengine.Registry's shape for the
// inbound side.
type Registry struct {
	mu      sync.Mutex
	records map[string]*record

	nodeName  string
	callerURI string
}

func NewRegistry(nodeName, callerURI string) *Registry {
	return &Registry{records: make(map[string]*record), nodeName: nodeName, callerURI: callerURI}
}

// AddSubscriber attaches a new subscriber handle to topic, creating
// the Subscription record on first use. If a record already exists,
// its msg_type/md5 must match compiled's (wildcard "*" always agrees),
// per spec.md §4.7's type-compatibility check.
func (r *Registry) AddSubscriber(topic string, compiled *rosmsg.Compiled, queueSize int, handler Handler) (handleID uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[topic]
	if !ok {
		sub := New(r.nodeName, r.callerURI, topic, compiled)
		rec = &record{sub: sub}
		r.records[topic] = rec
	} else if err := typeAgree(rec.sub.Compiled, compiled); err != nil {
		return 0, err
	}

	rec.count++
	id := rec.sub.AddSubscriber(queueSize, handler)
	return id, nil
}

func typeAgree(existing, incoming *rosmsg.Compiled) error {
	if !wildcardAgree(existing.MsgType(), incoming.MsgType()) {
		return &rerr.TypeMismatch{Topic: existing.Msg.Path.String(), Expected: existing.MsgType(), Actual: incoming.MsgType()}
	}
	if !wildcardAgree(existing.MD5Sum, incoming.MD5Sum) {
		return &rerr.TypeMismatch{Topic: existing.Msg.Path.String(), Expected: existing.MD5Sum, Actual: incoming.MD5Sum}
	}
	return nil
}

func wildcardAgree(a, b string) bool {
	return a == "*" || b == "*" || a == b
}

// RemoveSubscriber detaches handle id from topic's Subscription; when
// it was the last handle, the whole record (and its reader tasks and
// sockets) is torn down.
func (r *Registry) RemoveSubscriber(topic string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[topic]
	if !ok {
		return
	}
	rec.sub.RemoveSubscriber(id)
	rec.count--
	if rec.count <= 0 {
		rec.sub.Close()
		delete(r.records, topic)
	}
}

// PublisherUpdate forwards a slave publisherUpdate call to the named
// topic's coordinator, a no-op if this node has no live subscription
// for that topic.
func (r *Registry) PublisherUpdate(topic string, uris []string) {
	r.mu.Lock()
	rec, ok := r.records[topic]
	r.mu.Unlock()
	if ok {
		rec.sub.PublisherUpdate(uris)
	}
}

// TopicType names a subscribed topic and its message type.
type TopicType struct {
	Name string
	Type string
}

// Topics returns every subscribed (topic, type) pair, for
// getSubscriptions.
func (r *Registry) Topics() []TopicType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TopicType, 0, len(r.records))
	for topic, rec := range r.records {
		out = append(out, TopicType{Name: topic, Type: rec.sub.Compiled.MsgType()})
	}
	return out
}

// CloseAll tears down every owned subscription, for node shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic, rec := range r.records {
		rec.sub.Close()
		delete(r.records, topic)
	}
}

func (r *Registry) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("subengine.Registry{%d topics}", len(r.records))
}
