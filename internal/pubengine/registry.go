package pubengine

import (
	"fmt"
	"sync"

	"github.com/rosnode/rosnode/internal/rerr"
)

// Registry tracks every Publication a node currently owns, keyed by
// resolved topic name. The node facade shares one Publication across
// every Publisher handle it creates for a topic, so a topic has at most
// one entry here; Registry rejects a second Add for the same topic with
// a Duplicate error instead of silently replacing it.
type Registry struct {
	mu   sync.Mutex
	pubs map[string]*Publication
}

func NewRegistry() *Registry {
	return &Registry{pubs: make(map[string]*Publication)}
}

func (r *Registry) Add(topic string, p *Publication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pubs[topic]; exists {
		return &rerr.Duplicate{Kind: "publication", Name: topic}
	}
	r.pubs[topic] = p
	return nil
}

func (r *Registry) Remove(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pubs[topic]; ok {
		p.Close()
		delete(r.pubs, topic)
	}
}

func (r *Registry) Get(topic string) (*Publication, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pubs[topic]
	return p, ok
}

// TopicType names a published topic and its message type.
type TopicType struct {
	Name string
	Type string
}

// Topics returns every published (topic, type) pair this node
// currently owns, for getPublications.
func (r *Registry) Topics() []TopicType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TopicType, 0, len(r.pubs))
	for topic, p := range r.pubs {
		out = append(out, TopicType{Name: topic, Type: p.MsgType})
	}
	return out
}

// CloseAll shuts down every owned publication, for node shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic, p := range r.pubs {
		p.Close()
		delete(r.pubs, topic)
	}
}

func (r *Registry) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("pubengine.Registry{%d topics}", len(r.pubs))
}
