package svcengine

import (
	"fmt"
	"sync"

	"github.com/rosnode/rosnode/internal/rerr"
)

// Registry tracks every Server a node currently owns, keyed by
// resolved service name; two services under the same name in one node
// is a Duplicate error (spec.md §7).
type Registry struct {
	mu   sync.Mutex
	svcs map[string]*Server
}

func NewRegistry() *Registry {
	return &Registry{svcs: make(map[string]*Server)}
}

func (r *Registry) Add(name string, s *Server) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.svcs[name]; exists {
		return &rerr.Duplicate{Kind: "service", Name: name}
	}
	r.svcs[name] = s
	return nil
}

func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.svcs[name]; ok {
		s.Close()
		delete(r.svcs, name)
	}
}

func (r *Registry) Get(name string) (*Server, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.svcs[name]
	return s, ok
}

// Names lists every service name this node currently owns.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.svcs))
	for name := range r.svcs {
		out = append(out, name)
	}
	return out
}

// CloseAll shuts down every owned service, for node shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, s := range r.svcs {
		s.Close()
		delete(r.svcs, name)
	}
}

func (r *Registry) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("svcengine.Registry{%d services}", len(r.svcs))
}
