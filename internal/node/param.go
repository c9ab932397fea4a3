package node

import (
	"context"
	"strings"
	"sync"

	"github.com/rosnode/rosnode/internal/rosxmlrpc"
)

// paramCache is the mutex-protected map invalidated by paramUpdate,
// per spec.md §5's shared-resource policy and §9's open question on
// invalidation breadth: an update to key invalidates every cached
// entry whose key is a prefix of key or vice versa, matching ROS's
// nested-parameter semantics even though it over-invalidates.
type paramCache struct {
	mu      sync.Mutex
	entries map[string]rosxmlrpc.Value
}

func newParamCache() *paramCache {
	return &paramCache{entries: make(map[string]rosxmlrpc.Value)}
}

func (c *paramCache) get(key string) (rosxmlrpc.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *paramCache) put(key string, v rosxmlrpc.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = v
}

func (c *paramCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if paramKeysRelated(k, key) {
			delete(c.entries, k)
		}
	}
}

// paramKeysRelated reports whether a is a string prefix of b or b of a
// (ignoring a trailing '/'), e.g. "/foo" is related to both "/foo/bar"
// and "/foobar".
func paramKeysRelated(a, b string) bool {
	a = strings.TrimSuffix(a, "/")
	b = strings.TrimSuffix(b, "/")
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// Parameter is the thin XML-RPC wrapper spec.md §4.9 names on the node
// facade: param(name) -> Parameter, with Get/Set/Delete backed by the
// master's param* methods and the node's cache.
type Parameter struct {
	node *Node
	key  string
}

func (p *Parameter) Name() string { return p.key }

// Get returns the cached value if present, else queries the master
// and caches the result.
func (p *Parameter) Get(ctx context.Context) (rosxmlrpc.Value, error) {
	if v, ok := p.node.params.get(p.key); ok {
		return v, nil
	}
	v, err := p.node.master.GetParam(ctx, p.key)
	if err != nil {
		return rosxmlrpc.Value{}, err
	}
	p.node.params.put(p.key, v)
	return v, nil
}

func (p *Parameter) Set(ctx context.Context, v rosxmlrpc.Value) error {
	if err := p.node.master.SetParam(ctx, p.key, v); err != nil {
		return err
	}
	p.node.params.put(p.key, v)
	return nil
}

func (p *Parameter) Delete(ctx context.Context) error {
	if err := p.node.master.DeleteParam(ctx, p.key); err != nil {
		return err
	}
	p.node.params.invalidate(p.key)
	return nil
}

func (p *Parameter) Exists(ctx context.Context) (bool, error) {
	return p.node.master.HasParam(ctx, p.key)
}
