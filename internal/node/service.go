package node

import (
	"context"
	"strings"
	"time"

	"github.com/rosnode/rosnode/internal/rosmsg"
	"github.com/rosnode/rosnode/internal/svcengine"
)

// Service is the node-facing advertise-a-service handle (spec.md
// §4.8/§4.9). Unlike Publisher/Subscriber it is not cloneable: a node
// offering the same service name twice is a Duplicate error, so Close
// always tears the whole thing down.
type Service struct {
	node *Node
	name string
	uri  string
	srv  *svcengine.Server
}

// Advertise starts a service server for name and registers it with
// the master.
func (n *Node) Advertise(ctx context.Context, name string, request, response *rosmsg.Compiled, handler svcengine.Handler) (*Service, error) {
	resolved, err := n.ResolveName(name)
	if err != nil {
		return nil, err
	}

	srv, uri, err := svcengine.New(n.name, resolved, request, response, handler, n.bindHost, n.advertiseHost)
	if err != nil {
		return nil, err
	}
	if err := n.svcs.Add(resolved, srv); err != nil {
		srv.Close()
		return nil, err
	}

	serviceURI := "rosrpc://" + uri
	if err := n.master.RegisterService(ctx, resolved, serviceURI); err != nil {
		n.svcs.Remove(resolved)
		return nil, err
	}

	return &Service{node: n, name: resolved, uri: serviceURI, srv: srv}, nil
}

// Name returns the service's resolved name.
func (s *Service) Name() string { return s.name }

// Close stops the service server and unregisters it with the master.
func (s *Service) Close(ctx context.Context) error {
	s.node.svcs.Remove(s.name)
	return s.node.master.UnregisterService(ctx, s.name, s.uri)
}

// Client is the node-facing service-client handle (spec.md §4.8).
type Client struct {
	c *svcengine.Client
}

// NewClient builds a service client for name, resolved through the
// node's naming rules, backed by the master's lookupService.
func (n *Node) NewClient(name string, request, response *rosmsg.Compiled) (*Client, error) {
	resolved, err := n.ResolveName(name)
	if err != nil {
		return nil, err
	}
	c := svcengine.NewClient(n.callerID, resolved, request, response, n.lookupService)
	return &Client{c: c}, nil
}

// lookupService wraps the master's lookupService, stripping the
// "rosrpc://" scheme svcengine.Client's plain net.Dial doesn't expect.
func (n *Node) lookupService(ctx context.Context, service string) (string, error) {
	uri, err := n.master.LookupService(ctx, service)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(uri, "rosrpc://"), nil
}

// Call performs one request/response round trip.
func (c *Client) Call(ctx context.Context, req map[string]any) (map[string]any, error) {
	return c.c.Call(ctx, req)
}

// Probe performs a single-attempt reachability check.
func (c *Client) Probe(timeout time.Duration) error {
	return c.c.Probe(timeout)
}

// WaitForService polls until the service is reachable or timeout
// elapses (timeout <= 0 means wait indefinitely).
func (c *Client) WaitForService(ctx context.Context, timeout time.Duration) error {
	return c.c.WaitForService(ctx, timeout)
}
