// Package node implements the node facade (spec.md §4.9): the
// composition root that owns the master/slave XML-RPC plane, the
// publication/subscription/service registries, the name resolver, the
// clock, and node-wide shutdown coordination. Grounded on the
// teacher's internal/ron.Server, which plays the analogous "owns every
// per-connection subsystem and tears them all down together" role for
// minimega's command-and-control plane.
package node

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rosnode/rosnode/internal/pubengine"
	"github.com/rosnode/rosnode/internal/resolve"
	"github.com/rosnode/rosnode/internal/rosxmlrpc"
	"github.com/rosnode/rosnode/internal/subengine"
	"github.com/rosnode/rosnode/internal/svcengine"
	"github.com/rosnode/rosnode/pkg/roslog"

	"github.com/google/uuid"
)

// RemapPair is a resolved-at-startup "X:=Y" name remapping, per
// spec.md §6.
type RemapPair struct {
	From, To string
}

// ParamPair is a "_foo:=bar" private-parameter set, already mapped
// from its raw command-line spelling to "~foo" plus a tagged XML-RPC
// value by the out-of-scope CLI/config collaborator.
type ParamPair struct {
	Name  string
	Value rosxmlrpc.Value
}

// Config is everything the core consumes from the out-of-scope
// CLI/env/YAML collaborator (spec.md §1): a configured master URI,
// bind/advertise host, node name, remapping pairs, and initial private
// parameters. NodeName is the node's fully resolved absolute path
// (namespace + name already joined), since joining those two pieces is
// itself argv/env-shaped policy that belongs to the caller.
type Config struct {
	MasterURI string
	NodeName  string
	Host      string
	Remaps    []RemapPair
	Params    []ParamPair

	// QueueSize is the default bounded-queue capacity publishers and
	// subscribers use when the caller doesn't specify one explicitly.
	QueueSize int
}

// Node composes the runtime's components and owns the registry
// tables, per spec.md §4.9.
type Node struct {
	name      string
	callerID  string
	instance  string
	masterURI string

	resolver *resolve.Resolver
	remaps   *resolve.RemapTable

	master *rosxmlrpc.MasterClient
	slave  *rosxmlrpc.Server

	pubs *pubengine.Registry
	subs *subengine.Registry
	svcs *svcengine.Registry

	params *paramCache

	bindHost      string
	advertiseHost string
	queueSize     int

	clock Clock

	mu           sync.Mutex
	okFlag       bool
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	shutdownMsg  string

	pubRefsMu sync.Mutex
	pubRefs   map[string]*pubRef

	subRefsMu sync.Mutex
	subRefs   map[string]int
}

type pubRef struct {
	pub     *pubengine.Publication
	msgType string
	md5     string
	count   int
}

// New builds a Node: resolves its name/namespace, applies remaps,
// starts the slave XML-RPC server, and registers initial parameters.
func New(ctx context.Context, cfg Config) (*Node, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	nodePath, err := resolve.ParseAbsolute(trimLeadingSlash(cfg.NodeName))
	if err != nil {
		return nil, err
	}
	resolver, err := resolve.NewResolver(nodePath)
	if err != nil {
		return nil, err
	}

	remaps := resolve.NewRemapTable()
	for _, rp := range cfg.Remaps {
		src, err := resolver.Resolve(rp.From)
		if err != nil {
			return nil, err
		}
		dst, err := resolver.Resolve(rp.To)
		if err != nil {
			return nil, err
		}
		remaps.Add(src, dst)
	}

	bindHost, advertiseHost := resolve.BindPolicy(cfg.Host)
	resolve.VerifyAdvertiseHost(advertiseHost)

	n := &Node{
		name:          nodePath.String(),
		callerID:      nodePath.String(),
		instance:      uuid.NewString(),
		masterURI:     cfg.MasterURI,
		resolver:      resolver,
		remaps:        remaps,
		pubs:          pubengine.NewRegistry(),
		params:        newParamCache(),
		bindHost:      bindHost,
		advertiseHost: advertiseHost,
		queueSize:     cfg.QueueSize,
		clock:         WallClock{},
		okFlag:        true,
		shutdownCh:    make(chan struct{}),
		pubRefs:       make(map[string]*pubRef),
		subRefs:       make(map[string]int),
		svcs:          svcengine.NewRegistry(),
	}

	n.slave = rosxmlrpc.NewServer(n)
	slaveURI, err := n.slave.Serve(bindHost, advertiseHost)
	if err != nil {
		return nil, err
	}

	n.master = rosxmlrpc.NewMasterClient(cfg.MasterURI, n.callerID, slaveURI)
	n.subs = subengine.NewRegistry(n.name, slaveURI)

	for _, pp := range cfg.Params {
		key, err := resolver.Resolve(pp.Name)
		if err != nil {
			n.slave.Close(context.Background())
			return nil, err
		}
		if err := n.master.SetParam(ctx, key.String(), pp.Value); err != nil {
			n.slave.Close(context.Background())
			return nil, err
		}
	}

	n.initClock(ctx)

	return n, nil
}

func trimLeadingSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}

// initClock selects SimClock over WallClock when /use_sim_time is
// truthy, per spec.md §4.9, and feeds it from /clock. Failure to reach
// the master for this check is non-fatal: the node falls back to
// WallClock, matching real ROS behavior when no master-provided
// simulation setting is visible yet.
func (n *Node) initClock(ctx context.Context) {
	v, err := n.master.GetParam(ctx, "/use_sim_time")
	if err != nil || !truthy(v) {
		return
	}
	n.clock = NewSimClock()
	roslog.Info("node: /use_sim_time is set, using simulated clock")
	// A /clock subscription is wired in by the caller once a
	// std_msgs/Time Compiled schema is available; SimClock() exposes
	// Trigger for that feed.
}

func truthy(v rosxmlrpc.Value) bool {
	switch v.Kind {
	case rosxmlrpc.KBool:
		return v.Bool
	case rosxmlrpc.KInt:
		return v.Int != 0
	case rosxmlrpc.KString:
		return v.Str == "true" || v.Str == "1"
	default:
		return false
	}
}

// SimClock returns the node's clock as a *SimClock and true if the
// node is running on simulated time (i.e. /use_sim_time was truthy at
// startup), so a caller owning a std_msgs/Time schema can wire a
// /clock subscriber that calls Trigger.
func (n *Node) SimClock() (*SimClock, bool) {
	sc, ok := n.clock.(*SimClock)
	return sc, ok
}

// Now, Sleep, and Rate expose the node's Clock, per spec.md §4.9.
func (n *Node) Now() time.Time            { return n.clock.Now() }
func (n *Node) Sleep(d time.Duration)      { n.clock.Sleep(d) }
func (n *Node) Rate(hz float64) *Rate      { return NewRate(n.clock, hz) }
func (n *Node) Resolver() *resolve.Resolver { return n.resolver }

// ResolveName applies the namespace/private/absolute rule and then the
// remap table, per spec.md §4.3.
func (n *Node) ResolveName(name string) (string, error) {
	p, err := resolve.Translate(n.resolver, n.remaps, name)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

// Param returns a Parameter handle for name, resolved through the node
// naming rules.
func (n *Node) Param(name string) (*Parameter, error) {
	key, err := n.ResolveName(name)
	if err != nil {
		return nil, err
	}
	return &Parameter{node: n, key: key}, nil
}

// IsOK reports whether the node is still alive; it flips false once
// and only once, on shutdown.
func (n *Node) IsOK() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.okFlag
}

// Name returns the node's own resolved absolute name.
func (n *Node) Name() string { return n.name }

// URI returns the node's slave XML-RPC URI.
func (n *Node) URI() string { return n.slave.URI() }

// State proxies the master's getSystemState, per spec.md §4.9.
func (n *Node) State(ctx context.Context) (rosxmlrpc.SystemState, error) {
	return n.master.GetSystemState(ctx)
}

// Topics proxies the master's getPublishedTopics.
func (n *Node) Topics(ctx context.Context, subgraph string) ([]rosxmlrpc.PublishedTopic, error) {
	return n.master.GetPublishedTopics(ctx, subgraph)
}

// Parameters proxies the master's getParamNames.
func (n *Node) Parameters(ctx context.Context) ([]string, error) {
	return n.master.GetParamNames(ctx)
}

// Spin blocks until the node is shut down, matching spec.md §4.9's
// wait-until-shutdown primitive.
func (n *Node) Spin() {
	<-n.shutdownCh
}

// SpinContext is Spin but also returns early if ctx is done.
func (n *Node) SpinContext(ctx context.Context) {
	select {
	case <-n.shutdownCh:
	case <-ctx.Done():
	}
}

// Close closes every publication, subscription, and service the node
// owns, stops the slave server, and flips IsOK to false. It does not
// call the master's unregister* methods; only the Close methods of the
// individual Publisher/Subscriber/Service handles do. Safe to call more than once
// and safe to call concurrently with an inbound XML-RPC "shutdown".
func (n *Node) Close(ctx context.Context) error {
	n.shutdownOnce.Do(func() {
		n.mu.Lock()
		n.okFlag = false
		n.mu.Unlock()
		close(n.shutdownCh)
	})

	var g errgroup.Group
	g.Go(func() error {
		n.pubs.CloseAll()
		return nil
	})
	g.Go(func() error {
		n.subs.CloseAll()
		return nil
	})
	g.Go(func() error {
		n.svcs.CloseAll()
		return nil
	})
	_ = g.Wait()

	return n.slave.Close(ctx)
}

var _ rosxmlrpc.SlaveAPI = (*Node)(nil)

// --- rosxmlrpc.SlaveAPI ---

func (n *Node) GetBusStats(callerID string) (rosxmlrpc.Value, error) {
	return rosxmlrpc.Value{}, fmt.Errorf("getBusStats: not implemented")
}

func (n *Node) GetBusInfo(callerID string) (rosxmlrpc.Value, error) {
	lines := roslog.DumpRecent()
	out := make([]rosxmlrpc.Value, len(lines))
	for i, l := range lines {
		out[i] = rosxmlrpc.Str(l)
	}
	return rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "bus info", rosxmlrpc.Arr(out...)), nil
}

func (n *Node) GetMasterURI(callerID string) (string, error) {
	return n.masterURI, nil
}

func (n *Node) GetPID(callerID string) (int, error) {
	return os.Getpid(), nil
}

func (n *Node) Shutdown(callerID, reason string) (int, string) {
	n.mu.Lock()
	n.shutdownMsg = reason
	n.mu.Unlock()
	go func() { _ = n.Close(context.Background()) }()
	return rosxmlrpc.StatusSuccess, "shutting down"
}

func (n *Node) GetSubscriptions(callerID string) ([]rosxmlrpc.PublishedTopic, error) {
	tt := n.subs.Topics()
	out := make([]rosxmlrpc.PublishedTopic, len(tt))
	for i, t := range tt {
		out[i] = rosxmlrpc.PublishedTopic{Name: t.Name, Type: t.Type}
	}
	return out, nil
}

func (n *Node) GetPublications(callerID string) ([]rosxmlrpc.PublishedTopic, error) {
	tt := n.pubs.Topics()
	out := make([]rosxmlrpc.PublishedTopic, len(tt))
	for i, t := range tt {
		out[i] = rosxmlrpc.PublishedTopic{Name: t.Name, Type: t.Type}
	}
	return out, nil
}

func (n *Node) ParamUpdate(callerID, key string, value rosxmlrpc.Value) (int, string) {
	n.params.invalidate(key)
	return rosxmlrpc.StatusSuccess, "ok"
}

func (n *Node) PublisherUpdate(callerID, topic string, publishers []string) (int, string) {
	n.subs.PublisherUpdate(topic, publishers)
	return rosxmlrpc.StatusSuccess, "ok"
}

func (n *Node) RequestTopic(callerID, topic string, protocols []rosxmlrpc.Value) (rosxmlrpc.Value, error) {
	offersTCPROS := false
	for _, p := range protocols {
		arr, err := p.AsArray()
		if err != nil || len(arr) == 0 {
			continue
		}
		if name, _ := arr[0].AsString(); name == "TCPROS" {
			offersTCPROS = true
		}
	}
	if !offersTCPROS {
		return rosxmlrpc.Triple(rosxmlrpc.StatusFailure, "No matching protocols available", rosxmlrpc.Nil()), nil
	}

	n.pubRefsMu.Lock()
	ref, ok := n.pubRefs[topic]
	n.pubRefsMu.Unlock()
	if !ok {
		return rosxmlrpc.Triple(rosxmlrpc.StatusError, "not published", rosxmlrpc.Nil()), nil
	}

	return rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "ready",
		rosxmlrpc.Arr(rosxmlrpc.Str("TCPROS"), rosxmlrpc.Str(ref.pub.AdvertiseHost), rosxmlrpc.Int(ref.pub.Port)),
	), nil
}
