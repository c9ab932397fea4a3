package svcengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rosnode/rosnode/internal/rerr"
	"github.com/rosnode/rosnode/internal/rosmsg"
	"github.com/rosnode/rosnode/internal/tcpros"
	"github.com/rosnode/rosnode/internal/wire"
)

// maxDialAttempts and initialBackoff are the retry budget spec.md §4.8
// and §9's "Open question — service retry budget" mark as load-bearing
// constants: 15 attempts, starting at 1ms and doubling.
const (
	maxDialAttempts = 15
	initialBackoff  = time.Millisecond
)

// LookupFunc resolves a service name to its provider's TCPROS-capable
// URI, normally MasterClient.LookupService.
type LookupFunc func(ctx context.Context, service string) (string, error)

// Client is the service client handle (spec.md §3's "Client handle"):
// a caller id, the service name, and a cached provider URI cleared on
// any connection failure.
type Client struct {
	CallerID string
	Service  string
	Request  *rosmsg.Compiled
	Response *rosmsg.Compiled
	lookup   LookupFunc

	mu        sync.Mutex
	cachedURI string
}

func NewClient(callerID, service string, request, response *rosmsg.Compiled, lookup LookupFunc) *Client {
	return &Client{CallerID: callerID, Service: service, Request: request, Response: response, lookup: lookup}
}

// Call performs one request/response round trip, per spec.md §4.8's
// client req(args) sequence.
func (c *Client) Call(ctx context.Context, req map[string]any) (map[string]any, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := tcpros.ServiceClientDial(conn, c.CallerID, c.Service, c.Request.MD5Sum, c.Request.MsgType(), false); err != nil {
		return nil, &rerr.Io{Cause: err}
	}
	if _, err := tcpros.ServiceClientReadReply(conn, c.Request.MD5Sum); err != nil {
		c.invalidate()
		return nil, err
	}

	body, err := c.Request.Encode(req)
	if err != nil {
		return nil, err
	}
	if err := wire.WriteFrame(conn, body); err != nil {
		c.invalidate()
		return nil, &rerr.Io{Cause: err}
	}

	var flag [1]byte
	if _, err := io.ReadFull(conn, flag[:]); err != nil {
		c.invalidate()
		return nil, &rerr.Io{Cause: err}
	}
	respBody, err := wire.ReadFrame(conn)
	if err != nil {
		c.invalidate()
		return nil, &rerr.Io{Cause: err}
	}

	if flag[0] == 0 {
		return nil, fmt.Errorf("svcengine: %s: %s", c.Service, string(respBody))
	}
	return c.Response.Decode(respBody)
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.cachedURI = ""
	c.mu.Unlock()
}

// dial connects to the service provider, per spec.md §4.8: reuse the
// cached URI with a single attempt if present (clearing the cache if
// that attempt fails), otherwise retry with exponential backoff
// (re-looking-up the provider on every attempt) up to maxDialAttempts.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	c.mu.Lock()
	cached := c.cachedURI
	c.mu.Unlock()

	if cached != "" {
		conn, err := net.Dial("tcp", cached)
		if err == nil {
			return conn, nil
		}
		c.invalidate()
		return nil, &rerr.ServiceConnectionFail{Service: c.Service, Attempts: 1, Cause: err}
	}

	delay := initialBackoff
	var lastErr error
	for attempt := 0; attempt < maxDialAttempts; attempt++ {
		uri, err := c.lookup(ctx, c.Service)
		if err != nil {
			lastErr = err
		} else {
			conn, dialErr := net.Dial("tcp", uri)
			if dialErr == nil {
				c.mu.Lock()
				c.cachedURI = uri
				c.mu.Unlock()
				return conn, nil
			}
			lastErr = dialErr
		}

		if attempt < maxDialAttempts-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
	}
	return nil, &rerr.ServiceConnectionFail{Service: c.Service, Attempts: maxDialAttempts, Cause: lastErr}
}

// Probe performs a single-attempt probe handshake (spec.md §4.8):
// no retry, read/write deadlines set to timeout.
func (c *Client) Probe(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	uri, err := c.lookup(ctx, c.Service)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", uri, timeout)
	if err != nil {
		return &rerr.ServiceConnectionFail{Service: c.Service, Attempts: 1, Cause: err}
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	if err := tcpros.ServiceClientDial(conn, c.CallerID, c.Service, "*", "", true); err != nil {
		return &rerr.Io{Cause: err}
	}
	_, err = tcpros.ServiceClientReadReply(conn, "*")
	return err
}

// WaitForService polls the master's lookupService every 100ms, per
// spec.md §4.8, stopping on success, on a non-"no provider" error, or
// when timeout (if positive) elapses.
func (c *Client) WaitForService(ctx context.Context, timeout time.Duration) error {
	var deadline time.Time
	hasDeadline := timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	for {
		_, err := c.lookup(ctx, c.Service)
		if err == nil {
			return nil
		}

		var merr *rerr.MasterError
		if !errors.As(err, &merr) || !looksLikeNoProvider(merr.Message) {
			return err
		}

		if hasDeadline && !time.Now().Before(deadline) {
			return &rerr.Timeout{Detail: "wait_for_service: " + c.Service}
		}

		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func looksLikeNoProvider(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "no provider") || strings.Contains(lower, "unknown service")
}
