// Package svcengine implements the service engine (spec.md §4.8): the
// server side (listener, probe-vs-request handshake branch, handler
// invocation loop) and the client side (URI caching, exponential
// backoff retry, probe, wait_for_service). Grounded on pubengine's
// accept-loop shape for the server half and on the teacher's
// internal/ron client reconnect loop (ron.Client.synchronized dial
// retry) for the client half's backoff.
package svcengine

import (
	"net"
	"strconv"
	"sync/atomic"

	"golang.org/x/net/netutil"

	"github.com/rosnode/rosnode/internal/rosmsg"
	"github.com/rosnode/rosnode/internal/tcpros"
	"github.com/rosnode/rosnode/internal/wire"
	"github.com/rosnode/rosnode/pkg/roslog"
)

// maxServerConns bounds concurrent inbound connections per service.
const maxServerConns = 256

// failedToParseMsg is written as the final error body when a
// request-handling loop exits after a read failure, per spec.md §4.8.
const failedToParseMsg = "Failed to parse passed arguments"

// Handler is a service implementation: decode req, produce resp or an
// error message surfaced to the caller over the wire.
type Handler func(req map[string]any) (resp map[string]any, err error)

// Server owns one service's TCPROS listener and accept loop.
type Server struct {
	NodeName string
	Name     string
	Request  *rosmsg.Compiled
	Response *rosmsg.Compiled

	handler Handler
	ln      net.Listener
	alive   int32 // atomic bool; observed by the accept loop
}

// New starts listening on bindHost:0 and returns the Server and the
// URI peers should use to connect, per spec.md §4.8/§4.4's bind/
// advertise split.
func New(nodeName, name string, request, response *rosmsg.Compiled, handler Handler, bindHost, advertiseHost string) (*Server, string, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(bindHost, "0"))
	if err != nil {
		return nil, "", err
	}
	limited := netutil.LimitListener(ln, maxServerConns)

	s := &Server{
		NodeName: nodeName,
		Name:     name,
		Request:  request,
		Response: response,
		handler:  handler,
		ln:       limited,
		alive:    1,
	}

	port := ln.Addr().(*net.TCPAddr).Port
	uri := net.JoinHostPort(advertiseHost, strconv.Itoa(port))

	go s.acceptLoop()

	return s, uri, nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			roslog.Debug("svcengine: listener for %s closed: %v", s.Name, err)
			return
		}
		if atomic.LoadInt32(&s.alive) == 0 {
			conn.Close()
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	h, probe, err := tcpros.ServiceServerAccept(conn, s.Name, s.Request.MD5Sum)
	if err != nil {
		roslog.Warn("svcengine: handshake rejected on %s from %s: %v", s.Name, conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	roslog.Debug("svcengine: %s connected to %s (probe=%v)", h["callerid"], s.Name, probe)

	if err := tcpros.ServiceServerReply(conn, s.NodeName, s.Request.MD5Sum, s.Request.MsgType()); err != nil {
		conn.Close()
		return
	}

	if probe {
		conn.Close()
		return
	}

	go s.requestLoop(conn)
}

func (s *Server) requestLoop(conn net.Conn) {
	defer conn.Close()
	for {
		body, err := wire.ReadFrame(conn)
		if err != nil {
			writeResult(conn, false, []byte(failedToParseMsg))
			return
		}

		req, err := s.Request.Decode(body)
		if err != nil {
			writeResult(conn, false, []byte(err.Error()))
			continue
		}

		resp, err := s.handler(req)
		if err != nil {
			writeResult(conn, false, []byte(err.Error()))
			continue
		}

		respBody, err := s.Response.Encode(resp)
		if err != nil {
			writeResult(conn, false, []byte(err.Error()))
			continue
		}
		if err := writeResult(conn, true, respBody); err != nil {
			return
		}
	}
}

func writeResult(conn net.Conn, ok bool, body []byte) error {
	var flag [1]byte
	if ok {
		flag[0] = 1
	}
	if _, err := conn.Write(flag[:]); err != nil {
		return err
	}
	return wire.WriteFrame(conn, body)
}

// Close marks the server dead (rejecting further connections, per
// spec.md §4.8's alive_flag) and stops its listener.
func (s *Server) Close() {
	atomic.StoreInt32(&s.alive, 0)
	s.ln.Close()
}
