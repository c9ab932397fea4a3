package rosxmlrpc

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/net/netutil"

	"github.com/rosnode/rosnode/pkg/roslog"
)

// maxSlaveConns bounds the slave HTTP server's concurrent connections,
// guarding against a master or misbehaving peer opening unbounded
// sockets against a node's control plane.
const maxSlaveConns = 64

// SlaveAPI is implemented by the node facade and dispatched to by
// Server for every slave XML-RPC method in spec.md §4.4.
type SlaveAPI interface {
	GetBusStats(callerID string) (Value, error)
	GetBusInfo(callerID string) (Value, error)
	GetMasterURI(callerID string) (string, error)
	GetPID(callerID string) (int, error)
	Shutdown(callerID, reason string) (int, string)
	GetSubscriptions(callerID string) ([]PublishedTopic, error)
	GetPublications(callerID string) ([]PublishedTopic, error)
	ParamUpdate(callerID, key string, value Value) (int, string)
	PublisherUpdate(callerID, topic string, publishers []string) (int, string)
	RequestTopic(callerID, topic string, protocols []Value) (Value, error)
}

// Server is a node's slave XML-RPC endpoint: one HTTP listener
// dispatching by method name to a SlaveAPI implementation.
type Server struct {
	api SlaveAPI

	mu  sync.Mutex
	srv *http.Server
	uri string
}

func NewServer(api SlaveAPI) *Server {
	return &Server{api: api}
}

// Serve binds listenHost:0 (OS-assigned port), starts serving in a
// background goroutine, and returns the URI peers should use to reach
// it, built from advertiseHost.
func (s *Server) Serve(listenHost, advertiseHost string) (string, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(listenHost, "0"))
	if err != nil {
		return "", err
	}
	limited := netutil.LimitListener(ln, maxSlaveConns)

	port := ln.Addr().(*net.TCPAddr).Port
	uri := "http://" + net.JoinHostPort(advertiseHost, strconv.Itoa(port)) + "/"

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	srv := &http.Server{Handler: mux}

	s.mu.Lock()
	s.srv = srv
	s.uri = uri
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(limited); err != nil && err != http.ErrServerClosed {
			roslog.Errorln("rosxmlrpc: slave server exited:", err)
		}
	}()

	return uri, nil
}

// URI returns the address peers should use, empty until Serve
// succeeds.
func (s *Server) URI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uri
}

// Close shuts the HTTP server down.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	method, params, err := DecodeCall(body)
	if err != nil {
		s.writeFault(w, 400, err.Error())
		return
	}

	result, callErr := s.dispatch(method, params)
	if callErr != nil {
		s.writeFault(w, 500, callErr.Error())
		return
	}

	respBody, err := EncodeResponse(result)
	if err != nil {
		s.writeFault(w, 500, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.Write(respBody)
}

func (s *Server) writeFault(w http.ResponseWriter, code int, message string) {
	body, _ := EncodeFault(code, message)
	w.Header().Set("Content-Type", "text/xml")
	w.Write(body)
}

// dispatch routes a decoded call to the matching SlaveAPI method.
// getBusStats, getBusInfo and requestTopic return the whole
// (code, message, value) triple from their SlaveAPI method and are
// passed through as is; every other method's result is packed into
// the triple here. An error from the SlaveAPI becomes an XML-RPC fault.
func (s *Server) dispatch(method string, params []Value) (Value, error) {
	callerID := ""
	if len(params) > 0 {
		callerID, _ = params[0].AsString()
	}

	switch method {
	case "getBusStats":
		return s.api.GetBusStats(callerID)
	case "getBusInfo":
		return s.api.GetBusInfo(callerID)
	case "getMasterUri":
		uri, err := s.api.GetMasterURI(callerID)
		if err != nil {
			return Value{}, err
		}
		return Triple(StatusSuccess, "master uri", Str(uri)), nil
	case "getPid":
		pid, err := s.api.GetPID(callerID)
		if err != nil {
			return Value{}, err
		}
		return Triple(StatusSuccess, "pid", Int(pid)), nil
	case "shutdown":
		reason := ""
		if len(params) > 1 {
			reason, _ = params[1].AsString()
		}
		code, msg := s.api.Shutdown(callerID, reason)
		return Triple(code, msg, Int(0)), nil
	case "getSubscriptions":
		subs, err := s.api.GetSubscriptions(callerID)
		if err != nil {
			return Value{}, err
		}
		return Triple(StatusSuccess, "subscriptions", topicPairArray(subs)), nil
	case "getPublications":
		pubs, err := s.api.GetPublications(callerID)
		if err != nil {
			return Value{}, err
		}
		return Triple(StatusSuccess, "publications", topicPairArray(pubs)), nil
	case "paramUpdate":
		if len(params) < 3 {
			return Value{}, &faultErr{"paramUpdate requires 3 params"}
		}
		key, _ := params[1].AsString()
		code, msg := s.api.ParamUpdate(callerID, key, params[2])
		return Triple(code, msg, Int(0)), nil
	case "publisherUpdate":
		if len(params) < 3 {
			return Value{}, &faultErr{"publisherUpdate requires 3 params"}
		}
		topic, _ := params[1].AsString()
		pubs, _ := params[2].AsStringArray()
		code, msg := s.api.PublisherUpdate(callerID, topic, pubs)
		return Triple(code, msg, Int(0)), nil
	case "requestTopic":
		if len(params) < 3 {
			return Value{}, &faultErr{"requestTopic requires 3 params"}
		}
		topic, _ := params[1].AsString()
		protocols, err := params[2].AsArray()
		if err != nil {
			return Value{}, &faultErr{"requestTopic protocols must be an array"}
		}
		return s.api.RequestTopic(callerID, topic, protocols)
	default:
		return Value{}, &faultErr{"unknown method: " + method}
	}
}

func topicPairArray(pairs []PublishedTopic) Value {
	out := make([]Value, len(pairs))
	for i, p := range pairs {
		out[i] = Arr(Str(p.Name), Str(p.Type))
	}
	return Arr(out...)
}

type faultErr struct{ msg string }

func (e *faultErr) Error() string { return e.msg }
