package node

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/rosnode/rosnode/internal/rosxmlrpc"
)

// fakeMaster is a minimal in-memory ROS master sufficient to drive a
// real Node end to end over its actual XML-RPC client: publisher/
// subscriber/service registries, param storage, and the proactive
// publisherUpdate push registerPublisher performs against every
// already-registered subscriber, mirroring real master behavior.
type fakeMaster struct {
	srv *httptest.Server

	mu       sync.Mutex
	pubs     map[string][]string
	subs     map[string][]string
	services map[string]string
	params   map[string]rosxmlrpc.Value
}

func newFakeMaster() *fakeMaster {
	m := &fakeMaster{
		pubs:     make(map[string][]string),
		subs:     make(map[string][]string),
		services: make(map[string]string),
		params:   make(map[string]rosxmlrpc.Value),
	}
	m.srv = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *fakeMaster) URL() string { return m.srv.URL }
func (m *fakeMaster) Close()      { m.srv.Close() }

func (m *fakeMaster) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	method, params, err := rosxmlrpc.DecodeCall(body)
	if err != nil {
		resp, _ := rosxmlrpc.EncodeFault(400, err.Error())
		w.Write(resp)
		return
	}
	result := m.dispatch(method, params)
	resp, err := rosxmlrpc.EncodeResponse(result)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.Write(resp)
}

func strArray(vs []string) rosxmlrpc.Value {
	out := make([]rosxmlrpc.Value, len(vs))
	for i, v := range vs {
		out[i] = rosxmlrpc.Str(v)
	}
	return rosxmlrpc.Arr(out...)
}

func appendUnique(list []string, v string) []string {
	for _, e := range list {
		if e == v {
			return list
		}
	}
	return append(list, v)
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, e := range list {
		if e != v {
			out = append(out, e)
		}
	}
	return out
}

func (m *fakeMaster) dispatch(method string, params []rosxmlrpc.Value) rosxmlrpc.Value {
	get := func(i int) string {
		if i >= len(params) {
			return ""
		}
		s, _ := params[i].AsString()
		return s
	}

	switch method {
	case "registerPublisher":
		topic, callerURI := get(1), get(3)
		m.mu.Lock()
		m.pubs[topic] = appendUnique(m.pubs[topic], callerURI)
		subscribers := append([]string{}, m.subs[topic]...)
		pubList := append([]string{}, m.pubs[topic]...)
		m.mu.Unlock()
		m.notifySubscribers(topic, subscribers, pubList)
		return rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "registered", strArray(subscribers))

	case "unregisterPublisher":
		topic, callerURI := get(1), get(2)
		m.mu.Lock()
		m.pubs[topic] = removeString(m.pubs[topic], callerURI)
		m.mu.Unlock()
		return rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "unregistered", rosxmlrpc.Int(1))

	case "registerSubscriber":
		topic, callerURI := get(1), get(3)
		m.mu.Lock()
		m.subs[topic] = appendUnique(m.subs[topic], callerURI)
		pubList := append([]string{}, m.pubs[topic]...)
		m.mu.Unlock()
		return rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "registered", strArray(pubList))

	case "unregisterSubscriber":
		topic, callerURI := get(1), get(2)
		m.mu.Lock()
		m.subs[topic] = removeString(m.subs[topic], callerURI)
		m.mu.Unlock()
		return rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "unregistered", rosxmlrpc.Int(1))

	case "registerService":
		service, uri := get(1), get(2)
		m.mu.Lock()
		m.services[service] = uri
		m.mu.Unlock()
		return rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "registered", rosxmlrpc.Int(1))

	case "unregisterService":
		service := get(1)
		m.mu.Lock()
		delete(m.services, service)
		m.mu.Unlock()
		return rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "unregistered", rosxmlrpc.Int(1))

	case "lookupService":
		service := get(1)
		m.mu.Lock()
		uri, ok := m.services[service]
		m.mu.Unlock()
		if !ok {
			return rosxmlrpc.Triple(rosxmlrpc.StatusFailure, "no provider", rosxmlrpc.Nil())
		}
		return rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "", rosxmlrpc.Str(uri))

	case "getParam":
		key := get(1)
		m.mu.Lock()
		v, ok := m.params[key]
		m.mu.Unlock()
		if !ok {
			return rosxmlrpc.Triple(rosxmlrpc.StatusFailure, "not set", rosxmlrpc.Nil())
		}
		return rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "", v)

	case "setParam":
		key := get(1)
		m.mu.Lock()
		m.params[key] = params[2]
		m.mu.Unlock()
		return rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "", rosxmlrpc.Nil())

	case "deleteParam":
		key := get(1)
		m.mu.Lock()
		delete(m.params, key)
		m.mu.Unlock()
		return rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "", rosxmlrpc.Nil())

	case "getUri":
		return rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "", rosxmlrpc.Str(m.srv.URL))

	default:
		return rosxmlrpc.Triple(rosxmlrpc.StatusSuccess, "", rosxmlrpc.Nil())
	}
}

// notifySubscribers pushes publisherUpdate to every subscriber slave
// URI currently on file for topic, matching the real master's
// behavior of proactively notifying subscribers whenever a topic's
// publisher set changes.
func (m *fakeMaster) notifySubscribers(topic string, subscribers, pubList []string) {
	for _, subURI := range subscribers {
		c := rosxmlrpc.NewClient(subURI)
		go c.Call(context.Background(), "publisherUpdate", rosxmlrpc.Str("/master"), rosxmlrpc.Str(topic), strArray(pubList))
	}
}
