package rosxmlrpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rosnode/rosnode/internal/rerr"
)

// Client is a generic XML-RPC caller used both for talking to the
// master and, from the subscriber side, for talking to a publisher's
// slave API (requestTopic). It is intentionally dumb: callers build
// the method name and Value params and get back the decoded
// (code, message, value) triple or a transport/fault error.
type Client struct {
	uri string
	hc  *http.Client
}

// NewClient builds a Client targeting uri, with a bounded per-call
// timeout matching the teacher's dial-timeout convention of never
// leaving an HTTP round-trip unbounded.
func NewClient(uri string) *Client {
	return &Client{
		uri: uri,
		hc:  &http.Client{Timeout: 10 * time.Second},
	}
}

// URI returns the endpoint this client talks to.
func (c *Client) URI() string { return c.uri }

// Call performs a raw XML-RPC call and returns the decoded return
// value, unwrapped from any transport fault.
func (c *Client) Call(ctx context.Context, method string, params ...Value) (Value, error) {
	body, err := EncodeCall(method, params)
	if err != nil {
		return Value{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uri, bytes.NewReader(body))
	if err != nil {
		return Value{}, &rerr.Io{Cause: err}
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.hc.Do(req)
	if err != nil {
		return Value{}, &rerr.Io{Cause: fmt.Errorf("xmlrpc call %s to %s: %w", method, c.uri, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Value{}, &rerr.Io{Cause: err}
	}

	val, fault, err := DecodeResponse(respBody)
	if err != nil {
		return Value{}, fmt.Errorf("rosxmlrpc: %s: %w", method, err)
	}
	if fault != nil {
		return Value{}, fault
	}
	return val, nil
}

// CallTriple performs method and validates the conventional ROS
// (code, message, value) triple shape, returning the inner value only
// when code indicates success, and a *rerr.MasterError otherwise.
func (c *Client) CallTriple(ctx context.Context, method string, params ...Value) (Value, error) {
	v, err := c.Call(ctx, method, params...)
	if err != nil {
		return Value{}, err
	}
	arr, err := v.AsArray()
	if err != nil || len(arr) != 3 {
		return Value{}, fmt.Errorf("rosxmlrpc: %s: malformed triple response", method)
	}
	code, err := arr[0].AsInt()
	if err != nil {
		return Value{}, fmt.Errorf("rosxmlrpc: %s: malformed status code", method)
	}
	msg, _ := arr[1].AsString()
	if code != StatusSuccess {
		kind := rerr.MasterServer
		if code == StatusError {
			kind = rerr.MasterClient
		}
		return Value{}, &rerr.MasterError{Method: method, Kind: kind, Message: msg}
	}
	return arr[2], nil
}

// MasterClient wraps Client with the registration/query surface of
// the master API (spec.md §4.4).
type MasterClient struct {
	*Client
	callerID string
	callerURI string
}

func NewMasterClient(masterURI, callerID, callerURI string) *MasterClient {
	return &MasterClient{Client: NewClient(masterURI), callerID: callerID, callerURI: callerURI}
}

func (m *MasterClient) RegisterService(ctx context.Context, service, serviceURI string) error {
	_, err := m.CallTriple(ctx, "registerService", Str(m.callerID), Str(service), Str(serviceURI), Str(m.callerURI))
	return err
}

func (m *MasterClient) UnregisterService(ctx context.Context, service, serviceURI string) error {
	_, err := m.CallTriple(ctx, "unregisterService", Str(m.callerID), Str(service), Str(serviceURI))
	return err
}

// RegisterSubscriber returns the current list of publisher URIs for
// topic, per spec.md §4.4.
func (m *MasterClient) RegisterSubscriber(ctx context.Context, topic, topicType string) ([]string, error) {
	v, err := m.CallTriple(ctx, "registerSubscriber", Str(m.callerID), Str(topic), Str(topicType), Str(m.callerURI))
	if err != nil {
		return nil, err
	}
	return v.AsStringArray()
}

func (m *MasterClient) UnregisterSubscriber(ctx context.Context, topic string) error {
	_, err := m.CallTriple(ctx, "unregisterSubscriber", Str(m.callerID), Str(topic), Str(m.callerURI))
	return err
}

func (m *MasterClient) RegisterPublisher(ctx context.Context, topic, topicType string) ([]string, error) {
	v, err := m.CallTriple(ctx, "registerPublisher", Str(m.callerID), Str(topic), Str(topicType), Str(m.callerURI))
	if err != nil {
		return nil, err
	}
	return v.AsStringArray()
}

func (m *MasterClient) UnregisterPublisher(ctx context.Context, topic string) error {
	_, err := m.CallTriple(ctx, "unregisterPublisher", Str(m.callerID), Str(topic), Str(m.callerURI))
	return err
}

func (m *MasterClient) LookupService(ctx context.Context, service string) (string, error) {
	v, err := m.CallTriple(ctx, "lookupService", Str(m.callerID), Str(service))
	if err != nil {
		return "", err
	}
	return v.AsString()
}

func (m *MasterClient) LookupNode(ctx context.Context, node string) (string, error) {
	v, err := m.CallTriple(ctx, "lookupNode", Str(m.callerID), Str(node))
	if err != nil {
		return "", err
	}
	return v.AsString()
}

// PublishedTopic is a (topic, type) pair as returned by
// getPublishedTopics.
type PublishedTopic struct {
	Name string
	Type string
}

func (m *MasterClient) GetPublishedTopics(ctx context.Context, subgraph string) ([]PublishedTopic, error) {
	v, err := m.CallTriple(ctx, "getPublishedTopics", Str(m.callerID), Str(subgraph))
	if err != nil {
		return nil, err
	}
	arr, err := v.AsArray()
	if err != nil {
		return nil, err
	}
	out := make([]PublishedTopic, 0, len(arr))
	for _, pair := range arr {
		pv, err := pair.AsArray()
		if err != nil || len(pv) != 2 {
			continue
		}
		name, _ := pv[0].AsString()
		typ, _ := pv[1].AsString()
		out = append(out, PublishedTopic{Name: name, Type: typ})
	}
	return out, nil
}

func (m *MasterClient) GetTopicTypes(ctx context.Context) ([]PublishedTopic, error) {
	v, err := m.CallTriple(ctx, "getTopicTypes", Str(m.callerID))
	if err != nil {
		return nil, err
	}
	arr, err := v.AsArray()
	if err != nil {
		return nil, err
	}
	out := make([]PublishedTopic, 0, len(arr))
	for _, pair := range arr {
		pv, err := pair.AsArray()
		if err != nil || len(pv) != 2 {
			continue
		}
		name, _ := pv[0].AsString()
		typ, _ := pv[1].AsString()
		out = append(out, PublishedTopic{Name: name, Type: typ})
	}
	return out, nil
}

// SystemState is the (publishers, subscribers, services) triple
// returned by getSystemState, each a map of name to provider list.
type SystemState struct {
	Publishers  map[string][]string
	Subscribers map[string][]string
	Services    map[string][]string
}

func (m *MasterClient) GetSystemState(ctx context.Context) (SystemState, error) {
	v, err := m.CallTriple(ctx, "getSystemState", Str(m.callerID))
	if err != nil {
		return SystemState{}, err
	}
	arr, err := v.AsArray()
	if err != nil || len(arr) != 3 {
		return SystemState{}, fmt.Errorf("rosxmlrpc: getSystemState: malformed response")
	}
	pubs, _ := decodeStateSection(arr[0])
	subs, _ := decodeStateSection(arr[1])
	svcs, _ := decodeStateSection(arr[2])
	return SystemState{Publishers: pubs, Subscribers: subs, Services: svcs}, nil
}

func decodeStateSection(v Value) (map[string][]string, error) {
	arr, err := v.AsArray()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(arr))
	for _, entry := range arr {
		ev, err := entry.AsArray()
		if err != nil || len(ev) != 2 {
			continue
		}
		name, _ := ev[0].AsString()
		providers, _ := ev[1].AsStringArray()
		out[name] = providers
	}
	return out, nil
}

func (m *MasterClient) GetURI(ctx context.Context) (string, error) {
	v, err := m.CallTriple(ctx, "getUri", Str(m.callerID))
	if err != nil {
		return "", err
	}
	return v.AsString()
}

func (m *MasterClient) DeleteParam(ctx context.Context, key string) error {
	_, err := m.CallTriple(ctx, "deleteParam", Str(m.callerID), Str(key))
	return err
}

func (m *MasterClient) SetParam(ctx context.Context, key string, value Value) error {
	_, err := m.CallTriple(ctx, "setParam", Str(m.callerID), Str(key), value)
	return err
}

func (m *MasterClient) GetParam(ctx context.Context, key string) (Value, error) {
	return m.CallTriple(ctx, "getParam", Str(m.callerID), Str(key))
}

func (m *MasterClient) SearchParam(ctx context.Context, key string) (string, error) {
	v, err := m.CallTriple(ctx, "searchParam", Str(m.callerID), Str(key))
	if err != nil {
		return "", err
	}
	return v.AsString()
}

func (m *MasterClient) HasParam(ctx context.Context, key string) (bool, error) {
	v, err := m.CallTriple(ctx, "hasParam", Str(m.callerID), Str(key))
	if err != nil {
		return false, err
	}
	return v.Kind == KBool && v.Bool, nil
}

func (m *MasterClient) GetParamNames(ctx context.Context) ([]string, error) {
	v, err := m.CallTriple(ctx, "getParamNames", Str(m.callerID))
	if err != nil {
		return nil, err
	}
	return v.AsStringArray()
}

func (m *MasterClient) SubscribeParam(ctx context.Context, key string) (Value, error) {
	return m.CallTriple(ctx, "subscribeParam", Str(m.callerID), Str(m.callerURI), Str(key))
}

func (m *MasterClient) UnsubscribeParam(ctx context.Context, key string) error {
	_, err := m.CallTriple(ctx, "unsubscribeParam", Str(m.callerID), Str(m.callerURI), Str(key))
	return err
}
