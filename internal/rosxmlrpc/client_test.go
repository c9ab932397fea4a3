package rosxmlrpc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rosnode/rosnode/internal/rerr"
)

// masterHandler builds an httptest handler that decodes the incoming
// XML-RPC call, hands (method, params) to fn, and encodes fn's return
// value as a methodResponse — enough to exercise MasterClient's
// encode/call/decode path end to end against a fake master.
func masterHandler(fn func(method string, params []Value) Value) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		method, params, err := DecodeCall(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := EncodeResponse(fn(method, params))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		w.Write(resp)
	}
}

func faultingHandler(code int, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := EncodeFault(code, message)
		w.Header().Set("Content-Type", "text/xml")
		w.Write(body)
	}
}

func TestMasterClientRegisterSubscriber(t *testing.T) {
	srv := httptest.NewServer(masterHandler(func(method string, params []Value) Value {
		switch method {
		case "registerSubscriber":
			return Triple(StatusSuccess, "registered", Arr(Str("http://pub1/"), Str("http://pub2/")))
		}
		return Triple(StatusError, "unexpected method "+method, Nil())
	}))
	defer srv.Close()

	mc := NewMasterClient(srv.URL, "/listener", "http://listener/")
	pubs, err := mc.RegisterSubscriber(context.Background(), "/chatter", "std_msgs/String")
	if err != nil {
		t.Fatalf("RegisterSubscriber: %v", err)
	}
	if len(pubs) != 2 || pubs[0] != "http://pub1/" || pubs[1] != "http://pub2/" {
		t.Fatalf("pubs = %v", pubs)
	}
}

func TestMasterClientCallTripleSurfacesFailureCode(t *testing.T) {
	srv := httptest.NewServer(masterHandler(func(method string, params []Value) Value {
		return Triple(StatusFailure, "topic not found", Nil())
	}))
	defer srv.Close()

	mc := NewMasterClient(srv.URL, "/caller", "http://caller/")
	_, err := mc.LookupService(context.Background(), "/add_two_ints")
	if err == nil {
		t.Fatal("expected error on StatusFailure triple")
	}
	var merr *rerr.MasterError
	if !errors.As(err, &merr) {
		t.Fatalf("err type = %T, want *rerr.MasterError", err)
	}
	if merr.Kind != rerr.MasterServer {
		t.Fatalf("Kind = %v, want MasterServer (code 0 is a failure)", merr.Kind)
	}
}

func TestMasterClientCallTripleSurfacesErrorCode(t *testing.T) {
	srv := httptest.NewServer(masterHandler(func(method string, params []Value) Value {
		return Triple(StatusError, "malformed request", Nil())
	}))
	defer srv.Close()

	mc := NewMasterClient(srv.URL, "/caller", "http://caller/")
	_, err := mc.LookupService(context.Background(), "/add_two_ints")
	if err == nil {
		t.Fatal("expected error on StatusError triple")
	}
	var merr *rerr.MasterError
	if !errors.As(err, &merr) {
		t.Fatalf("err type = %T, want *rerr.MasterError", err)
	}
	if merr.Kind != rerr.MasterClient {
		t.Fatalf("Kind = %v, want MasterClient (code -1 is an error)", merr.Kind)
	}
}

func TestMasterClientGetSystemState(t *testing.T) {
	srv := httptest.NewServer(masterHandler(func(method string, params []Value) Value {
		section := Arr(Arr(Str("/chatter"), Arr(Str("/talker"))))
		return Triple(StatusSuccess, "", Arr(section, section, section))
	}))
	defer srv.Close()

	mc := NewMasterClient(srv.URL, "/caller", "http://caller/")
	state, err := mc.GetSystemState(context.Background())
	if err != nil {
		t.Fatalf("GetSystemState: %v", err)
	}
	if providers := state.Publishers["/chatter"]; len(providers) != 1 || providers[0] != "/talker" {
		t.Fatalf("publishers = %v", state.Publishers)
	}
}

func TestMasterClientSetParamRoundTrip(t *testing.T) {
	var gotKey string
	var gotVal Value
	srv := httptest.NewServer(masterHandler(func(method string, params []Value) Value {
		if method == "setParam" {
			gotKey, _ = params[1].AsString()
			gotVal = params[2]
		}
		return Triple(StatusSuccess, "", Nil())
	}))
	defer srv.Close()

	mc := NewMasterClient(srv.URL, "/caller", "http://caller/")
	if err := mc.SetParam(context.Background(), "/rate", Int(10)); err != nil {
		t.Fatalf("SetParam: %v", err)
	}
	if gotKey != "/rate" {
		t.Errorf("gotKey = %q", gotKey)
	}
	if n, _ := gotVal.AsInt(); n != 10 {
		t.Errorf("gotVal = %+v", gotVal)
	}
}

func TestClientCallPropagatesFault(t *testing.T) {
	srv := httptest.NewServer(faultingHandler(17, "no such method"))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Call(context.Background(), "bogusMethod")
	if err == nil {
		t.Fatal("expected fault error")
	}
	fault, ok := err.(*Fault)
	if !ok {
		t.Fatalf("err type = %T, want *Fault", err)
	}
	if fault.Code != 17 {
		t.Errorf("fault.Code = %d", fault.Code)
	}
}
