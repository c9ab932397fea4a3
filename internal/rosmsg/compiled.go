package rosmsg

import (
	"github.com/rosnode/rosnode/internal/rerr"
	"github.com/rosnode/rosnode/internal/wire"
)

// Compiled bundles a parsed Msg with its MD5 sum, full wire
// definition, and the dependency registry needed to encode/decode it:
// the "common encode-into-writer/decode-from-reader capability" spec.md
// §9 asks the typed and dynamic codecs to share. Rather than generate
// a distinct Go type per .msg (no code generator runs as part of this
// build), both a publisher and a subscriber address a message purely
// through a Compiled handle backed by DynamicView, so fan-out and
// subscription dispatch can treat every message type opaquely.
type Compiled struct {
	Msg        Msg
	MD5Sum     string
	Definition string
	view       *DynamicView
}

// Compile resolves MD5 hashes across registry (which must contain
// msgPath and every message it transitively depends on, directly or
// through other registry entries) and builds a Compiled handle for
// msgPath.
func Compile(msgPath Path, registry map[Path]Msg) (*Compiled, error) {
	hashes, err := HashAll(registry)
	if err != nil {
		return nil, err
	}
	m, ok := registry[msgPath]
	if !ok {
		return nil, &rerr.DependencyMissing{Package: msgPath.Package, Name: msgPath.Name}
	}
	return &Compiled{
		Msg:        m,
		MD5Sum:     hashes[msgPath],
		Definition: Definition(m, registry),
		view:       &DynamicView{Msg: m, Registry: registry},
	}, nil
}

// CompileService is Compile's service counterpart: it returns two
// Compiled handles sharing one combined MD5 (spec.md §3's
// concat(request, response) service hash) plus the raw request/
// response Msg definitions for the TCPROS handshake's type field.
func CompileService(svc Srv, registry map[Path]Msg) (request, response *Compiled, err error) {
	hashes, err := HashAll(registry)
	if err != nil {
		return nil, nil, err
	}
	svcHash, err := svc.Hash(hashes)
	if err != nil {
		return nil, nil, err
	}

	reqRegistry := withSelf(registry, svc.Path, svc.Request)
	respRegistry := withSelf(registry, svc.Path, svc.Response)

	request = &Compiled{
		Msg:        svc.Request,
		MD5Sum:     svcHash,
		Definition: Definition(svc.Request, reqRegistry),
		view:       &DynamicView{Msg: svc.Request, Registry: reqRegistry},
	}
	response = &Compiled{
		Msg:        svc.Response,
		MD5Sum:     svcHash,
		Definition: Definition(svc.Response, respRegistry),
		view:       &DynamicView{Msg: svc.Response, Registry: respRegistry},
	}
	return request, response, nil
}

func withSelf(registry map[Path]Msg, path Path, m Msg) map[Path]Msg {
	out := make(map[Path]Msg, len(registry)+1)
	for p, v := range registry {
		out[p] = v
	}
	out[path] = m
	return out
}

// MsgType renders the "package/name" string the TCPROS handshake's
// "type" field carries.
func (c *Compiled) MsgType() string { return c.Msg.Path.String() }

// Encode serializes v (a map[string]any per field name, as produced by
// DynamicView) into a standalone message body.
func (c *Compiled) Encode(v map[string]any) ([]byte, error) {
	w := wire.NewWriter()
	if err := c.view.Encode(w, v); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Decode parses a message body previously produced by Encode.
func (c *Compiled) Decode(body []byte) (map[string]any, error) {
	r := wire.NewReader(body)
	return c.view.Decode(r)
}
