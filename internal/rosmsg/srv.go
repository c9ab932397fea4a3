package rosmsg

import (
	"strings"

	"github.com/rosnode/rosnode/internal/rerr"
)

// Srv is a service descriptor: a request Msg and a response Msg, both
// under the same Path (by ROS convention the service and the two
// message bodies share a name), per spec.md §6.
type Srv struct {
	Path     Path
	Request  Msg
	Response Msg
}

// ParseSrv splits a .srv source on a line of exactly "---" into
// request and response bodies and parses each as a Msg under path.
func ParseSrv(path Path, source string) (Srv, error) {
	lines := strings.Split(source, "\n")

	sep := -1
	for i, line := range lines {
		if strings.TrimRight(line, "\r") == "---" {
			sep = i
			break
		}
	}
	if sep < 0 {
		return Srv{}, &rerr.Protocol{Detail: "service source missing '---' separator"}
	}

	reqSrc := strings.Join(lines[:sep], "\n")
	respSrc := strings.Join(lines[sep+1:], "\n")

	req, err := Parse(path, reqSrc)
	if err != nil {
		return Srv{}, err
	}
	resp, err := Parse(path, respSrc)
	if err != nil {
		return Srv{}, err
	}

	return Srv{Path: path, Request: req, Response: resp}, nil
}

// Hash computes the service's MD5: concat(request_representation,
// response_representation), hashed once. Dependencies of both request
// and response must be present in hashes.
func (s Srv) Hash(hashes map[Path]string) (string, error) {
	return ServiceHash(s.Request, s.Response, hashes)
}
