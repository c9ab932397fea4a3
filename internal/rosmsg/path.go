// Package rosmsg implements the message schema compiler: parsing
// .msg/.srv source into a descriptor, computing REP 144 MD5 sums, and
// building the runtime "dynamic message" view used by the TCPROS
// handshake's message_definition field.
//
// Grounded on the teacher's own small-grammar parsers (pkg/minicli's
// line-oriented command grammar) and on original_source/ros_message,
// whose data_type.rs/msg.rs/message_path.rs define the same value
// model this package re-expresses in Go.
package rosmsg

import (
	"regexp"

	"github.com/rosnode/rosnode/internal/rerr"
)

var packageRe = regexp.MustCompile(`^[a-z][a-z0-9_]+$`)

// Path is a message's (package, name) pair, REP 144 §package naming.
type Path struct {
	Package string
	Name    string
}

// NewPath validates and constructs a Path.
func NewPath(pkg, name string) (Path, error) {
	if !packageRe.MatchString(pkg) {
		return Path{}, &rerr.Naming{Name: pkg, Reason: "package must match ^[a-z][a-z0-9_]+$"}
	}
	if containsConsecutiveUnderscores(pkg) {
		return Path{}, &rerr.Naming{Name: pkg, Reason: "package must not contain consecutive underscores"}
	}
	if !fieldNameRe.MatchString(name) {
		return Path{}, &rerr.Naming{Name: name, Reason: "message name must match ^[a-zA-Z][a-zA-Z0-9_]*$"}
	}
	return Path{Package: pkg, Name: name}, nil
}

func containsConsecutiveUnderscores(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '_' && s[i+1] == '_' {
			return true
		}
	}
	return false
}

// String renders the canonical "package/name" form.
func (p Path) String() string {
	return p.Package + "/" + p.Name
}

// Less gives Path a total order, for deterministic iteration over
// dependency sets in tests and BFS traversal.
func (p Path) Less(o Path) bool {
	if p.Package != o.Package {
		return p.Package < o.Package
	}
	return p.Name < o.Name
}
