// Package resolve implements the name resolver (spec.md §3, §4.3): a
// name path type, the namespace/private/remap resolution rules, and
// the small hostname-priority helpers the out-of-scope CLI/env
// collaborator would call to build a node.Config.
//
// Grounded on the teacher's own path-like abstractions are thin (the
// teacher addresses clients by flat string name); this package follows
// original_source/rosrust/src/api/naming/path.rs's segment model,
// re-expressed in idiomatic Go (a []string with validating
// constructors instead of a newtype-wrapped Vec<String>).
package resolve

import (
	"regexp"
	"strings"

	"github.com/rosnode/rosnode/internal/rerr"
)

var segmentRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]*$`)

// Path is an ordered list of name segments. The empty Path prints as
// the empty string; a non-empty Path prints with a leading '/' between
// every pair of segments and before the first, i.e. absolute form.
type Path struct {
	segments []string
}

// NewPath validates and builds a Path from already-split segments.
func NewPath(segments []string) (Path, error) {
	for _, s := range segments {
		if !segmentRe.MatchString(s) {
			return Path{}, &rerr.Naming{Name: s, Reason: "segment must match [A-Za-z0-9][A-Za-z0-9_]*"}
		}
	}
	cp := make([]string, len(segments))
	copy(cp, segments)
	return Path{segments: cp}, nil
}

// ParseAbsolute parses a leading-'/'-stripped, '/'-joined string (no
// resolution prefix) into a Path, rejecting empty segments ("//").
func ParseAbsolute(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}
	parts := strings.Split(s, "/")
	for _, p := range parts {
		if p == "" {
			return Path{}, &rerr.Naming{Name: s, Reason: "empty segment (double slash)"}
		}
	}
	return NewPath(parts)
}

// String renders the absolute form: empty Path -> "", else "/a/b/c".
func (p Path) String() string {
	if len(p.segments) == 0 {
		return ""
	}
	return "/" + strings.Join(p.segments, "/")
}

// Segments returns a copy of the underlying segment list.
func (p Path) Segments() []string {
	cp := make([]string, len(p.segments))
	copy(cp, p.segments)
	return cp
}

// Len reports the number of segments.
func (p Path) Len() int { return len(p.segments) }

// Parent returns the path with its last segment removed. Taking the
// parent of the empty path is an error, per spec.md §3.
func (p Path) Parent() (Path, error) {
	if len(p.segments) == 0 {
		return Path{}, &rerr.Naming{Name: "", Reason: "cannot take parent of the empty path"}
	}
	return Path{segments: append([]string{}, p.segments[:len(p.segments)-1]...)}, nil
}

// Push returns a new Path with segment appended.
func (p Path) Push(segment string) (Path, error) {
	if !segmentRe.MatchString(segment) {
		return Path{}, &rerr.Naming{Name: segment, Reason: "segment must match [A-Za-z0-9][A-Za-z0-9_]*"}
	}
	return Path{segments: append(append([]string{}, p.segments...), segment)}, nil
}

// Join appends all of other's segments.
func (p Path) Join(other Path) Path {
	return Path{segments: append(append([]string{}, p.segments...), other.segments...)}
}

// Equal reports whether two Paths have identical segments.
func (p Path) Equal(o Path) bool {
	if len(p.segments) != len(o.segments) {
		return false
	}
	for i := range p.segments {
		if p.segments[i] != o.segments[i] {
			return false
		}
	}
	return true
}
