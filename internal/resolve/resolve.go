package resolve

import (
	"strings"

	"github.com/rosnode/rosnode/internal/rerr"
)

// Resolver resolves bare/private/absolute names against a node's own
// path, per spec.md §4.3. Given node path /ns1/ns2/name: "foo" becomes
// /ns1/ns2/foo (namespace is the parent of the node path); "~foo"
// becomes /ns1/ns2/name/foo; "/foo" stays /foo.
type Resolver struct {
	nodePath  Path
	namespace Path
}

// NewResolver builds a Resolver for the given (already resolved,
// absolute) node path.
func NewResolver(nodePath Path) (*Resolver, error) {
	ns, err := nodePath.Parent()
	if err != nil {
		return nil, err
	}
	return &Resolver{nodePath: nodePath, namespace: ns}, nil
}

// NodePath returns the node's own absolute path.
func (r *Resolver) NodePath() Path { return r.nodePath }

// Namespace returns the node's namespace (its node path's parent).
func (r *Resolver) Namespace() Path { return r.namespace }

// Resolve applies the namespace/private/absolute rule to name and
// returns the resulting absolute Path, without consulting any remap
// table.
func (r *Resolver) Resolve(name string) (Path, error) {
	if name == "" {
		return Path{}, &rerr.Naming{Name: name, Reason: "name must not be empty"}
	}

	first := name[0]
	if first != '/' && first != '~' && !isAlnum(first) {
		return Path{}, &rerr.Naming{Name: name, Reason: "illegal first character"}
	}

	switch first {
	case '/':
		return ParseAbsolute(name[1:])
	case '~':
		rel, err := parseRelative(name[1:])
		if err != nil {
			return Path{}, err
		}
		return r.nodePath.Join(rel), nil
	default:
		rel, err := parseRelative(name)
		if err != nil {
			return Path{}, err
		}
		return r.namespace.Join(rel), nil
	}
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func parseRelative(s string) (Path, error) {
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

// Validate checks a fully-qualified graph resource name for the
// rejection rules tested in spec.md §8: it must be absolute (leading
// '/'), its first segment must start with a letter (REP 144 forbids a
// leading digit even though a bare resolver query may start with one,
// per §4.3), and every segment must otherwise be non-empty and match
// the segment grammar.
func Validate(name string) error {
	if name == "" {
		return &rerr.Naming{Name: name, Reason: "name must not be empty"}
	}
	if name[0] != '/' {
		return &rerr.Naming{Name: name, Reason: "name must be absolute"}
	}
	body := name[1:]
	if body == "" {
		return nil
	}
	segs := strings.Split(body, "/")
	for i, seg := range segs {
		if seg == "" {
			return &rerr.Naming{Name: name, Reason: "empty segment (double slash)"}
		}
		if !segmentRe.MatchString(seg) {
			return &rerr.Naming{Name: name, Reason: "illegal character in segment " + seg}
		}
		if i == 0 && !isLetter(seg[0]) {
			return &rerr.Naming{Name: name, Reason: "first segment must start with a letter"}
		}
	}
	return nil
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
