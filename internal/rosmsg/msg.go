package rosmsg

import "strings"

// Msg is a message descriptor: (path, fields, source). Source is the
// normalized original text; re-parsing Source under Path must
// reproduce Fields (the round-trip invariant tested in parse_test.go).
type Msg struct {
	Path   Path
	Fields []Field
	Source string
}

// Parse builds a Msg descriptor for the given path from raw .msg
// source text.
func Parse(path Path, source string) (Msg, error) {
	normalized := strings.TrimSpace(source)

	fields, err := ParseFields(normalized)
	if err != nil {
		return Msg{}, err
	}

	return Msg{Path: path, Fields: fields, Source: normalized}, nil
}

// Dependencies returns the bag (duplicates preserved, source order) of
// global-message paths directly reachable from this message's fields.
// Local references are lifted to global by prefixing the message's own
// package, per spec.md §3.
func (m Msg) Dependencies() []Path {
	var deps []Path
	for _, f := range m.Fields {
		switch f.Type.Kind {
		case GlobalMessage:
			deps = append(deps, f.Type.Global)
		case LocalMessage:
			deps = append(deps, Path{Package: m.Path.Package, Name: f.Type.Local})
		}
	}
	return deps
}

// resolvedDep returns the global Path for a field's message type,
// lifting a LocalMessage reference against the enclosing package.
func resolvedDep(ownPackage string, dt DataType) Path {
	if dt.Kind == LocalMessage {
		return Path{Package: ownPackage, Name: dt.Local}
	}
	return dt.Global
}
