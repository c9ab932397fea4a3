package rosmsg

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/rosnode/rosnode/internal/rerr"
)

// Representation builds the deterministic MD5 representation string
// for m, per spec.md §3. hashes must contain the MD5 hex of every
// message this one directly depends on (local references already
// lifted to their package-qualified Path).
func Representation(m Msg, hashes map[Path]string) (string, error) {
	var constLines, fieldLines []string

	for _, f := range m.Fields {
		line, err := representField(m.Path.Package, f, hashes)
		if err != nil {
			return "", err
		}
		if f.Case.Kind == Const {
			constLines = append(constLines, line)
		} else {
			fieldLines = append(fieldLines, line)
		}
	}

	all := append(constLines, fieldLines...)
	return strings.Join(all, "\n"), nil
}

func representField(ownPackage string, f Field, hashes map[Path]string) (string, error) {
	if f.Case.Kind == Const {
		// consts are always builtin-typed in this grammar
		return f.Type.TypeSpelling() + " " + f.Name + "=" + f.Case.Literal, nil
	}

	if f.Type.IsBuiltin() {
		switch f.Case.Kind {
		case Unit:
			return f.Type.TypeSpelling() + " " + f.Name, nil
		case Vector:
			return f.Type.TypeSpelling() + "[] " + f.Name, nil
		case Array:
			return f.Type.TypeSpelling() + "[" + strconv.Itoa(f.Case.ArrayN) + "] " + f.Name, nil
		}
	}

	dep := resolvedDep(ownPackage, f.Type)
	hash, ok := hashes[dep]
	if !ok {
		return "", &rerr.DependencyMissing{Package: dep.Package, Name: dep.Name}
	}
	return hash + " " + f.Name, nil
}

// Hash computes the MD5 hex digest of m's representation.
func Hash(m Msg, hashes map[Path]string) (string, error) {
	repr, err := Representation(m, hashes)
	if err != nil {
		return "", err
	}
	return hashHex(repr), nil
}

func hashHex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ServiceHash computes the MD5 of concat(request_representation,
// response_representation), per spec.md §3.
func ServiceHash(req, resp Msg, hashes map[Path]string) (string, error) {
	rr, err := Representation(req, hashes)
	if err != nil {
		return "", err
	}
	rs, err := Representation(resp, hashes)
	if err != nil {
		return "", err
	}
	return hashHex(rr + rs), nil
}

// HashAll computes MD5 hashes for every message in msgs by repeated
// passes over the not-yet-hashed set until a fixpoint is reached, per
// spec.md §4.1. Since the schema forbids cycles between messages,
// failure to fully resolve on a pass where nothing new was hashed
// means some dependency is missing from msgs.
func HashAll(msgs map[Path]Msg) (map[Path]string, error) {
	hashes := make(map[Path]string, len(msgs))
	remaining := make(map[Path]Msg, len(msgs))
	for p, m := range msgs {
		remaining[p] = m
	}

	for len(remaining) > 0 {
		progressed := false

		for p, m := range remaining {
			h, err := Hash(m, hashes)
			if err != nil {
				continue // dependency not yet resolved this pass
			}
			hashes[p] = h
			delete(remaining, p)
			progressed = true
		}

		if !progressed {
			// fixpoint without full resolution: report one missing dep
			for _, m := range remaining {
				for _, dep := range m.Dependencies() {
					resolved := dep
					if _, ok := msgs[resolved]; !ok {
						return nil, &rerr.DependencyMissing{Package: resolved.Package, Name: resolved.Name}
					}
				}
			}
			return nil, &rerr.DependencyMissing{}
		}
	}

	return hashes, nil
}
