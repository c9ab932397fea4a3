package resolve

import "testing"

// TestRemapLongestPrefix is the §8 property test: after map("a","/d"),
// translate("/some/long/a") == "/d".
func TestRemapLongestPrefix(t *testing.T) {
	r := newResolverFor(t, "some/long/path")
	table := NewRemapTable()

	src, err := r.Resolve("a")
	if err != nil {
		t.Fatalf("Resolve(a): %v", err)
	}
	dst, err := r.Resolve("/d")
	if err != nil {
		t.Fatalf("Resolve(/d): %v", err)
	}
	table.Add(src, dst)

	got, err := Translate(r, table, "/some/long/a")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got.String() != "/d" {
		t.Fatalf("Translate(/some/long/a) = %q, want /d", got.String())
	}
}

func TestRemapNoMatchReturnsResolved(t *testing.T) {
	r := newResolverFor(t, "ns/node")
	table := NewRemapTable()

	got, err := Translate(r, table, "untouched")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got.String() != "/ns/untouched" {
		t.Fatalf("Translate(untouched) = %q, want /ns/untouched", got.String())
	}
}

func TestRemapLongestPrefixWins(t *testing.T) {
	r := newResolverFor(t, "ns/node")
	table := NewRemapTable()

	ab, _ := r.Resolve("/a/b")
	abReplacement, _ := r.Resolve("/short")
	table.Add(ab, abReplacement)

	abc, _ := r.Resolve("/a/b/c")
	abcReplacement, _ := r.Resolve("/long")
	table.Add(abc, abcReplacement)

	got, err := Translate(r, table, "/a/b/c/d")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	// /a/b/c/d's longest matching prefix is /a/b/c, not /a/b.
	if got.String() != "/long" {
		t.Fatalf("Translate(/a/b/c/d) = %q, want /long", got.String())
	}
}

func TestRemapExactMatch(t *testing.T) {
	r := newResolverFor(t, "ns/node")
	table := NewRemapTable()

	src, _ := r.Resolve("/exact")
	dst, _ := r.Resolve("/replaced")
	table.Add(src, dst)

	got, err := Translate(r, table, "/exact")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got.String() != "/replaced" {
		t.Fatalf("Translate(/exact) = %q, want /replaced", got.String())
	}

	// a sibling name under the same prefix but not itself remapped
	// should resolve without substitution.
	got2, err := Translate(r, table, "/exactly_not")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got2.String() != "/exactly_not" {
		t.Fatalf("Translate(/exactly_not) = %q, want /exactly_not", got2.String())
	}
}
