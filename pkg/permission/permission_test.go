package permission

import (
	"testing"

	"github.com/iamlens/iamlens/pkg/condition"
	"github.com/iamlens/iamlens/pkg/pattern"
)

func mustNew(t *testing.T, effect Effect, service, action string, resource, notResource []pattern.Pattern, conds condition.Conditions) Permission {
	t.Helper()
	p, err := New(effect, service, action, resource, notResource, conds)
	if err != nil {
		t.Fatalf("New(%s,%s,%s) failed: %v", effect, service, action, err)
	}
	return p
}

func resources(ss ...string) []pattern.Pattern {
	out := make([]pattern.Pattern, len(ss))
	for i, s := range ss {
		out[i] = pattern.Pattern(s)
	}
	return out
}

func TestNew_MalformedPermission(t *testing.T) {
	if _, err := New(Allow, "s3", "GetObject", nil, nil, nil); err == nil {
		t.Fatalf("expected ErrMalformedPermission when neither resource nor notResource is set")
	}
	if _, err := New(Allow, "s3", "GetObject", resources("*"), resources("*"), nil); err == nil {
		t.Fatalf("expected ErrMalformedPermission when both are set")
	}
}

// S1: a wildcard resource permission includes a concrete one; not vice versa.
func TestIncludes_S1(t *testing.T) {
	wide := mustNew(t, Allow, "s3", "GetObject", resources("*"), nil, nil)
	narrow := mustNew(t, Allow, "s3", "GetObject", resources("arn:aws:s3:::mybucket/file"), nil, nil)

	if !wide.Includes(narrow) {
		t.Errorf("expected wide.Includes(narrow) = true")
	}
	if narrow.Includes(wide) {
		t.Errorf("expected narrow.Includes(wide) = false")
	}
}

// Property 1: reflexivity.
func TestIncludes_Reflexivity(t *testing.T) {
	p := mustNew(t, Allow, "s3", "GetObject", resources("arn:aws:s3:::b/f1"), nil, nil)
	if !p.Includes(p) {
		t.Errorf("expected P.includes(P) = true")
	}
}

// S2: union of two overlapping resource lists concatenates and dedupes.
func TestUnion_S2(t *testing.T) {
	p1 := mustNew(t, Allow, "s3", "GetObject", resources("arn:aws:s3:::b/f1", "arn:aws:s3:::b/f2"), nil, nil)
	p2 := mustNew(t, Allow, "s3", "GetObject", resources("arn:aws:s3:::b/f2", "arn:aws:s3:::b/f3"), nil, nil)

	got := p1.Union(p2)
	if len(got) != 1 {
		t.Fatalf("expected a single merged Permission, got %d", len(got))
	}
	want := resources("arn:aws:s3:::b/f1", "arn:aws:s3:::b/f2", "arn:aws:s3:::b/f3")
	gotRes := got[0].Resources()
	if len(gotRes) != len(want) {
		t.Fatalf("Resources() = %v, want %v", gotRes, want)
	}
	for i := range want {
		if gotRes[i] != want[i] {
			t.Errorf("Resources()[%d] = %q, want %q", i, gotRes[i], want[i])
		}
	}
}

// Property 2: anti-symmetry at the inclusion level.
func TestUnion_AntiSymmetry(t *testing.T) {
	p := mustNew(t, Allow, "s3", "GetObject", resources("arn:aws:s3:::b/*"), nil, nil)
	q := mustNew(t, Allow, "s3", "GetObject", resources("arn:aws:s3:::b/*"), nil, nil)

	if !p.Includes(q) || !q.Includes(p) {
		t.Fatalf("expected p and q to mutually include each other")
	}
	got := p.Union(q)
	if len(got) != 1 {
		t.Fatalf("expected union to collapse to a singleton, got %d", len(got))
	}
}

// Property 3: intersection identity.
func TestIntersection_Identity(t *testing.T) {
	p := mustNew(t, Allow, "s3", "GetObject", resources("*"), nil, nil)
	q := mustNew(t, Allow, "s3", "GetObject", resources("arn:aws:s3:::b/f1"), nil, nil)

	if !p.Includes(q) {
		t.Fatalf("expected p.Includes(q)")
	}
	got, ok := p.Intersection(q)
	if !ok {
		t.Fatalf("expected a non-empty intersection")
	}
	if len(got.Resources()) != 1 || got.Resources()[0] != "arn:aws:s3:::b/f1" {
		t.Fatalf("Intersection = %v, want q", got.Resources())
	}
}

// Property 4: union idempotence.
func TestUnion_Idempotence(t *testing.T) {
	p := mustNew(t, Allow, "s3", "GetObject", resources("arn:aws:s3:::b/f1"), nil, nil)
	got := p.Union(p)
	if len(got) != 1 {
		t.Fatalf("expected P.union(P) to collapse to one Permission, got %d", len(got))
	}
	if !got[0].Includes(p) || !p.Includes(got[0]) {
		t.Fatalf("P.union(P) must have the same acceptance as P")
	}
}

func TestIntersection_NonMatchingTripleIsEmpty(t *testing.T) {
	p := mustNew(t, Allow, "s3", "GetObject", resources("*"), nil, nil)
	q := mustNew(t, Allow, "s3", "PutObject", resources("*"), nil, nil)
	if _, ok := p.Intersection(q); ok {
		t.Fatalf("expected no intersection across differing actions")
	}
}

func TestIntersection_MixedResourceNotResource(t *testing.T) {
	p := mustNew(t, Allow, "s3", "GetObject", resources("arn:aws:s3:::b/f1", "arn:aws:s3:::b/f2"), nil, nil)
	q := mustNew(t, Allow, "s3", "GetObject", nil, resources("arn:aws:s3:::b/f1"), nil)

	got, ok := p.Intersection(q)
	if !ok {
		t.Fatalf("expected a non-empty intersection")
	}
	want := resources("arn:aws:s3:::b/f2")
	if len(got.Resources()) != len(want) || got.Resources()[0] != want[0] {
		t.Fatalf("Intersection = %v, want %v", got.Resources(), want)
	}
}
