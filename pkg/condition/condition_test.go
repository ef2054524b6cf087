package condition

import "testing"

func TestInvertConditions_S6(t *testing.T) {
	in := Conditions{
		"ForAllValues:StringEquals": {
			"aws:TagKeys": {"a", "b"},
		},
	}

	got := InvertConditions(in)

	want := Conditions{
		"foranyvalue:stringnotequals": {
			"aws:tagkeys": {"a", "b"},
		},
	}

	if !Equal(got, want) {
		t.Fatalf("InvertConditions(%v) = %v, want %v", in, got, want)
	}
}

// Property 7: invertConditions(invertConditions(c)) == c modulo normalization.
func TestInvertConditions_Involution(t *testing.T) {
	cases := []Conditions{
		{"StringEquals": {"aws:username": {"alice"}}},
		{"ForAnyValue:StringNotLike": {"aws:TagKeys": {"prod-*"}}},
		{"NumericLessThanEquals": {"s3:max-keys": {"100"}}},
		{"DateGreaterThan": {"aws:CurrentTime": {"2024-01-01T00:00:00Z"}}},
		{"Bool": {"aws:MultiFactorAuthPresent": {"true"}}},
		{"IpAddress": {"aws:SourceIp": {"10.0.0.0/8", "192.168.0.0/16"}}},
		{"StringEqualsIfExists": {"aws:PrincipalTag/team": {"infra"}}},
	}

	for _, c := range cases {
		twice := InvertConditions(InvertConditions(c))
		if !Equal(twice, c) {
			t.Errorf("invert(invert(%v)) = %v, want %v", c, twice, c)
		}
	}
}

// Property 8: rewriting operator/key casing yields equal results under
// normalized comparison.
func TestCaseInsensitivity(t *testing.T) {
	lower := Conditions{"stringequals": {"aws:username": {"alice"}}}
	mixed := Conditions{"StringEquals": {"AWS:UserName": {"alice"}}}

	if !Equal(lower, mixed) {
		t.Fatalf("Equal should ignore operator/key casing: %v vs %v", lower, mixed)
	}

	if !Equal(InvertConditions(lower), InvertConditions(mixed)) {
		t.Fatalf("InvertConditions should be casing-stable")
	}
}

// The negated value is already excluded by the reduced positive list, so
// the now-redundant negative operator drops out of the result entirely
// (matching S4's single-operator output) rather than surviving alongside
// the reduced positive side.
func TestIntersectConditions_ComplementaryPairReduction(t *testing.T) {
	a := Conditions{"StringEquals": {"aws:username": {"alice", "bob", "carol"}}}
	b := Conditions{"StringNotEquals": {"aws:username": {"bob"}}}

	got, ok := IntersectConditions(a, b)
	if !ok {
		t.Fatalf("expected a non-empty intersection")
	}

	want := Conditions{
		"stringequals": {"aws:username": {"alice", "carol"}},
	}
	if !Equal(got, want) {
		t.Fatalf("IntersectConditions = %v, want %v", got, want)
	}
}

// When the negative side names a key the positive side doesn't constrain,
// that negative constraint is independent and must survive the reduction.
func TestIntersectConditions_ComplementaryPairReduction_IndependentKeySurvives(t *testing.T) {
	a := Conditions{"StringEquals": {"aws:username": {"alice", "bob"}}}
	b := Conditions{"StringNotEquals": {"aws:accountid": {"999"}}}

	got, ok := IntersectConditions(a, b)
	if !ok {
		t.Fatalf("expected a non-empty intersection")
	}

	want := Conditions{
		"stringequals":    {"aws:username": {"alice", "bob"}},
		"stringnotequals": {"aws:accountid": {"999"}},
	}
	if !Equal(got, want) {
		t.Fatalf("IntersectConditions = %v, want %v", got, want)
	}
}

func TestIntersectConditions_EmptyIntersection(t *testing.T) {
	a := Conditions{"StringEquals": {"aws:username": {"alice"}}}
	b := Conditions{"StringNotEquals": {"aws:username": {"alice"}}}

	if _, ok := IntersectConditions(a, b); ok {
		t.Fatalf("expected EmptyIntersection when the only allowed value is excluded")
	}
}

func TestIntersectConditions_NumericBounds(t *testing.T) {
	a := Conditions{"NumericLessThan": {"s3:max-keys": {"100"}}}
	b := Conditions{"NumericLessThan": {"s3:max-keys": {"50"}}}

	got, ok := IntersectConditions(a, b)
	if !ok {
		t.Fatalf("expected a result")
	}
	want := Conditions{"numericlessthan": {"s3:max-keys": {"50"}}}
	if !Equal(got, want) {
		t.Fatalf("IntersectConditions = %v, want %v (tighter bound should win)", got, want)
	}
}

func TestIntersectConditions_ProvablyEmptyBoundPair(t *testing.T) {
	a := Conditions{"NumericLessThan": {"s3:max-keys": {"10"}}}
	b := Conditions{"NumericGreaterThanEquals": {"s3:max-keys": {"20"}}}

	if _, ok := IntersectConditions(a, b); ok {
		t.Fatalf("expected EmptyIntersection: no x satisfies x<10 and x>=20")
	}
}

func TestUnionConditions_RequiresMatchingShape(t *testing.T) {
	a := Conditions{"StringEquals": {"aws:username": {"alice"}}}
	b := Conditions{"StringEquals": {"aws:username": {"bob"}}, "Bool": {"aws:MultiFactorAuthPresent": {"true"}}}

	if _, ok := UnionConditions(a, b); ok {
		t.Fatalf("expected UnionConditions to refuse mismatched operator sets")
	}

	got, ok := UnionConditions(a, Conditions{"StringEquals": {"aws:username": {"bob"}}})
	if !ok {
		t.Fatalf("expected a mergeable union")
	}
	want := Conditions{"stringequals": {"aws:username": {"alice", "bob"}}}
	if !Equal(got, want) {
		t.Fatalf("UnionConditions = %v, want %v", got, want)
	}
}
