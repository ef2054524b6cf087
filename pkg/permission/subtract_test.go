package permission

import (
	"testing"

	"github.com/iamlens/iamlens/pkg/condition"
)

// S3: subtracting a Deny over one concrete resource from an Allow over two
// leaves a single Allow over the untouched resource.
func TestSubtract_S3(t *testing.T) {
	a := mustNew(t, Allow, "s3", "GetObject", resources("arn:aws:s3:::b/f1", "arn:aws:s3:::b/f2"), nil, nil)
	d := mustNew(t, Deny, "s3", "GetObject", resources("arn:aws:s3:::b/f2"), nil, nil)

	got := a.Subtract(d)
	if len(got) != 1 {
		t.Fatalf("expected 1 surviving Permission, got %d: %+v", len(got), got)
	}
	if len(got[0].Resources()) != 1 || got[0].Resources()[0] != "arn:aws:s3:::b/f1" {
		t.Fatalf("Subtract = %v, want [arn:aws:s3:::b/f1]", got[0].Resources())
	}
}

// S4: a Deny with a narrower condition carves its excluded values out of
// the Allow's condition list rather than removing the whole resource.
func TestSubtract_S4(t *testing.T) {
	a := mustNew(t, Allow, "ec2", "StartInstances", resources("*"), nil,
		condition.Conditions{"StringEquals": {"aws:PrincipalOrgId": {"o-123", "o-456"}}})
	d := mustNew(t, Deny, "ec2", "StartInstances", resources("*"), nil,
		condition.Conditions{"StringEquals": {"aws:PrincipalOrgId": {"o-123"}}})

	got := a.Subtract(d)
	if len(got) != 1 {
		t.Fatalf("expected 1 surviving Permission, got %d: %+v", len(got), got)
	}
	want := condition.Conditions{"stringequals": {"aws:principalorgid": {"o-456"}}}
	if !condition.Equal(got[0].Conditions(), want) {
		t.Fatalf("Subtract conditions = %v, want %v", got[0].Conditions(), want)
	}
	if len(got[0].Resources()) != 1 || got[0].Resources()[0] != "*" {
		t.Fatalf("Subtract resources = %v, want [*]", got[0].Resources())
	}
}

func TestSubtract_DifferentActionIsNoOp(t *testing.T) {
	a := mustNew(t, Allow, "s3", "GetObject", resources("*"), nil, nil)
	d := mustNew(t, Deny, "s3", "PutObject", resources("*"), nil, nil)
	got := a.Subtract(d)
	if len(got) != 1 || !got[0].Includes(a) || !a.Includes(got[0]) {
		t.Fatalf("expected subtract to be a no-op across differing actions")
	}
}

// Scenario B: Allow.resource vs Deny.notResource, fully excluded.
func TestSubtract_ScenarioB_FullyExcluded(t *testing.T) {
	a := mustNew(t, Allow, "s3", "GetObject", resources("arn:aws:s3:::quarantine/*"), nil, nil)
	d := mustNew(t, Deny, "s3", "GetObject", nil, resources("arn:aws:s3:::quarantine/*"), nil)

	got := a.Subtract(d)
	if len(got) != 1 || got[0].Resources()[0] != "arn:aws:s3:::quarantine/*" {
		t.Fatalf("expected the allow to survive untouched, got %+v", got)
	}
}

// Scenario B: affected allow pattern dropped by an unconditional deny.
func TestSubtract_ScenarioB_AffectedDropped(t *testing.T) {
	a := mustNew(t, Allow, "s3", "GetObject", resources("arn:aws:s3:::other/*"), nil, nil)
	d := mustNew(t, Deny, "s3", "GetObject", nil, resources("arn:aws:s3:::quarantine/*"), nil)

	got := a.Subtract(d)
	if len(got) != 0 {
		t.Fatalf("expected the affected allow to vanish, got %+v", got)
	}
}

// Scenario D: surviving notResource patterns become a plain resource Allow.
func TestSubtract_ScenarioD_Surviving(t *testing.T) {
	a := mustNew(t, Allow, "s3", "GetObject", nil, resources("arn:aws:s3:::b/secret/*"), nil)
	d := mustNew(t, Deny, "s3", "GetObject", nil, resources("arn:aws:s3:::b/secret/*", "arn:aws:s3:::b/other/*"), nil)

	got := a.Subtract(d)
	if len(got) != 1 {
		t.Fatalf("expected 1 surviving Permission, got %d: %+v", len(got), got)
	}
	if got[0].HasNotResource() {
		t.Fatalf("expected a plain resource Allow, got notResource-shaped")
	}
	if len(got[0].Resources()) != 1 || got[0].Resources()[0] != "arn:aws:s3:::b/other/*" {
		t.Fatalf("Subtract resources = %v, want [arn:aws:s3:::b/other/*]", got[0].Resources())
	}
}

func TestSubtract_ScenarioD_NothingSurvives(t *testing.T) {
	a := mustNew(t, Allow, "s3", "GetObject", nil, resources("arn:aws:s3:::*"), nil)
	d := mustNew(t, Deny, "s3", "GetObject", nil, resources("arn:aws:s3:::b/secret/*"), nil)

	got := a.Subtract(d)
	if len(got) != 0 {
		t.Fatalf("expected nothing to survive, got %+v", got)
	}
}
