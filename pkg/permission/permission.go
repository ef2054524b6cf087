// Package permission implements the Permission algebra: an immutable
// (effect, service, action, resource-or-notResource, conditions) tuple
// with includes/union/intersection/subtract operations.
package permission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iamlens/iamlens/pkg/condition"
	"github.com/iamlens/iamlens/pkg/pattern"
)

// Effect is Allow or Deny.
type Effect string

const (
	Allow Effect = "Allow"
	Deny  Effect = "Deny"
)

// ErrMalformedPermission signals that a Permission was constructed with
// both or neither of resource/notResource set.
var ErrMalformedPermission = errors.New("malformed permission")

// ErrEffectMismatch signals an operation attempted across Permissions or
// PermissionSets of differing effect.
var ErrEffectMismatch = errors.New("effect mismatch")

// Permission is an immutable IAM grant or deny over a single
// (service, action) pair.
type Permission struct {
	effect      Effect
	service     string
	action      string
	resource    []pattern.Pattern
	notResource []pattern.Pattern
	conditions  condition.Conditions
}

// New constructs a Permission. Exactly one of resource/notResource must be
// non-empty, or ErrMalformedPermission is returned.
func New(effect Effect, service, action string, resource, notResource []pattern.Pattern, conditions condition.Conditions) (Permission, error) {
	hasResource := len(resource) > 0
	hasNotResource := len(notResource) > 0
	if hasResource == hasNotResource {
		return Permission{}, fmt.Errorf("%w: %s:%s must set exactly one of resource or notResource", ErrMalformedPermission, service, action)
	}

	p := Permission{
		effect:  effect,
		service: strings.ToLower(service),
		action:  action,
	}
	if hasResource {
		p.resource = pattern.Dedup(append([]pattern.Pattern(nil), resource...))
	} else {
		p.notResource = pattern.Dedup(append([]pattern.Pattern(nil), notResource...))
	}
	if len(conditions) > 0 {
		p.conditions = condition.Normalize(conditions)
	}
	return p, nil
}

func (p Permission) Effect() Effect                   { return p.effect }
func (p Permission) Service() string                  { return p.service }
func (p Permission) Action() string                   { return p.action }
func (p Permission) Conditions() condition.Conditions { return p.conditions }
func (p Permission) HasNotResource() bool             { return len(p.notResource) > 0 }

// Resources returns the positive-inclusion pattern list, or nil if this
// Permission is notResource-shaped.
func (p Permission) Resources() []pattern.Pattern {
	return append([]pattern.Pattern(nil), p.resource...)
}

// NotResources returns the exclusion pattern list, or nil if this
// Permission is resource-shaped.
func (p Permission) NotResources() []pattern.Pattern {
	return append([]pattern.Pattern(nil), p.notResource...)
}

func sameTriple(a, b Permission) bool {
	return a.effect == b.effect &&
		strings.EqualFold(a.service, b.service) &&
		strings.EqualFold(a.action, b.action)
}

// Includes reports whether every request this Permission's `other`
// authorizes is also authorized by p.
func (p Permission) Includes(other Permission) bool {
	if !sameTriple(p, other) {
		return false
	}
	if !condition.Includes(p.conditions, other.conditions) {
		return false
	}
	return resourcesInclude(p, other)
}

func resourcesInclude(a, b Permission) bool {
	switch {
	case !a.HasNotResource() && !b.HasNotResource():
		return everyPatternCoveredBySome(b.resource, a.resource)
	case a.HasNotResource() && b.HasNotResource():
		// a.notResource ⊆ b.notResource (approximated via coverage) means
		// a excludes no more than b, so a's allow set ⊇ b's.
		return everyPatternCoveredBySome(a.notResource, b.notResource)
	case !a.HasNotResource() && b.HasNotResource():
		// a allows a bounded set; b (notResource) allows an effectively
		// unbounded set unless a contains a literal "*".
		for _, r := range a.resource {
			if string(r) == "*" {
				return true
			}
		}
		return false
	default: // a.HasNotResource() && !b.HasNotResource()
		// a allows everything outside a.notResource; b's resources must
		// all fall outside every exclusion pattern of a.
		for _, r := range b.resource {
			for _, n := range a.notResource {
				if pattern.Covers(n, r) {
					return false
				}
			}
		}
		return true
	}
}

func everyPatternCoveredBySome(small, big []pattern.Pattern) bool {
	for _, s := range small {
		covered := false
		for _, b := range big {
			if pattern.Covers(b, s) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

func dedup(ps []pattern.Pattern) []pattern.Pattern {
	return pattern.Dedup(ps)
}

func listUnionPatterns(a, b []pattern.Pattern) []pattern.Pattern {
	return dedup(append(append([]pattern.Pattern(nil), a...), b...))
}

// listIntersectPatterns returns the exact (literal) intersection of two
// pattern lists, i.e. patterns present verbatim in both.
func listIntersectPatterns(a, b []pattern.Pattern) []pattern.Pattern {
	set := make(map[pattern.Pattern]struct{}, len(b))
	for _, p := range b {
		set[p] = struct{}{}
	}
	var out []pattern.Pattern
	for _, p := range a {
		if _, ok := set[p]; ok {
			out = append(out, p)
		}
	}
	return dedup(out)
}

// Union returns a sequence of 1 or 2 Permissions whose combined
// acceptance set equals the union of p and other.
func (p Permission) Union(other Permission) []Permission {
	if !sameTriple(p, other) {
		return []Permission{p, other}
	}
	if p.Includes(other) {
		return []Permission{p}
	}
	if other.Includes(p) {
		return []Permission{other}
	}

	mergedConds, ok := condition.UnionConditions(p.conditions, other.conditions)
	if !ok {
		return []Permission{p, other}
	}

	switch {
	case !p.HasNotResource() && !other.HasNotResource():
		resources := listUnionPatterns(p.resource, other.resource)
		merged, err := New(p.effect, p.service, p.action, resources, nil, mergedConds)
		if err != nil {
			return []Permission{p, other}
		}
		return []Permission{merged}
	case p.HasNotResource() && other.HasNotResource():
		notRes := listIntersectPatterns(p.notResource, other.notResource)
		if len(notRes) == 0 {
			return []Permission{p, other}
		}
		merged, err := New(p.effect, p.service, p.action, nil, notRes, mergedConds)
		if err != nil {
			return []Permission{p, other}
		}
		return []Permission{merged}
	default:
		return []Permission{p, other}
	}
}

// Intersection returns the single Permission representing p ∩ other, or
// false if the intersection is empty.
func (p Permission) Intersection(other Permission) (Permission, bool) {
	if !sameTriple(p, other) {
		return Permission{}, false
	}
	if p.Includes(other) {
		return other, true
	}
	if other.Includes(p) {
		return p, true
	}

	mergedConds, ok := condition.IntersectConditions(p.conditions, other.conditions)
	if !ok {
		return Permission{}, false
	}

	switch {
	case !p.HasNotResource() && !other.HasNotResource():
		res := resourceIntersectionFilter(p.resource, other.resource)
		if len(res) == 0 {
			return Permission{}, false
		}
		merged, err := New(p.effect, p.service, p.action, res, nil, mergedConds)
		if err != nil {
			return Permission{}, false
		}
		return merged, true
	case p.HasNotResource() && other.HasNotResource():
		union := listUnionPatterns(p.notResource, other.notResource)
		res := dropSubsumed(union)
		if len(res) == 0 {
			return Permission{}, false
		}
		merged, err := New(p.effect, p.service, p.action, nil, res, mergedConds)
		if err != nil {
			return Permission{}, false
		}
		return merged, true
	default:
		var resSide, notResSide []pattern.Pattern
		if p.HasNotResource() {
			notResSide, resSide = p.notResource, other.resource
		} else {
			notResSide, resSide = other.notResource, p.resource
		}
		var res []pattern.Pattern
		for _, r := range resSide {
			excluded := false
			for _, n := range notResSide {
				if pattern.Covers(n, r) {
					excluded = true
					break
				}
			}
			if !excluded {
				res = append(res, r)
			}
		}
		if len(res) == 0 {
			return Permission{}, false
		}
		merged, err := New(p.effect, p.service, p.action, dedup(res), nil, mergedConds)
		if err != nil {
			return Permission{}, false
		}
		return merged, true
	}
}

// resourceIntersectionFilter keeps patterns from either side that have a
// covering counterpart on the other side.
func resourceIntersectionFilter(a, b []pattern.Pattern) []pattern.Pattern {
	var out []pattern.Pattern
	for _, x := range a {
		for _, y := range b {
			if pattern.Covers(y, x) {
				out = append(out, x)
				break
			}
		}
	}
	for _, y := range b {
		for _, x := range a {
			if pattern.Covers(x, y) {
				out = append(out, y)
				break
			}
		}
	}
	return dedup(out)
}

// dropSubsumed removes any pattern covered by a different, broader
// pattern also present in ps.
func dropSubsumed(ps []pattern.Pattern) []pattern.Pattern {
	var out []pattern.Pattern
	for i, p := range ps {
		subsumed := false
		for j, q := range ps {
			if i == j {
				continue
			}
			if q != p && pattern.Covers(q, p) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			out = append(out, p)
		}
	}
	return dedup(out)
}
