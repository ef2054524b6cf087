package permission

import (
	"strings"

	"github.com/iamlens/iamlens/pkg/condition"
	"github.com/iamlens/iamlens/pkg/pattern"
)

// Subtract returns allow minus the region covered by deny, per the four
// resource-pairing scenarios below. Applies only when allow.effect =
// Allow and deny.effect = Deny with matching
// (service, action); otherwise returns [allow] unchanged.
func (allow Permission) Subtract(deny Permission) []Permission {
	if allow.effect != Allow || deny.effect != Deny {
		return []Permission{allow}
	}
	if !strings.EqualFold(allow.service, deny.service) || !strings.EqualFold(allow.action, deny.action) {
		return []Permission{allow}
	}

	switch {
	case !allow.HasNotResource() && !deny.HasNotResource():
		return subtractScenarioA(allow, deny)
	case !allow.HasNotResource() && deny.HasNotResource():
		return subtractScenarioB(allow, deny)
	case allow.HasNotResource() && !deny.HasNotResource():
		return subtractScenarioC(allow, deny)
	default:
		return subtractScenarioD(allow, deny)
	}
}

// vanishes reports whether the deny's conditions fully subsume the
// allow's, so that any overlapping resource region must vanish entirely
// rather than surviving with inverted conditions.
func vanishes(allow, deny Permission) bool {
	return condition.IsEmpty(deny.conditions) || condition.Equal(allow.conditions, deny.conditions)
}

// applyDenyConditionsToAllow implements the §4.3 helper of the same name:
// each (operator, key) clause of denyConds is treated as an AND clause;
// inverting each clause and intersecting with allowConds yields
// independent surviving Allows.
func applyDenyConditionsToAllow(service, action string, resource, notResource []pattern.Pattern, allowConds, denyConds condition.Conditions) []Permission {
	build := func(conds condition.Conditions) (Permission, error) {
		return New(Allow, service, action, resource, notResource, conds)
	}

	if condition.IsEmpty(denyConds) {
		p, err := build(allowConds)
		if err != nil {
			return nil
		}
		return []Permission{p}
	}

	var out []Permission
	for op, stmt := range denyConds {
		for key, vals := range stmt {
			clause := condition.Conditions{op: {key: append([]string(nil), vals...)}}
			inverted := condition.InvertConditions(clause)
			merged, ok := condition.IntersectConditions(allowConds, inverted)
			if !ok {
				continue
			}
			p, err := build(merged)
			if err != nil {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

func subtractScenarioA(allow, deny Permission) []Permission {
	var matches, subsets, supersets, noOverlaps, subsetDenyPatterns []pattern.Pattern

	for _, a := range allow.resource {
		isMatch := false
		for _, d := range deny.resource {
			if pattern.Equal(a, d) {
				isMatch = true
				break
			}
		}
		if isMatch {
			matches = append(matches, a)
			continue
		}

		isSubset := false
		for _, d := range deny.resource {
			if pattern.Covers(d, a) {
				isSubset = true
				subsetDenyPatterns = append(subsetDenyPatterns, d)
			}
		}
		if isSubset {
			subsets = append(subsets, a)
			continue
		}

		isSuperset := false
		for _, d := range deny.resource {
			if pattern.Covers(a, d) {
				isSuperset = true
				break
			}
		}
		if isSuperset {
			supersets = append(supersets, a)
			continue
		}

		noOverlaps = append(noOverlaps, a)
	}

	var out []Permission
	if len(noOverlaps) > 0 {
		p, err := New(Allow, allow.service, allow.action, noOverlaps, nil, allow.conditions)
		if err == nil {
			out = append(out, p)
		}
	}
	if len(supersets) > 0 {
		p, err := New(Allow, allow.service, allow.action, supersets, nil, allow.conditions)
		if err == nil {
			out = append(out, p)
		}
	}

	matchesAndSubsets := dedup(append(append([]pattern.Pattern{}, matches...), subsets...))
	if len(matchesAndSubsets) > 0 && !vanishes(allow, deny) {
		out = append(out, applyDenyConditionsToAllow(allow.service, allow.action, matchesAndSubsets, nil, allow.conditions, deny.conditions)...)
	}

	if len(subsetDenyPatterns) > 0 {
		dp, err := New(Deny, allow.service, allow.action, dedup(subsetDenyPatterns), nil, deny.conditions)
		if err == nil {
			out = append(out, dp)
		}
	}

	return out
}

func subtractScenarioB(allow, deny Permission) []Permission {
	var excluded, supersets, affected, coveredNotResource []pattern.Pattern

	for _, a := range allow.resource {
		isExcluded := false
		for _, n := range deny.notResource {
			if pattern.Covers(n, a) {
				isExcluded = true
				break
			}
		}
		if isExcluded {
			excluded = append(excluded, a)
			continue
		}

		var coveredHere []pattern.Pattern
		for _, n := range deny.notResource {
			if pattern.Covers(a, n) {
				coveredHere = append(coveredHere, n)
			}
		}
		if len(coveredHere) > 0 {
			supersets = append(supersets, a)
			coveredNotResource = append(coveredNotResource, coveredHere...)
			continue
		}

		affected = append(affected, a)
	}

	if len(supersets) == 0 && len(affected) == 0 {
		return []Permission{allow}
	}

	vanish := vanishes(allow, deny)
	var out []Permission

	if len(excluded) > 0 {
		p, err := New(Allow, allow.service, allow.action, excluded, nil, allow.conditions)
		if err == nil {
			out = append(out, p)
		}
	}

	if len(supersets) > 0 {
		if len(coveredNotResource) > 0 {
			p, err := New(Allow, allow.service, allow.action, dedup(coveredNotResource), nil, nil)
			if err == nil {
				out = append(out, p)
			}
		}
		if !vanish {
			out = append(out, applyDenyConditionsToAllow(allow.service, allow.action, supersets, nil, allow.conditions, deny.conditions)...)
		}
	}

	if len(affected) > 0 && !vanish {
		out = append(out, applyDenyConditionsToAllow(allow.service, allow.action, affected, nil, allow.conditions, deny.conditions)...)
	}

	return out
}

func subtractScenarioC(allow, deny Permission) []Permission {
	var coveredDeny, subsetDeny, noOverlapDeny []pattern.Pattern
	replaced := make(map[pattern.Pattern]bool)

	for _, d := range deny.resource {
		isCovered := false
		for _, n := range allow.notResource {
			if pattern.Covers(n, d) {
				isCovered = true
				break
			}
		}
		if isCovered {
			coveredDeny = append(coveredDeny, d)
			continue
		}

		isSubset := false
		for _, n := range allow.notResource {
			if pattern.Covers(d, n) {
				isSubset = true
				replaced[n] = true
			}
		}
		if isSubset {
			subsetDeny = append(subsetDeny, d)
			continue
		}

		noOverlapDeny = append(noOverlapDeny, d)
	}

	if len(subsetDeny) == 0 && len(noOverlapDeny) == 0 {
		return []Permission{allow}
	}

	var remainingOriginal []pattern.Pattern
	for _, n := range allow.notResource {
		if !replaced[n] {
			remainingOriginal = append(remainingOriginal, n)
		}
	}

	if vanishes(allow, deny) {
		expanded := dedup(append(append(append([]pattern.Pattern{}, remainingOriginal...), subsetDeny...), noOverlapDeny...))
		p, err := New(Allow, allow.service, allow.action, nil, expanded, allow.conditions)
		if err != nil {
			return nil
		}
		return []Permission{p}
	}

	var out []Permission
	out = append(out, applyDenyConditionsToAllow(allow.service, allow.action, nil, allow.notResource, allow.conditions, deny.conditions)...)

	if len(subsetDeny) > 0 {
		merged, ok := condition.IntersectConditions(allow.conditions, deny.conditions)
		if ok {
			p, err := New(Allow, allow.service, allow.action, nil, dedup(subsetDeny), merged)
			if err == nil {
				out = append(out, p)
			}
		}
	}

	if len(noOverlapDeny) > 0 {
		p, err := New(Allow, allow.service, allow.action, nil, dedup(noOverlapDeny), allow.conditions)
		if err == nil {
			out = append(out, p)
		}
	}

	return out
}

func subtractScenarioD(allow, deny Permission) []Permission {
	var surviving []pattern.Pattern
	for _, d := range deny.notResource {
		covered := false
		for _, n := range allow.notResource {
			if pattern.Covers(n, d) {
				covered = true
				break
			}
		}
		if !covered {
			surviving = append(surviving, d)
		}
	}

	if len(surviving) == 0 {
		return nil
	}

	if vanishes(allow, deny) {
		p, err := New(Allow, allow.service, allow.action, dedup(surviving), nil, nil)
		if err != nil {
			return nil
		}
		return []Permission{p}
	}

	var out []Permission
	out = append(out, applyDenyConditionsToAllow(allow.service, allow.action, nil, allow.notResource, allow.conditions, deny.conditions)...)

	var survivingConds condition.Conditions
	if countOpKeyPairs(deny.conditions) == 1 {
		survivingConds = deny.conditions
	}
	p, err := New(Allow, allow.service, allow.action, dedup(surviving), nil, survivingConds)
	if err == nil {
		out = append(out, p)
	}

	return out
}

func countOpKeyPairs(c condition.Conditions) int {
	n := 0
	for _, stmt := range c {
		n += len(stmt)
	}
	return n
}
