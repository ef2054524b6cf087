// Package orgpolicy builds per-level Allow/Deny PermissionSets out of an
// account's Service Control Policy and Resource Control Policy hierarchy.
// The hierarchy itself is read from the storage-client snapshot (root OU
// first, account last); this package only folds each level's attached
// policies into permission algebra terms.
package orgpolicy

import (
	"strings"

	organizationstypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"

	"github.com/iamlens/iamlens/pkg/actioncatalog"
	"github.com/iamlens/iamlens/pkg/condition"
	"github.com/iamlens/iamlens/pkg/pattern"
	"github.com/iamlens/iamlens/pkg/permission"
	"github.com/iamlens/iamlens/pkg/permset"
	"github.com/iamlens/iamlens/pkg/policy"
	"github.com/iamlens/iamlens/pkg/policyload"
)

// Level is one tier of an SCP or RCP hierarchy (an OU or the account
// itself): the policies directly attached there.
type Level struct {
	TargetID string
	Policies []*policy.Policy
}

// Hierarchy is a root-first ordered sequence of Levels: index 0 is the
// organization root, the last entry is the target account.
type Hierarchy struct {
	Type   organizationstypes.PolicyType
	Levels []Level
}

// LevelSet is one hierarchy level's Allow/Deny PermissionSets, plus the
// subset of Deny permissions applicable to a specific principal.
type LevelSet struct {
	TargetID       string
	Allow          *permset.Set
	Deny           *permset.Set
	ApplicableDeny *permset.Set
}

// BuildLevels loads every level of h into Allow/Deny PermissionSets and
// filters each level's denies down to those applicable (PrincipalMatch or
// AccountMatch) against principalArn.
func BuildLevels(h Hierarchy, cat actioncatalog.Catalog, principalArn string) ([]LevelSet, error) {
	out := make([]LevelSet, 0, len(h.Levels))
	for _, lvl := range h.Levels {
		allow := permset.New(permission.Allow)
		deny := permset.New(permission.Deny)
		applicableDeny := permset.New(permission.Deny)

		for _, doc := range lvl.Policies {
			if doc == nil {
				continue
			}
			for _, stmt := range doc.Statement {
				var target *permset.Set
				switch {
				case strings.EqualFold(stmt.Effect, string(permission.Allow)):
					target = allow
				case strings.EqualFold(stmt.Effect, string(permission.Deny)):
					target = deny
				default:
					continue
				}
				if err := policyload.AddStatementToPermissionSet(stmt, cat, target); err != nil {
					return nil, err
				}

				if target == deny {
					applicability := appliesOrgPolicy(stmt, principalArn)
					if applicability == policyload.PrincipalMatch || applicability == policyload.AccountMatch {
						if err := policyload.AddStatementToPermissionSet(stmt, cat, applicableDeny); err != nil {
							return nil, err
						}
					}
				}
			}
		}

		out = append(out, LevelSet{
			TargetID:       lvl.TargetID,
			Allow:          allow,
			Deny:           deny,
			ApplicableDeny: applicableDeny,
		})
	}
	return out, nil
}

// IntersectAllowLevels intersects final against every level's Allow set in
// order: final = final ∩ levelAllow, repeated root-to-leaf.
func IntersectAllowLevels(final *permset.Set, levels []LevelSet) (*permset.Set, error) {
	cur := final
	for _, lvl := range levels {
		next, err := cur.Intersection(lvl.Allow)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// CollectApplicableDenies folds every level's applicable denies into acc.
func CollectApplicableDenies(acc *permset.Set, levels []LevelSet) error {
	for _, lvl := range levels {
		if err := acc.AddAll(lvl.ApplicableDeny); err != nil {
			return err
		}
	}
	return nil
}

// appliesOrgPolicy classifies an SCP/RCP statement's applicability against
// principalArn. A service control policy or resource control policy
// carries no Principal/NotPrincipal element at all — AWS applies it
// organization- or account-wide regardless — so unlike a resource policy's
// Applies, the absence of a Principal block here means applicable by
// default rather than NoMatch. The handful of statements that do carry a
// Principal block (cross-partition/condition-keyed RCPs) fall back to the
// same predicate a resource policy uses.
func appliesOrgPolicy(stmt policy.Statement, principalArn string) policyload.Applicability {
	if stmt.Principal != nil || stmt.NotPrincipal != nil {
		return policyload.Applies(stmt, principalArn)
	}

	if matchesPrincipalIdentifyingCondition(stmt, principalArn) {
		return policyload.PrincipalMatch
	}
	return policyload.AccountMatch
}

// principalIdentifyingKeys are the condition keys that pin a Principal-less
// org-policy statement to a specific principal or account rather than the
// whole organization.
var principalIdentifyingKeys = map[string]struct{}{
	"aws:principalarn":     {},
	"aws:principalaccount": {},
	"aws:sourceaccount":    {},
	"aws:principalorgid":   {},
}

// equalityOperators are the base comparison families whose values name a
// specific principal/account to confirm against, as opposed to a purely
// exclusionary (Not*) family whose absence of a match says nothing about
// applicability to this principal.
var equalityOperators = map[string]struct{}{
	"stringequals": {},
	"arnequals":    {},
	"arnlike":      {},
}

// matchesPrincipalIdentifyingCondition reports whether stmt's conditions
// positively name principalArn or its account under an equality-family
// operator. It never excludes on a negative (Not*) match — that would
// require re-deriving full condition semantics this coarse applicability
// filter isn't meant to replace; the actual condition is still carried
// into the resulting Permission and enforced by the condition algebra.
func matchesPrincipalIdentifyingCondition(stmt policy.Statement, principalArn string) bool {
	accountID := policyload.AccountOf(principalArn)

	for op, byKey := range stmt.Conditions() {
		if _, ok := equalityOperators[condition.ParseOperator(op).Base]; !ok {
			continue
		}
		for key, values := range byKey {
			if _, ok := principalIdentifyingKeys[key]; !ok {
				continue
			}
			if key == "aws:principalorgid" {
				// Org membership isn't resolvable from an ARN alone; treat
				// its presence as narrowing without a value to confirm.
				return true
			}
			candidate := principalArn
			if key == "aws:principalaccount" || key == "aws:sourceaccount" {
				candidate = accountID
			}
			for _, v := range values {
				if pattern.Matches(pattern.Pattern(v), candidate) {
					return true
				}
			}
		}
	}
	return false
}
