// Package policyload materializes a parsed policy document into a
// PermissionSet: wildcard-action expansion, NotAction complementing, and
// statement-to-Permission conversion.
package policyload

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"

	"github.com/iamlens/iamlens/pkg/actioncatalog"
	"github.com/iamlens/iamlens/pkg/pattern"
	"github.com/iamlens/iamlens/pkg/permission"
	"github.com/iamlens/iamlens/pkg/permset"
	"github.com/iamlens/iamlens/pkg/policy"
)

// LoadPolicy expands every statement in p matching effect into cat's action
// catalog and folds the resulting Permissions into set.
func LoadPolicy(p *policy.Policy, effect permission.Effect, cat actioncatalog.Catalog, set *permset.Set) error {
	if p == nil {
		return nil
	}
	for _, stmt := range p.Statement {
		if !strings.EqualFold(stmt.Effect, string(effect)) {
			continue
		}
		if err := AddStatementToPermissionSet(stmt, cat, set); err != nil {
			return err
		}
	}
	return nil
}

// AddStatementToPermissionSet expands one already-loaded statement and adds
// the resulting Permissions to set, regardless of the statement's own
// Effect field (the caller decides which target set to feed); set's own
// Effect is used to construct the Permissions.
func AddStatementToPermissionSet(stmt policy.Statement, cat actioncatalog.Catalog, set *permset.Set) error {
	pairs, err := expandActions(stmt, cat)
	if err != nil {
		return err
	}
	resources, notResources := resourcePatterns(stmt)
	conds := stmt.Conditions()

	byService := make(map[string][]string)
	for _, pair := range pairs {
		svc, action, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		byService[svc] = append(byService[svc], action)
	}

	for svc, actions := range byService {
		for _, action := range actions {
			perm, err := permission.New(set.Effect(), svc, action, resources, notResources, conds)
			if err != nil {
				return fmt.Errorf("build permission for %s:%s: %w", svc, action, err)
			}
			if err := set.AddPermission(perm); err != nil {
				return err
			}
		}
	}
	return nil
}

// expandActions resolves a statement's Action or NotAction list against cat
// into concrete "service:action" pairs.
func expandActions(stmt policy.Statement, cat actioncatalog.Catalog) ([]string, error) {
	switch {
	case stmt.NotAction != nil:
		excluded := []string(*stmt.NotAction)
		service := commonService(excluded)
		return actioncatalog.Complement(cat, service, excluded), nil
	case stmt.Action != nil:
		var out []string
		for _, a := range *stmt.Action {
			out = append(out, actioncatalog.Expand(cat, a)...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("statement has neither Action nor NotAction")
	}
}

// commonService returns the single service prefix shared by every pattern
// in patterns, or "*" if they span services or a bare "*" is present.
func commonService(patterns []string) string {
	svc := ""
	for _, p := range patterns {
		s, _, ok := strings.Cut(p, ":")
		if !ok || s == "*" {
			return "*"
		}
		if svc == "" {
			svc = s
		} else if svc != s {
			return "*"
		}
	}
	if svc == "" {
		return "*"
	}
	return svc
}

func resourcePatterns(stmt policy.Statement) (resource, notResource []pattern.Pattern) {
	switch {
	case stmt.NotResource != nil:
		for _, r := range *stmt.NotResource {
			notResource = append(notResource, pattern.Pattern(r))
		}
	case stmt.Resource != nil:
		for _, r := range *stmt.Resource {
			resource = append(resource, pattern.Pattern(r))
		}
	default:
		resource = []pattern.Pattern{"*"}
	}
	return resource, notResource
}

// Applicability classifies how a statement's Principal/NotPrincipal block
// relates to a target principal.
type Applicability int

const (
	NoMatch Applicability = iota
	AccountMatch
	PrincipalMatch
)

// Applies classifies stmt's applicability against principalArn: a "*" AWS
// Principal carrying an account- or principal-identifying condition key
// (aws:PrincipalAccount, aws:SourceAccount, aws:PrincipalOrgID,
// aws:PrincipalArn) is AccountMatch, whatever the condition's values; a
// direct name/role/account-root match (including an unconditioned "*"),
// or a NotPrincipal block that does not name the principal, is
// PrincipalMatch; anything else is NoMatch.
func Applies(stmt policy.Statement, principalArn string) Applicability {
	principal := stmt.Principal
	notPrincipal := stmt.NotPrincipal

	if principal == nil && notPrincipal == nil {
		return NoMatch
	}

	if notPrincipal != nil {
		if matchesPrincipal(notPrincipal, principalArn) {
			return NoMatch
		}
		return PrincipalMatch
	}

	if isWildcardOnly(principal) && hasAccountIdentifyingCondition(stmt) {
		return AccountMatch
	}

	if matchesPrincipal(principal, principalArn) {
		return PrincipalMatch
	}

	return NoMatch
}

func isWildcardOnly(p *policy.Principal) bool {
	if p == nil || p.AWS == nil {
		return false
	}
	for _, a := range *p.AWS {
		if a == "*" {
			return true
		}
	}
	return false
}

var accountIdentifyingKeys = map[string]struct{}{
	"aws:principalaccount": {},
	"aws:sourceaccount":    {},
	"aws:principalorgid":   {},
	"aws:principalarn":     {},
}

func hasAccountIdentifyingCondition(stmt policy.Statement) bool {
	conds := stmt.Conditions()
	for _, stmtByKey := range conds {
		for key := range stmtByKey {
			if _, ok := accountIdentifyingKeys[key]; ok {
				return true
			}
		}
	}
	return false
}

// matchesPrincipal reports whether requestedPrincipal matches any ARN/
// wildcard/service named in p, with ":root" ARNs treated as matching any
// principal in that account.
func matchesPrincipal(p *policy.Principal, requestedPrincipal string) bool {
	if p == nil {
		return false
	}
	for _, group := range [][]string{
		derefDynaString(p.AWS), derefDynaString(p.Service),
		derefDynaString(p.Federated), derefDynaString(p.CanonicalUser),
	} {
		for _, candidate := range group {
			if strings.HasSuffix(candidate, ":root") {
				candidate = strings.Replace(candidate, ":root", "*", 1)
			}
			if pattern.Matches(pattern.Pattern(candidate), requestedPrincipal) {
				return true
			}
		}
	}
	return false
}

func derefDynaString(d *policy.DynaString) []string {
	if d == nil {
		return nil
	}
	return []string(*d)
}

// AccountOf returns the AWS account ID embedded in an ARN, or "" if
// principalArn does not parse.
func AccountOf(principalArn string) string {
	parsed, err := arn.Parse(principalArn)
	if err != nil {
		return ""
	}
	return parsed.AccountID
}
