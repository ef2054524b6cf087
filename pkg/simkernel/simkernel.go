// Package simkernel defines the AWS simulation-kernel contract the Who-Can
// driver consumes: takes a fully resolved request plus policies and
// returns Allowed | ImplicitlyDenied | ExplicitlyDenied. The kernel's own
// evaluation logic is orthogonal to the permission algebra; this package
// carries the interface plus a reference single-request evaluator adapted
// from the same statement/condition matching techniques the Permission
// algebra uses, so simulate and who-can are runnable without an external
// kernel.
package simkernel

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/iamlens/iamlens/pkg/condition"
	"github.com/iamlens/iamlens/pkg/pattern"
	"github.com/iamlens/iamlens/pkg/policy"
	"github.com/iamlens/iamlens/pkg/policyload"
)

// Decision is a simulation outcome.
type Decision string

const (
	Allowed          Decision = "Allowed"
	ImplicitlyDenied Decision = "ImplicitlyDenied"
	ExplicitlyDenied Decision = "ExplicitlyDenied"
)

// Request is a fully resolved simulation request: one principal, one
// action, one resource, a request context, and every policy source that
// might apply.
type Request struct {
	PrincipalArn string
	ResourceArn  string
	Action       string // "service:action"
	Context      map[string][]string

	IdentityPolicies []*policy.Policy
	ResourcePolicies []*policy.Policy
	BoundaryPolicies []*policy.Policy
	SCPPolicies      []*policy.Policy
	RCPPolicies      []*policy.Policy
}

// Kernel evaluates a single resolved request against AWS policy
// evaluation semantics.
type Kernel interface {
	Evaluate(ctx context.Context, req Request) (Decision, error)
}

// StandardKernel is a reference Kernel: explicit deny anywhere wins; an
// Allow must come from identity or (principal-matching) resource policy;
// a present boundary, SCP, or RCP source must each independently also
// allow, or the request is implicitly denied.
type StandardKernel struct{}

// NewStandardKernel returns the reference Kernel implementation.
func NewStandardKernel() *StandardKernel { return &StandardKernel{} }

func (k *StandardKernel) Evaluate(_ context.Context, req Request) (Decision, error) {
	for _, group := range [][]*policy.Policy{
		req.IdentityPolicies, req.ResourcePolicies, req.BoundaryPolicies,
		req.SCPPolicies, req.RCPPolicies,
	} {
		if anyStatementMatches(group, req, "Deny") {
			return ExplicitlyDenied, nil
		}
	}

	identityAllow := anyStatementMatches(req.IdentityPolicies, req, "Allow")
	resourceAllow := anyStatementMatches(req.ResourcePolicies, req, "Allow")
	if !identityAllow && !resourceAllow {
		return ImplicitlyDenied, nil
	}

	for _, attenuator := range [][]*policy.Policy{req.BoundaryPolicies, req.SCPPolicies, req.RCPPolicies} {
		if len(attenuator) == 0 {
			continue
		}
		if !anyStatementMatches(attenuator, req, "Allow") {
			return ImplicitlyDenied, nil
		}
	}

	return Allowed, nil
}

func anyStatementMatches(docs []*policy.Policy, req Request, effect string) bool {
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		for _, stmt := range doc.Statement {
			if !strings.EqualFold(stmt.Effect, effect) {
				continue
			}
			if statementMatches(stmt, req) {
				return true
			}
		}
	}
	return false
}

func statementMatches(stmt policy.Statement, req Request) bool {
	if !actionMatches(stmt, req.Action) {
		return false
	}
	if !resourceMatches(stmt, req.ResourceArn) {
		return false
	}
	if (stmt.Principal != nil || stmt.NotPrincipal != nil) && policyload.Applies(stmt, req.PrincipalArn) == policyload.NoMatch {
		return false
	}
	return conditionsSatisfied(stmt.Conditions(), req.Context)
}

func actionMatches(stmt policy.Statement, action string) bool {
	switch {
	case stmt.NotAction != nil:
		for _, p := range *stmt.NotAction {
			if pattern.Matches(pattern.Pattern(p), action) {
				return false
			}
		}
		return true
	case stmt.Action != nil:
		for _, p := range *stmt.Action {
			if pattern.Matches(pattern.Pattern(p), action) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func resourceMatches(stmt policy.Statement, resourceArn string) bool {
	switch {
	case stmt.NotResource != nil:
		for _, p := range *stmt.NotResource {
			if pattern.Matches(pattern.Pattern(p), resourceArn) {
				return false
			}
		}
		return true
	case stmt.Resource != nil:
		for _, p := range *stmt.Resource {
			if pattern.Matches(pattern.Pattern(p), resourceArn) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// conditionsSatisfied evaluates a normalized condition block against a
// request context (key -> ordered values), adapted from the per-operator
// dispatch technique used for single-request statement evaluation.
func conditionsSatisfied(conds condition.Conditions, reqContext map[string][]string) bool {
	lowerContext := make(map[string][]string, len(reqContext))
	for k, v := range reqContext {
		lowerContext[strings.ToLower(k)] = v
	}

	for op, byKey := range conds {
		parts := condition.ParseOperator(op)
		for key, expected := range byKey {
			actual, exists := lowerContext[strings.ToLower(key)]
			if parts.Base == "null" {
				wantNull := len(expected) > 0 && expected[0] == "true"
				if wantNull == !exists {
					continue
				}
				return false
			}
			if !exists {
				if parts.IfExists {
					continue
				}
				return false
			}
			if !evaluateClause(parts, expected, actual) {
				return false
			}
		}
	}
	return true
}

func evaluateClause(parts condition.OpParts, expected, actual []string) bool {
	switch parts.SetQuantifier {
	case "forallvalues":
		for _, a := range actual {
			if !evaluateBase(parts.Base, expected, a) {
				return false
			}
		}
		return true
	case "foranyvalue":
		for _, a := range actual {
			if evaluateBase(parts.Base, expected, a) {
				return true
			}
		}
		return false
	default:
		if len(actual) == 0 {
			return false
		}
		return evaluateBase(parts.Base, expected, actual[0])
	}
}

func evaluateBase(base string, expected []string, actual string) bool {
	switch {
	case strings.HasPrefix(base, "string"):
		return evaluateString(base, expected, actual)
	case strings.HasPrefix(base, "arn"):
		return evaluateArn(base, expected, actual)
	case strings.HasPrefix(base, "numeric"):
		return evaluateNumeric(base, expected, actual)
	case strings.HasPrefix(base, "date"):
		return evaluateDate(base, expected, actual)
	case base == "bool":
		return len(expected) > 0 && actual == expected[0]
	case base == "ipaddress" || base == "notipaddress":
		return evaluateIPAddress(base == "ipaddress", expected, actual)
	default:
		return false
	}
}

func evaluateString(base string, expected []string, actual string) bool {
	switch base {
	case "stringequals":
		return containsExact(expected, actual)
	case "stringnotequals":
		return !containsExact(expected, actual)
	case "stringlike":
		return containsPattern(expected, actual)
	case "stringnotlike":
		return !containsPattern(expected, actual)
	}
	return false
}

func evaluateArn(base string, expected []string, actual string) bool {
	switch base {
	case "arnequals", "arnlike":
		return containsPattern(expected, actual)
	case "arnnotequals", "arnnotlike":
		return !containsPattern(expected, actual)
	}
	return false
}

func containsExact(expected []string, actual string) bool {
	for _, e := range expected {
		if e == actual {
			return true
		}
	}
	return false
}

func containsPattern(expected []string, actual string) bool {
	for _, e := range expected {
		if pattern.Matches(pattern.Pattern(e), actual) {
			return true
		}
	}
	return false
}

func evaluateNumeric(base string, expected []string, actual string) bool {
	actualVal, err := strconv.ParseFloat(actual, 64)
	if err != nil {
		return false
	}
	for _, e := range expected {
		expectedVal, err := strconv.ParseFloat(e, 64)
		if err != nil {
			continue
		}
		switch base {
		case "numericequals":
			if actualVal == expectedVal {
				return true
			}
		case "numericnotequals":
			if actualVal == expectedVal {
				return false
			}
		case "numericlessthan":
			if actualVal < expectedVal {
				return true
			}
		case "numericlessthanequals":
			if actualVal <= expectedVal {
				return true
			}
		case "numericgreaterthan":
			if actualVal > expectedVal {
				return true
			}
		case "numericgreaterthanequals":
			if actualVal >= expectedVal {
				return true
			}
		}
	}
	return base == "numericnotequals"
}

func evaluateDate(base string, expected []string, actual string) bool {
	actualTime, err := time.Parse(time.RFC3339, actual)
	if err != nil {
		return false
	}
	for _, e := range expected {
		expectedTime, err := time.Parse(time.RFC3339, e)
		if err != nil {
			continue
		}
		switch base {
		case "dateequals":
			if actualTime.Equal(expectedTime) {
				return true
			}
		case "datenotequals":
			if actualTime.Equal(expectedTime) {
				return false
			}
		case "datelessthan":
			if actualTime.Before(expectedTime) {
				return true
			}
		case "datelessthanequals":
			if !actualTime.After(expectedTime) {
				return true
			}
		case "dategreaterthan":
			if actualTime.After(expectedTime) {
				return true
			}
		case "dategreaterthanequals":
			if !actualTime.Before(expectedTime) {
				return true
			}
		}
	}
	return base == "datenotequals"
}

func evaluateIPAddress(wantContains bool, expected []string, actual string) bool {
	actualIP := net.ParseIP(actual)
	if actualIP == nil {
		return false
	}
	for _, e := range expected {
		if _, ipNet, err := net.ParseCIDR(e); err == nil {
			if ipNet.Contains(actualIP) {
				return wantContains
			}
			continue
		}
		if ip := net.ParseIP(e); ip != nil && ip.Equal(actualIP) {
			return wantContains
		}
	}
	return !wantContains
}

// Error wraps an evaluation failure with the request that caused it.
type Error struct {
	Request Request
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("simulate %s %s on %s: %v", e.Request.PrincipalArn, e.Request.Action, e.Request.ResourceArn, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
