// Package perimeter implements the resource-type perimeters for the three
// supported resource types (KMS keys, IAM roles, S3 buckets): the universe
// perimeter (what actions exist against this resource type at all) and
// the same-account/cross-account perimeters (what a resource's own policy
// grants, split by principal-match kind).
package perimeter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iamlens/iamlens/pkg/actioncatalog"
	"github.com/iamlens/iamlens/pkg/pattern"
	"github.com/iamlens/iamlens/pkg/permission"
	"github.com/iamlens/iamlens/pkg/permset"
	"github.com/iamlens/iamlens/pkg/policy"
	"github.com/iamlens/iamlens/pkg/policyload"
	"github.com/iamlens/iamlens/pkg/store"
)

// ResourceType names one of the three resource types this module scopes
// permissions against.
type ResourceType string

const (
	KMSKey   ResourceType = "kms"
	IAMRole  ResourceType = "iam-role"
	S3Bucket ResourceType = "s3-bucket"
)

var serviceOf = map[ResourceType]string{
	KMSKey:   "kms",
	IAMRole:  "iam",
	S3Bucket: "s3",
}

// UniversePerimeter synthesizes one `(*resource)` Permission per action
// that applies to t, as both an Allow and a parallel Deny set. The Deny
// mirror is what lets the aggregator strip every identity-level allow
// within T's action space before selectively re-admitting only what a
// resource policy actually grants.
func UniversePerimeter(t ResourceType, cat actioncatalog.Catalog) (allow, deny *permset.Set, err error) {
	allow = permset.New(permission.Allow)
	deny = permset.New(permission.Deny)

	svc := serviceOf[t]
	for _, action := range cat.Actions(svc) {
		allowPerm, err := permission.New(permission.Allow, svc, action, []pattern.Pattern{"*"}, nil, nil)
		if err != nil {
			return nil, nil, err
		}
		if err := allow.AddPermission(allowPerm); err != nil {
			return nil, nil, err
		}

		denyPerm, err := permission.New(permission.Deny, svc, action, []pattern.Pattern{"*"}, nil, nil)
		if err != nil {
			return nil, nil, err
		}
		if err := deny.AddPermission(denyPerm); err != nil {
			return nil, nil, err
		}
	}
	return allow, deny, nil
}

// Instance is one concrete resource of a given type, along with its
// resource policy (if any) and the scope its "*" resource patterns should
// be narrowed to — an S3 resource policy with Resource: "*" is narrowed
// to bucket and bucket/*.
type Instance struct {
	ARN           string
	AccountID     string
	Policy        *policy.Policy
	ScopePatterns []pattern.Pattern
}

// SameAccountResult is the per-resource split produced by SameAccountPerimeter.
type SameAccountResult struct {
	AccountAllows   []*permset.Set
	PrincipalAllows []*permset.Set
	Denies          []*permset.Set
}

// SameAccountPerimeter lists every resource of type t in principal's
// account via the client's per-type index (e.g. "buckets-to-accounts"),
// loads each resource's policy, and classifies its
// statements by applicability against principalArn.
func SameAccountPerimeter(ctx context.Context, t ResourceType, client store.Client, cat actioncatalog.Catalog, accountID, principalArn string) (*SameAccountResult, error) {
	arns, err := client.GetIndex(ctx, indexNameFor(t), accountID)
	if err != nil {
		return nil, fmt.Errorf("list %s resources in account %s: %w", t, accountID, err)
	}

	result := &SameAccountResult{}
	for _, arn := range arns {
		instance, err := loadInstance(ctx, t, client, accountID, arn)
		if err != nil {
			return nil, err
		}
		accountAllow, principalAllow, denySet, err := classifyInstance(instance, cat, principalArn)
		if err != nil {
			return nil, err
		}
		if accountAllow != nil {
			result.AccountAllows = append(result.AccountAllows, accountAllow)
		}
		if principalAllow != nil {
			result.PrincipalAllows = append(result.PrincipalAllows, principalAllow)
		}
		if denySet != nil {
			result.Denies = append(result.Denies, denySet)
		}
	}
	return result, nil
}

func indexNameFor(t ResourceType) string {
	switch t {
	case S3Bucket:
		return "buckets-to-accounts"
	case IAMRole:
		return "roles-to-accounts"
	case KMSKey:
		return "keys-to-accounts"
	default:
		return string(t) + "-to-accounts"
	}
}

func loadInstance(ctx context.Context, t ResourceType, client store.Client, accountID, arn string) (Instance, error) {
	value, found, err := client.GetResource(ctx, accountID, arn, "policy")
	if err != nil {
		return Instance{}, fmt.Errorf("load resource policy for %s: %w", arn, err)
	}

	inst := Instance{ARN: arn, AccountID: accountID, ScopePatterns: scopePatternsFor(t, arn)}
	if !found {
		return inst, nil
	}
	doc, err := policy.ParseJSON(value)
	if err != nil {
		slog.Warn("treating resource policy as empty",
			"error", &store.MissingPolicyDocument{AccountID: accountID, ARN: arn, Key: "policy"}, "cause", err)
		return inst, nil
	}
	inst.Policy = doc
	return inst, nil
}

// scopePatternsFor narrows a resource policy's "*" resource grants to the
// patterns meaningful for this specific instance, e.g. an S3 bucket policy
// granting "*" really means the bucket itself and everything under it.
func scopePatternsFor(t ResourceType, arn string) []pattern.Pattern {
	if t == S3Bucket {
		return []pattern.Pattern{pattern.Pattern(arn), pattern.Pattern(arn + "/*")}
	}
	return []pattern.Pattern{pattern.Pattern(arn)}
}

func classifyInstance(inst Instance, cat actioncatalog.Catalog, principalArn string) (accountAllow, principalAllow, denies *permset.Set, err error) {
	if inst.Policy == nil {
		return nil, nil, nil, nil
	}

	accountAllow = permset.New(permission.Allow)
	principalAllow = permset.New(permission.Allow)
	denies = permset.New(permission.Deny)

	for _, stmt := range inst.Policy.Statement {
		applicability := policyload.Applies(stmt, principalArn)
		if applicability == policyload.NoMatch {
			continue
		}

		scoped := scopeStatement(stmt, inst.ScopePatterns)

		var target *permset.Set
		switch {
		case isDeny(stmt):
			target = denies
		case applicability == policyload.PrincipalMatch:
			target = principalAllow
		default: // AccountMatch
			target = accountAllow
		}
		if err := policyload.AddStatementToPermissionSet(scoped, cat, target); err != nil {
			return nil, nil, nil, err
		}
	}

	if accountAllow.IsEmpty() {
		accountAllow = nil
	}
	if principalAllow.IsEmpty() {
		principalAllow = nil
	}
	if denies.IsEmpty() {
		denies = nil
	}
	return accountAllow, principalAllow, denies, nil
}

func isDeny(stmt policy.Statement) bool {
	return len(stmt.Effect) > 0 && (stmt.Effect == "Deny" || stmt.Effect == "deny" || stmt.Effect == "DENY")
}

// scopeStatement returns a copy of stmt with a bare "*" Resource narrowed
// to scope.
func scopeStatement(stmt policy.Statement, scope []pattern.Pattern) policy.Statement {
	if stmt.Resource == nil || len(*stmt.Resource) != 1 || (*stmt.Resource)[0] != "*" {
		return stmt
	}
	narrowed := make(policy.DynaString, len(scope))
	for i, p := range scope {
		narrowed[i] = string(p)
	}
	stmt.Resource = &narrowed
	return stmt
}

// CrossAccountS3Result is the output of CrossAccountS3Perimeter: allows
// granted by another account's bucket policies to the principal, narrowed
// by that account's RCP-derived deny set.
type CrossAccountS3Result struct {
	Allow *permset.Set
	Deny  *permset.Set
}

// CrossAccountS3Perimeter lists buckets in a non-principal account,
// filters statements that grant cross-account to principalArn, and
// intersects the resulting allows with rcpDenies' complement via the
// caller. rcpDenies is folded into the returned Deny set so the caller
// can subtract it downstream.
func CrossAccountS3Perimeter(ctx context.Context, client store.Client, cat actioncatalog.Catalog, otherAccountID, principalArn string, rcpDenies *permset.Set) (*CrossAccountS3Result, error) {
	sameAccount, err := SameAccountPerimeter(ctx, S3Bucket, client, cat, otherAccountID, principalArn)
	if err != nil {
		return nil, err
	}

	allow := permset.New(permission.Allow)
	for _, a := range sameAccount.PrincipalAllows {
		if err := allow.AddAll(a); err != nil {
			return nil, err
		}
	}

	deny := permset.New(permission.Deny)
	for _, d := range sameAccount.Denies {
		if err := deny.AddAll(d); err != nil {
			return nil, err
		}
	}
	if rcpDenies != nil {
		if err := deny.AddAll(rcpDenies); err != nil {
			return nil, err
		}
	}

	return &CrossAccountS3Result{Allow: allow, Deny: deny}, nil
}
