// Package principalcan implements the Principal-Can Aggregator: the
// multi-step pipeline that folds a principal's identity policies,
// resource-based grants, permission boundary, service control policies,
// resource control policies, and cross-account resource grants into one
// effective policy document.
package principalcan

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iamlens/iamlens/pkg/actioncatalog"
	"github.com/iamlens/iamlens/pkg/condition"
	"github.com/iamlens/iamlens/pkg/gaad"
	"github.com/iamlens/iamlens/pkg/orgpolicy"
	"github.com/iamlens/iamlens/pkg/perimeter"
	"github.com/iamlens/iamlens/pkg/permission"
	"github.com/iamlens/iamlens/pkg/permset"
	"github.com/iamlens/iamlens/pkg/policy"
	"github.com/iamlens/iamlens/pkg/policyload"
	"github.com/iamlens/iamlens/pkg/shrink"
	"github.com/iamlens/iamlens/pkg/store"
)

// Document is the emitted IAM policy document.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is one emitted statement. Action/Resource/NotResource are
// already-marshaled JSON (string or array); Condition keys are in
// canonical lowercase form.
type Statement struct {
	Effect      permission.Effect    `json:"Effect"`
	Action      json.RawMessage      `json:"Action,omitempty"`
	Resource    json.RawMessage      `json:"Resource,omitempty"`
	NotResource json.RawMessage      `json:"NotResource,omitempty"`
	Condition   condition.Conditions `json:"Condition,omitempty"`
}

// resourceTypes is the fixed set of resource types this aggregator scopes
// identity allowances against.
var resourceTypes = []perimeter.ResourceType{perimeter.KMSKey, perimeter.IAMRole, perimeter.S3Bucket}

// CrossAccount is one other account in the snapshot the principal might
// reach via cross-account resource grants, along with its RCP hierarchy.
type CrossAccount struct {
	AccountID string
	RCP       orgpolicy.Hierarchy
}

// Input bundles everything the aggregator needs for a single principal.
type Input struct {
	PrincipalArn string
	Gaad         *gaad.Gaad
	Catalog      actioncatalog.Catalog
	Client       store.Client

	SCP orgpolicy.Hierarchy
	RCP orgpolicy.Hierarchy

	CrossAccounts []CrossAccount

	// ShrinkActionLists runs the output through a policy-shrinker that
	// collapses per-statement action lists.
	ShrinkActionLists bool
}

// Aggregate runs the twelve-step pipeline and returns the principal's
// effective policy document.
func Aggregate(ctx context.Context, in Input) (*Document, error) {
	identity := IdentityPolicies(in.PrincipalArn, in.Gaad)

	// Step 2.
	allowed := permset.New(permission.Allow)
	deniesID := permset.New(permission.Deny)
	for _, doc := range identity {
		if err := policyload.LoadPolicy(doc, permission.Allow, in.Catalog, allowed); err != nil {
			return nil, err
		}
		if err := policyload.LoadPolicy(doc, permission.Deny, in.Catalog, deniesID); err != nil {
			return nil, err
		}
	}
	final := allowed.Clone()
	resourceDenies := permset.New(permission.Deny)

	accountID := policyload.AccountOf(in.PrincipalArn)

	// Step 3: resource-type perimeters.
	for _, t := range resourceTypes {
		uAllow, uDeny, err := perimeter.UniversePerimeter(t, in.Catalog)
		if err != nil {
			return nil, fmt.Errorf("universe perimeter %s: %w", t, err)
		}

		identityT, err := uAllow.Intersection(allowed)
		if err != nil {
			return nil, err
		}

		afterStrip, err := final.Subtract(uDeny)
		if err != nil {
			return nil, err
		}
		final = afterStrip.Allow

		sameAccount, err := perimeter.SameAccountPerimeter(ctx, t, in.Client, in.Catalog, accountID, in.PrincipalArn)
		if err != nil {
			return nil, fmt.Errorf("same-account perimeter %s: %w", t, err)
		}

		for _, principalAllow := range sameAccount.PrincipalAllows {
			if err := final.AddAll(principalAllow); err != nil {
				return nil, err
			}
		}
		for _, acctAllow := range sameAccount.AccountAllows {
			scoped, err := acctAllow.Intersection(identityT)
			if err != nil {
				return nil, err
			}
			if err := final.AddAll(scoped); err != nil {
				return nil, err
			}
		}
		for _, d := range sameAccount.Denies {
			if err := resourceDenies.AddAll(d); err != nil {
				return nil, err
			}
		}
	}

	// Step 4: permission boundary.
	if boundary := BoundaryDocument(in.PrincipalArn, in.Gaad); boundary != nil {
		boundaryAllow := permset.New(permission.Allow)
		boundaryDeny := permset.New(permission.Deny)
		if err := policyload.LoadPolicy(boundary, permission.Allow, in.Catalog, boundaryAllow); err != nil {
			return nil, err
		}
		if err := policyload.LoadPolicy(boundary, permission.Deny, in.Catalog, boundaryDeny); err != nil {
			return nil, err
		}
		if err := deniesID.AddAll(boundaryDeny); err != nil {
			return nil, err
		}
		narrowed, err := final.Intersection(boundaryAllow)
		if err != nil {
			return nil, err
		}
		final = narrowed
	}

	// Step 5: cross-account S3 reach.
	otherAllows := permset.New(permission.Allow)
	otherDenies := permset.New(permission.Deny)
	for _, xa := range in.CrossAccounts {
		rcpLevels, err := orgpolicy.BuildLevels(xa.RCP, in.Catalog, in.PrincipalArn)
		if err != nil {
			return nil, fmt.Errorf("build rcp levels for %s: %w", xa.AccountID, err)
		}
		rcpDenies := permset.New(permission.Deny)
		if err := orgpolicy.CollectApplicableDenies(rcpDenies, rcpLevels); err != nil {
			return nil, err
		}

		xResult, err := perimeter.CrossAccountS3Perimeter(ctx, in.Client, in.Catalog, xa.AccountID, in.PrincipalArn, rcpDenies)
		if err != nil {
			return nil, fmt.Errorf("cross-account s3 perimeter for %s: %w", xa.AccountID, err)
		}
		if err := otherAllows.AddAll(xResult.Allow); err != nil {
			return nil, err
		}
		if err := otherDenies.AddAll(xResult.Deny); err != nil {
			return nil, err
		}
	}

	// Step 6.
	xEffective, err := otherAllows.Intersection(final)
	if err != nil {
		return nil, err
	}

	// Step 7: SCP hierarchy.
	scpLevels, err := orgpolicy.BuildLevels(in.SCP, in.Catalog, in.PrincipalArn)
	if err != nil {
		return nil, fmt.Errorf("build scp levels: %w", err)
	}
	if err := orgpolicy.CollectApplicableDenies(deniesID, scpLevels); err != nil {
		return nil, err
	}
	final, err = orgpolicy.IntersectAllowLevels(final, scpLevels)
	if err != nil {
		return nil, err
	}
	xEffective, err = orgpolicy.IntersectAllowLevels(xEffective, scpLevels)
	if err != nil {
		return nil, err
	}

	// Step 8: RCP hierarchy.
	principalAccountDenies := deniesID.Clone()
	rcpLevels, err := orgpolicy.BuildLevels(in.RCP, in.Catalog, in.PrincipalArn)
	if err != nil {
		return nil, fmt.Errorf("build rcp levels: %w", err)
	}
	if err := orgpolicy.CollectApplicableDenies(principalAccountDenies, rcpLevels); err != nil {
		return nil, err
	}
	final, err = orgpolicy.IntersectAllowLevels(final, rcpLevels)
	if err != nil {
		return nil, err
	}

	// Step 9.
	if err := principalAccountDenies.AddAll(resourceDenies); err != nil {
		return nil, err
	}

	// Step 10.
	sameAccountResult, err := final.Subtract(principalAccountDenies)
	if err != nil {
		return nil, err
	}
	final = sameAccountResult.Allow
	deniedOut := sameAccountResult.Deny

	// Step 11.
	allCrossDenies := principalAccountDenies.Clone()
	if err := allCrossDenies.AddAll(otherDenies); err != nil {
		return nil, err
	}
	xResult, err := xEffective.Subtract(allCrossDenies)
	if err != nil {
		return nil, err
	}

	// Step 12: emit.
	statements := final.ToPolicyStatements()
	statements = append(statements, deniedOut.ToPolicyStatements()...)
	statements = append(statements, xResult.Allow.ToPolicyStatements()...)
	statements = append(statements, xResult.Deny.ToPolicyStatements()...)

	if in.ShrinkActionLists {
		statements = shrink.Statements(statements)
	}
	return buildDocument(statements), nil
}

func buildDocument(statements []permset.Statement) *Document {
	doc := &Document{Version: "2012-10-17"}
	for _, s := range statements {
		doc.Statement = append(doc.Statement, Statement{
			Effect:      s.Effect,
			Action:      s.Action,
			Resource:    s.Resource,
			NotResource: s.NotResource,
			Condition:   s.Condition,
		})
	}
	return doc
}

// IdentityPolicies collects every managed and inline policy document that
// applies directly to principalArn, plus (for users) every managed and
// inline policy attached via group membership.
func IdentityPolicies(principalArn string, g *gaad.Gaad) []*policy.Policy {
	if g == nil {
		return nil
	}

	var docs []*policy.Policy
	if role := g.FindRole(principalArn); role != nil {
		docs = append(docs, managedDocuments(g, role.AttachedManagedPolicies)...)
		for i := range role.RolePolicyList {
			docs = append(docs, &role.RolePolicyList[i].PolicyDocument)
		}
		return docs
	}

	if user := g.FindUser(principalArn); user != nil {
		docs = append(docs, managedDocuments(g, user.AttachedManagedPolicies)...)
		for i := range user.UserPolicyList {
			docs = append(docs, &user.UserPolicyList[i].PolicyDocument)
		}
		for _, groupName := range user.GroupList {
			group := g.FindGroupByName(groupName)
			if group == nil {
				continue
			}
			docs = append(docs, managedDocuments(g, group.AttachedManagedPolicies)...)
			for i := range group.GroupPolicyList {
				docs = append(docs, &group.GroupPolicyList[i].PolicyDocument)
			}
		}
	}
	return docs
}

func managedDocuments(g *gaad.Gaad, refs []gaad.ManagedPolicyRef) []*policy.Policy {
	var docs []*policy.Policy
	for _, ref := range refs {
		pd := g.FindPolicy(ref.PolicyArn)
		if pd == nil {
			continue
		}
		if doc := pd.DefaultDocument(); doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs
}

// BoundaryDocument returns principalArn's permission-boundary document, if
// one is attached.
func BoundaryDocument(principalArn string, g *gaad.Gaad) *policy.Policy {
	if g == nil {
		return nil
	}
	var ref *gaad.ManagedPolicyRef
	if role := g.FindRole(principalArn); role != nil {
		ref = role.PermissionsBoundary
	} else if user := g.FindUser(principalArn); user != nil {
		ref = user.PermissionsBoundary
	}
	if ref == nil {
		return nil
	}
	pd := g.FindPolicy(ref.PolicyArn)
	if pd == nil {
		return nil
	}
	return pd.DefaultDocument()
}
