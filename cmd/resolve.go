package cmd

import (
	"context"
	"fmt"

	organizationstypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"

	"github.com/iamlens/iamlens/pkg/gaad"
	"github.com/iamlens/iamlens/pkg/policy"
	"github.com/iamlens/iamlens/pkg/policyload"
	"github.com/iamlens/iamlens/pkg/principalcan"
	"github.com/iamlens/iamlens/pkg/snapshot"
)

// principalMaterial is the identity/boundary/org-policy material a single
// principal's simulation requests are built from — loaded once per
// principal account and reused across every (action, resource) pair that
// principal is checked against.
type principalMaterial struct {
	Gaad             *gaad.Gaad
	IdentityPolicies []*policy.Policy
	BoundaryPolicies []*policy.Policy
	SCPPolicies      []*policy.Policy
	RCPPolicies      []*policy.Policy
}

// loadPrincipalMaterial resolves everything a kernel request needs about a
// principal's own account: its GAAD-derived identity/boundary policies and
// its SCP/RCP hierarchies, flattened to a single list per group.
func loadPrincipalMaterial(ctx context.Context, client snapshot.Client, principalArn string) (*principalMaterial, error) {
	accountID := policyload.AccountOf(principalArn)
	if accountID == "" {
		return nil, fmt.Errorf("%q is not a parseable ARN", principalArn)
	}

	g, err := snapshot.LoadGaad(ctx, client, accountID)
	if err != nil {
		return nil, err
	}

	scp, err := snapshot.LoadHierarchy(ctx, client, accountID, "scp", organizationstypes.PolicyTypeServiceControlPolicy)
	if err != nil {
		return nil, err
	}
	rcp, err := snapshot.LoadHierarchy(ctx, client, accountID, "rcp", organizationstypes.PolicyTypeResourceControlPolicy)
	if err != nil {
		return nil, err
	}

	var boundary []*policy.Policy
	if b := principalcan.BoundaryDocument(principalArn, g); b != nil {
		boundary = []*policy.Policy{b}
	}

	return &principalMaterial{
		Gaad:             g,
		IdentityPolicies: principalcan.IdentityPolicies(principalArn, g),
		BoundaryPolicies: boundary,
		SCPPolicies:      flattenLevels(scp),
		RCPPolicies:      flattenLevels(rcp),
	}, nil
}

// resolveResourcePolicy fetches a resource's own policy document from the
// account resourceAccountID. It returns no policies when resourceAccountID
// is empty; callers fill it from --resourceAccount or from the ARN's
// account segment (IAM/KMS ARNs carry one; S3 bucket ARNs don't).
func resolveResourcePolicy(ctx context.Context, client snapshot.Client, resourceAccountID, resourceArn string) ([]*policy.Policy, error) {
	if resourceAccountID == "" {
		return nil, nil
	}
	raw, found, err := client.GetResource(ctx, resourceAccountID, resourceArn, "policy")
	if err != nil {
		return nil, fmt.Errorf("load resource policy for %s: %w", resourceArn, err)
	}
	if !found {
		return nil, nil
	}
	doc, err := policy.ParseJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("parse resource policy for %s: %w", resourceArn, err)
	}
	return []*policy.Policy{doc}, nil
}

// allAccountIDs enumerates every account known to the snapshot, via the
// "accounts" index under the fixed key "*" — this CLI's own convention
// for populating a candidate-principal scan (see DESIGN.md).
func allAccountIDs(ctx context.Context, client snapshot.Client) ([]string, error) {
	return client.GetIndex(ctx, "accounts", "*")
}

// allPrincipalArns lists every role and user ARN in g, one account's GAAD
// snapshot — the candidate principal population a Who-Can scan tests.
func allPrincipalArns(g *gaad.Gaad) []string {
	if g == nil {
		return nil
	}
	var out []string
	for _, r := range g.RoleDetailList {
		out = append(out, r.Arn)
	}
	for _, u := range g.UserDetailList {
		out = append(out, u.Arn)
	}
	return out
}
