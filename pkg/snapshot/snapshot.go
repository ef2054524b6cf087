// Package snapshot resolves the identity and org-policy material a
// Principal-Can or Who-Can invocation needs out of a store.Client, using
// the key conventions this CLI defines on top of the opaque
// accountID/ARN/metadataKey and named-index contract the storage client's
// implementation is free to choose (see DESIGN.md's Storage-key
// conventions for the exact convention).
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	organizationstypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"

	"github.com/iamlens/iamlens/pkg/gaad"
	"github.com/iamlens/iamlens/pkg/orgpolicy"
	"github.com/iamlens/iamlens/pkg/policy"
)

// accountResourceARN is the synthetic ARN key this package uses to look
// up account-scoped (rather than resource-scoped) metadata via
// store.Client.GetResource, which is otherwise keyed by a real ARN.
func accountResourceARN(accountID string) string {
	return "arn:aws:iam::" + accountID + ":account"
}

// LoadGaad fetches the GetAccountAuthorizationDetails-shaped snapshot for
// accountID.
func LoadGaad(ctx context.Context, client Client, accountID string) (*gaad.Gaad, error) {
	raw, found, err := client.GetResource(ctx, accountID, accountResourceARN(accountID), "gaad")
	if err != nil {
		return nil, fmt.Errorf("load gaad for account %s: %w", accountID, err)
	}
	if !found {
		return &gaad.Gaad{}, nil
	}
	var g gaad.Gaad
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parse gaad for account %s: %w", accountID, err)
	}
	return &g, nil
}

// Client mirrors store.Client's three lookups; store.CachedClient and
// collectstore.Client both satisfy it.
type Client interface {
	GetResource(ctx context.Context, accountID, arn, metadataKey string) (json.RawMessage, bool, error)
	GetOrgMetadata(ctx context.Context, orgID, key string) (json.RawMessage, bool, error)
	GetIndex(ctx context.Context, indexName, key string) ([]string, error)
}

// LoadHierarchy builds an SCP or RCP Hierarchy for accountID: the
// "accounts-to-orgs" index returns the root-first chain of organizational
// unit IDs ending with accountID itself, and org metadata under
// policyKey ("scp" or "rcp") holds each level's attached policy array.
func LoadHierarchy(ctx context.Context, client Client, accountID, policyKey string, polType organizationstypes.PolicyType) (orgpolicy.Hierarchy, error) {
	targetIDs, err := client.GetIndex(ctx, "accounts-to-orgs", accountID)
	if err != nil {
		return orgpolicy.Hierarchy{}, fmt.Errorf("resolve org chain for account %s: %w", accountID, err)
	}
	if len(targetIDs) == 0 {
		targetIDs = []string{accountID}
	}

	levels := make([]orgpolicy.Level, 0, len(targetIDs))
	for _, targetID := range targetIDs {
		raw, found, err := client.GetOrgMetadata(ctx, targetID, policyKey)
		if err != nil {
			return orgpolicy.Hierarchy{}, fmt.Errorf("load %s for %s: %w", policyKey, targetID, err)
		}
		var docs []*policy.Policy
		if found {
			if err := json.Unmarshal(raw, &docs); err != nil {
				return orgpolicy.Hierarchy{}, fmt.Errorf("parse %s for %s: %w", policyKey, targetID, err)
			}
		}
		levels = append(levels, orgpolicy.Level{TargetID: targetID, Policies: docs})
	}

	return orgpolicy.Hierarchy{Type: polType, Levels: levels}, nil
}

// CrossAccounts returns every other account in principalAccountID's
// organization, via the "org-accounts" index keyed by the org ID found
// through "accounts-to-orgs"' first (root) entry.
func CrossAccounts(ctx context.Context, client Client, principalAccountID string) ([]string, error) {
	chain, err := client.GetIndex(ctx, "accounts-to-orgs", principalAccountID)
	if err != nil || len(chain) == 0 {
		return nil, err
	}
	orgID := chain[0]

	accounts, err := client.GetIndex(ctx, "org-accounts", orgID)
	if err != nil {
		return nil, fmt.Errorf("resolve accounts for org %s: %w", orgID, err)
	}

	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		if a != principalAccountID {
			out = append(out, a)
		}
	}
	return out, nil
}
