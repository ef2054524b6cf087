package snapshot

import (
	"context"
	"encoding/json"
	"testing"

	organizationstypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
)

type fakeClient struct {
	resources map[string]json.RawMessage
	org       map[string]json.RawMessage
	indexes   map[string][]string
}

func (c *fakeClient) GetResource(_ context.Context, accountID, arn, metadataKey string) (json.RawMessage, bool, error) {
	v, ok := c.resources[accountID+"|"+arn+"|"+metadataKey]
	return v, ok, nil
}

func (c *fakeClient) GetOrgMetadata(_ context.Context, orgID, key string) (json.RawMessage, bool, error) {
	v, ok := c.org[orgID+"|"+key]
	return v, ok, nil
}

func (c *fakeClient) GetIndex(_ context.Context, indexName, key string) ([]string, error) {
	return c.indexes[indexName+"|"+key], nil
}

func TestLoadGaad_ParsesStoredSnapshot(t *testing.T) {
	c := &fakeClient{resources: map[string]json.RawMessage{
		"111111111111|arn:aws:iam::111111111111:account|gaad": json.RawMessage(`{
			"UserDetailList": [{"Arn": "arn:aws:iam::111111111111:user/alice"}]
		}`),
	}}

	g, err := LoadGaad(context.Background(), c, "111111111111")
	if err != nil {
		t.Fatalf("LoadGaad failed: %v", err)
	}
	if len(g.UserDetailList) != 1 || g.UserDetailList[0].Arn != "arn:aws:iam::111111111111:user/alice" {
		t.Fatalf("unexpected gaad: %+v", g)
	}
}

func TestLoadGaad_AbsentReturnsEmpty(t *testing.T) {
	c := &fakeClient{resources: map[string]json.RawMessage{}}

	g, err := LoadGaad(context.Background(), c, "222222222222")
	if err != nil {
		t.Fatalf("LoadGaad failed: %v", err)
	}
	if len(g.UserDetailList) != 0 || len(g.RoleDetailList) != 0 {
		t.Fatalf("expected an empty gaad, got %+v", g)
	}
}

func TestLoadHierarchy_WalksRootFirstChain(t *testing.T) {
	c := &fakeClient{
		indexes: map[string][]string{
			"accounts-to-orgs|333333333333": {"r-root", "ou-1", "333333333333"},
		},
		org: map[string]json.RawMessage{
			"r-root|scp": json.RawMessage(`[{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":["*"],"Resource":["*"]}]}]`),
			"ou-1|scp":   json.RawMessage(`[]`),
		},
	}

	h, err := LoadHierarchy(context.Background(), c, "333333333333", "scp", organizationstypes.PolicyTypeServiceControlPolicy)
	if err != nil {
		t.Fatalf("LoadHierarchy failed: %v", err)
	}
	if len(h.Levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(h.Levels))
	}
	if h.Levels[0].TargetID != "r-root" || len(h.Levels[0].Policies) != 1 {
		t.Fatalf("unexpected root level: %+v", h.Levels[0])
	}
	if h.Levels[2].TargetID != "333333333333" || len(h.Levels[2].Policies) != 0 {
		t.Fatalf("unexpected account level (no scp key present): %+v", h.Levels[2])
	}
}

func TestLoadHierarchy_NoChainFallsBackToAccountOnly(t *testing.T) {
	c := &fakeClient{indexes: map[string][]string{}, org: map[string]json.RawMessage{}}

	h, err := LoadHierarchy(context.Background(), c, "444444444444", "rcp", organizationstypes.PolicyTypeResourceControlPolicy)
	if err != nil {
		t.Fatalf("LoadHierarchy failed: %v", err)
	}
	if len(h.Levels) != 1 || h.Levels[0].TargetID != "444444444444" {
		t.Fatalf("expected a single account-only level, got %+v", h.Levels)
	}
}

func TestCrossAccounts_ExcludesSelf(t *testing.T) {
	c := &fakeClient{indexes: map[string][]string{
		"accounts-to-orgs|555555555555": {"r-root", "555555555555"},
		"org-accounts|r-root":           {"555555555555", "666666666666", "777777777777"},
	}}

	others, err := CrossAccounts(context.Background(), c, "555555555555")
	if err != nil {
		t.Fatalf("CrossAccounts failed: %v", err)
	}
	if len(others) != 2 || others[0] != "666666666666" || others[1] != "777777777777" {
		t.Fatalf("unexpected cross accounts: %v", others)
	}
}

func TestCrossAccounts_NoOrgReturnsNil(t *testing.T) {
	c := &fakeClient{indexes: map[string][]string{}}

	others, err := CrossAccounts(context.Background(), c, "888888888888")
	if err != nil {
		t.Fatalf("CrossAccounts failed: %v", err)
	}
	if others != nil {
		t.Fatalf("expected nil for an account with no org chain, got %v", others)
	}
}
