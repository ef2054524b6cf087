package principalcan

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/iamlens/iamlens/pkg/actioncatalog"
	"github.com/iamlens/iamlens/pkg/gaad"
	"github.com/iamlens/iamlens/pkg/orgpolicy"
	"github.com/iamlens/iamlens/pkg/policy"
)

type fakeClient struct {
	resources map[string]json.RawMessage
	indexes   map[string][]string
}

func (f *fakeClient) GetResource(ctx context.Context, accountID, arn, metadataKey string) (json.RawMessage, bool, error) {
	v, ok := f.resources[accountID+"|"+arn+"|"+metadataKey]
	return v, ok, nil
}

func (f *fakeClient) GetOrgMetadata(ctx context.Context, orgID, key string) (json.RawMessage, bool, error) {
	return nil, false, nil
}

func (f *fakeClient) GetIndex(ctx context.Context, indexName, key string) ([]string, error) {
	return f.indexes[indexName+"|"+key], nil
}

func mustParsePolicy(t *testing.T, doc string) policy.Policy {
	t.Helper()
	p, err := policy.ParseJSON([]byte(doc))
	if err != nil {
		t.Fatalf("parse policy: %v", err)
	}
	return *p
}

func hasAction(stmts []Statement, effect, action string) bool {
	for _, s := range stmts {
		if string(s.Effect) != effect {
			continue
		}
		var actions []string
		if err := json.Unmarshal(s.Action, &actions); err == nil {
			for _, a := range actions {
				if a == action {
					return true
				}
			}
			continue
		}
		var one string
		if err := json.Unmarshal(s.Action, &one); err == nil && one == action {
			return true
		}
	}
	return false
}

// ec2 is outside the three resource-type universes (KMS, IAM roles, S3
// buckets), so an identity-only grant for it must pass through untouched:
// no universe perimeter strips it and no resource policy needs to confirm
// it.
func TestAggregate_IdentityOnlyGrant_OutsideResourceTypeUniverses(t *testing.T) {
	principalArn := "arn:aws:iam::111111111111:role/reader"

	g := &gaad.Gaad{
		RoleDetailList: []gaad.RoleDetail{
			{
				Arn: principalArn,
				RolePolicyList: []gaad.InlinePolicy{
					{
						PolicyName: "inline",
						PolicyDocument: mustParsePolicy(t, `{
							"Version": "2012-10-17",
							"Statement": [{"Effect": "Allow", "Action": "ec2:DescribeInstances", "Resource": "*"}]
						}`),
					},
				},
			},
		},
	}

	client := &fakeClient{}
	cat := actioncatalog.NewStatic()

	doc, err := Aggregate(context.Background(), Input{
		PrincipalArn: principalArn,
		Gaad:         g,
		Catalog:      cat,
		Client:       client,
		SCP:          orgpolicy.Hierarchy{},
		RCP:          orgpolicy.Hierarchy{},
	})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if doc.Version != "2012-10-17" {
		t.Fatalf("expected Version 2012-10-17, got %s", doc.Version)
	}
	if !hasAction(doc.Statement, "Allow", "ec2:DescribeInstances") {
		t.Fatalf("expected ec2:DescribeInstances to survive untouched, got %+v", doc.Statement)
	}
}

// An identity grant for an S3 action is inside the S3-bucket universe, so
// step 3c of the aggregator strips it from `final` pending confirmation
// from a bucket resource policy; with no bucket policy in the snapshot at
// all, nothing re-admits it.
func TestAggregate_S3IdentityGrantRequiresResourcePolicyConfirmation(t *testing.T) {
	principalArn := "arn:aws:iam::111111111111:role/reader"

	g := &gaad.Gaad{
		RoleDetailList: []gaad.RoleDetail{
			{
				Arn: principalArn,
				RolePolicyList: []gaad.InlinePolicy{
					{
						PolicyName: "inline",
						PolicyDocument: mustParsePolicy(t, `{
							"Version": "2012-10-17",
							"Statement": [{"Effect": "Allow", "Action": "s3:GetObject", "Resource": "*"}]
						}`),
					},
				},
			},
		},
	}

	client := &fakeClient{}
	cat := actioncatalog.NewStatic()

	doc, err := Aggregate(context.Background(), Input{
		PrincipalArn: principalArn,
		Gaad:         g,
		Catalog:      cat,
		Client:       client,
		SCP:          orgpolicy.Hierarchy{},
		RCP:          orgpolicy.Hierarchy{},
	})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if hasAction(doc.Statement, "Allow", "s3:GetObject") {
		t.Fatalf("expected s3:GetObject to be stripped absent a confirming bucket policy, got %+v", doc.Statement)
	}
}

// A matching bucket policy re-admits the identity allow via the
// account-match branch (step 3f: acctAllows ∩ identity_T).
func TestAggregate_S3IdentityGrantReadmittedByBucketPolicy(t *testing.T) {
	principalArn := "arn:aws:iam::111111111111:role/reader"

	g := &gaad.Gaad{
		RoleDetailList: []gaad.RoleDetail{
			{
				Arn: principalArn,
				RolePolicyList: []gaad.InlinePolicy{
					{
						PolicyName: "inline",
						PolicyDocument: mustParsePolicy(t, `{
							"Version": "2012-10-17",
							"Statement": [{"Effect": "Allow", "Action": "s3:GetObject", "Resource": "*"}]
						}`),
					},
				},
			},
		},
	}

	bucketPolicy := []byte(`{
		"Version": "2012-10-17",
		"Statement": [
			{
				"Effect": "Allow",
				"Principal": "*",
				"Action": "s3:GetObject",
				"Resource": "*",
				"Condition": {"StringEquals": {"aws:PrincipalAccount": "111111111111"}}
			}
		]
	}`)

	client := &fakeClient{
		resources: map[string]json.RawMessage{
			"111111111111|arn:aws:s3:::my-bucket|policy": bucketPolicy,
		},
		indexes: map[string][]string{
			"buckets-to-accounts|111111111111": {"arn:aws:s3:::my-bucket"},
		},
	}
	cat := actioncatalog.NewStatic()

	doc, err := Aggregate(context.Background(), Input{
		PrincipalArn: principalArn,
		Gaad:         g,
		Catalog:      cat,
		Client:       client,
		SCP:          orgpolicy.Hierarchy{},
		RCP:          orgpolicy.Hierarchy{},
	})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if !hasAction(doc.Statement, "Allow", "s3:GetObject") {
		t.Fatalf("expected a confirming bucket policy to readmit s3:GetObject, got %+v", doc.Statement)
	}
}

// SCP intersection narrows final down to what the org policy hierarchy
// allows, for a service outside the resource-type universes so the
// universe-perimeter strip doesn't also remove the action being tested.
func TestAggregate_SCPIntersectionNarrowsFinal(t *testing.T) {
	principalArn := "arn:aws:iam::111111111111:role/reader"

	g := &gaad.Gaad{
		RoleDetailList: []gaad.RoleDetail{
			{
				Arn: principalArn,
				RolePolicyList: []gaad.InlinePolicy{
					{
						PolicyName: "inline",
						PolicyDocument: mustParsePolicy(t, `{
							"Version": "2012-10-17",
							"Statement": [
								{"Effect": "Allow", "Action": "ec2:StartInstances", "Resource": "*"},
								{"Effect": "Allow", "Action": "ec2:DescribeInstances", "Resource": "*"}
							]
						}`),
					},
				},
			},
		},
	}

	client := &fakeClient{}
	cat := actioncatalog.NewStatic()

	scpAllowDescribeOnly := mustParsePolicy(t, `{
		"Version": "2012-10-17",
		"Statement": [{"Effect": "Allow", "Action": "ec2:DescribeInstances", "Resource": "*"}]
	}`)

	scp := orgpolicy.Hierarchy{
		Levels: []orgpolicy.Level{
			{TargetID: "root", Policies: []*policy.Policy{&scpAllowDescribeOnly}},
		},
	}

	doc, err := Aggregate(context.Background(), Input{
		PrincipalArn: principalArn,
		Gaad:         g,
		Catalog:      cat,
		Client:       client,
		SCP:          scp,
		RCP:          orgpolicy.Hierarchy{},
	})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if hasAction(doc.Statement, "Allow", "ec2:StartInstances") {
		t.Fatalf("expected SCP intersection to strip ec2:StartInstances, got %+v", doc.Statement)
	}
	if !hasAction(doc.Statement, "Allow", "ec2:DescribeInstances") {
		t.Fatalf("expected ec2:DescribeInstances to survive SCP intersection, got %+v", doc.Statement)
	}
}

// A realistic SCP deny — no Principal block, the shape of every actual
// service control policy — must still subtract from final. Exercises the
// org-level deny collection/subtraction steps end to end, not just the
// Allow-intersection path TestAggregate_SCPIntersectionNarrowsFinal covers.
// The level also carries an allow-all statement, since an action survives
// the per-level Allow intersection only if that level allows it.
func TestAggregate_SCPDenyWithoutPrincipalBlockSubtractsFromFinal(t *testing.T) {
	principalArn := "arn:aws:iam::111111111111:role/reader"

	g := &gaad.Gaad{
		RoleDetailList: []gaad.RoleDetail{
			{
				Arn: principalArn,
				RolePolicyList: []gaad.InlinePolicy{
					{
						PolicyName: "inline",
						PolicyDocument: mustParsePolicy(t, `{
							"Version": "2012-10-17",
							"Statement": [
								{"Effect": "Allow", "Action": "ec2:StartInstances", "Resource": "*"},
								{"Effect": "Allow", "Action": "ec2:DescribeInstances", "Resource": "*"}
							]
						}`),
					},
				},
			},
		},
	}

	client := &fakeClient{}
	cat := actioncatalog.NewStatic()

	scpDenyStart := mustParsePolicy(t, `{
		"Version": "2012-10-17",
		"Statement": [
			{"Effect": "Allow", "Action": "*", "Resource": "*"},
			{"Effect": "Deny", "Action": "ec2:StartInstances", "Resource": "*"}
		]
	}`)

	scp := orgpolicy.Hierarchy{
		Levels: []orgpolicy.Level{
			{TargetID: "root", Policies: []*policy.Policy{&scpDenyStart}},
		},
	}

	doc, err := Aggregate(context.Background(), Input{
		PrincipalArn: principalArn,
		Gaad:         g,
		Catalog:      cat,
		Client:       client,
		SCP:          scp,
		RCP:          orgpolicy.Hierarchy{},
	})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if hasAction(doc.Statement, "Allow", "ec2:StartInstances") {
		t.Fatalf("expected a Principal-less SCP deny to subtract ec2:StartInstances, got %+v", doc.Statement)
	}
	if !hasAction(doc.Statement, "Allow", "ec2:DescribeInstances") {
		t.Fatalf("expected ec2:DescribeInstances to survive, got %+v", doc.Statement)
	}
}
