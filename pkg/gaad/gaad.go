// Package gaad holds the GAAD-shaped identity snapshot types (the shape
// AWS's GetAccountAuthorizationDetails returns): users, roles, groups,
// and customer-managed policies, each carrying inline and attached
// policy documents for the Policy → PermissionSet loader to expand.
package gaad

import "github.com/iamlens/iamlens/pkg/policy"

// Gaad is a full account authorization-details snapshot.
type Gaad struct {
	UserDetailList  []UserDetail     `json:"UserDetailList"`
	RoleDetailList  []RoleDetail     `json:"RoleDetailList"`
	GroupDetailList []GroupDetail    `json:"GroupDetailList"`
	Policies        []PolicyDetail   `json:"Policies"`
}

// InlinePolicy is a named inline policy document attached directly to a
// principal or group.
type InlinePolicy struct {
	PolicyName     string        `json:"PolicyName"`
	PolicyDocument policy.Policy `json:"PolicyDocument"`
}

// ManagedPolicyRef references a customer-managed or AWS-managed policy by
// ARN, without embedding its document (looked up via PolicyDetail).
type ManagedPolicyRef struct {
	PolicyName string `json:"PolicyName"`
	PolicyArn  string `json:"PolicyArn"`
}

// Tag is a resource tag key/value pair.
type Tag struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// UserDetail is one IAM user's identity snapshot.
type UserDetail struct {
	Arn                     string             `json:"Arn"`
	UserName                string             `json:"UserName"`
	UserId                  string             `json:"UserId"`
	Path                    string             `json:"Path"`
	GroupList               []string           `json:"GroupList"`
	Tags                    []Tag              `json:"Tags"`
	UserPolicyList          []InlinePolicy     `json:"UserPolicyList"`
	PermissionsBoundary     *ManagedPolicyRef  `json:"PermissionsBoundary,omitempty"`
	AttachedManagedPolicies []ManagedPolicyRef `json:"AttachedManagedPolicies"`
}

// InstanceProfileRole is a role bound into an EC2 instance profile.
type InstanceProfileRole struct {
	Path                     string        `json:"Path"`
	RoleName                 string        `json:"RoleName"`
	RoleId                   string        `json:"RoleId"`
	Arn                      string        `json:"Arn"`
	AssumeRolePolicyDocument policy.Policy `json:"AssumeRolePolicyDocument"`
}

// InstanceProfile is an EC2 instance profile with its bound roles.
type InstanceProfile struct {
	Path                string                 `json:"Path"`
	InstanceProfileName string                 `json:"InstanceProfileName"`
	InstanceProfileId   string                 `json:"InstanceProfileId"`
	Arn                 string                 `json:"Arn"`
	Roles               []InstanceProfileRole  `json:"Roles"`
}

// RoleDetail is one IAM role's identity snapshot.
type RoleDetail struct {
	Arn                      string             `json:"Arn"`
	AssumeRolePolicyDocument policy.Policy      `json:"AssumeRolePolicyDocument"`
	AttachedManagedPolicies  []ManagedPolicyRef `json:"AttachedManagedPolicies"`
	InstanceProfileList      []InstanceProfile  `json:"InstanceProfileList"`
	Path                     string             `json:"Path"`
	PermissionsBoundary      *ManagedPolicyRef  `json:"PermissionsBoundary,omitempty"`
	RoleId                   string             `json:"RoleId"`
	RoleName                 string             `json:"RoleName"`
	RolePolicyList           []InlinePolicy     `json:"RolePolicyList"`
	Tags                     []Tag              `json:"Tags"`
}

// GroupDetail is one IAM group's identity snapshot.
type GroupDetail struct {
	Arn                     string             `json:"Arn"`
	AttachedManagedPolicies []ManagedPolicyRef `json:"AttachedManagedPolicies"`
	GroupId                 string             `json:"GroupId"`
	GroupName               string             `json:"GroupName"`
	GroupPolicyList         []InlinePolicy     `json:"GroupPolicyList"`
	Path                    string             `json:"Path"`
}

// PolicyVersion is one version of a customer-managed policy.
type PolicyVersion struct {
	VersionId        string        `json:"VersionId"`
	IsDefaultVersion bool          `json:"IsDefaultVersion"`
	Document         policy.Policy `json:"Document"`
}

// PolicyDetail is a customer-managed policy with all of its versions.
type PolicyDetail struct {
	Arn                string          `json:"Arn"`
	AttachmentCount    int             `json:"AttachmentCount"`
	IsAttachable       bool            `json:"IsAttachable"`
	Path               string          `json:"Path"`
	PolicyId           string          `json:"PolicyId"`
	PolicyName         string          `json:"PolicyName"`
	PolicyVersionList  []PolicyVersion `json:"PolicyVersionList"`
}

// DefaultDocument returns the policy document of the default version, or
// nil if no version is marked default.
func (p *PolicyDetail) DefaultDocument() *policy.Policy {
	for i := range p.PolicyVersionList {
		if p.PolicyVersionList[i].IsDefaultVersion {
			return &p.PolicyVersionList[i].Document
		}
	}
	return nil
}

// FindPolicy looks up a managed policy by ARN in the snapshot.
func (g *Gaad) FindPolicy(arn string) *PolicyDetail {
	for i := range g.Policies {
		if g.Policies[i].Arn == arn {
			return &g.Policies[i]
		}
	}
	return nil
}

// FindRole looks up a role by ARN in the snapshot.
func (g *Gaad) FindRole(arn string) *RoleDetail {
	for i := range g.RoleDetailList {
		if g.RoleDetailList[i].Arn == arn {
			return &g.RoleDetailList[i]
		}
	}
	return nil
}

// FindUser looks up a user by ARN in the snapshot.
func (g *Gaad) FindUser(arn string) *UserDetail {
	for i := range g.UserDetailList {
		if g.UserDetailList[i].Arn == arn {
			return &g.UserDetailList[i]
		}
	}
	return nil
}

// FindGroupByName looks up a group by name (as referenced in
// UserDetail.GroupList) in the snapshot.
func (g *Gaad) FindGroupByName(name string) *GroupDetail {
	for i := range g.GroupDetailList {
		if g.GroupDetailList[i].GroupName == name {
			return &g.GroupDetailList[i]
		}
	}
	return nil
}
