// Package actioncatalog defines the IAM action catalog contract that the
// Policy → PermissionSet loader depends on to expand wildcard action
// patterns into concrete service:action pairs ("what actions exist for
// iam:*, s3:*"). This package carries the contract plus a minimal
// embedded catalog so the rest of the module is runnable standalone.
package actioncatalog

import (
	"sort"
	"strings"

	"github.com/iamlens/iamlens/pkg/pattern"
)

// Catalog answers "what concrete actions exist for a service" and
// "which actions within a service does an action pattern match".
type Catalog interface {
	// Actions returns every known action name (without service prefix)
	// for service, lowercased for comparison but case-preserved for
	// display.
	Actions(service string) []string

	// Services returns every known service prefix.
	Services() []string
}

// Static is a minimal embedded Catalog covering the resource types this
// module's perimeters support (KMS, IAM, S3) plus a representative
// sample of commonly-referenced actions for other services. It is meant
// to be swappable: any real deployment wires in a catalog sourced from
// the AWS service reference instead.
type Static struct {
	byService map[string][]string
}

// NewStatic returns the embedded catalog.
func NewStatic() *Static {
	return &Static{byService: map[string][]string{
		"s3": {
			"GetObject", "PutObject", "DeleteObject", "ListBucket",
			"GetBucketPolicy", "PutBucketPolicy", "GetBucketAcl",
			"PutBucketAcl", "CreateBucket", "DeleteBucket",
			"GetObjectTagging", "PutObjectTagging",
		},
		"iam": {
			"CreateRole", "DeleteRole", "AttachRolePolicy", "DetachRolePolicy",
			"PutRolePolicy", "DeleteRolePolicy", "PassRole", "AssumeRole",
			"CreateUser", "DeleteUser", "CreatePolicy", "DeletePolicy",
			"GetRole", "ListRoles", "UpdateAssumeRolePolicy",
		},
		"kms": {
			"Encrypt", "Decrypt", "GenerateDataKey", "CreateKey", "DescribeKey",
			"ScheduleKeyDeletion", "PutKeyPolicy", "GetKeyPolicy", "EnableKey",
			"DisableKey", "CreateGrant", "RevokeGrant",
		},
		"ec2": {
			"StartInstances", "StopInstances", "RunInstances", "TerminateInstances",
			"DescribeInstances", "CreateTags",
		},
		"sts": {
			"AssumeRole", "AssumeRoleWithWebIdentity", "GetCallerIdentity",
		},
		"organizations": {
			"DescribeOrganization", "ListPolicies", "DescribePolicy",
			"ListAccountsForParent", "DescribeOrganizationalUnit",
		},
	}}
}

func (c *Static) Actions(service string) []string {
	return append([]string(nil), c.byService[strings.ToLower(service)]...)
}

func (c *Static) Services() []string {
	out := make([]string, 0, len(c.byService))
	for s := range c.byService {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Expand resolves a wildcarded "service:action" pattern (e.g. "s3:Get*",
// "s3:*", or the bare "*") against cat into a concrete, deduplicated
// "service:action" list.
func Expand(cat Catalog, actionPattern string) []string {
	service, actionPart, hasService := strings.Cut(actionPattern, ":")
	if !hasService {
		actionPart, service = service, "*"
	}
	service = strings.ToLower(service)

	services := []string{service}
	if service == "*" {
		services = cat.Services()
	}

	actionPart = strings.ToLower(actionPart)

	var out []string
	for _, svc := range services {
		for _, a := range cat.Actions(svc) {
			if pattern.Matches(pattern.Pattern(actionPart), strings.ToLower(a)) {
				out = append(out, svc+":"+a)
			}
		}
	}
	return dedupStrings(out)
}

// Complement returns every action in service not matched by any pattern
// in excluded — the NotAction handling path. If service is "*", the
// complement spans every known service.
func Complement(cat Catalog, service string, excluded []string) []string {
	service = strings.ToLower(service)
	services := []string{service}
	if service == "*" || service == "" {
		services = cat.Services()
	}

	excludedSet := make(map[string]struct{})
	for _, pat := range excluded {
		for _, a := range Expand(cat, pat) {
			excludedSet[a] = struct{}{}
		}
	}

	var out []string
	for _, svc := range services {
		for _, a := range cat.Actions(svc) {
			full := svc + ":" + a
			if _, excl := excludedSet[full]; !excl {
				out = append(out, full)
			}
		}
	}
	return dedupStrings(out)
}

func dedupStrings(ss []string) []string {
	seen := make(map[string]struct{}, len(ss))
	var out []string
	for _, s := range ss {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
