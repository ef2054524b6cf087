package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/spf13/cobra"

	"github.com/iamlens/iamlens/internal/message"
	"github.com/iamlens/iamlens/pkg/orgpolicy"
	"github.com/iamlens/iamlens/pkg/policy"
	"github.com/iamlens/iamlens/pkg/simkernel"
)

var (
	simulatePrincipal              string
	simulateResource               string
	simulateResourceAccount        string
	simulateAction                 string
	simulateContext                string
	simulateVerbose                string
	simulateExpect                 string
	simulateIgnoreMissingPrincipal bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Evaluate one (principal, action, resource) request against full AWS evaluation semantics",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePrincipal, "principal", "", "ARN of the requesting principal (required)")
	simulateCmd.Flags().StringVar(&simulateResource, "resource", "", "ARN of the target resource (required)")
	simulateCmd.Flags().StringVar(&simulateResourceAccount, "resourceAccount", "", "account ID owning the resource, if not derivable from its ARN")
	simulateCmd.Flags().StringVar(&simulateAction, "action", "", "service:action to evaluate (required)")
	simulateCmd.Flags().StringVar(&simulateContext, "context", "", "comma-separated key=value request-context pairs")
	simulateCmd.Flags().StringVar(&simulateVerbose, "verbose", "", "jq filter applied to the result before printing")
	simulateCmd.Flags().StringVar(&simulateExpect, "expect", "", "Allowed|ImplicitlyDenied|ExplicitlyDenied|AnyDeny; exit 1 if the result doesn't match")
	simulateCmd.Flags().BoolVar(&simulateIgnoreMissingPrincipal, "ignoreMissingPrincipal", false, "don't error when the principal is absent from the snapshot")
	simulateCmd.MarkFlagRequired("principal")
	simulateCmd.MarkFlagRequired("resource")
	simulateCmd.MarkFlagRequired("action")
	rootCmd.AddCommand(simulateCmd)
}

type simulateResult struct {
	Principal string             `json:"principal"`
	Resource  string             `json:"resource"`
	Action    string             `json:"action"`
	Decision  simkernel.Decision `json:"decision"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := loadStore()
	if err != nil {
		message.Error(err.Error())
		return err
	}

	material, err := loadPrincipalMaterial(ctx, client, simulatePrincipal)
	if err != nil {
		message.Error(err.Error())
		return err
	}

	if material.Gaad.FindRole(simulatePrincipal) == nil && material.Gaad.FindUser(simulatePrincipal) == nil && !simulateIgnoreMissingPrincipal {
		err := fmt.Errorf("simulate: principal %q not found in its account snapshot", simulatePrincipal)
		message.Error(err.Error())
		return err
	}

	resourceAccountID := simulateResourceAccount
	if resourceAccountID == "" {
		if parsed, err := arn.Parse(simulateResource); err == nil {
			resourceAccountID = parsed.AccountID
		}
	}

	resourcePolicies, err := resolveResourcePolicy(ctx, client, resourceAccountID, simulateResource)
	if err != nil {
		message.Error(err.Error())
		return err
	}

	req := simkernel.Request{
		PrincipalArn:     simulatePrincipal,
		ResourceArn:      simulateResource,
		Action:           simulateAction,
		Context:          parseContext(simulateContext),
		IdentityPolicies: material.IdentityPolicies,
		ResourcePolicies: resourcePolicies,
		BoundaryPolicies: material.BoundaryPolicies,
		SCPPolicies:      material.SCPPolicies,
		RCPPolicies:      material.RCPPolicies,
	}

	decision, err := simkernel.NewStandardKernel().Evaluate(ctx, req)
	if err != nil {
		message.Error(err.Error())
		return err
	}

	result := simulateResult{Principal: simulatePrincipal, Resource: simulateResource, Action: simulateAction, Decision: decision}
	if err := printResult(result, simulateVerbose); err != nil {
		return err
	}

	if simulateExpect != "" && !decisionMatches(decision, simulateExpect) {
		err := fmt.Errorf("simulate: expected %s, got %s", simulateExpect, decision)
		message.Error(err.Error())
		os.Exit(1)
	}
	return nil
}

// parseContext parses a "key=value,key2=value2" request-context string into
// the map[string][]string shape simkernel.Request.Context expects. Each
// pair adds one value under its lowercased key, so a repeated key collects
// several values.
func parseContext(raw string) map[string][]string {
	if raw == "" {
		return nil
	}
	out := make(map[string][]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		out[k] = append(out[k], strings.TrimSpace(v))
	}
	return out
}

// flattenLevels concatenates every level's attached policies into one flat
// list; simkernel.Request treats an org-policy group as a single unit and
// doesn't need per-level attenuation (that lives in the Principal-Can
// Aggregator's orgpolicy.IntersectAllowLevels pipeline instead).
func flattenLevels(h orgpolicy.Hierarchy) []*policy.Policy {
	var out []*policy.Policy
	for _, lvl := range h.Levels {
		out = append(out, lvl.Policies...)
	}
	return out
}

func decisionMatches(got simkernel.Decision, expect string) bool {
	if strings.EqualFold(expect, "AnyDeny") {
		return got == simkernel.ImplicitlyDenied || got == simkernel.ExplicitlyDenied
	}
	return strings.EqualFold(string(got), expect)
}
