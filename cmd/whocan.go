package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/spf13/cobra"

	"github.com/iamlens/iamlens/internal/message"
	"github.com/iamlens/iamlens/pkg/actioncatalog"
	"github.com/iamlens/iamlens/pkg/collectstore"
	"github.com/iamlens/iamlens/pkg/simkernel"
	"github.com/iamlens/iamlens/pkg/snapshot"
	"github.com/iamlens/iamlens/pkg/whocan"
)

var (
	whoCanResource        string
	whoCanResourceAccount string
	whoCanActions         string
	whoCanVerbose         string
)

var whoCanCmd = &cobra.Command{
	Use:   "who-can",
	Short: "Enumerate principals across known accounts that can perform an action on a resource",
	RunE:  runWhoCan,
}

func init() {
	whoCanCmd.Flags().StringVar(&whoCanResource, "resource", "", "ARN of the target resource")
	whoCanCmd.Flags().StringVar(&whoCanResourceAccount, "resourceAccount", "", "account ID owning the resource")
	whoCanCmd.Flags().StringVar(&whoCanActions, "actions", "", "comma-separated service:action list to check")
	whoCanCmd.Flags().StringVar(&whoCanVerbose, "verbose", "", "jq filter applied to the result list before printing")
	rootCmd.AddCommand(whoCanCmd)
}

func runWhoCan(cmd *cobra.Command, args []string) error {
	if whoCanResource == "" && (whoCanResourceAccount == "" || whoCanActions == "") {
		err := fmt.Errorf("who-can: requires --resource, or --resourceAccount together with --actions")
		message.Error(err.Error())
		os.Exit(1)
	}

	ctx := context.Background()

	client, err := loadStore()
	if err != nil {
		message.Error(err.Error())
		return err
	}

	resourceAccountID := whoCanResourceAccount
	if resourceAccountID == "" {
		if parsed, err := arn.Parse(whoCanResource); err == nil {
			resourceAccountID = parsed.AccountID
		}
	}

	actions, err := resolveWhoCanActions()
	if err != nil {
		message.Error(err.Error())
		return err
	}

	principals, err := allCandidatePrincipals(ctx, client)
	if err != nil {
		message.Error(err.Error())
		return err
	}

	items := make([]whocan.WorkItem, 0, len(principals)*len(actions))
	for _, p := range principals {
		for _, a := range actions {
			items = append(items, whocan.WorkItem{
				PrincipalArn:    p,
				Action:          a,
				ResourceArn:     whoCanResource,
				ResourceAccount: resourceAccountID,
			})
		}
	}

	materialCache := map[string]*principalMaterial{}
	driver := &whocan.Driver{
		Kernel:     simkernel.NewStandardKernel(),
		StableSort: true,
		Resolver: whocan.ResolverFunc(func(ctx context.Context, item whocan.WorkItem) (simkernel.Request, error) {
			material, ok := materialCache[item.PrincipalArn]
			if !ok {
				var err error
				material, err = loadPrincipalMaterial(ctx, client, item.PrincipalArn)
				if err != nil {
					return simkernel.Request{}, err
				}
				materialCache[item.PrincipalArn] = material
			}

			resourcePolicies, err := resolveResourcePolicy(ctx, client, item.ResourceAccount, item.ResourceArn)
			if err != nil {
				return simkernel.Request{}, err
			}

			return simkernel.Request{
				PrincipalArn:     item.PrincipalArn,
				ResourceArn:      item.ResourceArn,
				Action:           item.Action,
				IdentityPolicies: material.IdentityPolicies,
				ResourcePolicies: resourcePolicies,
				BoundaryPolicies: material.BoundaryPolicies,
				SCPPolicies:      material.SCPPolicies,
				RCPPolicies:      material.RCPPolicies,
			}, nil
		}),
	}

	results, err := driver.Run(ctx, items)
	if err != nil {
		message.Error(err.Error())
		return err
	}

	return printResult(results, whoCanVerbose)
}

// resolveWhoCanActions returns the explicit --actions list if given, or
// else every action known for the resource ARN's service when --actions
// is omitted, rather than requiring the flag.
func resolveWhoCanActions() ([]string, error) {
	if whoCanActions != "" {
		var out []string
		for _, a := range strings.Split(whoCanActions, ",") {
			if a = strings.TrimSpace(a); a != "" {
				out = append(out, a)
			}
		}
		return out, nil
	}

	parsed, err := arn.Parse(whoCanResource)
	if err != nil {
		return nil, fmt.Errorf("who-can: --actions omitted and %q isn't a parseable ARN to infer a service from", whoCanResource)
	}

	cat := actioncatalog.NewStatic()
	var out []string
	for _, a := range cat.Actions(parsed.Service) {
		out = append(out, parsed.Service+":"+a)
	}
	return out, nil
}

// allCandidatePrincipals enumerates every role and user ARN across every
// known account.
func allCandidatePrincipals(ctx context.Context, client *collectstore.Client) ([]string, error) {
	accountIDs, err := allAccountIDs(ctx, client)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, accountID := range accountIDs {
		g, err := snapshot.LoadGaad(ctx, client, accountID)
		if err != nil {
			return nil, err
		}
		out = append(out, allPrincipalArns(g)...)
	}
	return out, nil
}
