package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	organizationstypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/spf13/cobra"

	"github.com/iamlens/iamlens/internal/diag"
	"github.com/iamlens/iamlens/internal/message"
	"github.com/iamlens/iamlens/pkg/actioncatalog"
	"github.com/iamlens/iamlens/pkg/policyload"
	"github.com/iamlens/iamlens/pkg/principalcan"
	"github.com/iamlens/iamlens/pkg/snapshot"
)

var (
	principalCanPrincipal string
	principalCanShrink    bool
	principalCanVerbose   string
)

var principalCanCmd = &cobra.Command{
	Use:   "principal-can",
	Short: "Print the effective policy document a principal can exercise",
	RunE:  runPrincipalCan,
}

func init() {
	principalCanCmd.Flags().StringVar(&principalCanPrincipal, "principal", "", "ARN of the principal to evaluate (required)")
	principalCanCmd.Flags().BoolVar(&principalCanShrink, "shrinkActionLists", false, "collapse per-statement action lists in the output")
	principalCanCmd.Flags().StringVar(&principalCanVerbose, "verbose", "", "jq filter applied to the result before printing")
	principalCanCmd.MarkFlagRequired("principal")
	rootCmd.AddCommand(principalCanCmd)
}

func runPrincipalCan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := loadStore()
	if err != nil {
		message.Error(err.Error())
		return err
	}

	accountID := policyload.AccountOf(principalCanPrincipal)
	if accountID == "" {
		err := fmt.Errorf("principal-can: %q is not a parseable ARN", principalCanPrincipal)
		message.Error(err.Error())
		return err
	}

	g, err := snapshot.LoadGaad(ctx, client, accountID)
	if err != nil {
		message.Error(err.Error())
		return err
	}

	scp, err := snapshot.LoadHierarchy(ctx, client, accountID, "scp", organizationstypes.PolicyTypeServiceControlPolicy)
	if err != nil {
		message.Error(err.Error())
		return err
	}
	rcp, err := snapshot.LoadHierarchy(ctx, client, accountID, "rcp", organizationstypes.PolicyTypeResourceControlPolicy)
	if err != nil {
		message.Error(err.Error())
		return err
	}

	otherAccountIDs, err := snapshot.CrossAccounts(ctx, client, accountID)
	if err != nil {
		message.Error(err.Error())
		return err
	}
	crossAccounts := make([]principalcan.CrossAccount, 0, len(otherAccountIDs))
	for _, otherID := range otherAccountIDs {
		otherRCP, err := snapshot.LoadHierarchy(ctx, client, otherID, "rcp", organizationstypes.PolicyTypeResourceControlPolicy)
		if err != nil {
			message.Error(err.Error())
			return err
		}
		crossAccounts = append(crossAccounts, principalcan.CrossAccount{AccountID: otherID, RCP: otherRCP})
	}

	doc, err := principalcan.Aggregate(ctx, principalcan.Input{
		PrincipalArn:      principalCanPrincipal,
		Gaad:              g,
		Catalog:           actioncatalog.NewStatic(),
		Client:            client,
		SCP:               scp,
		RCP:               rcp,
		CrossAccounts:     crossAccounts,
		ShrinkActionLists: principalCanShrink,
	})
	if err != nil {
		message.Error(err.Error())
		return err
	}

	return printResult(doc, principalCanVerbose)
}

// printResult marshals v to indented JSON on stdout, or, if filter is
// non-empty, projects v through it first via --verbose.
func printResult(v any, filter string) error {
	if filter != "" {
		results, err := diag.Query(v, filter)
		if err != nil {
			message.Error(err.Error())
			return err
		}
		for _, r := range results {
			fmt.Fprintln(os.Stdout, string(r))
		}
		return nil
	}

	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
