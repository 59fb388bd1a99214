// Package access holds the decision and resource policy commands.
package access

import (
	"errors"
	"strings"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	"github.com/felixgeelhaar/gatehouse/internal/access/domain"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/spf13/cobra"
)

var (
	decideMember   string
	decideResource string
	decideKeys     []string
	decideAction   string
)

// DecideCmd evaluates a requirement and prints the decision.
var DecideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Decide whether a member may access something",
	Long: `Evaluate a requirement for a member and print the decision as JSON.
Without --resource the keys are checked at the global scope. An empty
--member is an anonymous caller.

Examples:
  gatehouse decide --member m1 --keys patron
  gatehouse decide --member m1 --resource album-7 --keys play_album --action stream`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Engine == nil {
			return errors.New("decisions require database connection")
		}

		keys := make([]entitlements.Key, 0, len(decideKeys))
		for _, k := range decideKeys {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, entitlements.Key(k))
			}
		}
		req := domain.GlobalRequirement(keys...)
		if decideResource != "" {
			req = domain.ResourceRequirement(decideResource, keys...)
		}

		ctx := cmd.Context()
		decision, err := app.Engine.Decide(ctx, decideMember, req, domain.DecisionContext{
			Action:        decideAction,
			CorrelationID: observability.CorrelationIDFromContext(ctx),
		})
		if err != nil {
			return err
		}
		return cli.PrintJSON(cmd.OutOrStdout(), decision)
	},
}

func init() {
	DecideCmd.Flags().StringVar(&decideMember, "member", "", "member id (empty for anonymous)")
	DecideCmd.Flags().StringVar(&decideResource, "resource", "", "resource id")
	DecideCmd.Flags().StringSliceVar(&decideKeys, "keys", nil, "required keys, all must be held")
	DecideCmd.Flags().StringVar(&decideAction, "action", "", "action recorded with the decision")
}
