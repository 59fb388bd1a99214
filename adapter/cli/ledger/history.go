package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyMember string

// HistoryCmd prints every grant ever recorded for a member.
var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show a member's full grant history",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := ledgerApp()
		if err != nil {
			return err
		}
		if historyMember == "" {
			return errors.New("member is required")
		}

		grants, err := app.Ledger.History(cmd.Context(), historyMember)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(grants) == 0 {
			fmt.Fprintf(out, "No grants recorded for %s.\n", historyMember)
			return nil
		}
		fmt.Fprintf(out, "History for %s (%d):\n", historyMember, len(grants))
		now := time.Now()
		for _, g := range grants {
			printGrant(out, g, now)
			if g.RevokeReason != "" {
				fmt.Fprintf(out, "      reason: %s\n", g.RevokeReason)
			}
		}
		return nil
	},
}

func init() {
	HistoryCmd.Flags().StringVar(&historyMember, "member", "", "member id")
}
