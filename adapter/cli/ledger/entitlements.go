package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/spf13/cobra"
)

var entitlementsMember string

// EntitlementsCmd lists a member's active keys and derived tier.
var EntitlementsCmd = &cobra.Command{
	Use:     "entitlements",
	Short:   "Show a member's active entitlements",
	Aliases: []string{"ents"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := ledgerApp()
		if err != nil {
			return err
		}
		if entitlementsMember == "" {
			return errors.New("member is required")
		}

		grants, err := app.Ledger.ListActive(cmd.Context(), entitlementsMember)
		if err != nil {
			return err
		}

		now := time.Now()
		out := cmd.OutOrStdout()
		keys := domain.ActiveKeys(grants, now)
		tier := domain.DeriveTier(domain.KeysCovering(grants, domain.Global(), now))
		fmt.Fprintf(out, "Member: %s\n", entitlementsMember)
		fmt.Fprintf(out, "Tier:   %s\n", tier)
		if len(grants) == 0 {
			fmt.Fprintln(out, "No active entitlements.")
			return nil
		}
		fmt.Fprintf(out, "Keys:   %s\n", strings.Join(keys.Strings(), ", "))
		for _, g := range grants {
			printGrant(out, g, now)
		}
		return nil
	},
}

func init() {
	EntitlementsCmd.Flags().StringVar(&entitlementsMember, "member", "", "member id")
}
