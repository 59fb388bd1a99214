package access

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	"github.com/felixgeelhaar/gatehouse/internal/access/domain"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/spf13/cobra"
)

var errNoPolicyStore = errors.New("policy commands require a database policy source")

var (
	policyReleaseAt   string
	policyEarlyTiers  []string
	policyMinTier     string
	policyEarlyAccess bool
)

// PolicyCmd is the resource policy command group.
var PolicyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage resource access policies",
	Long:  `Inspect and edit the embargo and tier settings of resources.`,
}

var policyGetCmd = &cobra.Command{
	Use:   "get <resource-id>",
	Short: "Show a resource policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Policies == nil {
			return errNoPolicyStore
		}
		p, err := app.Policies.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if p == nil {
			fmt.Fprintf(out, "No policy for %s (released, no minimum tier).\n", args[0])
			return nil
		}
		printPolicy(out, p)
		return nil
	},
}

var policySetCmd = &cobra.Command{
	Use:   "set <resource-id>",
	Short: "Create or replace a resource policy",
	Long: `Create or replace a resource policy.

Examples:
  gatehouse policy set album-7 --release-at 2026-12-01T00:00:00Z
  gatehouse policy set album-7 --release-at 2026-12-01T00:00:00Z --early-access --early-tiers patron,partner
  gatehouse policy set album-8 --min-tier friend`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Policies == nil {
			return errNoPolicyStore
		}

		p := domain.Policy{ResourceID: args[0], EarlyAccess: policyEarlyAccess}
		if policyReleaseAt != "" {
			t, err := time.Parse(time.RFC3339, policyReleaseAt)
			if err != nil {
				return fmt.Errorf("invalid release-at: %w", err)
			}
			t = t.UTC()
			p.ReleaseAt = &t
		}
		tiers, err := domain.ParseTierNames(policyEarlyTiers)
		if err != nil {
			return err
		}
		p.EarlyAccessTiers = tiers
		if p.MinTier, err = entitlements.ParseTier(policyMinTier); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}

		if err := app.Policies.Put(cmd.Context(), p); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Policy saved for %s\n", p.ResourceID)
		printPolicy(out, &p)
		return nil
	},
}

var policyDeleteCmd = &cobra.Command{
	Use:   "delete <resource-id>",
	Short: "Remove a resource policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Policies == nil {
			return errNoPolicyStore
		}
		if err := app.Policies.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Policy removed for %s\n", args[0])
		return nil
	},
}

func printPolicy(w io.Writer, p *domain.Policy) {
	fmt.Fprintf(w, "  resource:     %s\n", p.ResourceID)
	if p.ReleaseAt != nil {
		fmt.Fprintf(w, "  release at:   %s\n", p.ReleaseAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "  release at:   released")
	}
	if p.HasEarlyAccess() {
		fmt.Fprintf(w, "  early access: %s\n", strings.Join(p.TierNames(), ", "))
	}
	fmt.Fprintf(w, "  min tier:     %s\n", p.MinTier)
}

func init() {
	policySetCmd.Flags().StringVar(&policyReleaseAt, "release-at", "", "embargo end as RFC 3339")
	policySetCmd.Flags().BoolVar(&policyEarlyAccess, "early-access", false, "let early-access tiers bypass the embargo")
	policySetCmd.Flags().StringSliceVar(&policyEarlyTiers, "early-tiers", nil, "tiers allowed early access")
	policySetCmd.Flags().StringVar(&policyMinTier, "min-tier", "", "minimum tier (friend, patron, partner)")

	PolicyCmd.AddCommand(policyGetCmd)
	PolicyCmd.AddCommand(policySetCmd)
	PolicyCmd.AddCommand(policyDeleteCmd)
}
