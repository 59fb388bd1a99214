package token

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	sharingApp "github.com/felixgeelhaar/gatehouse/internal/sharing/application"
	"github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/spf13/cobra"
)

var (
	mintKind    string
	mintScope   string
	mintGrants  []string
	mintExpires time.Duration
	mintMax     int
)

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a share token",
	Long: `Mint a share token. The secret is printed once and cannot be recovered.

Examples:
  gatehouse token mint --kind album_share --scope resource:album-7 --max 3 --expires 72h
  gatehouse token mint --kind gift --grant patron@global --grant play_album`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := tokensApp()
		if err != nil {
			return err
		}
		scope, err := entitlements.ParseScope(mintScope)
		if err != nil {
			return err
		}
		grants := make([]domain.DeclaredGrant, 0, len(mintGrants))
		for _, v := range mintGrants {
			g, err := parseGrantFlag(v)
			if err != nil {
				return err
			}
			grants = append(grants, g)
		}

		mc := sharingApp.MintCommand{
			Kind:      mintKind,
			Scope:     scope,
			Grants:    grants,
			CreatedBy: cli.Actor(),
		}
		if mintExpires > 0 {
			expires := time.Now().Add(mintExpires).UTC()
			mc.ExpiresAt = &expires
		}
		if cmd.Flags().Changed("max") {
			limit := mintMax
			mc.MaxRedemptions = &limit
		}

		minted, err := app.Tokens.Mint(cmd.Context(), mc)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		t := minted.Token
		fmt.Fprintf(out, "Token minted: %s\n", t.ID)
		fmt.Fprintf(out, "  kind:   %s\n", t.Kind)
		fmt.Fprintf(out, "  scope:  %s\n", t.Scope)
		if t.ExpiresAt != nil {
			fmt.Fprintf(out, "  expires: %s\n", t.ExpiresAt.Format(time.RFC3339))
		}
		if t.MaxRedemptions != nil {
			fmt.Fprintf(out, "  max uses: %d\n", *t.MaxRedemptions)
		}
		fmt.Fprintf(out, "  secret: %s\n", minted.Secret)
		fmt.Fprintln(out, "Store the secret now; it is not shown again.")
		return nil
	},
}

func init() {
	mintCmd.Flags().StringVar(&mintKind, "kind", "", "token kind")
	mintCmd.Flags().StringVar(&mintScope, "scope", "global", "token scope (global or resource:<id>)")
	mintCmd.Flags().StringArrayVar(&mintGrants, "grant", nil, "declared grant as key or key@scope (repeatable)")
	mintCmd.Flags().DurationVar(&mintExpires, "expires", 0, "lifetime from now (0 for no expiry)")
	mintCmd.Flags().IntVar(&mintMax, "max", 0, "maximum number of uses")
}
