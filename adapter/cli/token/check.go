package token

import (
	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	sharingApp "github.com/felixgeelhaar/gatehouse/internal/sharing/application"
	"github.com/spf13/cobra"
)

// checkFlags are the flags shared by validate and redeem.
type checkFlags struct {
	secret   string
	scope    string
	resource string
	action   string
}

func (f *checkFlags) register(c *cobra.Command, defaultAction string) {
	c.Flags().StringVar(&f.secret, "secret", "", "token secret")
	c.Flags().StringVar(&f.scope, "scope", "", "scope the caller expects (empty for any)")
	c.Flags().StringVar(&f.resource, "resource", "", "resource being accessed")
	c.Flags().StringVar(&f.action, "action", defaultAction, "action being performed")
}

var (
	validateFlags checkFlags
	redeemFlags   checkFlags
	validateAnon  string
	redeemMember  string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a token for an anonymous request",
	Long: `Check a token the way an anonymous stream request would. The use is
logged and counts against the cap, but nothing is granted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := tokensApp()
		if err != nil {
			return err
		}
		scope, err := entitlements.ParseScope(validateFlags.scope)
		if err != nil {
			return err
		}
		result, err := app.Tokens.Validate(cmd.Context(), sharingApp.ValidateCommand{
			Secret:        validateFlags.secret,
			ExpectedScope: scope,
			AnonID:        validateAnon,
			Resource:      validateFlags.resource,
			Action:        validateFlags.action,
		})
		if err != nil {
			return err
		}
		return cli.PrintJSON(cmd.OutOrStdout(), result)
	},
}

var redeemCmd = &cobra.Command{
	Use:   "redeem",
	Short: "Redeem a token for a member",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := tokensApp()
		if err != nil {
			return err
		}
		scope, err := entitlements.ParseScope(redeemFlags.scope)
		if err != nil {
			return err
		}
		result, err := app.Tokens.Redeem(cmd.Context(), sharingApp.RedeemCommand{
			Secret:        redeemFlags.secret,
			MemberID:      redeemMember,
			ExpectedScope: scope,
			Resource:      redeemFlags.resource,
			Action:        redeemFlags.action,
		})
		if err != nil {
			return err
		}
		return cli.PrintJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	validateFlags.register(validateCmd, "stream")
	validateCmd.Flags().StringVar(&validateAnon, "anon-id", "", "anonymous client id (required)")
	redeemFlags.register(redeemCmd, "redeem")
	redeemCmd.Flags().StringVar(&redeemMember, "member", "", "member id")
}
