package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	entitlementsApp "github.com/felixgeelhaar/gatehouse/internal/entitlements/application"
	"github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/spf13/cobra"
)

var (
	grantMember  string
	grantKey     string
	grantScope   string
	grantExpires string
	grantReason  string
)

// GrantCmd writes a grant to the ledger.
var GrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant an entitlement key to a member",
	Long: `Grant an entitlement key to a member. Granting a key that is already
active for the same member and scope leaves the existing grant in place.

Examples:
  gatehouse grant --member m1 --key patron
  gatehouse grant --member m1 --key play_album --scope resource:album-7
  gatehouse grant --member m1 --key friend --expires 720h --reason "beta"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := ledgerApp()
		if err != nil {
			return err
		}
		if grantMember == "" {
			return errors.New("member is required")
		}
		key, err := domain.ParseKey(grantKey)
		if err != nil {
			return err
		}
		scope, err := domain.ParseScope(grantScope)
		if err != nil {
			return err
		}
		now := time.Now()
		expires, err := parseExpiry(grantExpires, now)
		if err != nil {
			return err
		}

		result, err := app.Ledger.Grant(cmd.Context(), entitlementsApp.GrantCommand{
			MemberID:  grantMember,
			Key:       key,
			Scope:     scope,
			ExpiresAt: expires,
			GrantedBy: cli.Actor(),
			Reason:    grantReason,
			Source:    domain.SourceAdmin,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if result.Created {
			fmt.Fprintf(out, "Granted %s on %s to %s\n", key, scope, grantMember)
		} else {
			fmt.Fprintf(out, "Already active: %s on %s for %s\n", key, scope, grantMember)
		}
		printGrant(out, result.Grant, now)
		return nil
	},
}

func init() {
	GrantCmd.Flags().StringVar(&grantMember, "member", "", "member id")
	GrantCmd.Flags().StringVar(&grantKey, "key", "", "entitlement key")
	GrantCmd.Flags().StringVar(&grantScope, "scope", "global", "scope (global or resource:<id>)")
	GrantCmd.Flags().StringVar(&grantExpires, "expires", "", "expiry as RFC 3339 or a duration from now")
	GrantCmd.Flags().StringVar(&grantReason, "reason", "", "reason recorded on the grant")
}
