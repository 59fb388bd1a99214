package ledger

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	entitlementsApp "github.com/felixgeelhaar/gatehouse/internal/entitlements/application"
	"github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	revokeID     string
	revokeMember string
	revokeKey    string
	revokeScope  string
	revokeReason string
)

// RevokeCmd revokes active grants by id or by member, key and scope.
var RevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an entitlement",
	Long: `Revoke active grants. Revoked rows stay in the history.

Examples:
  gatehouse revoke --member m1 --key patron
  gatehouse revoke --id 6f1c...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := ledgerApp()
		if err != nil {
			return err
		}

		var revoked int
		if revokeID != "" {
			id, perr := uuid.Parse(revokeID)
			if perr != nil {
				return fmt.Errorf("invalid grant id: %w", perr)
			}
			revoked, err = app.Ledger.RevokeByID(cmd.Context(), id, cli.Actor(), revokeReason)
		} else {
			if revokeMember == "" {
				return errors.New("member or id is required")
			}
			key, kerr := domain.ParseKey(revokeKey)
			if kerr != nil {
				return kerr
			}
			scope, serr := domain.ParseScope(revokeScope)
			if serr != nil {
				return serr
			}
			revoked, err = app.Ledger.Revoke(cmd.Context(), entitlementsApp.RevokeCommand{
				MemberID:  revokeMember,
				Key:       key,
				Scope:     scope,
				RevokedBy: cli.Actor(),
				Reason:    revokeReason,
			})
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Revoked %d grant(s)\n", revoked)
		return nil
	},
}

func init() {
	RevokeCmd.Flags().StringVar(&revokeID, "id", "", "grant id")
	RevokeCmd.Flags().StringVar(&revokeMember, "member", "", "member id")
	RevokeCmd.Flags().StringVar(&revokeKey, "key", "", "entitlement key")
	RevokeCmd.Flags().StringVar(&revokeScope, "scope", "global", "scope (global or resource:<id>)")
	RevokeCmd.Flags().StringVar(&revokeReason, "reason", "", "reason recorded on the revocation")
}
