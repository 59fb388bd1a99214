package token

import (
	"fmt"
	"sort"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke <token-id>",
	Short: "Revoke a share token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := tokensApp()
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid token id: %w", err)
		}

		revoked, err := app.Tokens.Revoke(cmd.Context(), id, cli.Actor())
		if err != nil {
			return err
		}
		if revoked {
			fmt.Fprintf(cmd.OutOrStdout(), "Token revoked: %s\n", id)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Token already revoked: %s\n", id)
		}
		return nil
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage <token-id>",
	Short: "Show token use counts per action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := tokensApp()
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid token id: %w", err)
		}

		usage, err := app.Tokens.Usage(cmd.Context(), id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(usage) == 0 {
			fmt.Fprintf(out, "Token %s has not been used.\n", id)
			return nil
		}
		actions := make([]string, 0, len(usage))
		for a := range usage {
			actions = append(actions, a)
		}
		sort.Strings(actions)
		fmt.Fprintf(out, "Usage for %s:\n", id)
		for _, a := range actions {
			fmt.Fprintf(out, "  %-12s %d\n", a, usage[a])
		}
		return nil
	},
}
