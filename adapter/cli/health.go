package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check CLI wiring health",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return fmt.Errorf("app not initialized")
		}
		missing := make([]string, 0, 3)
		if app.Ledger == nil {
			missing = append(missing, "ledger")
		}
		if app.Engine == nil {
			missing = append(missing, "engine")
		}
		if app.Tokens == nil {
			missing = append(missing, "tokens")
		}
		if len(missing) > 0 {
			return fmt.Errorf("app missing: %v", missing)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
