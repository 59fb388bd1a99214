// Package token holds the share-token commands.
package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/spf13/cobra"
)

var errNoTokens = errors.New("token commands require database connection")

// Cmd is the share-token command group.
var Cmd = &cobra.Command{
	Use:   "token",
	Short: "Mint, check and revoke share tokens",
	Long: `Share tokens let a link holder stream a resource anonymously or claim
durable grants by redeeming the token as a member.`,
}

func init() {
	Cmd.AddCommand(mintCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(redeemCmd)
	Cmd.AddCommand(revokeCmd)
	Cmd.AddCommand(usageCmd)
}

func tokensApp() (*cli.App, error) {
	app := cli.GetApp()
	if app == nil || app.Tokens == nil {
		return nil, errNoTokens
	}
	return app, nil
}

// parseGrantFlag reads "key" or "key@scope". Without a scope the grant
// inherits the token's scope.
func parseGrantFlag(value string) (domain.DeclaredGrant, error) {
	keyPart, scopePart, hasScope := strings.Cut(strings.TrimSpace(value), "@")
	key, err := entitlements.ParseKey(keyPart)
	if err != nil {
		return domain.DeclaredGrant{}, err
	}
	g := domain.DeclaredGrant{Key: key}
	if hasScope {
		scope, err := entitlements.ParseScope(scopePart)
		if err != nil {
			return domain.DeclaredGrant{}, fmt.Errorf("grant %q: %w", value, err)
		}
		g.Scope = &scope
	}
	return g, nil
}
