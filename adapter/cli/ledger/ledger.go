// Package ledger holds the entitlement ledger commands.
package ledger

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	"github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
)

var errNoLedger = errors.New("ledger commands require database connection")

func ledgerApp() (*cli.App, error) {
	app := cli.GetApp()
	if app == nil || app.Ledger == nil {
		return nil, errNoLedger
	}
	return app, nil
}

// parseExpiry accepts an RFC 3339 timestamp or a duration from now.
func parseExpiry(value string, now time.Time) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("invalid expiry %q: use RFC 3339 or a positive duration", value)
	}
	t := now.Add(d).UTC()
	return &t, nil
}

func printGrant(w io.Writer, g *domain.Grant, now time.Time) {
	state := "active"
	switch {
	case g.RevokedAt != nil:
		state = "revoked " + g.RevokedAt.Format(time.RFC3339)
	case !g.IsActive(now):
		state = "expired"
	}
	fmt.Fprintf(w, "  %s  %-20s %-24s %s", g.ID, g.Key, g.Scope, state)
	if g.ExpiresAt != nil && g.RevokedAt == nil {
		fmt.Fprintf(w, " (expires %s)", g.ExpiresAt.Format(time.RFC3339))
	}
	if g.Source != "" {
		fmt.Fprintf(w, " [%s]", g.Source)
	}
	fmt.Fprintln(w)
}
