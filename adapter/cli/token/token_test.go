package token

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	"github.com/felixgeelhaar/gatehouse/adapter/cli/clitest"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	secretLine = regexp.MustCompile(`secret: (\S+)`)
	tokenLine  = regexp.MustCompile(`Token minted: (\S+)`)
)

func resetFlags(t *testing.T) {
	t.Helper()
	mintKind, mintScope, mintGrants, mintExpires, mintMax = "", "global", nil, 0, 0
	mintCmd.Flags().Lookup("max").Changed = false
	validateFlags = checkFlags{action: "stream"}
	redeemFlags = checkFlags{action: "redeem"}
	validateAnon, redeemMember = "", ""
}

type resultOutput struct {
	Code      string   `json:"code"`
	TokenID   string   `json:"token_id"`
	Scope     string   `json:"scope"`
	Granted   []string `json:"granted"`
	Remaining *int     `json:"remaining"`
}

func runResult(t *testing.T, run func() (string, error)) resultOutput {
	t.Helper()
	out, err := run()
	require.NoError(t, err)
	var r resultOutput
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	return r
}

func mint(t *testing.T) (id, secret string) {
	t.Helper()
	out, err := clitest.Run(t, mintCmd)
	require.NoError(t, err)
	require.Regexp(t, secretLine, out)
	return tokenLine.FindStringSubmatch(out)[1], secretLine.FindStringSubmatch(out)[1]
}

func TestCommands_NoApp(t *testing.T) {
	resetFlags(t)
	cli.SetApp(nil)

	_, err := clitest.Run(t, mintCmd)
	assert.ErrorIs(t, err, errNoTokens)
	_, err = clitest.Run(t, usageCmd, uuid.NewString())
	assert.ErrorIs(t, err, errNoTokens)
}

func TestTokenLifecycle(t *testing.T) {
	resetFlags(t)
	app := clitest.NewApp(t)

	mintKind, mintScope = "album_share", "resource:album-7"
	mintGrants = []string{"play_album", "friend@global"}
	require.NoError(t, mintCmd.Flags().Set("max", "2"))
	id, secret := mint(t)

	validateFlags.secret = "wrong"
	_, err := clitest.Run(t, validateCmd)
	assert.ErrorIs(t, err, domain.ErrAnonIDRequired)

	validateAnon = "anon-1"
	r := runResult(t, func() (string, error) { return clitest.Run(t, validateCmd) })
	assert.Equal(t, string(domain.ResultInvalid), r.Code)
	assert.Empty(t, r.TokenID)

	validateFlags.secret, validateFlags.scope = secret, "resource:album-7"
	r = runResult(t, func() (string, error) { return clitest.Run(t, validateCmd) })
	assert.Equal(t, string(domain.ResultOK), r.Code)
	assert.Equal(t, id, r.TokenID)
	require.NotNil(t, r.Remaining)
	assert.Equal(t, 1, *r.Remaining)

	validateFlags.scope = "resource:album-8"
	r = runResult(t, func() (string, error) { return clitest.Run(t, validateCmd) })
	assert.Equal(t, string(domain.ResultScopeMismatch), r.Code)

	redeemFlags.secret, redeemMember = secret, "m1"
	r = runResult(t, func() (string, error) { return clitest.Run(t, redeemCmd) })
	assert.Equal(t, string(domain.ResultOK), r.Code)
	assert.ElementsMatch(t, []string{"play_album", "friend"}, r.Granted)

	keys, err := app.Ledger.ListActiveKeys(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, keys.Has(entitlements.KeyPlayAlbum))
	assert.True(t, keys.Has(entitlements.KeyFriend))

	out, err := clitest.Run(t, usageCmd, id)
	require.NoError(t, err)
	assert.Regexp(t, `redeem\s+1`, out)
	assert.Regexp(t, `stream\s+1`, out)

	out, err = clitest.Run(t, revokeCmd, id)
	require.NoError(t, err)
	assert.Contains(t, out, "Token revoked")
	out, err = clitest.Run(t, revokeCmd, id)
	require.NoError(t, err)
	assert.Contains(t, out, "already revoked")

	validateFlags.scope = ""
	r = runResult(t, func() (string, error) { return clitest.Run(t, validateCmd) })
	assert.Equal(t, string(domain.ResultRevoked), r.Code)
}

func TestMintCmd_CapReached(t *testing.T) {
	resetFlags(t)
	clitest.NewApp(t)

	mintKind = "preview"
	require.NoError(t, mintCmd.Flags().Set("max", "1"))
	_, secret := mint(t)

	validateFlags.secret = secret
	r := runResult(t, func() (string, error) { return clitest.Run(t, validateCmd) })
	assert.Equal(t, string(domain.ResultOK), r.Code)
	r = runResult(t, func() (string, error) { return clitest.Run(t, validateCmd) })
	assert.Equal(t, string(domain.ResultCapReached), r.Code)
}

func TestMintCmd_Validation(t *testing.T) {
	resetFlags(t)
	clitest.NewApp(t)

	mintKind, mintGrants = "gift", []string{"superuser"}
	_, err := clitest.Run(t, mintCmd)
	assert.ErrorIs(t, err, entitlements.ErrUnknownKey)

	resetFlags(t)
	mintKind = "gift"
	require.NoError(t, mintCmd.Flags().Set("max", "0"))
	_, err = clitest.Run(t, mintCmd)
	assert.ErrorIs(t, err, domain.ErrInvalidCap)
}

func TestRedeemCmd_RequiresMember(t *testing.T) {
	resetFlags(t)
	clitest.NewApp(t)

	redeemFlags.secret = "anything"
	_, err := clitest.Run(t, redeemCmd)
	assert.ErrorIs(t, err, entitlements.ErrMemberRequired)
}

func TestUsageCmd_Errors(t *testing.T) {
	resetFlags(t)
	clitest.NewApp(t)

	_, err := clitest.Run(t, usageCmd, "nope")
	assert.ErrorContains(t, err, "invalid token id")

	_, err = clitest.Run(t, usageCmd, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestParseGrantFlag(t *testing.T) {
	g, err := parseGrantFlag("patron")
	require.NoError(t, err)
	assert.Equal(t, entitlements.KeyPatron, g.Key)
	assert.Nil(t, g.Scope)

	g, err = parseGrantFlag("play_album@resource:album-7")
	require.NoError(t, err)
	require.NotNil(t, g.Scope)
	assert.Equal(t, "resource:album-7", g.Scope.String())

	_, err = parseGrantFlag("bogus@global")
	assert.Error(t, err)
}
