package mcp

import (
	"context"
	"testing"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	"github.com/felixgeelhaar/gatehouse/adapter/cli/clitest"
	accessDomain "github.com/felixgeelhaar/gatehouse/internal/access/domain"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCLITools_ListTools(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{
		Name:    "test",
		Version: "1.0.0",
		Capabilities: mcp.Capabilities{
			Tools: true,
		},
	})

	app := &cli.App{}
	require.NoError(t, RegisterCLITools(srv, ToolDependencies{App: app}))

	tc := testutil.NewTestClient(t, srv)
	defer tc.Close()

	tools, err := tc.ListTools()
	require.NoError(t, err)

	names := make(map[any]bool, len(tools))
	for _, tool := range tools {
		names[tool["name"]] = true
	}
	for _, want := range []string{
		"cli.health",
		"access.decide",
		"entitlements.list",
		"entitlements.grant",
		"entitlements.revoke",
		"tokens.mint",
		"tokens.validate",
		"tokens.redeem",
	} {
		assert.True(t, names[want], "%s should be registered", want)
	}
}

func TestRegisterCLITools_RequiresApp(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{Name: "test", Version: "1.0.0"})
	assert.Error(t, RegisterCLITools(srv, ToolDependencies{}))
	assert.Error(t, RegisterCLITools(nil, ToolDependencies{App: &cli.App{}}))
}

func TestTools_RequireDatabase(t *testing.T) {
	ctx := context.Background()
	app := &cli.App{}

	_, err := decide(ctx, app, decideInput{})
	assert.Error(t, err)
	_, err = listEntitlements(ctx, app, memberInput{MemberID: "m1"})
	assert.Error(t, err)
	_, err = mintToken(ctx, app, "mcp", mintInput{Kind: "gift"})
	assert.Error(t, err)
}

func TestEntitlementTools_GrantListRevoke(t *testing.T) {
	ctx := context.Background()
	app := clitest.NewApp(t)

	res, err := grantEntitlement(ctx, app, "mcp", grantInput{MemberID: "m1", Key: "patron", ExpiresAt: "48h"})
	require.NoError(t, err)
	assert.Equal(t, true, res["created"])

	res, err = grantEntitlement(ctx, app, "mcp", grantInput{MemberID: "m1", Key: "patron"})
	require.NoError(t, err)
	assert.Equal(t, false, res["created"])

	list, err := listEntitlements(ctx, app, memberInput{MemberID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "patron", list.Tier)
	assert.Equal(t, []string{"patron"}, list.Keys)
	require.Len(t, list.Grants, 1)
	assert.NotNil(t, list.Grants[0].ExpiresAt)

	d, err := decide(ctx, app, decideInput{MemberID: "m1", RequiredKeys: []string{"patron"}})
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	res, err = revokeEntitlement(ctx, app, "mcp", revokeInput{GrantID: list.Grants[0].ID, Reason: "lapsed"})
	require.NoError(t, err)
	assert.Equal(t, 1, res["revoked"])

	list, err = listEntitlements(ctx, app, memberInput{MemberID: "m1", History: true})
	require.NoError(t, err)
	assert.Equal(t, "none", list.Tier)
	assert.Empty(t, list.Keys)
	require.Len(t, list.Grants, 1)
	assert.False(t, list.Grants[0].Active)

	d, err = decide(ctx, app, decideInput{MemberID: "m1", RequiredKeys: []string{"patron"}})
	require.NoError(t, err)
	assert.Equal(t, accessDomain.CodeEntitlementRequired, d.Code)
}

func TestEntitlementTools_Validation(t *testing.T) {
	ctx := context.Background()
	app := clitest.NewApp(t)

	_, err := grantEntitlement(ctx, app, "mcp", grantInput{MemberID: "m1", Key: "superuser"})
	assert.ErrorIs(t, err, entitlements.ErrUnknownKey)

	_, err = grantEntitlement(ctx, app, "mcp", grantInput{MemberID: "m1", Key: "friend", ExpiresAt: "soon"})
	assert.Error(t, err)

	_, err = revokeEntitlement(ctx, app, "mcp", revokeInput{GrantID: "nope"})
	assert.Error(t, err)

	_, err = listEntitlements(ctx, app, memberInput{})
	assert.ErrorIs(t, err, entitlements.ErrMemberRequired)
}

func TestTokenTools_MintValidateRedeem(t *testing.T) {
	ctx := context.Background()
	app := clitest.NewApp(t)
	limit := 2

	minted, err := mintToken(ctx, app, "mcp", mintInput{
		Kind:           "album_share",
		Scope:          "resource:album-7",
		Grants:         []declaredGrantInput{{Key: "play_album"}},
		ExpiresAt:      "24h",
		MaxRedemptions: &limit,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, minted.Secret)
	assert.Equal(t, "resource:album-7", minted.Scope)

	_, err = validateToken(ctx, app, tokenCheckInput{Secret: minted.Secret})
	assert.ErrorIs(t, err, domain.ErrAnonIDRequired)

	r, err := validateToken(ctx, app, tokenCheckInput{Secret: "wrong", AnonID: "anon-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultInvalid, r.Code)

	r, err = validateToken(ctx, app, tokenCheckInput{Secret: minted.Secret, AnonID: "anon-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultOK, r.Code)
	assert.Empty(t, r.Granted)

	r, err = redeemToken(ctx, app, tokenCheckInput{Secret: minted.Secret, MemberID: "m2"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultOK, r.Code)
	assert.Equal(t, []entitlements.Key{entitlements.KeyPlayAlbum}, r.Granted)

	d, err := decide(ctx, app, decideInput{MemberID: "m2", ResourceID: "album-7", RequiredKeys: []string{"play_album"}})
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	_, err = redeemToken(ctx, app, tokenCheckInput{Secret: minted.Secret})
	assert.ErrorIs(t, err, entitlements.ErrMemberRequired)
}

func TestMintToken_RejectsUnknownDeclaredKey(t *testing.T) {
	app := clitest.NewApp(t)

	_, err := mintToken(context.Background(), app, "mcp", mintInput{
		Kind:   "gift",
		Grants: []declaredGrantInput{{Key: "superuser"}},
	})
	assert.ErrorIs(t, err, entitlements.ErrUnknownKey)
}

func TestBuildCatalog(t *testing.T) {
	c := buildCatalog()
	assert.Contains(t, c.Keys, "album_share_grant")
	require.Len(t, c.Tiers, 3)
	assert.Equal(t, "friend", c.Tiers[0].Name)
	assert.Equal(t, []string{"friend", "patron", "partner"}, c.Tiers[0].Satisfied)
	assert.Equal(t, []string{"partner"}, c.Tiers[2].Satisfied)
}
