package application_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	entApplication "github.com/felixgeelhaar/gatehouse/internal/entitlements/application"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	entPersistence "github.com/felixgeelhaar/gatehouse/internal/entitlements/infrastructure/persistence"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/persistence"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/sqlitetest"
	"github.com/felixgeelhaar/gatehouse/internal/sharing/application"
	"github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/felixgeelhaar/gatehouse/internal/sharing/infrastructure/persistence"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	db      *sql.DB
	clock   *clock
	ledger  *entApplication.Ledger
	outbox  *outbox.SQLiteRepository
	service *application.Service
	metrics *observability.InMemoryMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := sqlitetest.Open(t)
	c := &clock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
	ob := outbox.NewSQLiteRepository(db)
	uow := sharedPersistence.NewSQLiteUnitOfWork(db)
	ledger := entApplication.NewLedger(entPersistence.NewSQLiteGrantRepository(db), ob, uow,
		entApplication.WithLedgerClock(c.Now))
	metrics := observability.NewInMemoryMetrics()
	service := application.NewService(persistence.NewSQLiteTokenRepository(db), ledger, uow,
		application.WithClock(c.Now),
		application.WithOutbox(ob),
		application.WithMetrics(metrics),
		application.WithSecretHasher(crypto.NewSecretHasher(application.SecretPrefix, "test-pepper")),
	)
	return &fixture{db: db, clock: c, ledger: ledger, outbox: ob, service: service, metrics: metrics}
}

func albumScope(t *testing.T, id string) entitlements.Scope {
	t.Helper()
	s, err := entitlements.Resource(id)
	require.NoError(t, err)
	return s
}

func intPtr(n int) *int { return &n }

func (f *fixture) mintPress(t *testing.T, scope entitlements.Scope, cap *int) application.MintResult {
	t.Helper()
	expires := f.clock.Now().Add(24 * time.Hour)
	res, err := f.service.Mint(context.Background(), application.MintCommand{
		Kind:           "press",
		Scope:          scope,
		Grants:         []domain.DeclaredGrant{{Key: entitlements.KeyAlbumShareGrant}, {Key: entitlements.KeyPlayAlbum}},
		ExpiresAt:      &expires,
		MaxRedemptions: cap,
		CreatedBy:      "label-admin",
	})
	require.NoError(t, err)
	return res
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestService_MintStoresOnlyHash(t *testing.T) {
	f := newFixture(t)
	res := f.mintPress(t, albumScope(t, "album-1"), nil)

	require.NotEmpty(t, res.Secret)
	assert.Contains(t, res.Secret, application.SecretPrefix)
	assert.NotEqual(t, res.Secret, res.Token.Hash)
	assert.Zero(t, countRows(t, f.db, `SELECT COUNT(*) FROM share_tokens WHERE token_hash = ? OR kind = ?`, res.Secret, res.Secret))

	stored, err := f.service.Get(context.Background(), res.Token.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Token.Hash, stored.Hash)
	assert.Equal(t, albumScope(t, "album-1"), stored.Scope)
	assert.Len(t, stored.Grants, 2)
}

func TestService_MintValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Mint(ctx, application.MintCommand{Kind: "press", CreatedBy: "a", MaxRedemptions: intPtr(0)})
	assert.ErrorIs(t, err, domain.ErrInvalidCap)

	_, err = f.service.Mint(ctx, application.MintCommand{Kind: "", CreatedBy: "a"})
	assert.ErrorIs(t, err, domain.ErrKindRequired)

	_, err = f.service.Mint(ctx, application.MintCommand{
		Kind: "promo", CreatedBy: "a", Grants: []domain.DeclaredGrant{{Key: "vip"}},
	})
	assert.ErrorIs(t, err, entitlements.ErrUnknownKey)
}

func TestService_InvalidSecret(t *testing.T) {
	f := newFixture(t)
	f.mintPress(t, albumScope(t, "album-1"), nil)

	other, _, err := crypto.NewSecretHasher(application.SecretPrefix, "").Generate()
	require.NoError(t, err)

	for _, secret := range []string{other, "not-a-token", ""} {
		res, err := f.service.Validate(context.Background(), application.ValidateCommand{
			Secret: secret, AnonID: "anon-1", Resource: "album-1", Action: "listen",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ResultInvalid, res.Code)
	}
	assert.Zero(t, countRows(t, f.db, `SELECT COUNT(*) FROM token_redemptions`))
}

func TestService_ExpiredEvenUnderCap(t *testing.T) {
	f := newFixture(t)
	minted := f.mintPress(t, albumScope(t, "album-1"), intPtr(10))
	f.clock.Advance(25 * time.Hour)

	res, err := f.service.Validate(context.Background(), application.ValidateCommand{
		Secret: minted.Secret, AnonID: "anon-1", Resource: "album-1", Action: "listen",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultExpired, res.Code)
	assert.Equal(t, minted.Token.ID, res.TokenID)
}

func TestService_RevokedAndScopeMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	minted := f.mintPress(t, albumScope(t, "album-1"), nil)

	res, err := f.service.Validate(ctx, application.ValidateCommand{
		Secret: minted.Secret, ExpectedScope: albumScope(t, "album-2"), AnonID: "anon-1", Resource: "album-2", Action: "listen",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultScopeMismatch, res.Code)

	revoked, err := f.service.Revoke(ctx, minted.Token.ID, "label-admin")
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, err = f.service.Revoke(ctx, minted.Token.ID, "label-admin")
	require.NoError(t, err)
	assert.False(t, revoked)

	res, err = f.service.Validate(ctx, application.ValidateCommand{
		Secret: minted.Secret, ExpectedScope: albumScope(t, "album-1"), AnonID: "anon-1", Resource: "album-1", Action: "listen",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultRevoked, res.Code)
}

func TestService_CapReachedOnFourthCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	minted := f.mintPress(t, albumScope(t, "album-1"), intPtr(3))

	for i := 1; i <= 3; i++ {
		res, err := f.service.Validate(ctx, application.ValidateCommand{
			Secret: minted.Secret, AnonID: "anon", Resource: "album-1", Action: "listen",
		})
		require.NoError(t, err)
		require.Equal(t, domain.ResultOK, res.Code, "call %d", i)
		assert.Equal(t, 3-i, *res.Remaining)
	}

	res, err := f.service.Validate(ctx, application.ValidateCommand{
		Secret: minted.Secret, AnonID: "anon", Resource: "album-1", Action: "listen",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultCapReached, res.Code)

	res, err = f.service.Validate(ctx, application.ValidateCommand{
		Secret: minted.Secret, AnonID: "anon", Resource: "album-1", Action: "download",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultOK, res.Code, "the cap counts per action")

	usage, err := f.service.Usage(ctx, minted.Token.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"listen": 3, "download": 1}, usage)
	assert.Equal(t, int64(1), f.metrics.GetCounter(observability.MetricTokenOutcomes,
		observability.T("op", "validate"), observability.T("code", "CAP_REACHED")))
}

func TestService_AnonymousValidateCreatesNoGrant(t *testing.T) {
	f := newFixture(t)
	minted := f.mintPress(t, albumScope(t, "album-1"), intPtr(5))

	res, err := f.service.Validate(context.Background(), application.ValidateCommand{
		Secret: minted.Secret, ExpectedScope: albumScope(t, "album-1"), AnonID: "press-session-9",
		Resource: "album-1", Action: "listen",
	})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Empty(t, res.Granted)
	assert.Zero(t, countRows(t, f.db, `SELECT COUNT(*) FROM entitlement_grants`))
	assert.Equal(t, 1, countRows(t, f.db, `SELECT COUNT(*) FROM token_redemptions WHERE anon_id = ? AND member_id IS NULL`, "press-session-9"))
}

func TestService_ValidateRequiresAnonID(t *testing.T) {
	f := newFixture(t)
	minted := f.mintPress(t, albumScope(t, "album-1"), intPtr(5))

	for _, anon := range []string{"", "  "} {
		_, err := f.service.Validate(context.Background(), application.ValidateCommand{
			Secret: minted.Secret, AnonID: anon, Resource: "album-1", Action: "listen",
		})
		assert.ErrorIs(t, err, domain.ErrAnonIDRequired)
	}
	assert.Zero(t, countRows(t, f.db, `SELECT COUNT(*) FROM token_redemptions`))
}

func TestService_RedeemGrantsOutliveToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	minted := f.mintPress(t, albumScope(t, "album-1"), intPtr(5))

	res, err := f.service.Redeem(ctx, application.RedeemCommand{
		Secret: minted.Secret, MemberID: "m1", ExpectedScope: albumScope(t, "album-1"),
		Resource: "album-1", Action: "redeem",
	})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.ElementsMatch(t, []entitlements.Key{entitlements.KeyAlbumShareGrant, entitlements.KeyPlayAlbum}, res.Granted)

	_, err = f.service.Redeem(ctx, application.RedeemCommand{
		Secret: minted.Secret, MemberID: "m1", Resource: "album-1", Action: "redeem",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countRows(t, f.db, `SELECT COUNT(*) FROM entitlement_grants WHERE member_id = 'm1'`),
		"repeat redemption does not duplicate grants")

	f.clock.Advance(48 * time.Hour)
	grants, err := f.ledger.ListActive(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, grants, 2)
	for _, g := range grants {
		assert.Equal(t, albumScope(t, "album-1"), g.Scope)
		assert.Equal(t, entitlements.SourceShareToken, g.Source)
		assert.Equal(t, "share_token:"+minted.Token.ID.String(), g.GrantedBy)
	}

	res, err = f.service.Redeem(ctx, application.RedeemCommand{
		Secret: minted.Secret, MemberID: "m1", Resource: "album-1", Action: "redeem",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultExpired, res.Code)
}

func TestService_RedeemRequiresMember(t *testing.T) {
	f := newFixture(t)
	minted := f.mintPress(t, albumScope(t, "album-1"), nil)
	_, err := f.service.Redeem(context.Background(), application.RedeemCommand{
		Secret: minted.Secret, Resource: "album-1", Action: "redeem",
	})
	assert.ErrorIs(t, err, entitlements.ErrMemberRequired)
}

func TestService_StagesTokenEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	minted := f.mintPress(t, albumScope(t, "album-1"), nil)
	_, err := f.service.Redeem(ctx, application.RedeemCommand{
		Secret: minted.Secret, MemberID: "m1", Resource: "album-1", Action: "redeem",
	})
	require.NoError(t, err)

	pending, err := f.outbox.GetUnpublished(ctx, 20)
	require.NoError(t, err)
	keys := make([]string, len(pending))
	for i, m := range pending {
		keys[i] = m.RoutingKey
		assert.NotContains(t, string(m.Payload), minted.Secret)
	}
	assert.Equal(t, []string{
		domain.RoutingKeyTokenMinted,
		entitlements.RoutingKeyGrantCreated,
		entitlements.RoutingKeyGrantCreated,
		domain.RoutingKeyTokenRedeemed,
	}, keys)
}

func TestService_ConcurrentRedemptionsNeverExceedCap(t *testing.T) {
	f := newFixture(t)
	minted := f.mintPress(t, albumScope(t, "album-1"), intPtr(3))

	const callers = 12
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = make(map[domain.ResultCode]int)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.service.Validate(context.Background(), application.ValidateCommand{
				Secret: minted.Secret, AnonID: "anon", Resource: "album-1", Action: "listen",
			})
			if err != nil {
				return
			}
			mu.Lock()
			codes[res.Code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, codes[domain.ResultOK])
	assert.Equal(t, callers-3, codes[domain.ResultCapReached])
	assert.Equal(t, 3, countRows(t, f.db, `SELECT COUNT(*) FROM token_redemptions`))
}
