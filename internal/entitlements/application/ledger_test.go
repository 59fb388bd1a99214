package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/entitlements/application"
	"github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryGrantRepo struct {
	mu     sync.Mutex
	grants []*domain.Grant
	err    error
}

func (r *memoryGrantRepo) InsertIfAbsent(_ context.Context, g *domain.Grant) (*domain.Grant, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, false, r.err
	}
	for _, existing := range r.grants {
		if existing.Matches(g.MemberID, g.Key, g.Scope) && existing.IsActive(g.CreatedAt) {
			return existing, false, nil
		}
	}
	r.grants = append(r.grants, g)
	return g, true, nil
}

func (r *memoryGrantRepo) RevokeActive(_ context.Context, memberID string, key domain.Key, scope domain.Scope, rev domain.Revocation) ([]*domain.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Grant
	for _, g := range r.grants {
		if g.Matches(memberID, key, scope) && g.IsActive(rev.At) {
			g.Revoke(rev)
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *memoryGrantRepo) RevokeByID(_ context.Context, id uuid.UUID, rev domain.Revocation) (*domain.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.ID == id && g.IsActive(rev.At) {
			g.Revoke(rev)
			return g, nil
		}
	}
	return nil, nil
}

func (r *memoryGrantRepo) ListActive(_ context.Context, memberID string, now time.Time) ([]*domain.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*domain.Grant
	for _, g := range r.grants {
		if g.MemberID == memberID && g.IsActive(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *memoryGrantRepo) History(_ context.Context, memberID string) ([]*domain.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Grant
	for i := len(r.grants) - 1; i >= 0; i-- {
		if r.grants[i].MemberID == memberID {
			out = append(out, r.grants[i])
		}
	}
	return out, nil
}

type memoryOutbox struct {
	mu   sync.Mutex
	msgs []*outbox.Message
}

func (o *memoryOutbox) SaveBatch(_ context.Context, msgs []*outbox.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msgs...)
	return nil
}

func (o *memoryOutbox) routingKeys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.msgs))
	for _, m := range o.msgs {
		keys = append(keys, m.RoutingKey)
	}
	return keys
}

func (o *memoryOutbox) GetUnpublished(context.Context, int) ([]*outbox.Message, error) { return nil, nil }
func (o *memoryOutbox) MarkPublished(context.Context, int64) error                     { return nil }
func (o *memoryOutbox) MarkFailed(context.Context, int64, string, time.Time) error     { return nil }
func (o *memoryOutbox) MarkDead(context.Context, int64, string) error                  { return nil }
func (o *memoryOutbox) DeleteOld(context.Context, time.Time) (int64, error)            { return 0, nil }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newLedger(repo domain.GrantRepository, ob outbox.Repository, c *clock, m observability.Metrics) *application.Ledger {
	return application.NewLedger(repo, ob, nil,
		application.WithLedgerClock(c.now),
		application.WithLedgerMetrics(m),
	)
}

func TestLedger_GrantIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := &memoryGrantRepo{}
	ob := &memoryOutbox{}
	metrics := observability.NewInMemoryMetrics()
	c := &clock{t: time.Now()}
	ledger := newLedger(repo, ob, c, metrics)

	cmd := application.GrantCommand{MemberID: "m1", Key: domain.KeyPatron, GrantedBy: "ops"}
	first, err := ledger.Grant(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, domain.SourceSystem, first.Grant.Source)

	second, err := ledger.Grant(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Grant.ID, second.Grant.ID)

	active, err := ledger.ListActive(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	assert.Equal(t, []string{domain.RoutingKeyGrantCreated}, ob.routingKeys())
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricGrantsCreated, observability.T("key", "patron")))
}

func TestLedger_GrantValidation(t *testing.T) {
	ledger := newLedger(&memoryGrantRepo{}, nil, &clock{t: time.Now()}, observability.NoopMetrics{})

	_, err := ledger.Grant(context.Background(), application.GrantCommand{Key: domain.KeyFriend})
	assert.ErrorIs(t, err, domain.ErrMemberRequired)

	_, err = ledger.Grant(context.Background(), application.GrantCommand{MemberID: "m1", Key: "vip"})
	assert.ErrorIs(t, err, domain.ErrUnknownKey)
}

func TestLedger_ListActiveKeysSkipsRevokedAndExpired(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Now()}
	ledger := newLedger(&memoryGrantRepo{}, &memoryOutbox{}, c, observability.NoopMetrics{})

	soon := c.t.Add(time.Hour)
	_, err := ledger.Grant(ctx, application.GrantCommand{MemberID: "m1", Key: domain.KeyFriend, ExpiresAt: &soon})
	require.NoError(t, err)
	_, err = ledger.Grant(ctx, application.GrantCommand{MemberID: "m1", Key: domain.KeyAdmin})
	require.NoError(t, err)
	_, err = ledger.Grant(ctx, application.GrantCommand{MemberID: "m1", Key: domain.KeyPlayAlbum})
	require.NoError(t, err)

	n, err := ledger.Revoke(ctx, application.RevokeCommand{MemberID: "m1", Key: domain.KeyAdmin, RevokedBy: "ops"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	keys, err := ledger.ListActiveKeys(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"friend", "play_album"}, keys.Strings())

	c.advance(2 * time.Hour)
	keys, err = ledger.ListActiveKeys(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"play_album"}, keys.Strings())
}

func TestLedger_Revoke(t *testing.T) {
	ctx := context.Background()
	ob := &memoryOutbox{}
	ledger := newLedger(&memoryGrantRepo{}, ob, &clock{t: time.Now()}, observability.NoopMetrics{})
	r1, _ := domain.Resource("album-1")

	res, err := ledger.Grant(ctx, application.GrantCommand{MemberID: "m1", Key: domain.KeyPlayAlbum, Scope: r1})
	require.NoError(t, err)

	n, err := ledger.Revoke(ctx, application.RevokeCommand{MemberID: "m1", Key: domain.KeyPlayAlbum, Scope: domain.Global()})
	require.NoError(t, err)
	assert.Zero(t, n, "different scope does not match")

	n, err = ledger.RevokeByID(ctx, res.Grant.ID, "ops", "refund")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = ledger.RevokeByID(ctx, res.Grant.ID, "ops", "again")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = ledger.Revoke(ctx, application.RevokeCommand{Key: domain.KeyPlayAlbum})
	assert.ErrorIs(t, err, domain.ErrMemberRequired)

	assert.Equal(t, []string{domain.RoutingKeyGrantCreated, domain.RoutingKeyGrantRevoked}, ob.routingKeys())

	history, err := ledger.History(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "refund", history[0].RevokeReason)
}

func TestLedger_RegrantAfterRevoke(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Now()}
	ledger := newLedger(&memoryGrantRepo{}, nil, c, observability.NoopMetrics{})

	cmd := application.GrantCommand{MemberID: "m1", Key: domain.KeyPartner}
	_, err := ledger.Grant(ctx, cmd)
	require.NoError(t, err)
	_, err = ledger.Revoke(ctx, application.RevokeCommand{MemberID: "m1", Key: domain.KeyPartner})
	require.NoError(t, err)

	c.advance(time.Second)
	res, err := ledger.Grant(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, res.Created)

	history, err := ledger.History(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestLedger_StoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	ledger := newLedger(&memoryGrantRepo{err: boom}, nil, &clock{t: time.Now()}, observability.NoopMetrics{})

	_, err := ledger.ListActiveKeys(context.Background(), "m1")
	assert.ErrorIs(t, err, boom)

	_, err = ledger.Grant(context.Background(), application.GrantCommand{MemberID: "m1", Key: domain.KeyFriend})
	assert.ErrorIs(t, err, boom)
}
