package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/shared/domain"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/persistence"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/sqlitetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleEvent struct {
	domain.BaseEvent
	MemberID string `json:"member_id"`
}

func newSampleEvent() *sampleEvent {
	e := &sampleEvent{
		BaseEvent: domain.NewBaseEvent(uuid.New(), "Grant", "entitlements.grant.created"),
		MemberID:  "member-1",
	}
	e.SetMetadata(domain.EventMetadata{CorrelationID: "corr-9", Actor: "admin"})
	return e
}

func TestSQLiteRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewSQLiteRepository(sqlitetest.Open(t))

	msgs, err := outbox.NewMessages([]domain.DomainEvent{newSampleEvent(), newSampleEvent()})
	require.NoError(t, err)
	require.NoError(t, repo.SaveBatch(ctx, msgs))
	assert.NotZero(t, msgs[0].ID)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, msgs[0].EventID, pending[0].EventID)
	assert.JSONEq(t, `{"correlation_id":"corr-9","actor":"admin"}`, string(pending[0].Metadata))
	assert.Contains(t, string(pending[0].Payload), `"member_id":"member-1"`)

	require.NoError(t, repo.MarkPublished(ctx, msgs[0].ID))
	require.NoError(t, repo.MarkFailed(ctx, msgs[1].ID, "broker down", time.Now().Add(time.Hour)))

	pending, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "published and backed-off messages are not due")

	require.NoError(t, repo.MarkDead(ctx, msgs[1].ID, "gave up"))

	n, err := repo.DeleteOld(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteRepository_SaveBatchJoinsTransaction(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.Open(t)
	repo := outbox.NewSQLiteRepository(db)
	uow := persistence.NewSQLiteUnitOfWork(db)

	txCtx, err := uow.Begin(ctx)
	require.NoError(t, err)

	msgs, err := outbox.NewMessages([]domain.DomainEvent{newSampleEvent()})
	require.NoError(t, err)
	require.NoError(t, repo.SaveBatch(txCtx, msgs))
	require.NoError(t, uow.Rollback(txCtx))

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLiteRepository_MarkUnknownMessage(t *testing.T) {
	repo := outbox.NewSQLiteRepository(sqlitetest.Open(t))

	err := repo.MarkPublished(context.Background(), 404)
	assert.ErrorIs(t, err, outbox.ErrMessageNotFound)
}
