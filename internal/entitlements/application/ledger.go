package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	sharedApplication "github.com/felixgeelhaar/gatehouse/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/gatehouse/internal/shared/domain"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/google/uuid"
)

// GrantCommand contains the data needed to grant a key.
type GrantCommand struct {
	MemberID  string
	Key       domain.Key
	Scope     domain.Scope
	Meta      map[string]any
	ExpiresAt *time.Time
	GrantedBy string
	Reason    string
	Source    string
}

// GrantResult reports the active grant for the triple and whether this call created it.
type GrantResult struct {
	Grant   *domain.Grant
	Created bool
}

// RevokeCommand revokes a key by (member, key, scope).
type RevokeCommand struct {
	MemberID  string
	Key       domain.Key
	Scope     domain.Scope
	RevokedBy string
	Reason    string
}

// Ledger is the append-only entitlement store with active projections.
type Ledger struct {
	grants  domain.GrantRepository
	outbox  outbox.Repository
	uow     sharedApplication.UnitOfWork
	logger  *slog.Logger
	metrics observability.Metrics
	now     func() time.Time
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLedgerClock overrides the time source.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithLedgerMetrics sets the metrics sink.
func WithLedgerMetrics(m observability.Metrics) LedgerOption {
	return func(l *Ledger) { l.metrics = m }
}

// WithLedgerLogger sets the logger.
func WithLedgerLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a Ledger. outboxRepo and uow may be nil.
func NewLedger(grants domain.GrantRepository, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		grants:  grants,
		outbox:  outboxRepo,
		uow:     uow,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Grant inserts a grant unless one is already active for the triple.
// A duplicate call returns the existing grant with Created false.
func (l *Ledger) Grant(ctx context.Context, cmd GrantCommand) (GrantResult, error) {
	g, err := domain.NewGrant(cmd.MemberID, cmd.Key, cmd.Scope, l.now())
	if err != nil {
		return GrantResult{}, err
	}
	g.ScopeMeta = cmd.Meta
	g.ExpiresAt = cmd.ExpiresAt
	g.GrantedBy = cmd.GrantedBy
	g.Reason = cmd.Reason
	g.Source = cmd.Source
	if g.Source == "" {
		g.Source = domain.SourceSystem
	}

	result, err := sharedApplication.WithUnitOfWorkResult(ctx, l.uow, func(txCtx context.Context) (GrantResult, error) {
		stored, created, err := l.grants.InsertIfAbsent(txCtx, g)
		if err != nil {
			return GrantResult{}, err
		}
		if created {
			if err := l.stage(txCtx, cmd.GrantedBy, domain.NewGrantCreated(stored)); err != nil {
				return GrantResult{}, err
			}
		}
		return GrantResult{Grant: stored, Created: created}, nil
	})
	if err != nil {
		return GrantResult{}, fmt.Errorf("grant %s to %s: %w", cmd.Key, g.MemberID, err)
	}

	if result.Created {
		l.metrics.Counter(observability.MetricGrantsCreated, 1, observability.T("key", string(g.Key)))
		l.logger.InfoContext(ctx, "grant created",
			"member_id", g.MemberID, "key", g.Key, "scope", g.Scope.String(), "source", g.Source)
	}
	return result, nil
}

// Revoke revokes the active grants for the triple and returns how many changed.
func (l *Ledger) Revoke(ctx context.Context, cmd RevokeCommand) (int, error) {
	memberID := strings.TrimSpace(cmd.MemberID)
	if memberID == "" {
		return 0, domain.ErrMemberRequired
	}
	if !cmd.Key.Valid() {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownKey, cmd.Key)
	}

	rev := domain.Revocation{At: l.now(), By: cmd.RevokedBy, Reason: cmd.Reason}
	return l.revoke(ctx, cmd.RevokedBy, func(txCtx context.Context) ([]*domain.Grant, error) {
		return l.grants.RevokeActive(txCtx, memberID, cmd.Key, cmd.Scope, rev)
	})
}

// RevokeByID revokes a single grant. An unknown or inactive id changes nothing.
func (l *Ledger) RevokeByID(ctx context.Context, id uuid.UUID, revokedBy, reason string) (int, error) {
	rev := domain.Revocation{At: l.now(), By: revokedBy, Reason: reason}
	return l.revoke(ctx, revokedBy, func(txCtx context.Context) ([]*domain.Grant, error) {
		g, err := l.grants.RevokeByID(txCtx, id, rev)
		if err != nil || g == nil {
			return nil, err
		}
		return []*domain.Grant{g}, nil
	})
}

func (l *Ledger) revoke(ctx context.Context, actor string, fn func(ctx context.Context) ([]*domain.Grant, error)) (int, error) {
	revoked, err := sharedApplication.WithUnitOfWorkResult(ctx, l.uow, func(txCtx context.Context) ([]*domain.Grant, error) {
		revoked, err := fn(txCtx)
		if err != nil {
			return nil, err
		}
		events := make([]sharedDomain.DomainEvent, 0, len(revoked))
		for _, g := range revoked {
			events = append(events, domain.NewGrantRevoked(g))
		}
		if err := l.stage(txCtx, actor, events...); err != nil {
			return nil, err
		}
		return revoked, nil
	})
	if err != nil {
		return 0, fmt.Errorf("revoke: %w", err)
	}

	for _, g := range revoked {
		l.metrics.Counter(observability.MetricGrantsRevoked, 1, observability.T("key", string(g.Key)))
		l.logger.InfoContext(ctx, "grant revoked",
			"grant_id", g.ID, "member_id", g.MemberID, "key", g.Key, "scope", g.Scope.String(), "revoked_by", actor)
	}
	return len(revoked), nil
}

// ListActiveKeys returns the keys active for the member, at any scope.
func (l *Ledger) ListActiveKeys(ctx context.Context, memberID string) (domain.KeySet, error) {
	grants, err := l.ListActive(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return domain.ActiveKeys(grants, l.now()), nil
}

// ListActive returns the member's active grants. It always reads the store.
func (l *Ledger) ListActive(ctx context.Context, memberID string) ([]*domain.Grant, error) {
	grants, err := l.grants.ListActive(ctx, memberID, l.now())
	if err != nil {
		return nil, fmt.Errorf("list active grants: %w", err)
	}
	return grants, nil
}

// History returns every grant the member ever held, newest first.
func (l *Ledger) History(ctx context.Context, memberID string) ([]*domain.Grant, error) {
	grants, err := l.grants.History(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("grant history: %w", err)
	}
	return grants, nil
}

func (l *Ledger) stage(ctx context.Context, actor string, events ...sharedDomain.DomainEvent) error {
	if l.outbox == nil || len(events) == 0 {
		return nil
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, actor))
	msgs, err := outbox.NewMessages(events)
	if err != nil {
		return err
	}
	return l.outbox.SaveBatch(ctx, msgs)
}
