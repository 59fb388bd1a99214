package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entApplication "github.com/felixgeelhaar/gatehouse/internal/entitlements/application"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	sharedApplication "github.com/felixgeelhaar/gatehouse/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/gatehouse/internal/shared/domain"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/google/uuid"
)

// SecretPrefix marks share-token secrets.
const SecretPrefix = "shr_"

// SecretHasher issues and hashes bearer secrets.
type SecretHasher interface {
	Generate() (secret, hash string, err error)
	Hash(secret string) (string, error)
}

// Granter writes ledger grants. The entitlement ledger implements it.
type Granter interface {
	Grant(ctx context.Context, cmd entApplication.GrantCommand) (entApplication.GrantResult, error)
}

// MintCommand describes a new token.
type MintCommand struct {
	Kind           string
	Scope          entitlements.Scope
	Grants         []domain.DeclaredGrant
	ExpiresAt      *time.Time
	MaxRedemptions *int
	CreatedBy      string
}

// MintResult carries the only copy of the plaintext secret.
type MintResult struct {
	Token  *domain.ShareToken
	Secret string
}

// ValidateCommand authorizes one anonymous request with a token.
type ValidateCommand struct {
	Secret        string
	ExpectedScope entitlements.Scope
	AnonID        string
	Resource      string
	Action        string
}

// RedeemCommand converts a token into durable grants for a member.
type RedeemCommand struct {
	Secret        string
	MemberID      string
	ExpectedScope entitlements.Scope
	Resource      string
	Action        string
}

// Service mints, validates, redeems and revokes share tokens.
type Service struct {
	tokens  domain.TokenRepository
	granter Granter
	hasher  SecretHasher
	outbox  outbox.Repository
	uow     sharedApplication.UnitOfWork
	logger  *slog.Logger
	metrics observability.Metrics
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithOutbox stages token events in the outbox.
func WithOutbox(repo outbox.Repository) Option {
	return func(s *Service) { s.outbox = repo }
}

// WithSecretHasher replaces the default unkeyed hasher.
func WithSecretHasher(h SecretHasher) Option {
	return func(s *Service) { s.hasher = h }
}

// NewService creates the share-token service. The unit of work must be the
// same one the ledger repositories join, so grants commit with the log row.
func NewService(tokens domain.TokenRepository, granter Granter, uow sharedApplication.UnitOfWork, opts ...Option) *Service {
	s := &Service{
		tokens:  tokens,
		granter: granter,
		hasher:  crypto.NewSecretHasher(SecretPrefix, ""),
		uow:     uow,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mint creates a token and returns its secret once. Only the hash is stored.
func (s *Service) Mint(ctx context.Context, cmd MintCommand) (MintResult, error) {
	if cmd.MaxRedemptions != nil && *cmd.MaxRedemptions <= 0 {
		return MintResult{}, domain.ErrInvalidCap
	}
	for _, g := range cmd.Grants {
		if !g.Key.Valid() {
			return MintResult{}, fmt.Errorf("%w: %q", entitlements.ErrUnknownKey, g.Key)
		}
	}

	secret, hash, err := s.hasher.Generate()
	if err != nil {
		return MintResult{}, fmt.Errorf("generate secret: %w", err)
	}
	token, err := domain.NewShareToken(hash, cmd.Kind, cmd.Scope, cmd.Grants, cmd.CreatedBy, s.now())
	if err != nil {
		return MintResult{}, err
	}
	if cmd.ExpiresAt != nil {
		expires := cmd.ExpiresAt.UTC()
		token.ExpiresAt = &expires
	}
	token.MaxRedemptions = cmd.MaxRedemptions

	err = sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		if err := s.tokens.Create(txCtx, token); err != nil {
			return err
		}
		return s.stage(txCtx, token.CreatedBy, domain.NewTokenMinted(token))
	})
	if err != nil {
		return MintResult{}, fmt.Errorf("mint token: %w", err)
	}

	s.metrics.Counter(observability.MetricTokensMinted, 1, observability.T("kind", token.Kind))
	s.logger.InfoContext(ctx, "share token minted",
		"token_id", token.ID, "kind", token.Kind, "scope", token.Scope.String(), "created_by", token.CreatedBy)
	return MintResult{Token: token, Secret: secret}, nil
}

// Validate authorizes one anonymous request. It logs the use and never grants.
func (s *Service) Validate(ctx context.Context, cmd ValidateCommand) (domain.Result, error) {
	anonID := strings.TrimSpace(cmd.AnonID)
	if anonID == "" {
		return domain.Result{}, domain.ErrAnonIDRequired
	}
	if strings.TrimSpace(cmd.Action) == "" {
		return domain.Result{}, domain.ErrActionRequired
	}
	return s.run(ctx, "validate", cmd.Secret, cmd.ExpectedScope, func(token *domain.ShareToken) *domain.Redemption {
		return domain.NewRedemption(token.ID, "", anonID, cmd.Resource, cmd.Action, s.now())
	}, nil)
}

// Redeem authorizes the request and grants every declared grant to the member.
// Grants are idempotent, so repeat redemptions by one member add nothing.
func (s *Service) Redeem(ctx context.Context, cmd RedeemCommand) (domain.Result, error) {
	memberID := strings.TrimSpace(cmd.MemberID)
	if memberID == "" {
		return domain.Result{}, entitlements.ErrMemberRequired
	}
	if strings.TrimSpace(cmd.Action) == "" {
		return domain.Result{}, domain.ErrActionRequired
	}
	return s.run(ctx, "redeem", cmd.Secret, cmd.ExpectedScope, func(token *domain.ShareToken) *domain.Redemption {
		return domain.NewRedemption(token.ID, memberID, "", cmd.Resource, cmd.Action, s.now())
	}, func(txCtx context.Context, token *domain.ShareToken) ([]entitlements.Key, error) {
		return s.materialize(txCtx, token, memberID)
	})
}

type grantFunc func(ctx context.Context, token *domain.ShareToken) ([]entitlements.Key, error)

// run is the shared pipeline. The token row stays locked from lookup to the
// log insert, so concurrent calls cannot exceed the cap.
func (s *Service) run(ctx context.Context, op, secret string, expected entitlements.Scope, newLog func(*domain.ShareToken) *domain.Redemption, grant grantFunc) (domain.Result, error) {
	hash, err := s.hasher.Hash(strings.TrimSpace(secret))
	if err != nil {
		return s.outcome(ctx, op, domain.Failed(domain.ResultInvalid)), nil
	}

	result, err := sharedApplication.WithUnitOfWorkResult(ctx, s.uow, func(txCtx context.Context) (domain.Result, error) {
		token, err := s.tokens.LockByHash(txCtx, hash)
		if errors.Is(err, domain.ErrTokenNotFound) {
			return domain.Failed(domain.ResultInvalid), nil
		}
		if err != nil {
			return domain.Result{}, err
		}

		now := s.now()
		if code := token.Check(expected, now); code != domain.ResultOK {
			return domain.Result{Code: code, TokenID: token.ID, Kind: token.Kind, Scope: token.Scope}, nil
		}

		entry := newLog(token)
		used, err := s.tokens.CountRedemptions(txCtx, token.ID, entry.Action)
		if err != nil {
			return domain.Result{}, err
		}
		if token.CapReached(used) {
			return domain.Result{
				Code: domain.ResultCapReached, TokenID: token.ID, Kind: token.Kind,
				Scope: token.Scope, Remaining: token.Remaining(used),
			}, nil
		}

		if err := s.tokens.AppendRedemption(txCtx, entry); err != nil {
			return domain.Result{}, err
		}

		var granted []entitlements.Key
		if grant != nil {
			if granted, err = grant(txCtx, token); err != nil {
				return domain.Result{}, err
			}
		}

		keys := make([]string, len(granted))
		for i, k := range granted {
			keys[i] = string(k)
		}
		actor := entry.MemberID
		if actor == "" {
			actor = "anon:" + entry.AnonID
		}
		if err := s.stage(txCtx, actor, domain.NewTokenRedeemed(token, entry, keys)); err != nil {
			return domain.Result{}, err
		}

		return domain.Result{
			Code: domain.ResultOK, TokenID: token.ID, Kind: token.Kind, Scope: token.Scope,
			Granted: granted, Remaining: token.Remaining(used + 1),
		}, nil
	})
	if err != nil {
		return domain.Result{}, fmt.Errorf("%s token: %w", op, err)
	}
	return s.outcome(ctx, op, result), nil
}

func (s *Service) materialize(ctx context.Context, token *domain.ShareToken, memberID string) ([]entitlements.Key, error) {
	granted := make([]entitlements.Key, 0, len(token.Grants))
	for _, g := range token.Grants {
		_, err := s.granter.Grant(ctx, entApplication.GrantCommand{
			MemberID:  memberID,
			Key:       g.Key,
			Scope:     g.ResolveScope(token.Scope),
			Meta:      g.Meta,
			ExpiresAt: g.ExpiresAt,
			GrantedBy: "share_token:" + token.ID.String(),
			Reason:    "redeemed " + token.Kind + " token",
			Source:    entitlements.SourceShareToken,
		})
		if err != nil {
			return nil, err
		}
		granted = append(granted, g.Key)
	}
	return granted, nil
}

// Revoke revokes a token. Revoking twice is a no-op that reports false.
func (s *Service) Revoke(ctx context.Context, tokenID uuid.UUID, revokedBy string) (bool, error) {
	revoked, err := sharedApplication.WithUnitOfWorkResult(ctx, s.uow, func(txCtx context.Context) (bool, error) {
		token, err := s.tokens.FindByID(txCtx, tokenID)
		if err != nil {
			return false, err
		}
		at := s.now()
		changed, err := s.tokens.Revoke(txCtx, tokenID, revokedBy, at)
		if err != nil || !changed {
			return false, err
		}
		token.Revoke(revokedBy, at)
		return true, s.stage(txCtx, revokedBy, domain.NewTokenRevoked(token))
	})
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	if revoked {
		s.logger.InfoContext(ctx, "share token revoked", "token_id", tokenID, "revoked_by", revokedBy)
	}
	return revoked, nil
}

// Usage returns redemption counts per action for a token.
func (s *Service) Usage(ctx context.Context, tokenID uuid.UUID) (map[string]int, error) {
	if _, err := s.tokens.FindByID(ctx, tokenID); err != nil {
		return nil, err
	}
	usage, err := s.tokens.Usage(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("token usage: %w", err)
	}
	return usage, nil
}

// Get returns a token by id.
func (s *Service) Get(ctx context.Context, tokenID uuid.UUID) (*domain.ShareToken, error) {
	return s.tokens.FindByID(ctx, tokenID)
}

func (s *Service) outcome(ctx context.Context, op string, r domain.Result) domain.Result {
	s.metrics.Counter(observability.MetricTokenOutcomes, 1,
		observability.T("op", op), observability.T("code", string(r.Code)))
	s.logger.InfoContext(ctx, "share token checked", "op", op, "code", r.Code, "token_id", r.TokenID)
	return r
}

func (s *Service) stage(ctx context.Context, actor string, events ...sharedDomain.DomainEvent) error {
	if s.outbox == nil {
		return nil
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, actor))
	msgs, err := outbox.NewMessages(events)
	if err != nil {
		return err
	}
	return s.outbox.SaveBatch(ctx, msgs)
}
