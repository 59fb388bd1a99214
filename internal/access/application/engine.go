package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/access/domain"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
)

// GrantReader lists a member's active grants. The entitlement ledger implements it.
type GrantReader interface {
	ListActive(ctx context.Context, memberID string) ([]*entitlements.Grant, error)
}

// Engine evaluates access requirements against the ledger and resource policies.
// It holds no state between calls.
type Engine struct {
	grants   GrantReader
	policies domain.PolicyProvider
	logger   *slog.Logger
	metrics  observability.Metrics
	now      func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides the time source.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithEngineLogger sets the logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithEngineMetrics sets the metrics sink.
func WithEngineMetrics(m observability.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a decision engine.
func NewEngine(grants GrantReader, policies domain.PolicyProvider, opts ...EngineOption) *Engine {
	e := &Engine{
		grants:   grants,
		policies: policies,
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide returns the access decision for memberID. Store failures come back
// as errors wrapping ErrLedgerUnavailable or ErrPolicyUnavailable, never as a denial.
func (e *Engine) Decide(ctx context.Context, memberID string, req domain.Requirement, dc domain.DecisionContext) (domain.Decision, error) {
	timer := observability.StartTimer(e.metrics, observability.MetricDecisionDuration)

	scope, decision, err := e.evaluate(ctx, strings.TrimSpace(memberID), req)
	if err != nil {
		e.logger.WarnContext(ctx, "access decision failed",
			"member_id", memberID,
			"scope", req.ScopeID,
			"action", dc.Action,
			"correlation_id", dc.CorrelationID,
			"error", err,
		)
		return domain.Decision{}, err
	}

	timer.Stop(observability.T("code", string(decision.Code)))
	e.metrics.Counter(observability.MetricDecisions, 1, observability.T("code", string(decision.Code)))
	e.logger.DebugContext(ctx, "access decision",
		"member_id", memberID,
		"scope", scope,
		"action", dc.Action,
		"code", decision.Code,
		"correlation_id", dc.CorrelationID,
	)
	return decision, nil
}

func (e *Engine) evaluate(ctx context.Context, memberID string, req domain.Requirement) (string, domain.Decision, error) {
	if memberID == "" {
		return req.ScopeID, domain.Deny(domain.CodeAuthRequired, domain.ActionLogin, "sign in to continue"), nil
	}
	for _, k := range req.RequiredKeys {
		if !k.Valid() {
			return req.ScopeID, domain.Deny(domain.CodeInvalidRequest, domain.ActionNone,
				fmt.Sprintf("unknown entitlement %q", k)), nil
		}
	}

	if !req.Resource {
		decision, err := e.decideGlobal(ctx, memberID, req.RequiredKeys)
		return entitlements.Global().String(), decision, err
	}

	scope, err := parseResourceScope(req.ScopeID)
	if err != nil {
		return req.ScopeID, domain.Deny(domain.CodeInvalidRequest, domain.ActionNone, "a resource scope is required"), nil
	}
	decision, err := e.decideResource(ctx, memberID, scope, req.RequiredKeys)
	return scope.String(), decision, err
}

func (e *Engine) decideGlobal(ctx context.Context, memberID string, required []entitlements.Key) (domain.Decision, error) {
	if len(required) == 0 {
		return domain.Allow(), nil
	}
	grants, err := e.activeGrants(ctx, memberID)
	if err != nil {
		return domain.Decision{}, err
	}
	held := entitlements.KeysCovering(grants, entitlements.Global(), e.now())
	return checkRequired(held, required), nil
}

func (e *Engine) decideResource(ctx context.Context, memberID string, scope entitlements.Scope, required []entitlements.Key) (domain.Decision, error) {
	resourceID, _ := scope.ResourceID()

	policy, err := e.policies.Get(ctx, resourceID)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("%w: %v", domain.ErrPolicyUnavailable, err)
	}
	if policy == nil {
		policy = &domain.Policy{ResourceID: resourceID}
	}

	grants, err := e.activeGrants(ctx, memberID)
	if err != nil {
		return domain.Decision{}, err
	}
	now := e.now()
	held := entitlements.KeysCovering(grants, scope, now)

	if policy.EmbargoedAt(now) && !hasOverride(grants, scope, now) && !policy.AllowsEarlyAccess(entitlements.DeriveTier(held)) {
		if policy.HasEarlyAccess() {
			return domain.Deny(domain.CodeEmbargo, domain.ActionSubscribe,
				"not yet released; early access is available to "+strings.Join(policy.TierNames(), ", ")), nil
		}
		return domain.Deny(domain.CodeEmbargo, domain.ActionWait,
			"not yet released; available from "+policy.ReleaseAt.UTC().Format(time.RFC3339)), nil
	}

	if policy.MinTier != entitlements.TierNone && !held.HasAny(entitlements.TierKeysAtOrAbove(policy.MinTier)) {
		return domain.Deny(domain.CodeTierRequired, domain.ActionSubscribe,
			"requires "+policy.MinTier.String()+" membership or higher"), nil
	}

	return checkRequired(held, required), nil
}

func (e *Engine) activeGrants(ctx context.Context, memberID string) ([]*entitlements.Grant, error) {
	grants, err := e.grants.ListActive(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return grants, nil
}

func checkRequired(held entitlements.KeySet, required []entitlements.Key) domain.Decision {
	for _, k := range required {
		if !held.Has(k) {
			return domain.Deny(domain.CodeEntitlementRequired, domain.ActionSubscribe,
				"missing entitlement "+string(k))
		}
	}
	return domain.Allow()
}

// hasOverride reports whether an active override grant targets exactly this resource.
func hasOverride(grants []*entitlements.Grant, scope entitlements.Scope, now time.Time) bool {
	for _, g := range grants {
		if g.Key == entitlements.KeyAlbumShareGrant && g.Scope == scope && g.IsActive(now) {
			return true
		}
	}
	return false
}

func parseResourceScope(scopeID string) (entitlements.Scope, error) {
	scope, err := entitlements.ParseScope(scopeID)
	if err != nil {
		return entitlements.Scope{}, err
	}
	if scope.IsGlobal() {
		return entitlements.Scope{}, entitlements.ErrInvalidScope
	}
	return scope, nil
}
