package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/access/domain"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker around a policy provider.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		MaxRequests:      1,
	}
}

// BreakerProvider fails fast once the wrapped provider keeps failing.
// Every failure, including an open breaker, wraps domain.ErrPolicyUnavailable.
type BreakerProvider struct {
	next    domain.PolicyProvider
	breaker *gobreaker.CircuitBreaker[*domain.Policy]
}

// NewBreakerProvider wraps next with a circuit breaker.
func NewBreakerProvider(next domain.PolicyProvider, cfg BreakerConfig, logger *slog.Logger, metrics observability.Metrics) *BreakerProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}

	settings := gobreaker.Settings{
		Name:        "policy-provider",
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.Gauge(observability.MetricPolicyBreakerState, float64(to))
		},
	}

	return &BreakerProvider{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[*domain.Policy](settings),
	}
}

// Get reads through the breaker.
func (b *BreakerProvider) Get(ctx context.Context, resourceID string) (*domain.Policy, error) {
	policy, err := b.breaker.Execute(func() (*domain.Policy, error) {
		return b.next.Get(ctx, resourceID)
	})
	if err == nil {
		return policy, nil
	}
	if errors.Is(err, domain.ErrPolicyUnavailable) {
		return nil, err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit open", domain.ErrPolicyUnavailable)
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrPolicyUnavailable, err)
}

// State returns the breaker state name.
func (b *BreakerProvider) State() string {
	return b.breaker.State().String()
}
