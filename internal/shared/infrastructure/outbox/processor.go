package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/shared/domain"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
)

// ProcessorConfig tunes the relay loop.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// DefaultProcessorConfig returns the worker defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     100 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
	}
}

// ProcessorOption customises a Processor.
type ProcessorOption func(*Processor)

// WithProcessorMetrics records one counter per relay outcome.
func WithProcessorMetrics(m observability.Metrics) ProcessorOption {
	return func(p *Processor) {
		if m != nil {
			p.metrics = m
		}
	}
}

// Processor relays staged grant and token events to the broker. Delivery is
// at least once: a message is marked published only after the broker accepts it.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// NewProcessor creates a relay over repo.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger.With("component", "outbox"),
		metrics:   observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the polling loop. Calling Start on a running processor is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)

	p.logger.Info("outbox relay started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
	)
	return nil
}

// Stop cancels the loop and waits for the in-flight batch to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("outbox relay stopped")
}

// IsRunning reports whether the loop is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Processor) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	interval := p.config.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		n, err := p.relay(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Error("outbox batch failed", "error", err)
		}
		// A full batch means more may be waiting; poll again straight away.
		next := interval
		if n > 0 && n >= p.config.BatchSize {
			next = 0
		}
		timer.Reset(next)
	}
}

// ProcessOnce relays a single batch synchronously.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	_, err := p.relay(ctx)
	return err
}

// Cleanup deletes messages published longer than retention ago.
func (p *Processor) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := p.repo.DeleteOld(ctx, time.Now().Add(-retention))
	if err != nil {
		p.noteError(err)
		return 0, err
	}
	if n > 0 {
		p.logger.Info("outbox cleaned", "deleted", n, "retention", retention)
	}
	return n, nil
}

func (p *Processor) relay(ctx context.Context) (int, error) {
	batch, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.noteError(err)
		return 0, err
	}
	p.noteBatch(batch)

	for _, msg := range batch {
		if ctx.Err() != nil {
			return len(batch), ctx.Err()
		}
		p.deliver(ctx, msg)
	}
	return len(batch), nil
}

func (p *Processor) deliver(ctx context.Context, msg *Message) {
	meta := metadataOf(msg)
	log := p.logger.With(
		"outbox_id", msg.ID,
		"event_id", msg.EventID,
		"routing_key", msg.RoutingKey,
		"correlation_id", meta.CorrelationID,
	)

	err := p.publisher.Publish(ctx, eventbus.Envelope{
		MessageID:     msg.EventID.String(),
		RoutingKey:    msg.RoutingKey,
		CorrelationID: meta.CorrelationID,
		Payload:       msg.Payload,
	})
	if err != nil {
		log.Warn("publish failed", "attempt", msg.RetryCount+1, "actor", meta.Actor, "error", err)
		p.retryOrBury(ctx, msg, err, log)
		return
	}

	if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
		// The broker has it; the next poll republishes and consumers dedupe on message id.
		log.Error("mark published failed", "error", err)
		return
	}
	p.count(outcomePublished, msg.RoutingKey, nil)
}

func (p *Processor) retryOrBury(ctx context.Context, msg *Message, cause error, log *slog.Logger) {
	attempt := msg.RetryCount + 1
	if p.config.MaxRetries <= 0 || attempt >= p.config.MaxRetries {
		if err := p.repo.MarkDead(ctx, msg.ID, cause.Error()); err != nil {
			log.Error("dead-letter failed", "error", err)
		}
		p.count(outcomeDead, msg.RoutingKey, cause)
		return
	}

	next := time.Now().Add(backoff(p.config.RetryBackoffBase, p.config.RetryBackoffMax, attempt))
	if err := p.repo.MarkFailed(ctx, msg.ID, cause.Error(), next); err != nil {
		log.Error("schedule retry failed", "error", err)
	}
	p.count(outcomeFailed, msg.RoutingKey, cause)
}

// backoff doubles base per attempt, capped at ceiling.
func backoff(base, ceiling time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	d := base
	for i := 1; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	return min(d, ceiling)
}

func metadataOf(msg *Message) domain.EventMetadata {
	var meta domain.EventMetadata
	if len(msg.Metadata) > 0 {
		_ = json.Unmarshal(msg.Metadata, &meta)
	}
	return meta
}

const (
	outcomePublished = "published"
	outcomeFailed    = "failed"
	outcomeDead      = "dead_lettered"
)

// Stats is a snapshot of relay activity since start.
type Stats struct {
	IsRunning       bool
	PublishedCount  uint64
	FailedCount     uint64
	DeadCount       uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestMessageAt *time.Time
}

// GetStats returns a copy of the current counters.
func (p *Processor) GetStats() Stats {
	running := p.IsRunning()

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	s := p.stats
	s.IsRunning = running
	return s
}

func (p *Processor) count(outcome, routingKey string, cause error) {
	p.metrics.Counter(observability.MetricEventsPublished, 1,
		observability.T("outcome", outcome),
		observability.T("routing_key", routingKey),
	)

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	switch outcome {
	case outcomePublished:
		p.stats.PublishedCount++
	case outcomeFailed:
		p.stats.FailedCount++
	case outcomeDead:
		p.stats.DeadCount++
	}
	if cause != nil {
		p.setLastErrorLocked(cause)
	}
}

func (p *Processor) noteError(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.setLastErrorLocked(err)
}

func (p *Processor) setLastErrorLocked(err error) {
	now := time.Now()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

func (p *Processor) noteBatch(batch []*Message) {
	now := time.Now()

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.LastProcessedAt = &now
	p.stats.OldestMessageAt = nil
	p.stats.LagSeconds = 0
	for _, msg := range batch {
		if p.stats.OldestMessageAt == nil || msg.CreatedAt.Before(*p.stats.OldestMessageAt) {
			created := msg.CreatedAt
			p.stats.OldestMessageAt = &created
		}
	}
	if p.stats.OldestMessageAt != nil {
		p.stats.LagSeconds = now.Sub(*p.stats.OldestMessageAt).Seconds()
	}
}
