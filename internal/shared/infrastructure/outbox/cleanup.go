package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/robfig/cron/v3"
)

// CleanupScheduler deletes published messages on a cron schedule.
type CleanupScheduler struct {
	processor *Processor
	retention time.Duration
	metrics   observability.Metrics
	logger    *slog.Logger
	cron      *cron.Cron
}

// NewCleanupScheduler parses schedule (standard five-field cron or a descriptor
// such as "@daily") and prepares the job. Nothing runs until Start.
func NewCleanupScheduler(schedule string, processor *Processor, retention time.Duration, metrics observability.Metrics, logger *slog.Logger) (*CleanupScheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &CleanupScheduler{
		processor: processor,
		retention: retention,
		metrics:   metrics,
		logger:    logger,
		cron:      cron.New(),
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule cleanup: %w", err)
	}
	return s, nil
}

// RunOnce performs one cleanup pass and reports how many rows went.
func (s *CleanupScheduler) RunOnce(ctx context.Context) int64 {
	deleted, err := s.processor.Cleanup(ctx, s.retention)
	if err != nil {
		s.logger.Error("outbox cleanup failed", "error", err)
		return 0
	}
	s.metrics.Counter(observability.MetricOutboxCleaned, deleted)
	return deleted
}

// Start runs the schedule in the background.
func (s *CleanupScheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running pass to finish.
func (s *CleanupScheduler) Stop() {
	<-s.cron.Stop().Done()
}
