package observability

import "time"

// Timer measures one operation and reports it as a timing metric.
type Timer struct {
	metric  string
	start   time.Time
	metrics Metrics
}

// StartTimer starts timing for metric. A nil metrics discards the result.
func StartTimer(metrics Metrics, metric string) *Timer {
	return &Timer{metric: metric, start: time.Now(), metrics: metrics}
}

// Stop records the elapsed time with tags and returns it.
func (t *Timer) Stop(tags ...Tag) time.Duration {
	d := time.Since(t.start)
	if t.metrics != nil {
		t.metrics.Timing(t.metric, d, tags...)
	}
	return d
}
