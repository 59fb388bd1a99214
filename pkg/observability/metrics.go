package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics is the sink every component reports to.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Gauge(name string, value float64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag labels a metric series.
type Tag struct {
	Key   string
	Value string
}

// T creates a Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Gauge(string, float64, ...Tag)        {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// InMemoryMetrics keeps series in process. Tests read it directly and the
// worker exposes a Snapshot on its health endpoint.
type InMemoryMetrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]float64
	timings  map[string][]time.Duration
}

// NewInMemoryMetrics returns an empty registry.
func NewInMemoryMetrics() *InMemoryMetrics {
	m := &InMemoryMetrics{}
	m.Reset()
	return m
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	m.counters[seriesKey(name, tags)] += value
	m.mu.Unlock()
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	m.gauges[seriesKey(name, tags)] = value
	m.mu.Unlock()
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	key := seriesKey(name, tags)
	m.mu.Lock()
	m.timings[key] = append(m.timings[key], duration)
	m.mu.Unlock()
}

// GetCounter returns a counter. Tags must be given in the order they were recorded.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[seriesKey(name, tags)]
}

// GetGauge returns the last value set for a gauge.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[seriesKey(name, tags)]
}

// GetTimings returns a copy of the recorded durations.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.timings[seriesKey(name, tags)]...)
}

// Reset drops every series.
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = make(map[string]int64)
	m.gauges = make(map[string]float64)
	m.timings = make(map[string][]time.Duration)
}

// TimingSummary condenses a timing series.
type TimingSummary struct {
	Count int           `json:"count"`
	Max   time.Duration `json:"max_ns"`
	Mean  time.Duration `json:"mean_ns"`
}

// Snapshot is a point-in-time copy of all series, keyed "name:k=v:...".
type Snapshot struct {
	Counters map[string]int64         `json:"counters"`
	Gauges   map[string]float64       `json:"gauges"`
	Timings  map[string]TimingSummary `json:"timings"`
}

// Snapshot copies the registry.
func (m *InMemoryMetrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Counters: make(map[string]int64, len(m.counters)),
		Gauges:   make(map[string]float64, len(m.gauges)),
		Timings:  make(map[string]TimingSummary, len(m.timings)),
	}
	for k, v := range m.counters {
		s.Counters[k] = v
	}
	for k, v := range m.gauges {
		s.Gauges[k] = v
	}
	for k, ds := range m.timings {
		var sum, peak time.Duration
		for _, d := range ds {
			sum += d
			peak = max(peak, d)
		}
		sum /= time.Duration(max(len(ds), 1))
		s.Timings[k] = TimingSummary{Count: len(ds), Max: peak, Mean: sum}
	}
	return s
}

// Names lists the distinct metric names recorded so far.
func (m *InMemoryMetrics) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	add := func(key string) {
		name, _, _ := strings.Cut(key, ":")
		seen[name] = struct{}{}
	}
	for k := range m.counters {
		add(k)
	}
	for k := range m.gauges {
		add(k)
	}
	for k := range m.timings {
		add(k)
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func seriesKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	for _, t := range tags {
		b.WriteByte(':')
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	return b.String()
}

// Metric names.
const (
	MetricDecisions        = "gatehouse.decisions"
	MetricDecisionDuration = "gatehouse.decisions.duration"

	MetricGrantsCreated = "gatehouse.grants.created"
	MetricGrantsRevoked = "gatehouse.grants.revoked"

	MetricTokenOutcomes = "gatehouse.tokens.outcome"
	MetricTokensMinted  = "gatehouse.tokens.minted"

	MetricPolicyBreakerState = "gatehouse.policy.breaker_state"
	MetricRateLimited        = "gatehouse.http.rate_limited"

	MetricEventsPublished = "gatehouse.events.published"
	MetricOutboxCleaned   = "gatehouse.outbox.cleaned"
)
