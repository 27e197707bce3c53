// Package duptracker provides a TTL-bounded deduplication map keyed by
// (taskId, corrId, persona), protecting the persona consumer pool against
// at-least-once redelivery from the message transport.
package duptracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultTTL is the age at which a tracked entry becomes eligible for sweep.
const DefaultTTL = 24 * time.Hour

// key identifies one persona's handling of one correlated request.
type key struct {
	taskID  string
	corrID  string
	persona string
}

// entry records when a (task, corr, persona) tuple was first processed and
// by which workflow run.
type entry struct {
	processedAt time.Time
	workflowID  string
}

// Stats is a snapshot of tracker state returned by Stats.
type Stats struct {
	Entries    int
	Duplicates int64
	Swept      int64
}

// Tracker is a mutex-guarded, process-global deduplication map. The zero
// value is not usable; construct with New.
type Tracker struct {
	mu      sync.Mutex
	entries map[key]entry
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger

	namespace string
	registry  prometheus.Registerer

	duplicates atomic
	swept      atomic

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}

	metrics metrics
}

// atomic is a tiny counter kept under the tracker's own mutex rather than
// sync/atomic, since every access already holds the lock.
type atomic struct{ n int64 }

func (a *atomic) inc() { a.n++ }

type metrics struct {
	entries    prometheus.Gauge
	duplicates prometheus.Counter
	swept      prometheus.Counter
}

// newMetrics registers the tracker's gauges/counters against reg. Pass a
// fresh prometheus.NewRegistry() (the default when unset) so multiple
// Trackers, such as one per test, never collide on duplicate registration;
// production callers that want the metrics exposed on the process-wide
// /metrics endpoint pass their own registry via WithRegistry.
func newMetrics(namespace string, reg prometheus.Registerer) metrics {
	factory := promauto.With(reg)
	return metrics{
		entries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "duptracker",
			Name:      "entries",
			Help:      "Current number of tracked (task, corr, persona) entries.",
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "duptracker",
			Name:      "duplicates_total",
			Help:      "Total number of duplicate deliveries detected.",
		}),
		swept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "duptracker",
			Name:      "swept_total",
			Help:      "Total number of entries removed by the TTL sweeper.",
		}),
	}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(t *Tracker) { t.ttl = ttl }
}

// WithNamespace sets the Prometheus namespace for the tracker's metrics.
func WithNamespace(ns string) Option {
	return func(t *Tracker) { t.namespace = ns }
}

// WithRegistry registers the tracker's metrics against reg instead of a
// private registry, so they appear on a shared /metrics endpoint.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(t *Tracker) { t.registry = reg }
}

// New constructs a Tracker with DefaultTTL unless overridden.
func New(logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		entries: make(map[key]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  logger,
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.metrics = newMetrics(t.namespace, t.registry)
	return t
}

// IsDuplicate reports whether (taskID, corrID, persona) has already been
// marked processed. Per spec, if either taskID or corrID is empty the tuple
// cannot be tracked and IsDuplicate always returns false.
func (t *Tracker) IsDuplicate(taskID, corrID, persona string) bool {
	if taskID == "" || corrID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key{taskID, corrID, persona}]
	if !ok {
		return false
	}
	t.duplicates.inc()
	t.metrics.duplicates.Inc()
	t.logger.Warn("duplicate persona delivery detected",
		"task_id", taskID, "corr_id", corrID, "persona", persona,
		"original_processed_at", e.processedAt, "workflow_id", e.workflowID)
	return true
}

// MarkProcessed records that (taskID, corrID, persona) has been handled by
// workflowID. A no-op if taskID or corrID is empty.
func (t *Tracker) MarkProcessed(taskID, corrID, persona, workflowID string) {
	if taskID == "" || corrID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key{taskID, corrID, persona}] = entry{
		processedAt: t.now(),
		workflowID:  workflowID,
	}
	t.metrics.entries.Set(float64(len(t.entries)))
}

// Stats returns a point-in-time snapshot of tracker state.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Entries:    len(t.entries),
		Duplicates: t.duplicates.n,
		Swept:      t.swept.n,
	}
}

// sweep removes entries older than t.ttl. Caller must not hold t.mu.
func (t *Tracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.ttl)
	removed := 0
	for k, e := range t.entries {
		if e.processedAt.Before(cutoff) {
			delete(t.entries, k)
			removed++
		}
	}
	if removed > 0 {
		t.swept.n += int64(removed)
		t.metrics.swept.Add(float64(removed))
		t.metrics.entries.Set(float64(len(t.entries)))
		t.logger.Debug("duptracker sweep removed expired entries", "removed", removed, "remaining", len(t.entries))
	}
}

// StartSweeper launches a background goroutine that sweeps expired entries
// at the given interval. Safe to call once per Tracker; a second call while
// a sweeper is running is a no-op.
func (t *Tracker) StartSweeper(ctx context.Context, interval time.Duration) {
	t.mu.Lock()
	if t.sweepCancel != nil {
		t.mu.Unlock()
		return
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	t.sweepCancel = cancel
	t.sweepDone = make(chan struct{})
	t.mu.Unlock()

	go func() {
		defer close(t.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				t.sweep()
			}
		}
	}()
}

// StopSweeper stops the background sweeper and waits for it to exit. A no-op
// if no sweeper is running.
func (t *Tracker) StopSweeper() {
	t.mu.Lock()
	cancel := t.sweepCancel
	done := t.sweepDone
	t.sweepCancel = nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
