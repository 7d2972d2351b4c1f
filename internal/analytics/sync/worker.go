// Package sync moves buffered view counters into the persistent daily
// summaries on an interval, trading a little freshness for far fewer
// database writes.
package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/bulletdrop/analytics/internal/analytics/counter"
	"github.com/bulletdrop/analytics/internal/analytics/metrics"
	"github.com/bulletdrop/analytics/internal/analytics/store"
)

const defaultInterval = 30 * time.Second

// Worker periodically drains the view counter into the store.
type Worker struct {
	counter  counter.Counter
	views    store.ViewStore
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithNow(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func New(ctr counter.Counter, views store.ViewStore, opts ...Option) *Worker {
	w := &Worker{
		counter:  ctr,
		views:    views,
		interval: defaultInterval,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run flushes on every tick until ctx is cancelled, then performs one
// final flush so buffered counts survive a shutdown.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			w.Flush(ctx)
		}
	}
}

// Flush drains the counter and applies the deltas to today's summaries.
// Failures are logged and swallowed; an undrained counter is retried on
// the next tick and a drained-but-unapplied delta costs only summary
// accuracy, which the nightly aggregation job repairs.
func (w *Worker) Flush(ctx context.Context) {
	counts, err := w.counter.Drain(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "failed to drain view counters", "error", err)
		if len(counts) == 0 {
			return
		}
	}
	if len(counts) == 0 {
		return
	}

	day := store.Day(w.now().UTC())
	var flushed int64
	for key, delta := range counts {
		if err := w.views.IncrementSummary(ctx, key.ContentType, key.ContentID, day, delta); err != nil {
			w.logger.WarnContext(ctx, "failed to apply view counter delta",
				"content_type", key.ContentType,
				"content_id", key.ContentID,
				"delta", delta,
				"error", err,
			)
			continue
		}
		flushed += delta
	}

	if w.metrics != nil {
		w.metrics.SyncFlushes.Inc()
		w.metrics.SyncFlushViews.Add(float64(flushed))
	}
	w.logger.DebugContext(ctx, "flushed view counters",
		"keys", len(counts),
		"views", flushed,
	)
}
