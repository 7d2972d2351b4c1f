// Package aggregate computes exact daily view rollups from the raw view
// tables. The incremental sync worker keeps today's summaries roughly
// right; this job replaces a finished day's rows with exact counts,
// including unique viewers, which the counter path cannot track.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bulletdrop/analytics/internal/analytics/models"
	"github.com/bulletdrop/analytics/internal/analytics/store"
)

// Aggregator rolls raw views up into per-day summaries.
type Aggregator struct {
	views  store.ViewStore
	logger *slog.Logger
}

func New(views store.ViewStore, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{views: views, logger: logger}
}

// AggregateDay rebuilds the summaries for the UTC day containing t.
func (a *Aggregator) AggregateDay(ctx context.Context, t time.Time) error {
	day := store.Day(t)
	next := day.AddDate(0, 0, 1)

	var total int
	for _, ct := range []models.ContentType{models.ContentFile, models.ContentProfile} {
		summaries, err := a.views.DailyAggregates(ctx, ct, day, next)
		if err != nil {
			return fmt.Errorf("aggregate %s views for %s: %w", ct, day.Format("2006-01-02"), err)
		}
		for i := range summaries {
			if err := a.views.UpsertSummary(ctx, &summaries[i]); err != nil {
				return fmt.Errorf("store %s summary for content %d: %w", ct, summaries[i].ContentID, err)
			}
		}
		total += len(summaries)
	}

	a.logger.InfoContext(ctx, "aggregated daily views",
		"date", day.Format("2006-01-02"),
		"summaries", total,
	)
	return nil
}

// AggregateYesterday is the default nightly entry point.
func (a *Aggregator) AggregateYesterday(ctx context.Context) error {
	return a.AggregateDay(ctx, time.Now().UTC().AddDate(0, 0, -1))
}
