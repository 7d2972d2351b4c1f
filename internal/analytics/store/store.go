// Package store defines the persistence ports for the analytics module.
// Interfaces live here because both the memory and postgres implementations
// are consumed by the service, the sync worker, and the aggregation job.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/bulletdrop/analytics/internal/analytics/models"
)

// ErrNotFound is returned when the referenced content does not exist.
var ErrNotFound = errors.New("not found")

// ViewStore persists raw view rows and aggregated summaries.
type ViewStore interface {
	// InsertFileView appends a file view row and fills in its ID.
	InsertFileView(ctx context.Context, view *models.FileView) error

	// InsertProfileView appends a profile view row and fills in its ID.
	InsertProfileView(ctx context.Context, view *models.ProfileView) error

	// HasRecentProfileView reports whether the same hashed IP already viewed
	// this profile since the given instant. Used for the 1h dedupe window.
	HasRecentProfileView(ctx context.Context, profileUserID int64, viewerIP string, since time.Time) (bool, error)

	// CountViews counts views for one piece of content. A zero `since`
	// counts all views.
	CountViews(ctx context.Context, ct models.ContentType, contentID int64, since time.Time) (int64, error)

	// CountUniqueViewers counts distinct hashed viewer IPs.
	CountUniqueViewers(ctx context.Context, ct models.ContentType, contentID int64) (int64, error)

	// LastViewed returns the most recent view time, or nil when unviewed.
	LastViewed(ctx context.Context, ct models.ContentType, contentID int64) (*time.Time, error)

	// RecentViews returns the newest views, most recent first.
	RecentViews(ctx context.Context, ct models.ContentType, contentID int64, limit int) ([]models.RecentView, error)

	// TopCountries ranks views by country, skipping rows without one.
	TopCountries(ctx context.Context, ct models.ContentType, contentID int64, limit int) ([]models.CountBucket, error)

	// ListUserAgents returns raw user agent strings for browser breakdowns.
	ListUserAgents(ctx context.Context, ct models.ContentType, contentID int64, limit int) ([]string, error)

	// Trending ranks content by view count since the cutoff.
	Trending(ctx context.Context, ct models.ContentType, cutoff time.Time, limit int) ([]models.TrendingEntry, error)

	// DailyAggregates computes per-content view counts and unique viewers
	// for views in [start, end). Used by the aggregation job.
	DailyAggregates(ctx context.Context, ct models.ContentType, start, end time.Time) ([]models.ViewSummary, error)

	// UpsertSummary replaces the summary row for (type, id, date).
	UpsertSummary(ctx context.Context, summary *models.ViewSummary) error

	// IncrementSummary adds delta views to the summary row for (type, id,
	// day), creating it if absent. Used by the counter flush.
	IncrementSummary(ctx context.Context, ct models.ContentType, contentID int64, day time.Time, delta int64) error
}

// ContentDirectory answers existence checks against the main application
// tables. Views of unknown content are rejected with 404s.
type ContentDirectory interface {
	UploadExists(ctx context.Context, uploadID int64) (bool, error)
	UserExists(ctx context.Context, userID int64) (bool, error)

	// UploadOwner returns the owning user of an upload, for analytics
	// access control.
	UploadOwner(ctx context.Context, uploadID int64) (int64, error)
}

// Day truncates t to the start of its UTC day. Summary rows key on this.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
