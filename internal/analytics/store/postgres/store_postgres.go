package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bulletdrop/analytics/internal/analytics/models"
	"github.com/bulletdrop/analytics/internal/analytics/store"
)

// Schema holds the DDL for the analytics tables. Production databases are
// migrated by the main application; tests apply this directly.
//
//go:embed schema.sql
var Schema string

var queryDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "bulletdrop_analytics_store_query_duration_ms",
	Help:    "Latency of analytics store queries in milliseconds",
	Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
}, []string{"query"})

// Store persists views and summaries in PostgreSQL. It shares the main
// application database so it can also answer upload/user existence checks.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing database handle. Integration tests use this.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Health verifies the connection.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func observe(query string, start time.Time) {
	queryDurationMs.WithLabelValues(query).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

func (s *Store) UploadExists(ctx context.Context, uploadID int64) (bool, error) {
	defer observe("upload_exists", time.Now())
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM uploads WHERE id = $1`, uploadID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("upload exists: %w", err)
	}
	return true, nil
}

func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	defer observe("user_exists", time.Now())
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = $1`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return true, nil
}

func (s *Store) UploadOwner(ctx context.Context, uploadID int64) (int64, error) {
	defer observe("upload_owner", time.Now())
	var owner int64
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM uploads WHERE id = $1`, uploadID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("upload owner: %w", err)
	}
	return owner, nil
}

func (s *Store) InsertFileView(ctx context.Context, view *models.FileView) error {
	defer observe("insert_file_view", time.Now())
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO file_views (upload_id, viewer_ip, user_agent, referer, country, viewed_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6)
		RETURNING id`,
		view.UploadID, view.ViewerIP, view.UserAgent, view.Referer, view.Country, view.ViewedAt,
	).Scan(&view.ID)
	if err != nil {
		return fmt.Errorf("insert file view: %w", err)
	}
	return nil
}

func (s *Store) InsertProfileView(ctx context.Context, view *models.ProfileView) error {
	defer observe("insert_profile_view", time.Now())
	var viewerUserID sql.NullInt64
	if view.ViewerUserID != 0 {
		viewerUserID = sql.NullInt64{Int64: view.ViewerUserID, Valid: true}
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO profile_views (profile_user_id, viewer_ip, viewer_user_id, user_agent, referer, country, viewed_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7)
		RETURNING id`,
		view.ProfileUserID, view.ViewerIP, viewerUserID, view.UserAgent, view.Referer, view.Country, view.ViewedAt,
	).Scan(&view.ID)
	if err != nil {
		return fmt.Errorf("insert profile view: %w", err)
	}
	return nil
}

func (s *Store) HasRecentProfileView(ctx context.Context, profileUserID int64, viewerIP string, since time.Time) (bool, error) {
	defer observe("has_recent_profile_view", time.Now())
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM profile_views
		WHERE profile_user_id = $1 AND viewer_ip = $2 AND viewed_at > $3
		LIMIT 1`,
		profileUserID, viewerIP, since,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("recent profile view: %w", err)
	}
	return true, nil
}

// tableFor maps a content type onto its view table and ID column. Content
// types are validated at the handler boundary, never user-controlled here.
func tableFor(ct models.ContentType) (table, idColumn string) {
	if ct == models.ContentFile {
		return "file_views", "upload_id"
	}
	return "profile_views", "profile_user_id"
}

func (s *Store) CountViews(ctx context.Context, ct models.ContentType, contentID int64, since time.Time) (int64, error) {
	defer observe("count_views", time.Now())
	table, idCol := tableFor(ct)
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, table, idCol)
	args := []any{contentID}
	if !since.IsZero() {
		q += ` AND viewed_at >= $2`
		args = append(args, since)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count views: %w", err)
	}
	return n, nil
}

func (s *Store) CountUniqueViewers(ctx context.Context, ct models.ContentType, contentID int64) (int64, error) {
	defer observe("count_unique_viewers", time.Now())
	table, idCol := tableFor(ct)
	var n int64
	q := fmt.Sprintf(`SELECT COUNT(DISTINCT viewer_ip) FROM %s WHERE %s = $1`, table, idCol)
	if err := s.db.QueryRowContext(ctx, q, contentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unique viewers: %w", err)
	}
	return n, nil
}

func (s *Store) LastViewed(ctx context.Context, ct models.ContentType, contentID int64) (*time.Time, error) {
	defer observe("last_viewed", time.Now())
	table, idCol := tableFor(ct)
	var last sql.NullTime
	q := fmt.Sprintf(`SELECT MAX(viewed_at) FROM %s WHERE %s = $1`, table, idCol)
	if err := s.db.QueryRowContext(ctx, q, contentID).Scan(&last); err != nil {
		return nil, fmt.Errorf("last viewed: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

func (s *Store) RecentViews(ctx context.Context, ct models.ContentType, contentID int64, limit int) ([]models.RecentView, error) {
	defer observe("recent_views", time.Now())
	table, idCol := tableFor(ct)

	viewerCol := "0"
	if ct == models.ContentProfile {
		viewerCol = "COALESCE(viewer_user_id, 0)"
	}
	q := fmt.Sprintf(`
		SELECT viewed_at, COALESCE(country, ''), COALESCE(referer, ''), %s
		FROM %s WHERE %s = $1
		ORDER BY viewed_at DESC
		LIMIT $2`, viewerCol, table, idCol)

	rows, err := s.db.QueryContext(ctx, q, contentID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent views: %w", err)
	}
	defer rows.Close()

	var out []models.RecentView
	for rows.Next() {
		var v models.RecentView
		if err := rows.Scan(&v.ViewedAt, &v.Country, &v.Referer, &v.ViewerUserID); err != nil {
			return nil, fmt.Errorf("scan recent view: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) TopCountries(ctx context.Context, ct models.ContentType, contentID int64, limit int) ([]models.CountBucket, error) {
	defer observe("top_countries", time.Now())
	table, idCol := tableFor(ct)
	q := fmt.Sprintf(`
		SELECT country, COUNT(*) AS views
		FROM %s WHERE %s = $1 AND country IS NOT NULL
		GROUP BY country
		ORDER BY views DESC, country ASC
		LIMIT $2`, table, idCol)

	rows, err := s.db.QueryContext(ctx, q, contentID, limit)
	if err != nil {
		return nil, fmt.Errorf("top countries: %w", err)
	}
	defer rows.Close()

	var out []models.CountBucket
	for rows.Next() {
		var b models.CountBucket
		if err := rows.Scan(&b.Label, &b.Views); err != nil {
			return nil, fmt.Errorf("scan country bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) ListUserAgents(ctx context.Context, ct models.ContentType, contentID int64, limit int) ([]string, error) {
	defer observe("list_user_agents", time.Now())
	table, idCol := tableFor(ct)
	q := fmt.Sprintf(`
		SELECT user_agent FROM %s
		WHERE %s = $1 AND user_agent IS NOT NULL
		ORDER BY viewed_at DESC
		LIMIT $2`, table, idCol)

	rows, err := s.db.QueryContext(ctx, q, contentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user agents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ua string
		if err := rows.Scan(&ua); err != nil {
			return nil, fmt.Errorf("scan user agent: %w", err)
		}
		out = append(out, ua)
	}
	return out, rows.Err()
}

func (s *Store) Trending(ctx context.Context, ct models.ContentType, cutoff time.Time, limit int) ([]models.TrendingEntry, error) {
	defer observe("trending", time.Now())
	table, idCol := tableFor(ct)
	q := fmt.Sprintf(`
		SELECT %s, COUNT(*) AS view_count, COUNT(DISTINCT viewer_ip) AS unique_viewers
		FROM %s WHERE viewed_at >= $1
		GROUP BY %s
		ORDER BY view_count DESC, %s ASC
		LIMIT $2`, idCol, table, idCol, idCol)

	rows, err := s.db.QueryContext(ctx, q, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("trending: %w", err)
	}
	defer rows.Close()

	var out []models.TrendingEntry
	for rows.Next() {
		var e models.TrendingEntry
		if err := rows.Scan(&e.ContentID, &e.ViewCount, &e.UniqueViewers); err != nil {
			return nil, fmt.Errorf("scan trending entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DailyAggregates(ctx context.Context, ct models.ContentType, start, end time.Time) ([]models.ViewSummary, error) {
	defer observe("daily_aggregates", time.Now())
	table, idCol := tableFor(ct)
	q := fmt.Sprintf(`
		SELECT %s, COUNT(*) AS view_count, COUNT(DISTINCT viewer_ip) AS unique_viewers
		FROM %s WHERE viewed_at >= $1 AND viewed_at < $2
		GROUP BY %s
		ORDER BY %s ASC`, idCol, table, idCol, idCol)

	rows, err := s.db.QueryContext(ctx, q, start, end)
	if err != nil {
		return nil, fmt.Errorf("daily aggregates: %w", err)
	}
	defer rows.Close()

	day := store.Day(start)
	var out []models.ViewSummary
	for rows.Next() {
		sum := models.ViewSummary{ContentType: ct, Date: day}
		if err := rows.Scan(&sum.ContentID, &sum.ViewCount, &sum.UniqueViewers); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) UpsertSummary(ctx context.Context, summary *models.ViewSummary) error {
	defer observe("upsert_summary", time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO view_summaries (content_type, content_id, date, view_count, unique_viewers)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_type, content_id, date)
		DO UPDATE SET view_count = EXCLUDED.view_count, unique_viewers = EXCLUDED.unique_viewers`,
		summary.ContentType, summary.ContentID, store.Day(summary.Date), summary.ViewCount, summary.UniqueViewers,
	)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

func (s *Store) IncrementSummary(ctx context.Context, ct models.ContentType, contentID int64, day time.Time, delta int64) error {
	defer observe("increment_summary", time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO view_summaries (content_type, content_id, date, view_count, unique_viewers)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (content_type, content_id, date)
		DO UPDATE SET view_count = view_summaries.view_count + EXCLUDED.view_count`,
		ct, contentID, store.Day(day), delta,
	)
	if err != nil {
		return fmt.Errorf("increment summary: %w", err)
	}
	return nil
}
