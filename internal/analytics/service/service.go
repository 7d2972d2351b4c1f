package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/blake2b"

	"github.com/bulletdrop/analytics/internal/analytics/counter"
	"github.com/bulletdrop/analytics/internal/analytics/metrics"
	"github.com/bulletdrop/analytics/internal/analytics/models"
	"github.com/bulletdrop/analytics/internal/analytics/store"
	platformmw "github.com/bulletdrop/analytics/internal/platform/middleware"
	"github.com/bulletdrop/analytics/pkg/platform/middleware/metadata"
)

var tracer = otel.Tracer("github.com/bulletdrop/analytics/internal/analytics/service")

const (
	// profileDedupeWindow suppresses repeat profile views from the same
	// hashed IP.
	profileDedupeWindow = time.Hour

	recentViewsLimit  = 10
	topCountriesLimit = 5
	topBrowsersLimit  = 5
	browserSampleSize = 200
	trendingLimit     = 10
	overviewLimit     = 5
)

// ErrNotFound is returned when the viewed content does not exist.
var ErrNotFound = errors.New("content not found")

// Service implements view recording and analytics reads.
type Service struct {
	views     store.ViewStore
	directory store.ContentDirectory
	counter   counter.Counter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(views store.ViewStore, directory store.ContentDirectory, ctr counter.Counter, opts ...Option) (*Service, error) {
	if views == nil {
		return nil, errors.New("view store is required")
	}
	if directory == nil {
		return nil, errors.New("content directory is required")
	}
	if ctr == nil {
		return nil, errors.New("view counter is required")
	}

	svc := &Service{
		views:     views,
		directory: directory,
		counter:   ctr,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// HashIP hashes a viewer IP for privacy before it ever reaches storage.
// Truncated to 32 hex characters; collisions only blur unique-viewer
// estimates, they never reveal addresses.
func HashIP(ip string) string {
	sum := blake2b.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:32]
}

// countryFromIP would resolve a GeoIP country code. There is no GeoIP
// provider wired up, so every view records an empty country.
func countryFromIP(ip string) string {
	return ""
}

// RecordFileView records a view of an upload. The client IP, user agent,
// and referer come from request metadata in ctx; the event body can
// override user agent and referer for clients that report their own.
func (s *Service) RecordFileView(ctx context.Context, uploadID int64, event models.ViewEvent) (*models.FileView, error) {
	ctx, span := tracer.Start(ctx, "analytics.RecordFileView")
	defer span.End()
	span.SetAttributes(attribute.Int64("upload_id", uploadID))

	exists, err := s.directory.UploadExists(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("check upload: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	ip := metadata.GetClientIP(ctx)
	view := &models.FileView{
		UploadID:  uploadID,
		ViewerIP:  HashIP(ip),
		UserAgent: firstNonEmpty(event.UserAgent, metadata.GetUserAgent(ctx)),
		Referer:   firstNonEmpty(event.Referer, metadata.GetReferer(ctx)),
		Country:   countryFromIP(ip),
		ViewedAt:  s.now().UTC(),
	}

	if err := s.views.InsertFileView(ctx, view); err != nil {
		return nil, fmt.Errorf("insert file view: %w", err)
	}
	s.bumpCounter(ctx, models.ContentFile, uploadID)
	if s.metrics != nil {
		s.metrics.ViewsRecorded.WithLabelValues(string(models.ContentFile)).Inc()
	}
	return view, nil
}

// RecordProfileView records a profile page visit. Self-views and repeat
// views from the same hashed IP inside the dedupe window are skipped; the
// skip is reported with a nil view and no error so the endpoint still
// returns success.
func (s *Service) RecordProfileView(ctx context.Context, profileUserID int64, event models.ViewEvent) (*models.ProfileView, error) {
	ctx, span := tracer.Start(ctx, "analytics.RecordProfileView")
	defer span.End()
	span.SetAttributes(attribute.Int64("profile_user_id", profileUserID))

	exists, err := s.directory.UserExists(ctx, profileUserID)
	if err != nil {
		return nil, fmt.Errorf("check profile user: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	viewerUserID := platformmw.GetUserID(ctx)
	if viewerUserID == profileUserID {
		s.skip(models.ContentProfile)
		return nil, nil
	}

	ip := metadata.GetClientIP(ctx)
	hashedIP := HashIP(ip)

	dup, err := s.views.HasRecentProfileView(ctx, profileUserID, hashedIP, s.now().Add(-profileDedupeWindow))
	if err != nil {
		return nil, fmt.Errorf("check duplicate profile view: %w", err)
	}
	if dup {
		s.skip(models.ContentProfile)
		return nil, nil
	}

	view := &models.ProfileView{
		ProfileUserID: profileUserID,
		ViewerIP:      hashedIP,
		ViewerUserID:  viewerUserID,
		UserAgent:     firstNonEmpty(event.UserAgent, metadata.GetUserAgent(ctx)),
		Referer:       firstNonEmpty(event.Referer, metadata.GetReferer(ctx)),
		Country:       countryFromIP(ip),
		ViewedAt:      s.now().UTC(),
	}

	if err := s.views.InsertProfileView(ctx, view); err != nil {
		return nil, fmt.Errorf("insert profile view: %w", err)
	}
	s.bumpCounter(ctx, models.ContentProfile, profileUserID)
	if s.metrics != nil {
		s.metrics.ViewsRecorded.WithLabelValues(string(models.ContentProfile)).Inc()
	}
	return view, nil
}

// Analytics assembles the full analytics payload for one piece of content.
func (s *Service) Analytics(ctx context.Context, ct models.ContentType, contentID int64) (*models.ViewAnalytics, error) {
	ctx, span := tracer.Start(ctx, "analytics.Analytics")
	defer span.End()
	span.SetAttributes(
		attribute.String("content_type", string(ct)),
		attribute.Int64("content_id", contentID),
	)

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	total, err := s.views.CountViews(ctx, ct, contentID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("count views: %w", err)
	}
	unique, err := s.views.CountUniqueViewers(ctx, ct, contentID)
	if err != nil {
		return nil, fmt.Errorf("count unique viewers: %w", err)
	}
	viewsToday, err := s.views.CountViews(ctx, ct, contentID, today)
	if err != nil {
		return nil, fmt.Errorf("count views today: %w", err)
	}
	viewsWeek, err := s.views.CountViews(ctx, ct, contentID, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, fmt.Errorf("count views this week: %w", err)
	}
	viewsMonth, err := s.views.CountViews(ctx, ct, contentID, now.AddDate(0, 0, -30))
	if err != nil {
		return nil, fmt.Errorf("count views this month: %w", err)
	}
	recent, err := s.views.RecentViews(ctx, ct, contentID, recentViewsLimit)
	if err != nil {
		return nil, fmt.Errorf("recent views: %w", err)
	}
	countries, err := s.views.TopCountries(ctx, ct, contentID, topCountriesLimit)
	if err != nil {
		return nil, fmt.Errorf("top countries: %w", err)
	}
	browsers, err := s.topBrowsers(ctx, ct, contentID)
	if err != nil {
		return nil, fmt.Errorf("top browsers: %w", err)
	}

	return &models.ViewAnalytics{
		ContentID:      contentID,
		ContentType:    ct,
		TotalViews:     total,
		UniqueViewers:  unique,
		ViewsToday:     viewsToday,
		ViewsThisWeek:  viewsWeek,
		ViewsThisMonth: viewsMonth,
		RecentViews:    recent,
		TopCountries:   countries,
		TopBrowsers:    browsers,
	}, nil
}

// topBrowsers classifies a sample of recent user agents into browser
// families.
func (s *Service) topBrowsers(ctx context.Context, ct models.ContentType, contentID int64) ([]models.CountBucket, error) {
	agents, err := s.views.ListUserAgents(ctx, ct, contentID, browserSampleSize)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, raw := range agents {
		ua := useragent.New(raw)
		name, _ := ua.Browser()
		if ua.Bot() {
			name = "Bot"
		}
		if name == "" {
			name = "Other"
		}
		counts[name]++
	}

	buckets := make([]models.CountBucket, 0, len(counts))
	for label, n := range counts {
		buckets = append(buckets, models.CountBucket{Label: label, Views: n})
	}
	sortBuckets(buckets)
	if len(buckets) > topBrowsersLimit {
		buckets = buckets[:topBrowsersLimit]
	}
	return buckets, nil
}

// Trending returns the most viewed files and profiles inside the window.
func (s *Service) Trending(ctx context.Context, period models.TimePeriod) (*models.TrendingContent, error) {
	ctx, span := tracer.Start(ctx, "analytics.Trending")
	defer span.End()
	span.SetAttributes(attribute.String("time_period", string(period)))

	if !period.IsValid() {
		period = models.Period24h
	}
	cutoff := period.Cutoff(s.now().UTC())

	files, err := s.views.Trending(ctx, models.ContentFile, cutoff, trendingLimit)
	if err != nil {
		return nil, fmt.Errorf("trending files: %w", err)
	}
	profiles, err := s.views.Trending(ctx, models.ContentProfile, cutoff, trendingLimit)
	if err != nil {
		return nil, fmt.Errorf("trending profiles: %w", err)
	}

	return &models.TrendingContent{
		TrendingFiles:    files,
		TrendingProfiles: profiles,
		TimePeriod:       period,
	}, nil
}

// AdminOverview builds the site-wide snapshot for the admin dashboard:
// exact counts for today from the raw view tables plus the 24h trending
// leaders.
func (s *Service) AdminOverview(ctx context.Context) (*models.AdminOverview, error) {
	ctx, span := tracer.Start(ctx, "analytics.AdminOverview")
	defer span.End()

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	tomorrow := today.AddDate(0, 0, 1)

	overview := &models.AdminOverview{GeneratedAt: now}

	for _, ct := range []models.ContentType{models.ContentFile, models.ContentProfile} {
		aggregates, err := s.views.DailyAggregates(ctx, ct, today, tomorrow)
		if err != nil {
			return nil, fmt.Errorf("aggregate %s views: %w", ct, err)
		}
		var views int64
		for _, agg := range aggregates {
			views += agg.ViewCount
		}
		trending, err := s.views.Trending(ctx, ct, now.Add(-24*time.Hour), overviewLimit)
		if err != nil {
			return nil, fmt.Errorf("trending %s views: %w", ct, err)
		}
		switch ct {
		case models.ContentFile:
			overview.FileViewsToday = views
			overview.ActiveFiles = int64(len(aggregates))
			overview.TrendingFiles = trending
		case models.ContentProfile:
			overview.ProfileViewsToday = views
			overview.ActiveProfiles = int64(len(aggregates))
			overview.TrendingProfiles = trending
		}
	}
	return overview, nil
}

// QuickStats returns the lightweight counter surface for one piece of
// content.
func (s *Service) QuickStats(ctx context.Context, ct models.ContentType, contentID int64) (*models.ViewStats, error) {
	ctx, span := tracer.Start(ctx, "analytics.QuickStats")
	defer span.End()

	total, err := s.views.CountViews(ctx, ct, contentID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("count views: %w", err)
	}
	unique, err := s.views.CountUniqueViewers(ctx, ct, contentID)
	if err != nil {
		return nil, fmt.Errorf("count unique viewers: %w", err)
	}
	last, err := s.views.LastViewed(ctx, ct, contentID)
	if err != nil {
		return nil, fmt.Errorf("last viewed: %w", err)
	}

	return &models.ViewStats{
		TotalViews:    total,
		UniqueViewers: unique,
		LastViewed:    last,
	}, nil
}

// bumpCounter is best-effort: a lost increment costs a summary view, not
// the raw row, so failures are logged and swallowed.
func (s *Service) bumpCounter(ctx context.Context, ct models.ContentType, contentID int64) {
	if err := s.counter.Increment(ctx, ct, contentID); err != nil {
		s.logger.WarnContext(ctx, "failed to buffer view counter",
			"content_type", ct,
			"content_id", contentID,
			"error", err,
		)
	}
}

func (s *Service) skip(ct models.ContentType) {
	if s.metrics != nil {
		s.metrics.ViewsDeduped.WithLabelValues(string(ct)).Inc()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortBuckets(buckets []models.CountBucket) {
	for i := 1; i < len(buckets); i++ {
		for j := i; j > 0; j-- {
			a, b := buckets[j-1], buckets[j]
			if b.Views > a.Views || (b.Views == a.Views && b.Label < a.Label) {
				buckets[j-1], buckets[j] = b, a
			} else {
				break
			}
		}
	}
}
