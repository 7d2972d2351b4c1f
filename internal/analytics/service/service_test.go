package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bulletdrop/analytics/internal/analytics/counter"
	"github.com/bulletdrop/analytics/internal/analytics/models"
	"github.com/bulletdrop/analytics/internal/analytics/store/memory"
	platformmw "github.com/bulletdrop/analytics/internal/platform/middleware"
	"github.com/bulletdrop/analytics/pkg/platform/middleware/metadata"
)

func newTestService(t *testing.T, now time.Time) (*Service, *memory.Store, *counter.Memory) {
	t.Helper()
	st := memory.New()
	ctr := counter.NewMemory()
	svc, err := New(st, st, ctr, WithNow(func() time.Time { return now }))
	require.NoError(t, err)
	return svc, st, ctr
}

func viewerCtx(ip string, userID int64) context.Context {
	ctx := metadata.WithClientMetadata(context.Background(), ip, "Mozilla/5.0 (X11; Linux x86_64) Firefox/126.0", "https://bulletdrop.example/u/alice")
	if userID != 0 {
		ctx = platformmw.WithClaims(ctx, &platformmw.Claims{UserID: userID})
	}
	return ctx
}

func TestRecordFileView(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc, st, ctr := newTestService(t, now)
	st.RegisterUser(1)
	st.RegisterUpload(42, 1)

	view, err := svc.RecordFileView(viewerCtx("203.0.113.7", 0), 42, models.ViewEvent{})
	require.NoError(t, err)
	require.Equal(t, int64(42), view.UploadID)
	require.Equal(t, now, view.ViewedAt)
	require.Contains(t, view.UserAgent, "Firefox")

	// The raw address never lands in the record.
	require.NotContains(t, view.ViewerIP, "203.0.113.7")
	require.Len(t, view.ViewerIP, 32)
	require.Equal(t, HashIP("203.0.113.7"), view.ViewerIP)

	total, err := st.CountViews(context.Background(), models.ContentFile, 42, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	drained, err := ctr.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), drained[counter.Key{ContentType: models.ContentFile, ContentID: 42}])
}

func TestRecordFileViewUnknownUpload(t *testing.T) {
	svc, _, _ := newTestService(t, time.Now())

	_, err := svc.RecordFileView(viewerCtx("203.0.113.7", 0), 999, models.ViewEvent{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordFileViewEventOverridesMetadata(t *testing.T) {
	svc, st, _ := newTestService(t, time.Now())
	st.RegisterUser(1)
	st.RegisterUpload(42, 1)

	view, err := svc.RecordFileView(viewerCtx("203.0.113.7", 0), 42, models.ViewEvent{
		UserAgent: "bulletdrop-cli/1.2",
		Referer:   "https://example.org/share",
	})
	require.NoError(t, err)
	require.Equal(t, "bulletdrop-cli/1.2", view.UserAgent)
	require.Equal(t, "https://example.org/share", view.Referer)
}

func TestRecordProfileView(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)
	st.RegisterUser(1)

	view, err := svc.RecordProfileView(viewerCtx("203.0.113.7", 99), 1, models.ViewEvent{})
	require.NoError(t, err)
	require.NotNil(t, view)
	require.Equal(t, int64(1), view.ProfileUserID)
	require.Equal(t, int64(99), view.ViewerUserID)

	total, err := st.CountViews(context.Background(), models.ContentProfile, 1, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
}

func TestRecordProfileViewSkipsSelfView(t *testing.T) {
	svc, st, ctr := newTestService(t, time.Now())
	st.RegisterUser(1)

	view, err := svc.RecordProfileView(viewerCtx("203.0.113.7", 1), 1, models.ViewEvent{})
	require.NoError(t, err)
	require.Nil(t, view)

	total, err := st.CountViews(context.Background(), models.ContentProfile, 1, time.Time{})
	require.NoError(t, err)
	require.Zero(t, total)

	drained, err := ctr.Drain(context.Background())
	require.NoError(t, err)
	require.Empty(t, drained)
}

func TestRecordProfileViewDedupesWithinWindow(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)
	st.RegisterUser(1)

	first, err := svc.RecordProfileView(viewerCtx("203.0.113.7", 0), 1, models.ViewEvent{})
	require.NoError(t, err)
	require.NotNil(t, first)

	// Same IP inside the window: skipped.
	second, err := svc.RecordProfileView(viewerCtx("203.0.113.7", 0), 1, models.ViewEvent{})
	require.NoError(t, err)
	require.Nil(t, second)

	// A different IP still counts.
	other, err := svc.RecordProfileView(viewerCtx("198.51.100.9", 0), 1, models.ViewEvent{})
	require.NoError(t, err)
	require.NotNil(t, other)

	total, err := st.CountViews(context.Background(), models.ContentProfile, 1, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
}

func TestRecordProfileViewUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t, time.Now())

	_, err := svc.RecordProfileView(viewerCtx("203.0.113.7", 0), 404, models.ViewEvent{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAnalytics(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)
	st.RegisterUser(1)
	st.RegisterUpload(42, 1)

	ctx := context.Background()
	insert := func(ip, ua, country string, at time.Time) {
		require.NoError(t, st.InsertFileView(ctx, &models.FileView{
			UploadID:  42,
			ViewerIP:  HashIP(ip),
			UserAgent: ua,
			Country:   country,
			ViewedAt:  at,
		}))
	}

	const firefox = "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0"
	const chrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

	insert("203.0.113.7", firefox, "DE", now.Add(-1*time.Hour))
	insert("203.0.113.7", firefox, "DE", now.Add(-2*time.Hour))
	insert("198.51.100.9", chrome, "US", now.AddDate(0, 0, -3))
	insert("192.0.2.5", chrome, "US", now.AddDate(0, 0, -20))

	got, err := svc.Analytics(ctx, models.ContentFile, 42)
	require.NoError(t, err)
	require.Equal(t, int64(4), got.TotalViews)
	require.Equal(t, int64(3), got.UniqueViewers)
	require.Equal(t, int64(2), got.ViewsToday)
	require.Equal(t, int64(3), got.ViewsThisWeek)
	require.Equal(t, int64(4), got.ViewsThisMonth)
	require.Len(t, got.RecentViews, 4)

	require.Equal(t, []models.CountBucket{
		{Label: "DE", Views: 2},
		{Label: "US", Views: 2},
	}, got.TopCountries)

	require.Equal(t, []models.CountBucket{
		{Label: "Chrome", Views: 2},
		{Label: "Firefox", Views: 2},
	}, got.TopBrowsers)
}

func TestTrending(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)
	st.RegisterUser(1)
	st.RegisterUser(2)
	st.RegisterUpload(42, 1)
	st.RegisterUpload(43, 2)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, st.InsertFileView(ctx, &models.FileView{
			UploadID: 42, ViewerIP: HashIP("203.0.113.7"), ViewedAt: now.Add(-time.Hour),
		}))
	}
	require.NoError(t, st.InsertFileView(ctx, &models.FileView{
		UploadID: 43, ViewerIP: HashIP("203.0.113.7"), ViewedAt: now.Add(-time.Hour),
	}))
	// Outside the 24h window.
	require.NoError(t, st.InsertFileView(ctx, &models.FileView{
		UploadID: 43, ViewerIP: HashIP("203.0.113.7"), ViewedAt: now.AddDate(0, 0, -2),
	}))
	require.NoError(t, st.InsertProfileView(ctx, &models.ProfileView{
		ProfileUserID: 2, ViewerIP: HashIP("198.51.100.9"), ViewedAt: now.Add(-time.Hour),
	}))

	got, err := svc.Trending(ctx, models.Period24h)
	require.NoError(t, err)
	require.Equal(t, models.Period24h, got.TimePeriod)
	require.Equal(t, []models.TrendingEntry{
		{ContentID: 42, ViewCount: 3, UniqueViewers: 1},
		{ContentID: 43, ViewCount: 1, UniqueViewers: 1},
	}, got.TrendingFiles)
	require.Equal(t, []models.TrendingEntry{
		{ContentID: 2, ViewCount: 1, UniqueViewers: 1},
	}, got.TrendingProfiles)
}

func TestTrendingDefaultsPeriod(t *testing.T) {
	svc, _, _ := newTestService(t, time.Now())

	got, err := svc.Trending(context.Background(), models.TimePeriod("bogus"))
	require.NoError(t, err)
	require.Equal(t, models.Period24h, got.TimePeriod)
}

func TestQuickStats(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)
	st.RegisterUser(1)
	st.RegisterUpload(42, 1)

	ctx := context.Background()
	stats, err := svc.QuickStats(ctx, models.ContentFile, 42)
	require.NoError(t, err)
	require.Zero(t, stats.TotalViews)
	require.Nil(t, stats.LastViewed)

	last := now.Add(-time.Minute)
	require.NoError(t, st.InsertFileView(ctx, &models.FileView{
		UploadID: 42, ViewerIP: HashIP("203.0.113.7"), ViewedAt: last,
	}))

	stats, err = svc.QuickStats(ctx, models.ContentFile, 42)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TotalViews)
	require.Equal(t, int64(1), stats.UniqueViewers)
	require.NotNil(t, stats.LastViewed)
	require.Equal(t, last, *stats.LastViewed)
}

func TestHashIPStableAndTruncated(t *testing.T) {
	a := HashIP("203.0.113.7")
	b := HashIP("203.0.113.7")
	c := HashIP("203.0.113.8")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 32)
}
