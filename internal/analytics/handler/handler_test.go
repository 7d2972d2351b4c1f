package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/bulletdrop/analytics/internal/analytics/counter"
	"github.com/bulletdrop/analytics/internal/analytics/models"
	"github.com/bulletdrop/analytics/internal/analytics/service"
	"github.com/bulletdrop/analytics/internal/analytics/store/memory"
	platformmw "github.com/bulletdrop/analytics/internal/platform/middleware"
	"github.com/bulletdrop/analytics/pkg/platform/middleware/metadata"
)

type fixture struct {
	router *chi.Mux
	store  *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	svc, err := service.New(st, st, counter.NewMemory())
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	h := New(svc, st, logger)

	r := chi.NewRouter()
	r.Use(metadata.ClientMetadata)
	r.Route("/api/analytics", func(r chi.Router) {
		h.Routes(r)
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireTestAdmin)
			h.AdminRoutes(r)
		})
	})
	return &fixture{router: r, store: st}
}

// requireTestAdmin stands in for the auth middleware chain.
func requireTestAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !platformmw.IsAdmin(r.Context()) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fixture) do(t *testing.T, method, path, body string, claims *platformmw.Claims) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:54321"
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/126.0")
	if claims != nil {
		req = req.WithContext(platformmw.WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRecordFileViewEndpoint(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterUser(1)
	f.store.RegisterUpload(42, 1)

	rec := f.do(t, http.MethodPost, "/api/analytics/views/file/42", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var view models.FileView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, int64(42), view.UploadID)
	require.NotEmpty(t, view.ViewerIP)
	require.NotContains(t, view.ViewerIP, "203.0.113.7")
}

func TestRecordFileViewEndpointUnknownUpload(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/analytics/views/file/999", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordFileViewEndpointBadID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/analytics/views/file/abc", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordFileViewEndpointBadBody(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterUser(1)
	f.store.RegisterUpload(42, 1)

	rec := f.do(t, http.MethodPost, "/api/analytics/views/file/42", "{not json", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordProfileViewEndpointSelfView(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterUser(1)

	rec := f.do(t, http.MethodPost, "/api/analytics/views/profile/1", "", &platformmw.Claims{UserID: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body["recorded"])
}

func TestFileAnalyticsEndpointAccessControl(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterUser(1)
	f.store.RegisterUser(2)
	f.store.RegisterUpload(42, 1)

	// Anonymous.
	rec := f.do(t, http.MethodGet, "/api/analytics/views/file/42", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Authenticated non-owner.
	rec = f.do(t, http.MethodGet, "/api/analytics/views/file/42", "", &platformmw.Claims{UserID: 2})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Owner.
	rec = f.do(t, http.MethodGet, "/api/analytics/views/file/42", "", &platformmw.Claims{UserID: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	// Admin.
	rec = f.do(t, http.MethodGet, "/api/analytics/views/file/42", "", &platformmw.Claims{UserID: 2, IsAdmin: true})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFileAnalyticsEndpointPayload(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterUser(1)
	f.store.RegisterUpload(42, 1)

	rec := f.do(t, http.MethodPost, "/api/analytics/views/file/42", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/analytics/views/file/42", "", &platformmw.Claims{UserID: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	var analytics models.ViewAnalytics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analytics))
	require.Equal(t, models.ContentFile, analytics.ContentType)
	require.Equal(t, int64(1), analytics.TotalViews)
	require.Equal(t, int64(1), analytics.ViewsToday)
	require.Len(t, analytics.RecentViews, 1)
}

func TestProfileAnalyticsEndpointNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/analytics/views/profile/404", "", &platformmw.Claims{UserID: 404})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrendingEndpoint(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterUser(1)
	f.store.RegisterUpload(42, 1)

	rec := f.do(t, http.MethodPost, "/api/analytics/views/file/42", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/analytics/trending?time_period=7d", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var trending models.TrendingContent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trending))
	require.Equal(t, models.Period7d, trending.TimePeriod)
	require.Len(t, trending.TrendingFiles, 1)
}

func TestTrendingEndpointRejectsBadPeriod(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/analytics/trending?time_period=90d", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuickStatsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterUser(1)
	f.store.RegisterUpload(42, 1)

	rec := f.do(t, http.MethodPost, "/api/analytics/views/file/42", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/analytics/stats/file/42", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.ViewStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, int64(1), stats.TotalViews)
	require.NotNil(t, stats.LastViewed)
	require.WithinDuration(t, time.Now(), *stats.LastViewed, time.Minute)
}

func TestQuickStatsEndpointRejectsBadContentType(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/analytics/stats/banner/42", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminOverviewEndpoint(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterUser(1)
	f.store.RegisterUpload(42, 1)

	rec := f.do(t, http.MethodPost, "/api/analytics/views/file/42", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/analytics/admin/overview", "", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/analytics/admin/overview", "", &platformmw.Claims{UserID: 1, IsAdmin: true})
	require.Equal(t, http.StatusOK, rec.Code)

	var overview models.AdminOverview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
	require.Equal(t, int64(1), overview.FileViewsToday)
	require.Equal(t, int64(1), overview.ActiveFiles)
	require.Len(t, overview.TrendingFiles, 1)
}
