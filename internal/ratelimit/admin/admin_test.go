package admin

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

	"github.com/bulletdrop/analytics/internal/platform/config"
	"github.com/bulletdrop/analytics/internal/ratelimit/service"
	"github.com/bulletdrop/analytics/internal/ratelimit/store/blocklist"
	"github.com/bulletdrop/analytics/internal/ratelimit/store/bucket"
)

func newFixture(t *testing.T) (http.Handler, *service.Service) {
	t.Helper()
	cfg := config.RateLimit{
		AuthPerMinute: 5, AuthPerHour: 20,
		APIPerMinute: 60, APIPerHour: 1000,
		UploadPerMinute: 10, UploadPerHour: 100,
		AdminPerMinute: 30, AdminPerHour: 300,
		BlockDuration: 5 * time.Minute,
	}
	svc := service.New(bucket.NewMemory(), blocklist.NewMemory(), cfg)
	h := New(svc, slog.New(slog.DiscardHandler))

	r := chi.NewRouter()
	r.Route("/admin", h.Routes)
	return r, svc
}

func do(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestBlockAndListAndUnblock(t *testing.T) {
	h, _ := newFixture(t)

	rec := do(h, http.MethodPost, "/admin/block-ip",
		`{"ip":"203.0.113.7","reason":"abuse report","duration_seconds":600}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/admin/blocked-ips", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var listBody struct {
		BlockedIPs []blocklist.BlockedIP `json:"blocked_ips"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listBody))
	require.Len(t, listBody.BlockedIPs, 1)
	require.Equal(t, "203.0.113.7", listBody.BlockedIPs[0].IP)
	require.Equal(t, "abuse report", listBody.BlockedIPs[0].Reason)

	rec = do(h, http.MethodDelete, "/admin/unblock-ip/203.0.113.7", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/admin/blocked-ips", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listBody))
	require.Empty(t, listBody.BlockedIPs)
}

func TestBlockRejectsInvalidIP(t *testing.T) {
	h, _ := newFixture(t)

	rec := do(h, http.MethodPost, "/admin/block-ip", `{"ip":"not-an-ip"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPost, "/admin/block-ip", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodDelete, "/admin/unblock-ip/not-an-ip", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWhitelistLifecycle(t *testing.T) {
	h, _ := newFixture(t)

	rec := do(h, http.MethodGet, "/admin/whitelist", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"whitelisted_ips":[]}`, rec.Body.String())

	rec = do(h, http.MethodPost, "/admin/whitelist", `{"ip":"203.0.113.7"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/admin/whitelist", "")
	require.JSONEq(t, `{"whitelisted_ips":["203.0.113.7"]}`, rec.Body.String())

	rec = do(h, http.MethodDelete, "/admin/whitelist/203.0.113.7", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/admin/whitelist", "")
	require.JSONEq(t, `{"whitelisted_ips":[]}`, rec.Body.String())
}
