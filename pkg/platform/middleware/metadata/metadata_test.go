package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPFromRequest(t *testing.T) {
	t.Run("prefers first X-Forwarded-For entry", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		if got := ClientIPFromRequest(r); got != "203.0.113.7" {
			t.Fatalf("expected 203.0.113.7, got %q", got)
		}
	})

	t.Run("falls back to X-Real-IP", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Real-IP", " 198.51.100.2 ")
		if got := ClientIPFromRequest(r); got != "198.51.100.2" {
			t.Fatalf("expected 198.51.100.2, got %q", got)
		}
	})

	t.Run("strips port from RemoteAddr", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "192.0.2.9:4312"
		if got := ClientIPFromRequest(r); got != "192.0.2.9" {
			t.Fatalf("expected 192.0.2.9, got %q", got)
		}
	})
}

func TestClientMetadata(t *testing.T) {
	var gotIP, gotUA, gotRef string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		gotIP = GetClientIP(ctx)
		gotUA = GetUserAgent(ctx)
		gotRef = GetReferer(ctx)
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Real-IP", "203.0.113.7")
	r.Header.Set("User-Agent", "test-agent/1.0")
	r.Header.Set("Referer", "https://example.com/p/alice")

	ClientMetadata(next).ServeHTTP(httptest.NewRecorder(), r)

	if gotIP != "203.0.113.7" {
		t.Fatalf("expected client IP in context, got %q", gotIP)
	}
	if gotUA != "test-agent/1.0" {
		t.Fatalf("expected user agent in context, got %q", gotUA)
	}
	if gotRef != "https://example.com/p/alice" {
		t.Fatalf("expected referer in context, got %q", gotRef)
	}
}
