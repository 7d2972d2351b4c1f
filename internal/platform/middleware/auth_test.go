package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier("test-key")

	t.Run("round trip", func(t *testing.T) {
		token, err := v.IssueToken(42, true, time.Minute)
		require.NoError(t, err)

		claims, err := v.Verify(token)
		require.NoError(t, err)
		require.Equal(t, int64(42), claims.UserID)
		require.True(t, claims.IsAdmin)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		other := NewHMACVerifier("other-key")
		token, err := other.IssueToken(7, false, time.Minute)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.Error(t, err)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token, err := v.IssueToken(7, false, -time.Minute)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.Error(t, err)
	})
}

func TestOptionalAuth(t *testing.T) {
	v := NewHMACVerifier("test-key")
	var seenUserID int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = GetUserID(r.Context())
	})
	handler := OptionalAuth(v, discardLogger())(next)

	t.Run("anonymous passes through", func(t *testing.T) {
		seenUserID = -1
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, int64(0), seenUserID)
	})

	t.Run("valid token sets identity", func(t *testing.T) {
		token, err := v.IssueToken(42, false, time.Minute)
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		require.Equal(t, int64(42), seenUserID)
	})

	t.Run("garbage token treated as anonymous", func(t *testing.T) {
		seenUserID = -1
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer not-a-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, int64(0), seenUserID)
	})
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	t.Run("non-admin rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(WithClaims(r.Context(), &Claims{UserID: 1}))
		w := httptest.NewRecorder()
		RequireAdmin(next).ServeHTTP(w, r)
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin allowed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(WithClaims(r.Context(), &Claims{UserID: 1, IsAdmin: true}))
		w := httptest.NewRecorder()
		RequireAdmin(next).ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
	})
}
