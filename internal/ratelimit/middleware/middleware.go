package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	platformmw "github.com/bulletdrop/analytics/internal/platform/middleware"
	"github.com/bulletdrop/analytics/internal/ratelimit/metrics"
	"github.com/bulletdrop/analytics/internal/ratelimit/models"
	"github.com/bulletdrop/analytics/pkg/platform/httputil"
	"github.com/bulletdrop/analytics/pkg/platform/middleware/metadata"
)

// Limiter is the decision interface the middleware needs.
type Limiter interface {
	Check(ctx context.Context, ip string, userID int64, class models.EndpointClass, path string) (*models.Result, error)
}

// Middleware enforces rate limits on every request it wraps.
type Middleware struct {
	limiter  Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
	skip     []string
}

type Option func(*Middleware)

// WithDisabled turns enforcement off, for tests and local development.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) { m.disabled = disabled }
}

func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Middleware) { m.metrics = mx }
}

// WithSkipPaths exempts path prefixes, typically /health and /metrics.
func WithSkipPaths(paths ...string) Option {
	return func(m *Middleware) { m.skip = paths }
}

func New(limiter Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{limiter: limiter, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Limit classifies the request path and enforces the class limits.
func (m *Middleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled || m.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := metadata.GetClientIP(ctx)
		userID := platformmw.GetUserID(ctx)
		class := models.ClassForPath(r.URL.Path)

		result, err := m.limiter.Check(ctx, ip, userID, class, r.URL.Path)
		if err != nil {
			// Fail open: a broken limit store must not take the API down.
			m.logger.ErrorContext(ctx, "rate limit check failed",
				"error", err,
				"class", class,
				"request_id", platformmw.GetRequestID(ctx),
			)
			if m.metrics != nil {
				m.metrics.FailOpen.Inc()
			}
			next.ServeHTTP(w, r)
			return
		}

		writeHeaders(w, result)

		if !result.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please try again later.",
				"retry_after": result.RetryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) skipped(path string) bool {
	for _, prefix := range m.skip {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// writeHeaders exposes the limit state on every response so clients can
// pace themselves before hitting 429s.
func writeHeaders(w http.ResponseWriter, result *models.Result) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if result.UserLimit > 0 {
		w.Header().Set("X-RateLimit-UserLimit", strconv.Itoa(result.UserLimit))
		w.Header().Set("X-RateLimit-UserRemaining", strconv.Itoa(result.UserRemaining))
	}
}
