package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bulletdrop/analytics/internal/platform/config"
	"github.com/bulletdrop/analytics/internal/ratelimit/metrics"
	"github.com/bulletdrop/analytics/internal/ratelimit/models"
	"github.com/bulletdrop/analytics/internal/ratelimit/store/blocklist"
	"github.com/bulletdrop/analytics/internal/ratelimit/store/bucket"
	"github.com/bulletdrop/analytics/internal/security"
)

// Service enforces per-class sliding window limits on IPs and users,
// with a temporary block for IPs that hammer auth endpoints.
type Service struct {
	buckets       bucket.Store
	blocks        blocklist.Store
	limits        map[models.EndpointClass]models.Limits
	blockDuration time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
	events        security.Sink
	now           func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithEventSink(sink security.Sink) Option {
	return func(s *Service) { s.events = sink }
}

func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(buckets bucket.Store, blocks blocklist.Store, cfg config.RateLimit, opts ...Option) *Service {
	s := &Service{
		buckets: buckets,
		blocks:  blocks,
		limits: map[models.EndpointClass]models.Limits{
			models.ClassAuth:   {PerMinute: cfg.AuthPerMinute, PerHour: cfg.AuthPerHour},
			models.ClassUpload: {PerMinute: cfg.UploadPerMinute, PerHour: cfg.UploadPerHour},
			models.ClassAdmin:  {PerMinute: cfg.AdminPerMinute, PerHour: cfg.AdminPerHour},
			models.ClassAPI:    {PerMinute: cfg.APIPerMinute, PerHour: cfg.APIPerHour},
		},
		blockDuration: cfg.BlockDuration,
		logger:        slog.Default(),
		events:        security.NopSink{},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the configured limits for a class.
func (s *Service) Limits(class models.EndpointClass) models.Limits {
	return s.limits[class]
}

// Check runs the full decision for one request: whitelist, block, then
// the IP windows and, for authenticated requests, the user windows.
// userID zero means anonymous.
func (s *Service) Check(ctx context.Context, ip string, userID int64, class models.EndpointClass, path string) (*models.Result, error) {
	limits, ok := s.limits[class]
	if !ok || limits.PerMinute <= 0 {
		return nil, fmt.Errorf("no limits configured for class %q", class)
	}

	whitelisted, err := s.blocks.IsWhitelisted(ctx, ip)
	if err != nil {
		return nil, fmt.Errorf("check whitelist: %w", err)
	}
	if whitelisted {
		return &models.Result{
			Allowed:   true,
			Limit:     limits.PerMinute,
			Remaining: limits.PerMinute,
			ResetAt:   s.now().Add(time.Minute),
		}, nil
	}

	blocked, err := s.blocks.IsBlocked(ctx, ip)
	if err != nil {
		return nil, fmt.Errorf("check blocklist: %w", err)
	}
	if blocked {
		if s.metrics != nil {
			s.metrics.BlockedHits.Inc()
		}
		s.events.Record(security.Event{
			Kind:       security.EventBlockedRequest,
			IP:         ip,
			UserID:     userID,
			Path:       path,
			OccurredAt: s.now(),
		})
		return &models.Result{
			Allowed:    false,
			Limit:      limits.PerMinute,
			Remaining:  0,
			ResetAt:    s.now().Add(s.blockDuration),
			RetryAfter: int(s.blockDuration.Seconds()),
		}, nil
	}

	result, err := s.checkWindows(ctx, class, limits, func(label string) string {
		return models.IPKey(class, label, ip)
	})
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		s.onDenied(ctx, ip, userID, class, path)
		s.countDenied(class)
		return result, nil
	}

	if userID != 0 {
		userResult, err := s.checkWindows(ctx, class, limits, func(label string) string {
			return models.UserKey(class, label, strconv.FormatInt(userID, 10))
		})
		if err != nil {
			return nil, err
		}
		result.UserLimit = userResult.Limit
		result.UserRemaining = userResult.Remaining
		if !userResult.Allowed {
			result.Allowed = false
			result.RetryAfter = userResult.RetryAfter
			result.ResetAt = userResult.ResetAt
			s.onDenied(ctx, ip, userID, class, path)
			s.countDenied(class)
			return result, nil
		}
	}

	if s.metrics != nil {
		s.metrics.ChecksAllowed.WithLabelValues(string(class)).Inc()
	}
	return result, nil
}

// checkWindows runs the minute and hour windows for one scope and folds
// them into a single result. The headline numbers come from the minute
// window; a denial in either window denies the request.
func (s *Service) checkWindows(ctx context.Context, class models.EndpointClass, limits models.Limits, key func(label string) string) (*models.Result, error) {
	var folded *models.Result
	for _, w := range limits.Windows() {
		r, err := s.buckets.Allow(ctx, key(w.Label), w.Limit, w.Duration)
		if err != nil {
			return nil, fmt.Errorf("check %s window: %w", w.Label, err)
		}
		if folded == nil {
			folded = r
			continue
		}
		if !r.Allowed {
			folded.Allowed = false
			folded.Remaining = 0
			folded.RetryAfter = r.RetryAfter
			folded.ResetAt = r.ResetAt
		}
	}
	return folded, nil
}

// onDenied reports the trip and, for auth endpoints, blocks the IP so
// credential stuffing cannot simply ride out the minute window.
func (s *Service) onDenied(ctx context.Context, ip string, userID int64, class models.EndpointClass, path string) {
	s.events.Record(security.Event{
		Kind:       security.EventRateLimitExceeded,
		IP:         ip,
		UserID:     userID,
		Path:       path,
		Detail:     string(class),
		OccurredAt: s.now(),
	})

	if class != models.ClassAuth {
		return
	}
	if err := s.blocks.Block(ctx, ip, "auth rate limit exceeded", s.blockDuration); err != nil {
		s.logger.WarnContext(ctx, "failed to auto-block ip", "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.AutoBlocks.Inc()
	}
	s.events.Record(security.Event{
		Kind:       security.EventIPBlocked,
		IP:         ip,
		Detail:     "auth rate limit exceeded",
		OccurredAt: s.now(),
	})
	s.logger.InfoContext(ctx, "auto-blocked ip",
		"duration", s.blockDuration,
		"class", class,
	)
}

func (s *Service) countDenied(class models.EndpointClass) {
	if s.metrics != nil {
		s.metrics.ChecksDenied.WithLabelValues(string(class)).Inc()
	}
}

// BlockIP places a manual block.
func (s *Service) BlockIP(ctx context.Context, ip, reason string, d time.Duration) error {
	if d <= 0 {
		d = s.blockDuration
	}
	if err := s.blocks.Block(ctx, ip, reason, d); err != nil {
		return fmt.Errorf("block ip: %w", err)
	}
	s.events.Record(security.Event{
		Kind:       security.EventIPBlocked,
		IP:         ip,
		Detail:     reason,
		OccurredAt: s.now(),
	})
	return nil
}

// UnblockIP lifts a block.
func (s *Service) UnblockIP(ctx context.Context, ip string) error {
	if err := s.blocks.Unblock(ctx, ip); err != nil {
		return fmt.Errorf("unblock ip: %w", err)
	}
	s.events.Record(security.Event{
		Kind:       security.EventIPUnblocked,
		IP:         ip,
		OccurredAt: s.now(),
	})
	return nil
}

// BlockedIPs lists active blocks.
func (s *Service) BlockedIPs(ctx context.Context) ([]blocklist.BlockedIP, error) {
	return s.blocks.Blocked(ctx)
}

// Whitelist exempts an IP from rate limiting.
func (s *Service) Whitelist(ctx context.Context, ip string) error {
	return s.blocks.AddWhitelist(ctx, ip)
}

// Unwhitelist removes the exemption.
func (s *Service) Unwhitelist(ctx context.Context, ip string) error {
	return s.blocks.RemoveWhitelist(ctx, ip)
}

// Whitelisted lists exempt IPs.
func (s *Service) Whitelisted(ctx context.Context) ([]string, error) {
	return s.blocks.Whitelisted(ctx)
}
