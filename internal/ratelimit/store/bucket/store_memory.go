// Package bucket implements sliding-window request counting. The memory
// store serves single-instance deployments and tests; the redis store
// shares windows across instances.
package bucket

import (
	"context"
	"sync"
	"time"

	"github.com/bulletdrop/analytics/internal/ratelimit/models"
)

// Store counts a request against a sliding window and reports the
// resulting state.
type Store interface {
	// Allow records one request against key if the window has room.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)

	// Count returns the current number of requests in the window without
	// recording one.
	Count(ctx context.Context, key string, window time.Duration) (int, error)

	// Reset clears the window for a key.
	Reset(ctx context.Context, key string) error
}

// Memory is the in-process sliding window store.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	now     func() time.Time
}

type slidingWindow struct {
	timestamps []time.Time
}

type MemoryOption func(*Memory)

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		windows: make(map[string]*slidingWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	sw := m.windows[key]
	if sw == nil {
		sw = &slidingWindow{}
		m.windows[key] = sw
	}
	sw.cleanup(now, window)

	if len(sw.timestamps) >= limit {
		resetAt := sw.timestamps[0].Add(window)
		return &models.Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter(now, resetAt),
		}, nil
	}

	sw.timestamps = append(sw.timestamps, now)
	return &models.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(sw.timestamps),
		ResetAt:   sw.timestamps[0].Add(window),
	}, nil
}

func (m *Memory) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sw := m.windows[key]
	if sw == nil {
		return 0, nil
	}
	sw.cleanup(m.now(), window)
	return len(sw.timestamps), nil
}

func (m *Memory) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, key)
	return nil
}

func (sw *slidingWindow) cleanup(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}

func retryAfter(now, resetAt time.Time) int {
	secs := int(resetAt.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
