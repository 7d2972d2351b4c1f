package client

import (
	"context"
	"sync"
	"time"
)

const defaultPollInterval = 30 * time.Second

// Monitor periodically samples a Snapshot and exposes the derived
// quota classification. It makes no network calls of its own; with no
// observation yet, every accessor reports "nothing to show".
type Monitor struct {
	snapshot *Snapshot
	interval time.Duration
	onUpdate func(*RateLimitInfo)
	now      func() time.Time

	mu      sync.RWMutex
	current *RateLimitInfo
}

type MonitorOption func(*Monitor)

func WithPollInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithOnUpdate registers a callback invoked after each poll that found
// an observation.
func WithOnUpdate(fn func(*RateLimitInfo)) MonitorOption {
	return func(m *Monitor) { m.onUpdate = fn }
}

// WithMonitorNow overrides the clock for tests.
func WithMonitorNow(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

func NewMonitor(snapshot *Snapshot, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		snapshot: snapshot,
		interval: defaultPollInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run polls immediately, then on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.Poll()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll()
		}
	}
}

// Poll samples the snapshot once.
func (m *Monitor) Poll() {
	info := m.snapshot.Load()

	m.mu.Lock()
	m.current = info
	m.mu.Unlock()

	if info != nil && m.onUpdate != nil {
		m.onUpdate(info)
	}
}

// Current returns the last polled observation, nil when none exists.
func (m *Monitor) Current() *RateLimitInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	cp := *m.current
	return &cp
}

// NearLimit reports whether the last observation shows under 10% of
// either quota remaining. False when nothing has been observed.
func (m *Monitor) NearLimit() bool {
	info := m.Current()
	return info != nil && info.NearLimit()
}

// Status classifies the last observation. ok is false when nothing has
// been observed, which callers should render as no indicator at all.
func (m *Monitor) Status() (status Status, ok bool) {
	info := m.Current()
	if info == nil {
		return "", false
	}
	return info.Status(), true
}

// TimeUntilReset renders the countdown for the last observation.
func (m *Monitor) TimeUntilReset() (countdown string, ok bool) {
	info := m.Current()
	if info == nil {
		return "", false
	}
	return info.FormatTimeUntilReset(m.now()), true
}
