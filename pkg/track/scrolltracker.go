package track

import (
	"sync"

	"github.com/bulletdrop/analytics/pkg/client"
)

// DefaultScrollThreshold is the scroll fraction that counts as
// engagement.
const DefaultScrollThreshold = 0.25

// ScrollTracker records a view once the viewer has scrolled past a
// fraction of the page. It deregisters itself after the first
// qualifying observation: at most one event per lifetime.
type ScrollTracker struct {
	mu          sync.Mutex
	threshold   float64
	fired       bool
	stopped     bool
	contentType client.ContentType
	contentID   int64
	recorder    Recorder
}

type ScrollTrackerOption func(*ScrollTracker)

// WithThreshold sets the qualifying scroll fraction in (0, 1].
func WithThreshold(fraction float64) ScrollTrackerOption {
	return func(t *ScrollTracker) {
		if fraction > 0 && fraction <= 1 {
			t.threshold = fraction
		}
	}
}

func NewScrollTracker(recorder Recorder, ct client.ContentType, contentID int64, opts ...ScrollTrackerOption) *ScrollTracker {
	t := &ScrollTracker{
		threshold:   DefaultScrollThreshold,
		contentType: ct,
		contentID:   contentID,
		recorder:    recorder,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe feeds one scroll position as a fraction of total page height.
// Returns true when this observation fired the view.
func (t *ScrollTracker) Observe(fraction float64) bool {
	t.mu.Lock()
	if t.fired || t.stopped || t.contentID == 0 || fraction < t.threshold {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	t.mu.Unlock()

	record(t.recorder, t.contentType, t.contentID)
	return true
}

// Stop deregisters the tracker; later observations are ignored.
func (t *ScrollTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Fired reports whether the view has been recorded.
func (t *ScrollTracker) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}
