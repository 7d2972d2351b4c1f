package track

import (
	"sync"
	"time"

	"github.com/bulletdrop/analytics/pkg/client"
)

// Default delays for the simple tracker, per content kind. Profiles get
// longer because profile pages load heavier content.
const (
	DefaultFileDelay    = 1 * time.Second
	DefaultProfileDelay = 2 * time.Second
)

// DelayTracker records a view after a fixed delay, regardless of page
// visibility. Used where the visibility-aware tracker is unnecessary.
type DelayTracker struct {
	mu          sync.Mutex
	delay       time.Duration
	timer       Timer
	started     bool
	fired       bool
	contentType client.ContentType
	contentID   int64
	clock       Clock
	recorder    Recorder
}

type DelayTrackerOption func(*DelayTracker)

func WithDelay(d time.Duration) DelayTrackerOption {
	return func(t *DelayTracker) {
		if d > 0 {
			t.delay = d
		}
	}
}

func WithDelayClock(clock Clock) DelayTrackerOption {
	return func(t *DelayTracker) { t.clock = clock }
}

func NewDelayTracker(recorder Recorder, ct client.ContentType, contentID int64, opts ...DelayTrackerOption) *DelayTracker {
	delay := DefaultFileDelay
	if ct == client.ContentProfile {
		delay = DefaultProfileDelay
	}
	t := &DelayTracker{
		delay:       delay,
		contentType: ct,
		contentID:   contentID,
		clock:       SystemClock(),
		recorder:    recorder,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start schedules the recording. A zero content ID or a second Start is
// a no-op.
func (t *DelayTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.contentID == 0 || t.started {
		return
	}
	t.started = true
	t.timer = t.clock.AfterFunc(t.delay, t.expire)
}

// Stop cancels a pending recording.
func (t *DelayTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Fired reports whether the view has been recorded.
func (t *DelayTracker) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

func (t *DelayTracker) expire() {
	t.mu.Lock()
	if t.fired || t.timer == nil {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.timer = nil
	t.mu.Unlock()

	record(t.recorder, t.contentType, t.contentID)
}
