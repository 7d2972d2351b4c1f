package track

import (
	"sync"
	"time"

	"github.com/bulletdrop/analytics/pkg/client"
)

// DefaultEngagementDuration is how long content must be visible before a
// view counts.
const DefaultEngagementDuration = 5 * time.Second

// State is the visibility state machine position.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateFired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateFired:
		return "fired"
	}
	return "unknown"
}

// TimeTracker records a view once the content has been visible for a
// cumulative engagement duration. Hiding the page pauses the countdown
// and banks the elapsed visible time; showing it resumes with the
// remainder. The tracker fires exactly once per lifetime; stopping
// before the duration elapses sends nothing.
type TimeTracker struct {
	mu          sync.Mutex
	state       State
	contentType client.ContentType
	contentID   int64
	duration    time.Duration
	elapsed     time.Duration
	startedAt   time.Time
	timer       Timer
	clock       Clock
	recorder    Recorder
	recorded    bool
}

type TimeTrackerOption func(*TimeTracker)

func WithDuration(d time.Duration) TimeTrackerOption {
	return func(t *TimeTracker) {
		if d > 0 {
			t.duration = d
		}
	}
}

func WithClock(clock Clock) TimeTrackerOption {
	return func(t *TimeTracker) { t.clock = clock }
}

// NewTimeTracker builds a tracker for one piece of content. A zero
// content ID disables the tracker entirely: Start becomes a no-op.
func NewTimeTracker(recorder Recorder, ct client.ContentType, contentID int64, opts ...TimeTrackerOption) *TimeTracker {
	t := &TimeTracker{
		state:       StateIdle,
		contentType: ct,
		contentID:   contentID,
		duration:    DefaultEngagementDuration,
		clock:       SystemClock(),
		recorder:    recorder,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins the countdown. Only valid from Idle; with no content ID
// the tracker never starts.
func (t *TimeTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.contentID == 0 || t.state != StateIdle {
		return
	}
	t.state = StateRunning
	t.startedAt = t.clock.Now()
	t.timer = t.clock.AfterFunc(t.duration, t.expire)
}

// Hide pauses the countdown, banking the visible time so far. The timer
// is cancelled before the state flips, so expiry cannot race a pause.
func (t *TimeTracker) Hide() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateRunning {
		return
	}
	t.timer.Stop()
	t.timer = nil
	t.elapsed += t.clock.Now().Sub(t.startedAt)
	t.state = StatePaused
}

// Show resumes a paused countdown for the remaining visible time. If the
// banked time already covers the duration, the view fires immediately.
func (t *TimeTracker) Show() {
	t.mu.Lock()

	if t.state != StatePaused {
		t.mu.Unlock()
		return
	}
	remaining := t.duration - t.elapsed
	if remaining <= 0 {
		t.mu.Unlock()
		t.expire()
		return
	}
	t.state = StateRunning
	t.startedAt = t.clock.Now()
	t.timer = t.clock.AfterFunc(remaining, t.expire)
	t.mu.Unlock()
}

// Stop cancels the tracker. Stopping before expiry guarantees zero
// events for this lifetime.
func (t *TimeTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.state == StateRunning || t.state == StatePaused {
		t.state = StateIdle
		t.elapsed = 0
	}
}

// State returns the current state machine position.
func (t *TimeTracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// expire runs when the cumulative visible time reaches the duration.
func (t *TimeTracker) expire() {
	t.mu.Lock()
	if t.recorded || (t.state != StateRunning && t.state != StatePaused) {
		t.mu.Unlock()
		return
	}
	t.recorded = true
	t.state = StateFired
	t.timer = nil
	t.mu.Unlock()

	record(t.recorder, t.contentType, t.contentID)
}
