package track

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bulletdrop/analytics/pkg/client"
)

// fakeClock drives trackers through simulated time.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	f        func()
	stopped  bool
	fired    bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.deadline.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// fakeRecorder counts recorded views per content.
type fakeRecorder struct {
	mu    sync.Mutex
	files map[int64]int
	users map[int64]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{files: make(map[int64]int), users: make(map[int64]int)}
}

func (r *fakeRecorder) RecordFileView(ctx context.Context, uploadID int64, event client.ViewEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[uploadID]++
}

func (r *fakeRecorder) RecordProfileView(ctx context.Context, userID int64, event client.ViewEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID]++
}

func (r *fakeRecorder) fileViews(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.files[id]
}

func (r *fakeRecorder) profileViews(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id]
}
