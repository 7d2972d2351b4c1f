package security

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	defaultBufferSize = 256
	defaultRecentSize = 100
)

// Monitor decouples event producers from delivery. Record never blocks:
// events go into a bounded channel that a single worker drains into the
// delivery sink, keeping the most recent events around for inspection.
type Monitor struct {
	events chan Event
	sink   Sink
	logger *slog.Logger

	mu      sync.Mutex
	recent  []Event
	next    int
	full    bool
	dropped int64
}

type MonitorOption func(*Monitor)

func WithBufferSize(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.events = make(chan Event, n)
		}
	}
}

func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = logger }
}

func NewMonitor(sink Sink, opts ...MonitorOption) *Monitor {
	if sink == nil {
		sink = NopSink{}
	}
	m := &Monitor{
		events: make(chan Event, defaultBufferSize),
		sink:   sink,
		logger: slog.Default(),
		recent: make([]Event, defaultRecentSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record enqueues an event. When the buffer is full the event is dropped:
// security monitoring must never stall request handling.
func (m *Monitor) Record(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	select {
	case m.events <- event:
	default:
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
	}
}

// Run drains the buffer until ctx is cancelled, then delivers whatever
// is still queued.
func (m *Monitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case event := <-m.events:
					m.deliver(event)
				default:
					return
				}
			}
		case event := <-m.events:
			m.deliver(event)
		}
	}
}

func (m *Monitor) deliver(event Event) {
	m.mu.Lock()
	m.recent[m.next] = event
	m.next = (m.next + 1) % len(m.recent)
	if m.next == 0 {
		m.full = true
	}
	m.mu.Unlock()

	m.sink.Record(event)
	m.logger.Debug("security event",
		"kind", event.Kind,
		"path", event.Path,
	)
}

// Recent returns the retained events, oldest first.
func (m *Monitor) Recent() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		out := make([]Event, m.next)
		copy(out, m.recent[:m.next])
		return out
	}
	out := make([]Event, 0, len(m.recent))
	out = append(out, m.recent[m.next:]...)
	out = append(out, m.recent[:m.next]...)
	return out
}

// Dropped reports how many events were discarded due to backpressure.
func (m *Monitor) Dropped() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}
