// Package security collects notable security events (rate limit trips,
// IP blocks, suspicious requests) and forwards them to a sink for
// monitoring.
package security

import "time"

// EventKind classifies a security event.
type EventKind string

const (
	EventRateLimitExceeded EventKind = "rate_limit_exceeded"
	EventIPBlocked         EventKind = "ip_blocked"
	EventIPUnblocked       EventKind = "ip_unblocked"
	EventBlockedRequest    EventKind = "blocked_request"
)

// Event is one recorded security occurrence. The IP is stored as-is:
// security events exist to act on addresses, unlike analytics rows.
type Event struct {
	ID         string    `json:"id,omitempty"`
	Kind       EventKind `json:"kind"`
	IP         string    `json:"ip,omitempty"`
	UserID     int64     `json:"user_id,omitempty"`
	Path       string    `json:"path,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink receives security events. Implementations must not block the
// request path; slow delivery belongs behind a buffer.
type Sink interface {
	Record(event Event)
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Record(Event) {}
