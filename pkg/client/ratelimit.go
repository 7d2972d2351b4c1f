package client

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitInfo is the most recently observed quota state. Limit and
// Remaining describe the IP scope; UserLimit and UserRemaining are zero
// unless the server reported user-scoped headers. Remaining <= Limit is
// server-enforced; this side only displays.
type RateLimitInfo struct {
	Limit         int
	Remaining     int
	Reset         int64 // unix seconds
	UserLimit     int
	UserRemaining int
}

// Status is the three-band classification of quota consumption.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Usage returns the consumed fraction, taking the worse of the IP and
// user scopes.
func (i *RateLimitInfo) Usage() float64 {
	usage := scopeUsage(i.Limit, i.Remaining)
	if u := scopeUsage(i.UserLimit, i.UserRemaining); u > usage {
		usage = u
	}
	return usage
}

func scopeUsage(limit, remaining int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(limit-remaining) / float64(limit)
}

// Status classifies consumption: normal up to 70%, warning up to 90%,
// critical beyond.
func (i *RateLimitInfo) Status() Status {
	usage := i.Usage()
	switch {
	case usage > 0.90:
		return StatusCritical
	case usage > 0.70:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// NearLimit reports whether either scope has less than 10% of its quota
// left.
func (i *RateLimitInfo) NearLimit() bool {
	if i.Limit > 0 && float64(i.Remaining)/float64(i.Limit) < 0.10 {
		return true
	}
	if i.UserLimit > 0 && float64(i.UserRemaining)/float64(i.UserLimit) < 0.10 {
		return true
	}
	return false
}

// FormatTimeUntilReset renders the countdown to quota reset, "Now" once
// the reset time has passed.
func (i *RateLimitInfo) FormatTimeUntilReset(now time.Time) string {
	secs := i.Reset - now.Unix()
	if secs <= 0 {
		return "Now"
	}
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

// Snapshot is the shared, explicitly owned slot the transport writes and
// the monitor reads. One instance per Client.
type Snapshot struct {
	mu   sync.RWMutex
	info *RateLimitInfo
}

func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// Store overwrites the snapshot with a fresh observation.
func (s *Snapshot) Store(info RateLimitInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = &info
}

// Load returns a copy of the latest observation, or nil when no
// rate-limit headers have been seen yet.
func (s *Snapshot) Load() *RateLimitInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil {
		return nil
	}
	cp := *s.info
	return &cp
}
