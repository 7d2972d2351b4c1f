// Package blocklist tracks temporarily blocked IPs and the whitelist
// that exempts trusted addresses from rate limiting.
package blocklist

import (
	"context"
	"sort"
	"sync"
	"time"
)

// BlockedIP describes one active block.
type BlockedIP struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is the block and whitelist state shared by the rate limiter and
// the admin API.
type Store interface {
	// Block blocks an IP for the given duration, replacing any existing
	// block.
	Block(ctx context.Context, ip, reason string, d time.Duration) error

	// IsBlocked reports whether the IP has an active block.
	IsBlocked(ctx context.Context, ip string) (bool, error)

	// Unblock lifts a block. Unblocking an unblocked IP is a no-op.
	Unblock(ctx context.Context, ip string) error

	// Blocked lists all active blocks.
	Blocked(ctx context.Context) ([]BlockedIP, error)

	// AddWhitelist exempts an IP from rate limiting and blocking.
	AddWhitelist(ctx context.Context, ip string) error

	// RemoveWhitelist removes the exemption.
	RemoveWhitelist(ctx context.Context, ip string) error

	// IsWhitelisted reports whether the IP is exempt.
	IsWhitelisted(ctx context.Context, ip string) (bool, error)

	// Whitelisted lists all exempt IPs.
	Whitelisted(ctx context.Context) ([]string, error)
}

// Memory is the single-process store.
type Memory struct {
	mu        sync.Mutex
	blocks    map[string]BlockedIP
	whitelist map[string]bool
	now       func() time.Time
}

type MemoryOption func(*Memory)

func WithNow(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		blocks:    make(map[string]BlockedIP),
		whitelist: make(map[string]bool),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Block(ctx context.Context, ip, reason string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[ip] = BlockedIP{IP: ip, Reason: reason, ExpiresAt: m.now().Add(d)}
	return nil
}

func (m *Memory) IsBlocked(ctx context.Context, ip string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	block, ok := m.blocks[ip]
	if !ok {
		return false, nil
	}
	if !block.ExpiresAt.After(m.now()) {
		delete(m.blocks, ip)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Unblock(ctx context.Context, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, ip)
	return nil
}

func (m *Memory) Blocked(ctx context.Context) ([]BlockedIP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make([]BlockedIP, 0, len(m.blocks))
	for ip, block := range m.blocks {
		if !block.ExpiresAt.After(now) {
			delete(m.blocks, ip)
			continue
		}
		out = append(out, block)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out, nil
}

func (m *Memory) AddWhitelist(ctx context.Context, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.whitelist[ip] = true
	return nil
}

func (m *Memory) RemoveWhitelist(ctx context.Context, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.whitelist, ip)
	return nil
}

func (m *Memory) IsWhitelisted(ctx context.Context, ip string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.whitelist[ip], nil
}

func (m *Memory) Whitelisted(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.whitelist))
	for ip := range m.whitelist {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out, nil
}
