// Package ratelimit bounds how often an identifier (an email address, a
// client IP) may perform an action within a sliding window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
)

// ErrRateLimited is returned by callers that turn a Limited decision into an error.
var ErrRateLimited = errs.ErrRateLimited

// Decision is the outcome of CheckAndRecord.
type Decision struct {
	Allowed bool
	// RetryAfter is how long until the oldest counted event leaves the
	// window. Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter is a sliding-window log. A rejected call is not recorded.
type Limiter interface {
	CheckAndRecord(ctx context.Context, identifier string, window time.Duration, max int) (Decision, error)
	Reset(ctx context.Context, identifier string) error
}

// Memory keeps the window log in process.
type Memory struct {
	mu      sync.Mutex
	events  map[string]*windowLog
	nowFunc func() time.Time
	calls   int
}

type windowLog struct {
	ts     []time.Time
	window time.Duration
}

type MemoryOption func(*Memory)

func WithNowFunc(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.nowFunc = now
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		events:  make(map[string]*windowLog),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// pruneEvery is how many calls pass between sweeps of idle identifiers.
const pruneEvery = 1024

// CheckAndRecord implements Limiter. A non-positive max always limits.
func (m *Memory) CheckAndRecord(_ context.Context, identifier string, window time.Duration, max int) (Decision, error) {
	now := m.nowFunc()
	cutoff := now.Add(-window)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls%pruneEvery == 0 {
		m.pruneIdle(now)
	}

	var live []time.Time
	if l, ok := m.events[identifier]; ok {
		live = inWindow(l.ts, cutoff)
	}
	if max <= 0 {
		m.store(identifier, live, window)
		return Decision{Allowed: false, RetryAfter: window}, nil
	}
	if len(live) >= max {
		m.store(identifier, live, window)
		return Decision{Allowed: false, RetryAfter: live[0].Sub(cutoff)}, nil
	}
	m.store(identifier, append(live, now), window)
	return Decision{Allowed: true}, nil
}

// Reset implements Limiter.
func (m *Memory) Reset(_ context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, identifier)
	return nil
}

func (m *Memory) store(identifier string, live []time.Time, window time.Duration) {
	if len(live) == 0 {
		delete(m.events, identifier)
		return
	}
	m.events[identifier] = &windowLog{ts: live, window: window}
}

// pruneIdle drops identifiers whose newest event has left their own window.
func (m *Memory) pruneIdle(now time.Time) {
	for id, l := range m.events {
		if len(l.ts) == 0 || !l.ts[len(l.ts)-1].After(now.Add(-l.window)) {
			delete(m.events, id)
		}
	}
}

// Len is the number of identifiers currently tracked.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// inWindow returns the suffix of sorted timestamps that are after cutoff.
func inWindow(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

var _ Limiter = (*Memory)(nil)
