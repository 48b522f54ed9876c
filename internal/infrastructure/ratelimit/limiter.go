// Package ratelimit counts requests per key over a fixed-length window.
// MemoryLimiter serves a single instance; SlidingWindowLimiter shares the
// count across instances through Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of one Allow call
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // zero when allowed
}

// Limiter decides whether one more request for key fits in the window
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// MemoryLimiter is a fixed-window counter held in process memory
type MemoryLimiter struct {
	mu        sync.Mutex
	clients   map[string]*window
	limit     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

type window struct {
	used    int
	resetAt time.Time
}

// NewMemoryLimiter allows limit requests per key every size interval
func NewMemoryLimiter(limit int, size time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		clients: make(map[string]*window),
		limit:   limit,
		window:  size,
		now:     time.Now,
	}
}

// Allow implements Limiter
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	w, ok := l.clients[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.window)}
		l.clients[key] = w
	}

	if w.used >= l.limit {
		return Result{Limit: l.limit, RetryAfter: w.resetAt.Sub(now)}, nil
	}
	w.used++
	return Result{Allowed: true, Limit: l.limit, Remaining: l.limit - w.used}, nil
}

// sweep drops expired windows at most once per window length
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, w := range l.clients {
		if !now.Before(w.resetAt) {
			delete(l.clients, key)
		}
	}
}
