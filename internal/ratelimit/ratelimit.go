package ratelimit

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter applies one token bucket per upstream host. Buckets are created
// lazily from the default limit; a zero default disables limiting.
type Limiter struct {
	mu       sync.RWMutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// New creates a Limiter allowing rps requests per second per host.
func New(rps float64, burst int) *Limiter {
	l := &Limiter{limiters: make(map[string]*rate.Limiter)}
	l.SetDefault(rps, burst)
	return l
}

// SetDefault replaces the per-host limit and drops existing buckets.
func (l *Limiter) SetDefault(rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limiters = make(map[string]*rate.Limiter)
	if rps <= 0 {
		l.limit, l.burst = 0, 0
		return
	}
	if burst <= 0 {
		burst = max(int(rps), 1)
	}
	l.limit, l.burst = rate.Limit(rps), burst
}

// Allow reports whether a request to host may proceed now.
func (l *Limiter) Allow(host string) bool {
	lim := l.get(host)
	if lim == nil {
		return true
	}
	return lim.Allow()
}

// Wait blocks until a request to host may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	lim := l.get(host)
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}

func (l *Limiter) get(host string) *rate.Limiter {
	host = strings.ToLower(host)

	l.mu.RLock()
	if l.limit <= 0 {
		l.mu.RUnlock()
		return nil
	}
	lim, ok := l.limiters[host]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit <= 0 {
		return nil
	}
	if lim, ok := l.limiters[host]; ok {
		return lim
	}
	lim = rate.NewLimiter(l.limit, l.burst)
	l.limiters[host] = lim
	return lim
}
