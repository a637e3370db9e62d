package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per external source.
type Limiter struct {
	mu       sync.Mutex
	m        map[string]*rate.Limiter
	defRPS   float64
	defBurst int
}

type Option func(*Limiter)

// WithDefault sets the bucket used for keys that were never registered.
func WithDefault(rps float64, burst int) Option {
	return func(l *Limiter) {
		l.defRPS = rps
		l.defBurst = burst
	}
}

func New(opts ...Option) *Limiter {
	l := &Limiter{m: make(map[string]*rate.Limiter), defRPS: 5, defBurst: 1}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register installs (or replaces) the bucket for key. rps <= 0 disables limiting.
func (l *Limiter) Register(key string, rps float64, burst int) {
	if burst <= 0 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Inf, burst)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	l.mu.Lock()
	l.m[key] = lim
	l.mu.Unlock()
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.m[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.defRPS), l.defBurst)
		l.m[key] = lim
	}
	return lim
}

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if err := l.get(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", key, err)
	}
	return nil
}

// Allow returns true if one token can be consumed for key right now.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}
