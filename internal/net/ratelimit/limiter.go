// Package ratelimit throttles outbound provider calls with one token bucket
// per host.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter provides per-host rate limiting using token bucket algorithm
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     float64
	burst   int
}

// NewLimiter creates a limiter that hands every host rps tokens per second
// with the given burst
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rps:     rps,
		burst:   burst,
	}
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[host]
	if !ok {
		b = rate.NewLimiter(rate.Limit(l.rps), l.burst)
		l.buckets[host] = b
	}
	return b
}

// Allow reports whether a request to host may go out now
func (l *Limiter) Allow(host string) bool {
	return l.bucket(host).Allow()
}

// Wait blocks until a request to host is allowed or ctx is done
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if err := l.bucket(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	return nil
}

// Tokens returns the tokens currently available for host
func (l *Limiter) Tokens(host string) float64 {
	return l.bucket(host).Tokens()
}

// Hosts returns the number of hosts seen so far
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Manager holds one Limiter per provider
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewManager creates an empty rate limiter manager
func NewManager() *Manager {
	return &Manager{limiters: make(map[string]*Limiter)}
}

// AddProvider installs a limiter for provider, replacing any previous one
func (m *Manager) AddProvider(provider string, rps float64, burst int) *Limiter {
	l := NewLimiter(rps, burst)
	m.mu.Lock()
	m.limiters[provider] = l
	m.mu.Unlock()
	return l
}

// Get returns the limiter for provider
func (m *Manager) Get(provider string) (*Limiter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.limiters[provider]
	return l, ok
}

// Wait blocks on the provider's limiter for host. Providers without a
// limiter are not throttled.
func (m *Manager) Wait(ctx context.Context, provider, host string) error {
	l, ok := m.Get(provider)
	if !ok {
		return nil
	}
	return l.Wait(ctx, host)
}
