// Package cache stores raw provider payloads between runs. Rankings are
// never cached.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache stores byte payloads under string keys with a TTL
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options selects and sizes the cache backend
type Options struct {
	RedisAddr  string // empty selects Memory
	RedisDB    int
	Prefix     string
	MaxEntries int // Memory only, 0 means unbounded
}

// New returns a Redis cache when opts.RedisAddr is set and reachable, and an
// in-memory cache otherwise
func New(ctx context.Context, opts Options) Cache {
	if opts.RedisAddr == "" {
		return NewMemory(opts.MaxEntries)
	}

	rc, err := NewRedisCache(ctx, opts.RedisAddr, opts.RedisDB, opts.Prefix)
	if err != nil {
		log.Warn().Err(err).Str("addr", opts.RedisAddr).Msg("Redis unavailable, falling back to memory cache")
		return NewMemory(opts.MaxEntries)
	}
	log.Debug().Str("addr", opts.RedisAddr).Msg("Using Redis response cache")
	return rc
}

type entry struct {
	b   []byte
	exp time.Time
}

// Memory is a process-local TTL cache
type Memory struct {
	mu         sync.Mutex
	m          map[string]entry
	maxEntries int
	now        func() time.Time
}

// NewMemory creates an in-memory cache holding at most maxEntries keys
func NewMemory(maxEntries int) *Memory {
	return &Memory{
		m:          make(map[string]entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns a copy of the value stored under key, if not expired
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && c.now().After(e.exp) {
		delete(c.m, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.b...), true, nil
}

// Set stores a copy of value. A non-positive ttl never expires.
func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.m[key]; !exists && c.maxEntries > 0 && len(c.m) >= c.maxEntries {
		c.evict()
	}

	e := entry{b: append([]byte(nil), value...)}
	if ttl > 0 {
		e.exp = c.now().Add(ttl)
	}
	c.m[key] = e
	return nil
}

// Len returns the number of stored keys, expired ones included
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// evict drops expired entries, or the entry closest to expiry when none has
// expired. Caller holds mu.
func (c *Memory) evict() {
	now := c.now()
	var victim string
	var soonest time.Time
	for k, e := range c.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.m, k)
			continue
		}
		if victim == "" || (!e.exp.IsZero() && (soonest.IsZero() || e.exp.Before(soonest))) {
			victim, soonest = k, e.exp
		}
	}
	if len(c.m) >= c.maxEntries && victim != "" {
		delete(c.m, victim)
	}
}
