// Package circuit keeps one gobreaker circuit per provider so a failing
// provider stops receiving calls until it has had time to recover.
package circuit

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Settings configures the breaker of one provider
type Settings struct {
	FailureThreshold uint32        // consecutive failures that open the circuit
	HalfOpenRequests uint32        // probes allowed while half-open
	OpenTimeout      time.Duration // time spent open before probing
}

// StateHook is called on every state transition
type StateHook func(provider string, from, to gobreaker.State)

// Stats is a snapshot of one breaker
type Stats struct {
	Provider string           `json:"provider"`
	State    string           `json:"state"`
	Counts   gobreaker.Counts `json:"counts"`
}

// IsHealthy returns true unless the circuit is open
func (s Stats) IsHealthy() bool {
	return s.State != gobreaker.StateOpen.String()
}

// Manager holds the breakers of all providers
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	onChange StateHook
}

// NewManager creates a breaker manager. onChange may be nil.
func NewManager(onChange StateHook) *Manager {
	return &Manager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		onChange: onChange,
	}
}

// AddProvider installs a breaker for provider
func (m *Manager) AddProvider(provider string, s Settings) *gobreaker.CircuitBreaker {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: m.stateChanged,
	})

	m.mu.Lock()
	m.breakers[provider] = cb
	m.mu.Unlock()
	return cb
}

func (m *Manager) stateChanged(provider string, from, to gobreaker.State) {
	evt := log.Info()
	if to == gobreaker.StateOpen {
		evt = log.Warn()
	}
	evt.Str("provider", provider).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Circuit breaker state changed")

	if m.onChange != nil {
		m.onChange(provider, from, to)
	}
}

// Get returns the breaker for provider
func (m *Manager) Get(provider string) (*gobreaker.CircuitBreaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cb, ok := m.breakers[provider]
	return cb, ok
}

// Execute runs fn through the provider's breaker. While the circuit is open
// fn is not called and the returned error wraps gobreaker.ErrOpenState.
// Providers without a breaker run fn directly.
func (m *Manager) Execute(provider string, fn func() error) error {
	cb, ok := m.Get(provider)
	if !ok {
		return fn()
	}
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("circuit %s: %w", provider, err)
	}
	return err
}

// Stats returns a snapshot of every breaker
func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]Stats, len(m.breakers))
	for name, cb := range m.breakers {
		stats[name] = Stats{
			Provider: name,
			State:    cb.State().String(),
			Counts:   cb.Counts(),
		}
	}
	return stats
}
