package client

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/sony/gobreaker"

	"github.com/sawpanic/fundrank/internal/cache"
	"github.com/sawpanic/fundrank/internal/config"
	"github.com/sawpanic/fundrank/internal/metrics"
	"github.com/sawpanic/fundrank/internal/net/budget"
	"github.com/sawpanic/fundrank/internal/net/circuit"
	"github.com/sawpanic/fundrank/internal/net/ratelimit"
)

// Manager manages wrapped HTTP clients for multiple providers
type Manager struct {
	clients      map[string]*http.Client
	rateLimitMgr *ratelimit.Manager
	circuitMgr   *circuit.Manager
	budgetMgr    *budget.Manager
	cache        cache.Cache
	metrics      *metrics.Registry
	userAgent    string
	transport    http.RoundTripper
}

// NewManager creates a client manager. c and m may be nil.
func NewManager(c cache.Cache, m *metrics.Registry, userAgent string) *Manager {
	return &Manager{
		clients:      make(map[string]*http.Client),
		rateLimitMgr: ratelimit.NewManager(),
		budgetMgr:    budget.NewManager(),
		circuitMgr: circuit.NewManager(func(provider string, _, to gobreaker.State) {
			m.SetCircuitState(provider, int(to))
		}),
		cache:     c,
		metrics:   m,
		userAgent: userAgent,
	}
}

// NewManagerFromConfig creates a manager with a client for every enabled
// provider in cfg
func NewManagerFromConfig(cfg *config.ProvidersConfig, c cache.Cache, m *metrics.Registry) *Manager {
	mgr := NewManager(c, m, cfg.Global.UserAgent)
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		pc := pc
		mgr.AddProvider(name, &pc)
	}
	return mgr
}

// SetTransport replaces the base transport of clients added afterwards
func (m *Manager) SetTransport(rt http.RoundTripper) {
	m.transport = rt
}

// AddProvider creates a wrapped HTTP client for a provider
func (m *Manager) AddProvider(name string, pc *config.ProviderConfig) *http.Client {
	limiter := m.rateLimitMgr.AddProvider(name, pc.RPS, pc.Burst)
	m.circuitMgr.AddProvider(name, circuit.Settings{
		FailureThreshold: pc.Circuit.FailureThreshold,
		HalfOpenRequests: pc.Circuit.HalfOpenRequests,
		OpenTimeout:      pc.GetOpenTimeout(),
	})

	var tracker *budget.Tracker
	if pc.DailyBudget > 0 {
		tracker = m.budgetMgr.AddProvider(name, pc.DailyBudget, pc.BudgetReset, 0)
	}

	wrapper := NewWrapper(WrapperConfig{
		Provider:    name,
		Host:        pc.Host,
		CacheTTL:    pc.GetCacheTTL(),
		UserAgent:   m.userAgent,
		RateLimiter: limiter,
		Budget:      tracker,
		Breakers:    m.circuitMgr,
		Cache:       m.cache,
		Metrics:     m.metrics,
	}, m.transport)

	client := &http.Client{
		Transport: wrapper,
		Timeout:   pc.GetRequestTimeout(),
	}
	m.clients[name] = client
	return client
}

// GetClient returns the HTTP client for a specific provider
func (m *Manager) GetClient(provider string) (*http.Client, error) {
	client, exists := m.clients[provider]
	if !exists {
		return nil, fmt.Errorf("no client configured for provider %s", provider)
	}
	return client, nil
}

// Providers returns the configured provider names, sorted
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CircuitStats returns a snapshot of every provider's breaker
func (m *Manager) CircuitStats() map[string]circuit.Stats {
	return m.circuitMgr.Stats()
}

// BudgetStats returns the quota usage of every metered provider
func (m *Manager) BudgetStats() map[string]budget.Stats {
	return m.budgetMgr.Stats()
}

// HealthSummary represents overall provider health
type HealthSummary struct {
	Healthy   []string `json:"healthy"`
	Unhealthy []string `json:"unhealthy"`
	Total     int      `json:"total"`
}

// GetHealthySummary splits providers by circuit state
func (m *Manager) GetHealthySummary() HealthSummary {
	stats := m.circuitMgr.Stats()
	summary := HealthSummary{Healthy: []string{}, Unhealthy: []string{}}
	for _, name := range m.Providers() {
		if s, ok := stats[name]; ok && !s.IsHealthy() {
			summary.Unhealthy = append(summary.Unhealthy, name)
		} else {
			summary.Healthy = append(summary.Healthy, name)
		}
	}
	summary.Total = len(summary.Healthy) + len(summary.Unhealthy)
	return summary
}
