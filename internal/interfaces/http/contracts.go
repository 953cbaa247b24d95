package http

import (
	"time"

	"github.com/sawpanic/fundrank/internal/domain/fund"
	"github.com/sawpanic/fundrank/internal/net/budget"
	"github.com/sawpanic/fundrank/internal/net/circuit"
	"github.com/sawpanic/fundrank/internal/normalize"
)

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    string                   `json:"status"` // healthy, degraded, unhealthy
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Version   string                   `json:"version"`
	Providers ProviderSummary          `json:"provider_summary"`
	Circuits  map[string]circuit.Stats `json:"circuits,omitempty"`
	Budgets   map[string]budget.Stats  `json:"budgets,omitempty"`
	System    SystemInfo               `json:"system"`
}

// ProviderSummary splits providers by circuit state
type ProviderSummary struct {
	Total     int      `json:"total"`
	Healthy   []string `json:"healthy"`
	Unhealthy []string `json:"unhealthy"`
}

// SystemInfo provides runtime information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
}

// CategoryInfo describes one supported category
type CategoryInfo struct {
	Category   fund.Category      `json:"category"`
	TieMode    string             `json:"tie_mode"`
	WeightKeys []string           `json:"weight_keys"`
	Defaults   map[string]float64 `json:"default_weights,omitempty"`
}

// CategoriesResponse is returned by GET /categories
type CategoriesResponse struct {
	Categories []CategoryInfo `json:"categories"`
}

// RankResponse is returned by GET /rank/{category}
type RankResponse struct {
	RunID      string             `json:"run_id"`
	Category   fund.Category      `json:"category"`
	Weights    map[string]float64 `json:"weights"`
	Ignored    []string           `json:"ignored_weight_keys,omitempty"`
	RateChange float64            `json:"rate_change"`
	Funds      []fund.RankedFund  `json:"funds"`
	Unmatched  []string           `json:"unmatched,omitempty"`
	Malformed  []normalize.Report `json:"malformed,omitempty"`
	Degraded   map[fund.Field]int `json:"degraded,omitempty"`
	DurationMS int64              `json:"duration_ms"`
	Generated  time.Time          `json:"generated"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}
