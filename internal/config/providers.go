package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ProvidersConfig represents the complete provider configuration
type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Cache     CacheConfig               `yaml:"cache"`
	Global    GlobalConfig              `yaml:"global"`
}

// ProviderConfig represents configuration for a single data provider
type ProviderConfig struct {
	Host      string        `yaml:"host"`
	BaseURL   string        `yaml:"base_url"`
	RPS       float64       `yaml:"rps"`        // Requests per second
	Burst     int           `yaml:"burst"`      // Burst capacity
	TimeoutMS int           `yaml:"timeout_ms"` // Per-request timeout
	TTLSecs   int           `yaml:"ttl_secs"`   // Response cache TTL, 0 disables caching
	Circuit   CircuitConfig `yaml:"circuit"`
	Enabled   bool          `yaml:"enabled"`
	Endpoints Endpoints     `yaml:"endpoints"`

	DailyBudget int64 `yaml:"daily_budget"`      // metered requests per day, 0 is unmetered
	BudgetReset int   `yaml:"budget_reset_hour"` // UTC hour the quota renews

}

// Endpoints holds the path templates and JSONPath selectors of a provider.
// Templates may reference {category}, {id}, {metric} and {reference}.
type Endpoints struct {
	Sector      string `yaml:"sector"`       // GET, list of sector funds
	SectorList  string `yaml:"sector_list"`  // JSONPath of the record list in the sector payload
	Token       string `yaml:"token"`        // GET, access token for a reference fund
	TokenValue  string `yaml:"token_value"`  // JSONPath of the token in the token payload
	Metric      string `yaml:"metric"`       // GET, one derived metric for one fund
	MetricValue string `yaml:"metric_value"` // JSONPath of the metric value
}

// CircuitConfig represents circuit breaker configuration
type CircuitConfig struct {
	FailureThreshold uint32 `yaml:"failure_threshold"` // Consecutive failures to open circuit
	HalfOpenRequests uint32 `yaml:"half_open_requests"`
	OpenMS           int    `yaml:"open_ms"` // Time spent open before probing
}

// CacheConfig selects the response cache backend
type CacheConfig struct {
	RedisAddr  string `yaml:"redis_addr"` // empty selects the in-memory cache
	RedisDB    int    `yaml:"redis_db"`
	MaxEntries int    `yaml:"max_entries"`
}

// GlobalConfig represents settings shared by all providers
type GlobalConfig struct {
	UserAgent      string `yaml:"user_agent"`
	MaxConcurrency int    `yaml:"max_concurrency"` // enrichment tasks in flight
}

// LoadProvidersConfig loads provider configuration from YAML file
func LoadProvidersConfig(configPath string) (*ProvidersConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers config: %w", err)
	}

	var config ProvidersConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse providers config: %w", err)
	}
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid providers config: %w", err)
	}

	return &config, nil
}

func (c *ProvidersConfig) applyEnv() {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Cache.RedisAddr = addr
	}
}

// Validate ensures the configuration is valid and consistent
func (c *ProvidersConfig) Validate() error {
	if c.Global.MaxConcurrency < 0 {
		return fmt.Errorf("global max_concurrency cannot be negative, got %d", c.Global.MaxConcurrency)
	}
	if c.Global.UserAgent == "" {
		return fmt.Errorf("global user_agent cannot be empty")
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache max_entries cannot be negative, got %d", c.Cache.MaxEntries)
	}

	for name, provider := range c.Providers {
		if !provider.Enabled {
			continue
		}
		if err := provider.Validate(); err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
	}

	return nil
}

// Validate ensures a provider configuration is valid
func (p *ProviderConfig) Validate() error {
	if p.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if p.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}
	if p.RPS <= 0 {
		return fmt.Errorf("rps must be positive, got %g", p.RPS)
	}
	if p.Burst < 1 {
		return fmt.Errorf("burst must be at least 1, got %d", p.Burst)
	}
	if p.TimeoutMS <= 0 {
		return fmt.Errorf("timeout_ms must be positive, got %d", p.TimeoutMS)
	}
	if p.TTLSecs < 0 {
		return fmt.Errorf("ttl_secs cannot be negative, got %d", p.TTLSecs)
	}
	if p.DailyBudget < 0 {
		return fmt.Errorf("daily_budget cannot be negative, got %d", p.DailyBudget)
	}
	if p.BudgetReset < 0 || p.BudgetReset > 23 {
		return fmt.Errorf("budget_reset_hour must be within 0-23, got %d", p.BudgetReset)
	}

	if err := p.Circuit.Validate(); err != nil {
		return fmt.Errorf("circuit: %w", err)
	}

	return nil
}

// Validate ensures circuit breaker configuration is valid
func (c *CircuitConfig) Validate() error {
	if c.FailureThreshold == 0 {
		return fmt.Errorf("failure_threshold must be positive")
	}
	if c.OpenMS <= 0 {
		return fmt.Errorf("open_ms must be positive, got %d", c.OpenMS)
	}
	return nil
}

// GetCacheTTL returns the cache TTL as a time.Duration
func (p *ProviderConfig) GetCacheTTL() time.Duration {
	return time.Duration(p.TTLSecs) * time.Second
}

// GetRequestTimeout returns the request timeout as a time.Duration
func (p *ProviderConfig) GetRequestTimeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// GetOpenTimeout returns how long the circuit stays open
func (p *ProviderConfig) GetOpenTimeout() time.Duration {
	return time.Duration(p.Circuit.OpenMS) * time.Millisecond
}

// GetProvider returns configuration for a specific provider
func (c *ProvidersConfig) GetProvider(name string) (*ProviderConfig, bool) {
	config, exists := c.Providers[name]
	return &config, exists
}

// IsProviderEnabled checks if a provider is enabled
func (c *ProvidersConfig) IsProviderEnabled(name string) bool {
	if config, exists := c.Providers[name]; exists {
		return config.Enabled
	}
	return false
}

// GetDefaultProvidersPath returns the default provider configuration path
func GetDefaultProvidersPath() string {
	return filepath.Join("config", "providers.yaml")
}
