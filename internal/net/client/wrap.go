// Package client builds the HTTP clients used to talk to fund data
// providers. Each client enforces a request timeout, a per-host rate limit,
// a per-provider circuit breaker, an optional daily request budget and an
// optional response cache. Requests are never retried.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/fundrank/internal/cache"
	"github.com/sawpanic/fundrank/internal/metrics"
	"github.com/sawpanic/fundrank/internal/net/budget"
	"github.com/sawpanic/fundrank/internal/net/circuit"
	"github.com/sawpanic/fundrank/internal/net/ratelimit"
)

// DefaultUserAgent is sent when a request carries no User-Agent
const DefaultUserAgent = "fundrank/1.0"

type cacheKey struct{}

// WithCache marks requests made with ctx as cacheable. Only GET requests
// marked this way are served from and stored in the cache.
func WithCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheKey{}, true)
}

func cacheable(req *http.Request) bool {
	marked, _ := req.Context().Value(cacheKey{}).(bool)
	return marked && req.Method == http.MethodGet
}

// WrapperConfig configures the HTTP client wrapper
type WrapperConfig struct {
	Provider    string
	Host        string
	CacheTTL    time.Duration
	UserAgent   string
	RateLimiter *ratelimit.Limiter
	Budget      *budget.Tracker
	Breakers    *circuit.Manager
	Cache       cache.Cache
	Metrics     *metrics.Registry
}

// Wrapper wraps an HTTP RoundTripper with caching, rate limiting and
// circuit breaking
type Wrapper struct {
	config    WrapperConfig
	transport http.RoundTripper
}

// NewWrapper creates a new HTTP client wrapper
func NewWrapper(config WrapperConfig, transport http.RoundTripper) *Wrapper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	return &Wrapper{config: config, transport: transport}
}

// RoundTrip implements http.RoundTripper
func (w *Wrapper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", w.config.UserAgent)
	}

	useCache := w.config.Cache != nil && w.config.CacheTTL > 0 && cacheable(req)
	key := w.getCacheKey(req)

	if useCache {
		data, found, err := w.config.Cache.Get(req.Context(), key)
		if err != nil {
			log.Warn().Err(err).Str("provider", w.config.Provider).Msg("Cache read failed")
		} else if found {
			w.config.Metrics.RecordProviderRequest(w.config.Provider, "cache_hit")
			return w.createCachedResponse(req, data), nil
		}
	}

	if w.config.Budget != nil {
		if err := w.config.Budget.Reserve(); err != nil {
			w.config.Metrics.RecordProviderRequest(w.config.Provider, "budget_exhausted")
			return nil, &ProviderError{Provider: w.config.Provider, Type: "budget", Err: err}
		}
	}

	if w.config.RateLimiter != nil {
		host := w.config.Host
		if host == "" {
			host = req.URL.Host
		}
		if err := w.config.RateLimiter.Wait(req.Context(), host); err != nil {
			w.config.Metrics.RecordProviderRequest(w.config.Provider, "error")
			return nil, &ProviderError{Provider: w.config.Provider, Type: "rate_limit", Err: err}
		}
	}

	var response *http.Response
	execute := func() error {
		resp, err := w.transport.RoundTrip(req)
		if err != nil {
			return &ProviderError{Provider: w.config.Provider, Type: "transport", Err: err}
		}
		if resp.StatusCode >= 400 {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return &ProviderError{
				Provider:   w.config.Provider,
				Type:       "http_error",
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("HTTP %d error", resp.StatusCode),
			}
		}
		response = resp
		return nil
	}

	var err error
	if w.config.Breakers != nil {
		err = w.config.Breakers.Execute(w.config.Provider, execute)
	} else {
		err = execute()
	}
	if err != nil {
		w.config.Metrics.RecordProviderRequest(w.config.Provider, "error")
		var perr *ProviderError
		if errors.As(err, &perr) {
			return nil, err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &ProviderError{Provider: w.config.Provider, Type: "circuit", Err: err}
		}
		return nil, &ProviderError{Provider: w.config.Provider, Type: "transport", Err: err}
	}

	w.config.Metrics.RecordProviderRequest(w.config.Provider, "ok")

	if useCache && response.StatusCode == http.StatusOK {
		if err := w.cacheResponse(req.Context(), key, response); err != nil {
			return nil, &ProviderError{Provider: w.config.Provider, Type: "transport", Err: err}
		}
	}
	return response, nil
}

func (w *Wrapper) getCacheKey(req *http.Request) string {
	return fmt.Sprintf("%s:%s:%s", w.config.Provider, req.Method, req.URL.String())
}

func (w *Wrapper) createCachedResponse(req *http.Request, data []byte) *http.Response {
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: int64(len(data)),
		Request:       req,
	}
}

// cacheResponse reads the body, stores it and hands the caller a fresh
// reader over the same bytes. A failed cache write is logged only.
func (w *Wrapper) cacheResponse(ctx context.Context, key string, resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))

	if err := w.config.Cache.Set(ctx, key, data, w.config.CacheTTL); err != nil {
		log.Warn().Err(err).Str("provider", w.config.Provider).Msg("Cache write failed")
	}
	return nil
}

// ProviderError represents an error from a provider with context
type ProviderError struct {
	Provider   string `json:"provider"`
	Type       string `json:"type"` // "rate_limit", "budget", "circuit", "transport", "http_error"
	StatusCode int    `json:"status_code,omitempty"`
	Err        error  `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s %s error (HTTP %d): %v", e.Provider, e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s %s error: %v", e.Provider, e.Type, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRateLimited returns true if the error is due to rate limiting
func (e *ProviderError) IsRateLimited() bool {
	return e.Type == "rate_limit"
}

// IsCircuitOpen returns true if the error is due to circuit breaker being open
func (e *ProviderError) IsCircuitOpen() bool {
	return e.Type == "circuit"
}
