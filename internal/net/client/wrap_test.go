package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/fundrank/internal/cache"
	"github.com/sawpanic/fundrank/internal/config"
	"github.com/sawpanic/fundrank/internal/metrics"
	"github.com/sawpanic/fundrank/internal/net/budget"
)

func providerConfig(host string) *config.ProviderConfig {
	return &config.ProviderConfig{
		Host:      host,
		BaseURL:   "http://" + host,
		RPS:       100,
		Burst:     10,
		TimeoutMS: 2000,
		TTLSecs:   60,
		Enabled:   true,
		Circuit:   config.CircuitConfig{FailureThreshold: 2, HalfOpenRequests: 1, OpenMS: 60000},
	}
}

func get(t *testing.T, c *http.Client, ctx context.Context, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	return c.Do(req)
}

func TestClient_CachesMarkedRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "fundrank-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"funds":[1,2]}`))
	}))
	defer srv.Close()

	reg := metrics.NewRegistry()
	mgr := NewManager(cache.NewMemory(0), reg, "fundrank-test")
	c := mgr.AddProvider("screener", providerConfig("screener"))

	ctx := WithCache(context.Background())
	for i := 0; i < 3; i++ {
		resp, err := get(t, c, ctx, srv.URL+"/sector/debt")
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, `{"funds":[1,2]}`, string(body))
	}
	assert.Equal(t, int32(1), hits.Load())

	// unmarked requests always go upstream
	resp, err := get(t, c, context.Background(), srv.URL+"/sector/debt")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_HTTPErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	mgr := NewManager(nil, nil, "")
	c := mgr.AddProvider("factsheet", providerConfig("factsheet"))

	_, err := get(t, c, context.Background(), srv.URL)
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "factsheet", perr.Provider)
	assert.Equal(t, "http_error", perr.Type)
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
}

func TestClient_CircuitOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	mgr := NewManager(nil, nil, "")
	c := mgr.AddProvider("analytics", providerConfig("analytics"))

	for i := 0; i < 2; i++ {
		_, err := get(t, c, context.Background(), srv.URL)
		require.Error(t, err)
	}

	_, err := get(t, c, context.Background(), srv.URL)
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.IsCircuitOpen())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), hits.Load(), "open circuit must not reach the server")

	summary := mgr.GetHealthySummary()
	assert.Equal(t, []string{"analytics"}, summary.Unhealthy)
	assert.Equal(t, 1, summary.Total)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	pc := providerConfig("slow")
	pc.TimeoutMS = 20
	mgr := NewManager(nil, nil, "")
	c := mgr.AddProvider("slow", pc)

	start := time.Now()
	_, err := get(t, c, context.Background(), srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestClient_RateLimitCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	pc := providerConfig("limited")
	pc.RPS = 0.01
	pc.Burst = 1
	mgr := NewManager(nil, nil, "")
	c := mgr.AddProvider("limited", pc)

	resp, err := get(t, c, context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = get(t, c, ctx, srv.URL)
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.IsRateLimited())
}

func TestManagerFromConfig(t *testing.T) {
	cfg := &config.ProvidersConfig{
		Providers: map[string]config.ProviderConfig{
			"screener":  *providerConfig("screener"),
			"factsheet": {Enabled: false},
		},
		Global: config.GlobalConfig{UserAgent: "ua"},
	}

	mgr := NewManagerFromConfig(cfg, nil, nil)
	assert.Equal(t, []string{"screener"}, mgr.Providers())

	_, err := mgr.GetClient("screener")
	assert.NoError(t, err)
	_, err = mgr.GetClient("factsheet")
	assert.Error(t, err)
}

func TestClient_DailyBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"token":"t"}`))
	}))
	defer srv.Close()

	mgr := NewManager(cache.NewMemory(0), nil, "")
	pc := providerConfig("analytics")
	pc.DailyBudget = 2
	c := mgr.AddProvider("analytics", pc)

	for i := 0; i < 2; i++ {
		resp, err := get(t, c, context.Background(), srv.URL+"/token")
		require.NoError(t, err)
		resp.Body.Close()
	}
	_, err := get(t, c, context.Background(), srv.URL+"/token")
	require.Error(t, err)
	assert.ErrorIs(t, err, budget.ErrExhausted)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "budget", perr.Type)
	assert.Equal(t, int32(2), hits.Load())

	stats := mgr.BudgetStats()
	assert.True(t, stats["analytics"].Exhausted)
}
