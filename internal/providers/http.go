package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fundrank/internal/config"
	"github.com/sawpanic/fundrank/internal/domain/fund"
	"github.com/sawpanic/fundrank/internal/net/client"
	"github.com/sawpanic/fundrank/internal/normalize"
)

// HTTPAdapter talks to a JSON provider described by a providers.yaml entry
type HTTPAdapter struct {
	name      string
	baseURL   string
	endpoints config.Endpoints
	client    *http.Client
}

// NewHTTPAdapter creates an adapter for provider name. httpClient should come
// from client.Manager so the provider's limits apply.
func NewHTTPAdapter(name string, pc *config.ProviderConfig, httpClient *http.Client) (*HTTPAdapter, error) {
	if pc.BaseURL == "" {
		return nil, fmt.Errorf("provider %s: base_url cannot be empty", name)
	}
	if httpClient == nil {
		return nil, fmt.Errorf("provider %s: nil http client", name)
	}
	return &HTTPAdapter{
		name:      name,
		baseURL:   strings.TrimRight(pc.BaseURL, "/"),
		endpoints: pc.Endpoints,
		client:    httpClient,
	}, nil
}

// NewRegistryFromConfig builds an HTTP adapter for every enabled provider
func NewRegistryFromConfig(cfg *config.ProvidersConfig, mgr *client.Manager) (*Registry, error) {
	reg := NewRegistry()
	for _, name := range mgr.Providers() {
		pc, ok := cfg.GetProvider(name)
		if !ok {
			continue
		}
		httpClient, err := mgr.GetClient(name)
		if err != nil {
			return nil, err
		}
		a, err := NewHTTPAdapter(name, pc, httpClient)
		if err != nil {
			return nil, err
		}
		reg.Register(a)
	}
	return reg, nil
}

func (a *HTTPAdapter) Name() string { return a.name }

// FetchSectorFunds fetches the sector list for category. Responses may be
// served from the response cache.
func (a *HTTPAdapter) FetchSectorFunds(ctx context.Context, category string) ([]normalize.RawRecord, error) {
	if a.endpoints.Sector == "" {
		return nil, fmt.Errorf("provider %s has no sector endpoint", a.name)
	}

	doc, err := a.getJSON(client.WithCache(ctx), a.expand(a.endpoints.Sector, map[string]string{"category": category}), "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s sector funds from %s: %w", category, a.name, err)
	}

	list := doc
	if a.endpoints.SectorList != "" {
		list, err = jsonpath.Get(a.endpoints.SectorList, doc)
		if err != nil {
			return nil, fmt.Errorf("provider %s: sector list %s: %w", a.name, a.endpoints.SectorList, err)
		}
	}

	records, err := toRecords(list)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", a.name, err)
	}
	log.Debug().Str("provider", a.name).Str("category", category).Int("records", len(records)).Msg("Fetched sector funds")
	return records, nil
}

// FetchAccessToken fetches a bearer token using referenceID. A missing token
// yields "" without error; the caller decides whether that is fatal.
func (a *HTTPAdapter) FetchAccessToken(ctx context.Context, referenceID string) (string, error) {
	if a.endpoints.Token == "" {
		return "", fmt.Errorf("provider %s has no token endpoint", a.name)
	}

	doc, err := a.getJSON(ctx, a.expand(a.endpoints.Token, map[string]string{"reference": referenceID, "id": referenceID}), "")
	if err != nil {
		return "", fmt.Errorf("failed to fetch access token from %s: %w", a.name, err)
	}

	selector := a.endpoints.TokenValue
	if selector == "" {
		selector = "$.token"
	}
	v, err := jsonpath.Get(selector, doc)
	if err != nil {
		return "", nil
	}
	token, _ := v.(string)
	return token, nil
}

// FetchDerivedMetric fetches one metric for fundID. An absent metric is 0.
func (a *HTTPAdapter) FetchDerivedMetric(ctx context.Context, fundID string, metric fund.Field, token string) (float64, error) {
	if a.endpoints.Metric == "" {
		return 0, fmt.Errorf("provider %s has no metric endpoint", a.name)
	}

	vars := map[string]string{"id": fundID, "metric": string(metric)}
	doc, err := a.getJSON(ctx, a.expand(a.endpoints.Metric, vars), token)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch %s for %s from %s: %w", metric, fundID, a.name, err)
	}

	selector := a.endpoints.MetricValue
	if selector == "" {
		selector = "$.{metric}"
	}
	selector = strings.ReplaceAll(selector, "{metric}", string(metric))

	v, err := jsonpath.Get(selector, doc)
	if err != nil {
		// unknown key: the provider has no value for this fund
		return 0, nil
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return 0, nil
		}
		v = list[0]
	}

	value, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("provider %s: %s for %s: %w", a.name, metric, fundID, err)
	}
	return value, nil
}

func (a *HTTPAdapter) expand(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", url.PathEscape(v))
	}
	return a.baseURL + strings.NewReplacer(pairs...).Replace(tmpl)
}

func (a *HTTPAdapter) getJSON(ctx context.Context, u, token string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var doc any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return doc, nil
}
