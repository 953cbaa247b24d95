// Package providers fetches raw fund records and derived metrics from the
// data sources a ranking run draws on.
package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sawpanic/fundrank/internal/enrich"
	"github.com/sawpanic/fundrank/internal/normalize"
)

// Names of the providers the default category plans draw on
const (
	Screener  = "screener"  // sector lists with tagged {filter, value} records
	Factsheet = "factsheet" // per-fund factsheets, flat JSON
	Analytics = "analytics" // derived metrics behind an access token
)

// ErrUnknownProvider is returned when a registry has no adapter by that name
var ErrUnknownProvider = errors.New("unknown provider")

// Adapter fetches the raw records of one data source
type Adapter interface {
	Name() string
	FetchSectorFunds(ctx context.Context, category string) ([]normalize.RawRecord, error)
}

// Source is an adapter that also serves derived metrics
type Source interface {
	Adapter
	enrich.MetricSource
}

// Registry maps provider names to adapters
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding adapters
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Adapter returns the adapter registered under name
func (r *Registry) Adapter(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return a, nil
}

// MetricSource returns the adapter registered under name if it serves
// derived metrics
func (r *Registry) MetricSource(name string) (enrich.MetricSource, error) {
	a, err := r.Adapter(name)
	if err != nil {
		return nil, err
	}
	src, ok := a.(enrich.MetricSource)
	if !ok {
		return nil, fmt.Errorf("provider %s does not serve derived metrics", name)
	}
	return src, nil
}

// Names returns the registered provider names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// toRecords converts a decoded JSON list into raw records. Items that are not
// objects become nil records, which the normalizer skips and counts.
func toRecords(v any) ([]normalize.RawRecord, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]normalize.RawRecord, len(list))
		for i, item := range list {
			if rec, ok := item.(map[string]any); ok {
				out[i] = rec
			}
		}
		return out, nil
	case map[string]any:
		return []normalize.RawRecord{list}, nil
	default:
		return nil, fmt.Errorf("expected a list of records, got %T", v)
	}
}

// toFloat reads a metric value. Absent values are a legitimate zero.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case interface{ Float64() (float64, error) }:
		return n.Float64()
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(n), "%"))
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	default:
		return 0, fmt.Errorf("unexpected metric value type %T", v)
	}
}
