package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fundrank/internal/domain/fund"
	"github.com/sawpanic/fundrank/internal/normalize"
)

var (
	_ Source = (*HTTPAdapter)(nil)
	_ Source = (*Static)(nil)
)

// Static serves canned payloads from memory. It backs offline runs and tests.
type Static struct {
	name string

	Sectors map[string][]normalize.RawRecord  `json:"sectors"`
	Token   string                            `json:"token"`
	Metrics map[string]map[fund.Field]float64 `json:"metrics"` // fund id → metric → value

	// TokenErr fails FetchAccessToken; MetricErrs fails every metric of a fund id
	TokenErr   error            `json:"-"`
	MetricErrs map[string]error `json:"-"`

	mu     sync.Mutex
	tokens []string
}

// NewStatic creates an empty static adapter
func NewStatic(name string) *Static {
	return &Static{
		name:       name,
		Sectors:    make(map[string][]normalize.RawRecord),
		Metrics:    make(map[string]map[fund.Field]float64),
		MetricErrs: make(map[string]error),
	}
}

// LoadStatic reads a static adapter from a JSON fixture of the form
//
//	{"sectors": {"debt": [...]}, "token": "t", "metrics": {"id": {"modifiedDuration": 4.5}}}
func LoadStatic(name, path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}

	s := NewStatic(name)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	if s.Metrics == nil {
		s.Metrics = make(map[string]map[fund.Field]float64)
	}
	if s.MetricErrs == nil {
		s.MetricErrs = make(map[string]error)
	}
	return s, nil
}

// LoadStaticDir registers one static adapter per *.json file in dir, named
// after the file
func LoadStaticDir(dir string) (*Registry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list fixtures in %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no fixtures found in %s", dir)
	}

	reg := NewRegistry()
	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		s, err := LoadStatic(name, p)
		if err != nil {
			return nil, err
		}
		reg.Register(s)
	}
	log.Debug().Str("dir", dir).Strs("providers", reg.Names()).Msg("Loaded offline fixtures")
	return reg, nil
}

func (s *Static) Name() string { return s.name }

// FetchSectorFunds returns the records stored for category
func (s *Static) FetchSectorFunds(ctx context.Context, category string) ([]normalize.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records := s.Sectors[category]
	out := make([]normalize.RawRecord, len(records))
	copy(out, records)
	return out, nil
}

// FetchAccessToken returns Token and records the reference it was asked for
func (s *Static) FetchAccessToken(ctx context.Context, referenceID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.tokens = append(s.tokens, referenceID)
	s.mu.Unlock()
	if s.TokenErr != nil {
		return "", s.TokenErr
	}
	return s.Token, nil
}

// FetchDerivedMetric returns the stored metric, or 0 when none is stored
func (s *Static) FetchDerivedMetric(ctx context.Context, fundID string, metric fund.Field, token string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.MetricErrs[fundID]; err != nil {
		return 0, err
	}
	if token != "" && token != s.Token {
		return 0, fmt.Errorf("provider %s: invalid access token", s.name)
	}
	return s.Metrics[fundID][metric], nil
}

// TokenRequests returns the reference ids FetchAccessToken was called with
func (s *Static) TokenRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}
