// Package enrich adds derived metrics to normalized funds. Metrics that need
// another provider round trip are fetched concurrently, one task per fund.
package enrich

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/fundrank/internal/domain/fund"
	"github.com/sawpanic/fundrank/internal/normalize"
)

// ErrAccessToken is returned when the shared access token cannot be obtained
var ErrAccessToken = errors.New("access token unavailable")

const defaultMaxConcurrency = 8

// MetricSource is the provider side of enrichment
type MetricSource interface {
	// FetchAccessToken returns an opaque bearer token, possibly empty on failure
	FetchAccessToken(ctx context.Context, referenceID string) (string, error)
	// FetchDerivedMetric returns 0 without error when the metric is absent
	FetchDerivedMetric(ctx context.Context, fundID string, metric fund.Field, token string) (float64, error)
}

// Mode selects how provider calls are scheduled
type Mode int

const (
	// Parallel enriches every fund concurrently without a token
	Parallel Mode = iota
	// SharedToken fetches one access token with the first fund of the batch
	// and reuses it for every call; calls after the token fan out concurrently.
	SharedToken
)

func (m Mode) String() string {
	if m == SharedToken {
		return "shared-token"
	}
	return "parallel"
}

// Metric is one derived field to fetch
type Metric struct {
	Field fund.Field
	// Required turns a fetch failure into a batch failure. Otherwise the
	// field is defaulted to 0 and tagged unavailable.
	Required bool
}

// Config configures an Enricher
type Config struct {
	Mode           Mode
	Metrics        []Metric
	MaxConcurrency int
	// OnUnavailable is called for every soft failure. It must be safe for
	// concurrent use.
	OnUnavailable func(f fund.Fund, field fund.Field, err error)
}

// Enricher fetches derived metrics for a batch of funds
type Enricher struct {
	source MetricSource
	cfg    Config
}

// NewEnricher creates an enricher over source
func NewEnricher(source MetricSource, cfg Config) *Enricher {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	return &Enricher{source: source, cfg: cfg}
}

// Enrich fetches every configured metric for every fund, writing the values
// into funds in place. The first hard failure cancels the remaining calls
// and is returned.
func (e *Enricher) Enrich(ctx context.Context, funds []fund.Fund) error {
	if len(funds) == 0 || len(e.cfg.Metrics) == 0 {
		return nil
	}

	var token string
	if e.cfg.Mode == SharedToken {
		t, err := e.source.FetchAccessToken(ctx, funds[0].ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAccessToken, err)
		}
		if t == "" {
			return fmt.Errorf("%w: empty token for reference %q", ErrAccessToken, funds[0].ID)
		}
		token = t
		log.Debug().Str("reference", funds[0].ID).Msg("Access token acquired for batch")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrency)
	for i := range funds {
		f := &funds[i]
		g.Go(func() error {
			return e.enrichOne(gctx, f, token)
		})
	}
	return g.Wait()
}

func (e *Enricher) enrichOne(ctx context.Context, f *fund.Fund, token string) error {
	for _, m := range e.cfg.Metrics {
		if f.ID == "" {
			e.unavailable(f, m.Field, errors.New("no provider id"))
			continue
		}
		v, err := e.source.FetchDerivedMetric(ctx, f.ID, m.Field, token)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if m.Required {
				return fmt.Errorf("failed to fetch %s for %q: %w", m.Field, f.Name, err)
			}
			e.unavailable(f, m.Field, err)
			continue
		}
		f.Set(m.Field, v)
	}
	return nil
}

func (e *Enricher) unavailable(f *fund.Fund, field fund.Field, err error) {
	f.MarkUnavailable(field, err.Error())
	log.Warn().
		Err(err).
		Str("fund", f.Name).
		Str("metric", string(field)).
		Msg("Metric unavailable, defaulting to 0")
	if e.cfg.OnUnavailable != nil {
		e.cfg.OnUnavailable(*f, field, err)
	}
}

// ExpectedReturns estimates the return of a bond fund for a change in
// interest rates: -duration*rateChange + yield - expenses, rounded with
// normalize.Round2. rateChange is in percentage points, -1 meaning rates
// are expected to fall by one point.
func ExpectedReturns(modifiedDuration, rateChange, avgYTM, expenseRatio float64) float64 {
	return normalize.Round2(-1*modifiedDuration*rateChange + avgYTM - expenseRatio)
}

// ApplyExpectedReturns sets ExpectedReturns on every fund from its current
// duration, yield and expense ratio. An unavailable duration counts as 0.
func ApplyExpectedReturns(funds []fund.Fund, rateChange float64) {
	for i := range funds {
		f := &funds[i]
		f.ExpectedReturns = ExpectedReturns(f.ModifiedDuration, rateChange, f.AvgYTM, f.ExpenseRatio)
	}
}
