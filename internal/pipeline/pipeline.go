// Package pipeline drives one ranking run: fetch, normalize, match, enrich
// and rank, following the plan of the requested category.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fundrank/internal/domain/fund"
	"github.com/sawpanic/fundrank/internal/enrich"
	"github.com/sawpanic/fundrank/internal/match"
	"github.com/sawpanic/fundrank/internal/metrics"
	"github.com/sawpanic/fundrank/internal/normalize"
	"github.com/sawpanic/fundrank/internal/providers"
	"github.com/sawpanic/fundrank/internal/ranking"
)

var (
	// ErrUnknownCategory is returned for a category without a plan
	ErrUnknownCategory = errors.New("unknown category")
	// ErrInvalidRateChange is returned for a NaN or infinite rate change
	ErrInvalidRateChange = errors.New("invalid interest rate change")
)

// Request is one ranking run
type Request struct {
	Category    fund.Category
	Weights     ranking.Weights
	RateChange  float64 // expected interest rate change in percentage points
	MatchPolicy match.Policy
	RiskCeiling fund.RiskClass // keep funds at or below this class; unknown keeps all
}

// Result is the outcome of a ranking run. Funds[0] is the top recommendation.
type Result struct {
	RunID     uuid.UUID          `json:"run_id"`
	Category  fund.Category      `json:"category"`
	Funds     []fund.RankedFund  `json:"funds"`
	Unmatched []string           `json:"unmatched,omitempty"`
	Malformed []normalize.Report `json:"malformed,omitempty"`
	Degraded  map[fund.Field]int `json:"degraded,omitempty"` // unavailable metrics per field
	Duration  time.Duration      `json:"duration"`
}

// DegradedCount returns the number of metrics that were defaulted to 0
func (r *Result) DegradedCount() int {
	n := 0
	for _, c := range r.Degraded {
		n += c
	}
	return n
}

// Engine builds rankings from a provider registry
type Engine struct {
	providers      *providers.Registry
	plans          map[fund.Category]Plan
	matcher        *match.Matcher
	metrics        *metrics.Registry
	maxConcurrency int
	onStep         func(step metrics.Step)
}

// Option configures an Engine
type Option func(*Engine)

// WithPlans replaces the default category plans
func WithPlans(plans map[fund.Category]Plan) Option {
	return func(e *Engine) { e.plans = plans }
}

// WithMatchOptions configures identity matching
func WithMatchOptions(opts match.Options) Option {
	return func(e *Engine) { e.matcher = match.NewMatcher(opts) }
}

// WithMetrics records run metrics into m
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxConcurrency bounds the enrichment calls in flight
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) { e.maxConcurrency = n }
}

// WithStepObserver calls fn as each pipeline step starts
func WithStepObserver(fn func(step metrics.Step)) Option {
	return func(e *Engine) { e.onStep = fn }
}

// NewEngine creates an engine over reg with the default plans
func NewEngine(reg *providers.Registry, opts ...Option) *Engine {
	e := &Engine{
		providers: reg,
		plans:     DefaultPlans(),
		matcher:   match.NewMatcher(match.Options{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan returns the plan for category
func (e *Engine) Plan(category fund.Category) (Plan, error) {
	p, ok := e.plans[category]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return p, nil
}

// Plans returns every plan in category order
func (e *Engine) Plans() []Plan {
	out := make([]Plan, 0, len(e.plans))
	for _, c := range SortedCategories(e.plans) {
		out = append(out, e.plans[c])
	}
	return out
}

// BuildRanking ranks category with weights, failing fast on unmatched funds,
// and returns the ranked funds only
func (e *Engine) BuildRanking(ctx context.Context, category string, weights ranking.Weights, rateChange float64) ([]fund.RankedFund, error) {
	cat, err := fund.ParseCategory(category)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	res, err := e.Build(ctx, Request{Category: cat, Weights: weights, RateChange: rateChange})
	if err != nil {
		return nil, err
	}
	return res.Funds, nil
}

// Build runs the full pipeline for req
func (e *Engine) Build(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.New(), Category: req.Category}
	logger := log.With().
		Str("run_id", res.RunID.String()).
		Str("category", string(req.Category)).
		Logger()

	plan, err := e.Plan(req.Category)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(req.RateChange) || math.IsInf(req.RateChange, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRateChange, req.RateChange)
	}

	logger.Info().Str("tie_mode", plan.TieMode.String()).Str("policy", req.MatchPolicy.String()).Msg("Building ranking")

	funds, err := e.run(ctx, plan, req, res, logger)
	if err != nil {
		e.metrics.RecordRun(string(req.Category), metrics.ResultError)
		logger.Error().Err(err).Msg("Ranking run failed")
		return nil, err
	}

	timer := e.startStep(metrics.StepRank)
	ranked, err := ranking.Rank(funds, plan.Params, req.Weights, plan.TieMode)
	if err != nil {
		timer.Stop(metrics.ResultError)
		e.metrics.RecordRun(string(req.Category), metrics.ResultError)
		return nil, fmt.Errorf("failed to rank %s funds: %w", req.Category, err)
	}
	timer.Stop(metrics.ResultSuccess)

	res.Funds = ranked
	res.Duration = time.Since(start)

	outcome := metrics.ResultSuccess
	if n := res.DegradedCount(); n > 0 || len(res.Unmatched) > 0 {
		outcome = metrics.ResultDegraded
		logger.Warn().
			Int("unavailable_metrics", n).
			Interface("by_metric", res.Degraded).
			Strs("unmatched", res.Unmatched).
			Msg("Ranking completed with degraded data")
	}
	e.metrics.RecordRun(string(req.Category), outcome)

	logger.Info().
		Int("funds", len(ranked)).
		Dur("duration", res.Duration).
		Msg("Ranking completed")
	return res, nil
}

func (e *Engine) run(ctx context.Context, plan Plan, req Request, res *Result, logger zerolog.Logger) ([]fund.Fund, error) {
	funds, err := e.load(ctx, plan.Category, plan.Primary, res)
	if err != nil {
		return nil, err
	}

	if req.RiskCeiling != fund.RiskUnknown {
		before := len(funds)
		funds = ranking.FilterByRisk(funds, req.RiskCeiling)
		logger.Debug().Int("dropped", before-len(funds)).Str("ceiling", req.RiskCeiling.String()).Msg("Applied risk ceiling")
	}
	if plan.SortByRisk {
		ranking.SortByRisk(funds)
	}

	if plan.Reference != nil {
		funds, err = e.reconcile(ctx, plan, req, funds, res)
		if err != nil {
			return nil, err
		}
	}

	if err := e.enrich(ctx, plan, funds, res); err != nil {
		return nil, err
	}

	if plan.ExpectedReturns {
		enrich.ApplyExpectedReturns(funds, req.RateChange)
	}
	return funds, nil
}

// load fetches and normalizes the records of one source
func (e *Engine) load(ctx context.Context, category fund.Category, src SourceSpec, res *Result) ([]fund.Fund, error) {
	adapter, err := e.providers.Adapter(src.Provider)
	if err != nil {
		return nil, err
	}

	timer := e.startStep(metrics.StepFetch)
	records, err := adapter.FetchSectorFunds(ctx, string(category))
	if err != nil {
		timer.Stop(metrics.ResultError)
		return nil, fmt.Errorf("failed to fetch %s funds from %s: %w", category, src.Provider, err)
	}
	timer.Stop(metrics.ResultSuccess)

	timer = e.startStep(metrics.StepNormalize)
	funds, rep := normalize.Normalize(records, src.Schema)
	timer.Stop(metrics.ResultSuccess)

	if rep.Malformed() > 0 {
		res.Malformed = append(res.Malformed, rep)
		for _, f := range rep.Fields() {
			e.metrics.RecordMalformed(rep.Provider, string(f), rep.Defaulted[f])
		}
		e.metrics.RecordMalformed(rep.Provider, "record", rep.Skipped)
	}
	return funds, nil
}

// reconcile matches every fund to the reference provider and copies the
// reference fields across. Unmatched funds leave the batch.
func (e *Engine) reconcile(ctx context.Context, plan Plan, req Request, funds []fund.Fund, res *Result) ([]fund.Fund, error) {
	pool, err := e.load(ctx, plan.Category, plan.Reference.SourceSpec, res)
	if err != nil {
		return nil, err
	}

	timer := e.startStep(metrics.StepMatch)
	matched, err := e.matcher.MatchAll(funds, pool, req.MatchPolicy)
	if err != nil {
		timer.Stop(metrics.ResultError)
		e.metrics.RecordUnmatched(string(plan.Category), 1)
		return nil, fmt.Errorf("failed to reconcile %s funds with %s: %w", plan.Category, plan.Reference.Provider, err)
	}
	timer.Stop(metrics.ResultSuccess)

	for _, nf := range matched.Unmatched {
		res.Unmatched = append(res.Unmatched, nf.Name)
	}
	e.metrics.RecordUnmatched(string(plan.Category), len(matched.Unmatched))

	out := make([]fund.Fund, len(matched.Pairs))
	for i, p := range matched.Pairs {
		out[i] = p.Reference
		match.Merge(&out[i], p.Candidate, plan.Reference.Fields)
	}
	return out, nil
}

func (e *Engine) enrich(ctx context.Context, plan Plan, funds []fund.Fund, res *Result) error {
	if len(plan.Stages) == 0 || len(funds) == 0 {
		return nil
	}

	timer := e.startStep(metrics.StepEnrich)
	for _, st := range plan.Stages {
		src, err := e.providers.MetricSource(st.Provider)
		if err != nil {
			timer.Stop(metrics.ResultError)
			return err
		}
		enricher := enrich.NewEnricher(src, enrich.Config{
			Mode:           st.Mode,
			Metrics:        st.Metrics,
			MaxConcurrency: e.maxConcurrency,
			OnUnavailable: func(_ fund.Fund, field fund.Field, _ error) {
				e.metrics.RecordMetricUnavailable(string(field))
			},
		})
		if err := enricher.Enrich(ctx, funds); err != nil {
			timer.Stop(metrics.ResultError)
			return fmt.Errorf("failed to enrich %s funds from %s: %w", plan.Category, st.Provider, err)
		}
	}
	timer.Stop(metrics.ResultSuccess)

	for _, f := range funds {
		for field := range f.Unavailable {
			if res.Degraded == nil {
				res.Degraded = make(map[fund.Field]int)
			}
			res.Degraded[field]++
		}
	}
	return nil
}

func (e *Engine) startStep(step metrics.Step) *metrics.StepTimer {
	if e.onStep != nil {
		e.onStep(step)
	}
	return e.metrics.StartStepTimer(step)
}

// UnavailableFields lists the unavailable metrics of a ranked fund in a
// stable order
func UnavailableFields(f fund.RankedFund) []fund.Field {
	fields := make([]fund.Field, 0, len(f.Unavailable))
	for field := range f.Unavailable {
		fields = append(fields, field)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// BuildRanking ranks category using the providers in reg with default plans
func BuildRanking(ctx context.Context, reg *providers.Registry, category string, weights ranking.Weights, rateChange float64) ([]fund.RankedFund, error) {
	return NewEngine(reg).BuildRanking(ctx, category, weights, rateChange)
}
