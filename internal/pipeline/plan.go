package pipeline

import (
	"fmt"
	"sort"

	"github.com/sawpanic/fundrank/internal/domain/fund"
	"github.com/sawpanic/fundrank/internal/enrich"
	"github.com/sawpanic/fundrank/internal/normalize"
	"github.com/sawpanic/fundrank/internal/providers"
	"github.com/sawpanic/fundrank/internal/ranking"
)

// SourceSpec pairs a provider with the schema its records are decoded with
type SourceSpec struct {
	Provider string
	Schema   normalize.Schema
}

// ReferenceSpec is a second provider whose funds are matched by identity to
// the primary ones. Fields are copied from the match onto the primary fund.
type ReferenceSpec struct {
	SourceSpec
	Fields []fund.Field
}

// Stage is one enrichment pass against a metric provider
type Stage struct {
	Provider string
	Mode     enrich.Mode
	Metrics  []enrich.Metric
}

// Plan describes how one category is built and ranked. Weights are never
// part of a plan; they come with each request.
type Plan struct {
	Category        fund.Category
	Primary         SourceSpec
	Reference       *ReferenceSpec
	Stages          []Stage
	ExpectedReturns bool // compute expected returns once durations are known
	SortByRisk      bool // order the population by riskometer before ranking
	Params          []ranking.Parameter
	TieMode         ranking.TieMode
}

// Validate checks the plan's schemas and parameters
func (p Plan) Validate() error {
	if p.Primary.Provider == "" || p.Primary.Schema == nil {
		return fmt.Errorf("plan %s: primary source is required", p.Category)
	}
	if err := normalize.Validate(p.Primary.Schema); err != nil {
		return fmt.Errorf("plan %s: %w", p.Category, err)
	}
	if p.Reference != nil {
		if p.Reference.Schema == nil {
			return fmt.Errorf("plan %s: reference schema is required", p.Category)
		}
		if err := normalize.Validate(p.Reference.Schema); err != nil {
			return fmt.Errorf("plan %s: %w", p.Category, err)
		}
	}
	if len(p.Params) == 0 {
		return fmt.Errorf("plan %s: %w", p.Category, ranking.ErrEmptyParameters)
	}
	for _, param := range p.Params {
		if !param.Field.Known() {
			return fmt.Errorf("plan %s: parameter %s uses unknown field %q", p.Category, param.WeightKey, param.Field)
		}
	}
	return nil
}

// WeightKeys returns the weight keys the plan's parameters read
func (p Plan) WeightKeys() []string {
	return ranking.Keys(p.Params)
}

var screenerFilters = map[string]normalize.FieldSpec{
	"aum":                  {Field: fund.FieldAUM},
	"cagr_3y":              {Field: fund.FieldCAGR, Percent: true},
	"expense_ratio":        {Field: fund.FieldExpenseRatio, Percent: true},
	"volatility":           {Field: fund.FieldVolatility, Percent: true},
	"rolling_returns":      {Field: fund.FieldRollingReturns, Percent: true},
	"tracking_error":       {Field: fund.FieldTrackingError, Percent: true},
	"sortino":              {Field: fund.FieldSortinoRatio},
	"probability_positive": {Field: fund.FieldProbabilityPositive, Percent: true},
}

// ScreenerSchema decodes the screener's tagged records, keeping only the
// listed filters so categories are not charged for attributes they ignore
func ScreenerSchema(filters ...string) normalize.TaggedSchema {
	s := normalize.TaggedSchema{
		Name:    providers.Screener,
		NameKey: "name",
		IDKey:   "id",
		RiskKey: "riskometer",
		ListKey: "data",
		Filters: make(map[string]normalize.FieldSpec, len(filters)),
	}
	for _, f := range filters {
		if spec, ok := screenerFilters[f]; ok {
			s.Filters[f] = spec
		}
	}
	return s
}

// FactsheetSchema decodes factsheet documents
func FactsheetSchema(fields ...fund.Field) normalize.PathSchema {
	paths := map[fund.Field]normalize.PathSpec{
		fund.FieldExpenseRatio:   {Path: "$.costs.expense_ratio", Percent: true},
		fund.FieldAvgYTM:         {Path: "$.portfolio.ytm", Percent: true},
		fund.FieldRollingReturns: {Path: "$.returns.rolling_3y", Percent: true},
	}
	s := normalize.PathSchema{
		Name:     providers.Factsheet,
		NamePath: "$.scheme.name",
		IDPath:   "$.scheme.code",
		RiskPath: "$.risk.label",
		Fields:   make(map[fund.Field]normalize.PathSpec, len(fields)),
	}
	for _, f := range fields {
		if spec, ok := paths[f]; ok {
			s.Fields[f] = spec
		}
	}
	return s
}

// DefaultPlans returns the plans of every supported category
func DefaultPlans() map[fund.Category]Plan {
	return map[fund.Category]Plan{
		fund.CategoryDebt: {
			Category: fund.CategoryDebt,
			Primary: SourceSpec{
				Provider: providers.Screener,
				Schema:   ScreenerSchema("aum", "cagr_3y", "expense_ratio", "volatility"),
			},
			Reference: &ReferenceSpec{
				SourceSpec: SourceSpec{
					Provider: providers.Factsheet,
					Schema:   FactsheetSchema(fund.FieldExpenseRatio, fund.FieldAvgYTM),
				},
				Fields: []fund.Field{fund.FieldAvgYTM},
			},
			Stages: []Stage{
				{
					Provider: providers.Analytics,
					Mode:     enrich.SharedToken,
					Metrics:  []enrich.Metric{{Field: fund.FieldModifiedDuration}},
				},
				{
					Provider: providers.Analytics,
					Mode:     enrich.Parallel,
					Metrics:  []enrich.Metric{{Field: fund.FieldManagerTenure}},
				},
			},
			ExpectedReturns: true,
			SortByRisk:      true,
			Params: []ranking.Parameter{
				{WeightKey: "cagrRanksRatio", Field: fund.FieldCAGR, Direction: ranking.Descending},
				{WeightKey: "volatalityRankRatio", Field: fund.FieldVolatility, Direction: ranking.Ascending},
				{WeightKey: "tenureRankRatio", Field: fund.FieldManagerTenure, Direction: ranking.Descending},
				{WeightKey: "sortinoRatio", Field: fund.FieldExpectedReturns, Direction: ranking.Descending},
			},
			TieMode: ranking.StrictSequential,
		},

		fund.CategoryArbitrage: {
			Category: fund.CategoryArbitrage,
			Primary: SourceSpec{
				Provider: providers.Screener,
				Schema:   ScreenerSchema("aum", "expense_ratio", "rolling_returns"),
			},
			Stages: []Stage{{
				Provider: providers.Analytics,
				Mode:     enrich.Parallel,
				Metrics:  []enrich.Metric{{Field: fund.FieldExitLoad}},
			}},
			Params: []ranking.Parameter{
				{WeightKey: "expenseRatio", Field: fund.FieldExpenseRatio, Direction: ranking.Ascending},
				{WeightKey: "rollingReturns", Field: fund.FieldRollingReturns, Direction: ranking.Descending},
				{WeightKey: "aumRatio", Field: fund.FieldAUM, Direction: ranking.Descending},
				{WeightKey: "exitLoadRatio", Field: fund.FieldExitLoad, Direction: ranking.Ascending},
			},
			TieMode: ranking.StrictSequential,
		},

		fund.CategoryEquitySaver: {
			Category: fund.CategoryEquitySaver,
			Primary: SourceSpec{
				Provider: providers.Screener,
				Schema:   ScreenerSchema("aum", "cagr_3y", "expense_ratio"),
			},
			Stages: []Stage{{
				Provider: providers.Analytics,
				Mode:     enrich.Parallel,
				Metrics:  []enrich.Metric{{Field: fund.FieldSortinoRatio, Required: true}},
			}},
			Params: []ranking.Parameter{
				{WeightKey: "cagrRatio", Field: fund.FieldCAGR, Direction: ranking.Descending},
				{WeightKey: "sortinoRatio", Field: fund.FieldSortinoRatio, Direction: ranking.Descending},
				{WeightKey: "expenseRatio", Field: fund.FieldExpenseRatio, Direction: ranking.Ascending},
				{WeightKey: "aumRatio", Field: fund.FieldAUM, Direction: ranking.Descending},
			},
			TieMode: ranking.StrictSequential,
		},

		fund.CategoryIndex: {
			Category: fund.CategoryIndex,
			Primary: SourceSpec{
				Provider: providers.Screener,
				Schema:   ScreenerSchema("aum", "cagr_3y", "expense_ratio", "tracking_error"),
			},
			Params: []ranking.Parameter{
				{WeightKey: "expenseRatio", Field: fund.FieldExpenseRatio, Direction: ranking.Ascending},
				{WeightKey: "trackingErrorRatio", Field: fund.FieldTrackingError, Direction: ranking.Ascending},
				{WeightKey: "aumRatio", Field: fund.FieldAUM, Direction: ranking.Descending},
				{WeightKey: "cagrRatio", Field: fund.FieldCAGR, Direction: ranking.Descending},
			},
			TieMode: ranking.TieGrouped,
		},

		fund.CategoryDiversifiedEquity: {
			Category: fund.CategoryDiversifiedEquity,
			Primary: SourceSpec{
				Provider: providers.Screener,
				Schema:   ScreenerSchema("expense_ratio", "sortino", "probability_positive"),
			},
			Reference: &ReferenceSpec{
				SourceSpec: SourceSpec{
					Provider: providers.Factsheet,
					Schema:   FactsheetSchema(fund.FieldExpenseRatio, fund.FieldRollingReturns),
				},
				Fields: []fund.Field{fund.FieldRollingReturns},
			},
			Params: []ranking.Parameter{
				{WeightKey: "probabilityRatio", Field: fund.FieldProbabilityPositive, Direction: ranking.Descending},
				{WeightKey: "rollingReturns", Field: fund.FieldRollingReturns, Direction: ranking.Descending},
				{WeightKey: "sortinoRatio", Field: fund.FieldSortinoRatio, Direction: ranking.Descending},
				{WeightKey: "expenseRatio", Field: fund.FieldExpenseRatio, Direction: ranking.Ascending},
			},
			TieMode: ranking.TieGrouped,
		},
	}
}

// SortedCategories returns the categories of plans in a stable order
func SortedCategories(plans map[fund.Category]Plan) []fund.Category {
	cats := make([]fund.Category, 0, len(plans))
	for c := range plans {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}
