package fund

import (
	"math"
)

// Field names a numeric attribute of a Fund. Fields double as ranking
// parameters and as normalizer targets.
type Field string

const (
	FieldAUM                 Field = "aum"
	FieldCAGR                Field = "cagr"
	FieldExpenseRatio        Field = "expenseRatio"
	FieldAvgYTM              Field = "avgYTM"
	FieldVolatility          Field = "volatility"
	FieldManagerTenure       Field = "managerTenure"
	FieldModifiedDuration    Field = "modifiedDuration"
	FieldExitLoad            Field = "exitLoad"
	FieldExpectedReturns     Field = "expectedReturns"
	FieldSortinoRatio        Field = "sortinoRatio"
	FieldRollingReturns      Field = "rollingReturns"
	FieldTrackingError       Field = "trackingError"
	FieldProbabilityPositive Field = "probabilityPositive"
)

// Fields lists every numeric field in declaration order
var Fields = []Field{
	FieldAUM,
	FieldCAGR,
	FieldExpenseRatio,
	FieldAvgYTM,
	FieldVolatility,
	FieldManagerTenure,
	FieldModifiedDuration,
	FieldExitLoad,
	FieldExpectedReturns,
	FieldSortinoRatio,
	FieldRollingReturns,
	FieldTrackingError,
	FieldProbabilityPositive,
}

// Known reports whether f is one of the numeric fields
func (f Field) Known() bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}

// Fund is the canonical, provider-independent representation of a mutual fund.
// Numeric attributes default to 0 when a provider does not carry them.
type Fund struct {
	Name     string    `json:"name"`
	ID       string    `json:"id,omitempty"`
	Provider string    `json:"provider,omitempty"`
	Risk     RiskClass `json:"risk,omitempty"`

	AUM                 float64 `json:"aum"`
	CAGR                float64 `json:"cagr"`
	ExpenseRatio        float64 `json:"expenseRatio"`
	AvgYTM              float64 `json:"avgYTM"`
	Volatility          float64 `json:"volatility"`
	ManagerTenure       float64 `json:"managerTenure"`
	ModifiedDuration    float64 `json:"modifiedDuration"`
	ExitLoad            float64 `json:"exitLoad"`
	ExpectedReturns     float64 `json:"expectedReturns"`
	SortinoRatio        float64 `json:"sortinoRatio"`
	RollingReturns      float64 `json:"rollingReturns"`
	TrackingError       float64 `json:"trackingError"`
	ProbabilityPositive float64 `json:"probabilityPositive"`

	// Unavailable tags soft metrics that could not be fetched. The numeric
	// value stays at 0 and is scored as such; the tag keeps a fetched zero
	// distinguishable from a failed fetch.
	Unavailable map[Field]string `json:"unavailable,omitempty"`
}

// Value returns the numeric attribute named by f, NaN when f is unknown
func (f *Fund) Value(field Field) float64 {
	if p := f.ref(field); p != nil {
		return *p
	}
	return math.NaN()
}

// Set assigns the numeric attribute named by field. It reports false for
// an unknown field.
func (f *Fund) Set(field Field, v float64) bool {
	p := f.ref(field)
	if p == nil {
		return false
	}
	*p = v
	return true
}

// MarkUnavailable defaults field to 0 and records why it is missing
func (f *Fund) MarkUnavailable(field Field, reason string) {
	f.Set(field, 0)
	if f.Unavailable == nil {
		f.Unavailable = make(map[Field]string)
	}
	f.Unavailable[field] = reason
}

// IsAvailable reports whether field holds a fetched value
func (f *Fund) IsAvailable(field Field) bool {
	_, missing := f.Unavailable[field]
	return !missing
}

func (f *Fund) ref(field Field) *float64 {
	switch field {
	case FieldAUM:
		return &f.AUM
	case FieldCAGR:
		return &f.CAGR
	case FieldExpenseRatio:
		return &f.ExpenseRatio
	case FieldAvgYTM:
		return &f.AvgYTM
	case FieldVolatility:
		return &f.Volatility
	case FieldManagerTenure:
		return &f.ManagerTenure
	case FieldModifiedDuration:
		return &f.ModifiedDuration
	case FieldExitLoad:
		return &f.ExitLoad
	case FieldExpectedReturns:
		return &f.ExpectedReturns
	case FieldSortinoRatio:
		return &f.SortinoRatio
	case FieldRollingReturns:
		return &f.RollingReturns
	case FieldTrackingError:
		return &f.TrackingError
	case FieldProbabilityPositive:
		return &f.ProbabilityPositive
	default:
		return nil
	}
}

// RankedFund is a Fund with the outcome of one ranking run
type RankedFund struct {
	Fund
	WeightedScore float64        `json:"weightedScore"`
	Rank          int            `json:"rank"`
	ParamRanks    map[string]int `json:"paramRanks,omitempty"`
}
