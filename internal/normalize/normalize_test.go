package normalize

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/fundrank/internal/domain/fund"
)

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{7.125, 7.12},
		{7.126, 7.13},
		{7.1259, 7.12},
		{7.1299, 7.13},
		{7.12, 7.12},
		{7.129, 7.13},
		{11.600000000000001, 11.6},
		{0.005, 0},
		{0.006, 0.01},
		{9.996, 10},
		{-7.126, -7.13},
		{-7.125, -7.12},
		{0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Round2(tt.in), "Round2(%v)", tt.in)
	}

	assert.True(t, math.IsNaN(Round2(math.NaN())))
	assert.True(t, math.IsInf(Round2(math.Inf(1)), 1))
}

func TestRoundHalf2(t *testing.T) {
	assert.Equal(t, 7.13, RoundHalf2(7.125))
	assert.Equal(t, 1.1, RoundHalf2(1.0999999999999999))
	assert.Equal(t, -2.35, RoundHalf2(-2.345))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{7.25, 7.25, true},
		{json.Number("0.32"), 0.32, true},
		{"7.25%", 7.25, true},
		{"1,204.50", 1204.5, true},
		{" 3 ", 3, true},
		{"-", 0, false},
		{"NA", 0, false},
		{"abc", 0, false},
		{nil, 0, false},
		{math.NaN(), 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := parseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, "parseNumber(%v)", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "parseNumber(%v)", tt.in)
		}
	}
}

func decodeRecords(t *testing.T, raw string) []RawRecord {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var recs []RawRecord
	require.NoError(t, dec.Decode(&recs))
	return recs
}

var screenerSchema = TaggedSchema{
	Name:    "screener",
	NameKey: "name",
	IDKey:   "code",
	RiskKey: "risk",
	ListKey: "data",
	Filters: map[string]FieldSpec{
		"aum":    {Field: fund.FieldAUM},
		"cagr_3": {Field: fund.FieldCAGR, Percent: true},
		"ter":    {Field: fund.FieldExpenseRatio, Percent: true},
		"stddev": {Field: fund.FieldVolatility, Percent: true},
	},
}

func TestNormalizeTagged(t *testing.T) {
	recs := decodeRecords(t, `[
		{"name": "Axis Corporate Bond Fund - Direct Plan", "code": "AX1", "risk": "Moderate",
		 "data": [
			{"filter": "aum", "value": "5,120.4"},
			{"filter": "cagr_3", "value": "7.126%"},
			{"filter": "ter", "value": 0.32},
			{"filter": "stddev", "value": 1.125},
			{"filter": "ignored", "value": 99}
		 ]},
		{"name": "Kotak Bond Fund", "data": [{"filter": "ter", "value": "-"}]},
		{"code": "orphan", "data": []}
	]`)

	funds, rep := Normalize(recs, screenerSchema)
	require.Len(t, funds, 2)

	axis := funds[0]
	assert.Equal(t, "Axis Corporate Bond Fund - Direct Plan", axis.Name)
	assert.Equal(t, "AX1", axis.ID)
	assert.Equal(t, "screener", axis.Provider)
	assert.Equal(t, fund.RiskModerate, axis.Risk)
	assert.Equal(t, 5120.4, axis.AUM)
	assert.Equal(t, 7.13, axis.CAGR)
	assert.Equal(t, 0.32, axis.ExpenseRatio)
	assert.Equal(t, 1.12, axis.Volatility)

	kotak := funds[1]
	assert.Equal(t, 0.0, kotak.ExpenseRatio)
	assert.Equal(t, fund.RiskUnknown, kotak.Risk)

	assert.Equal(t, 3, rep.Records)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Defaulted[fund.FieldExpenseRatio])
	assert.Equal(t, 1, rep.Defaulted[fund.FieldAUM])
	assert.Equal(t, 5, rep.Malformed())
}

func TestNormalizeTaggedMalformedList(t *testing.T) {
	recs := decodeRecords(t, `[{"name": "X", "data": "not-a-list"}, {"name": "Y", "data": [1, "two", {"value": 3}]}]`)

	funds, rep := Normalize(recs, screenerSchema)
	require.Len(t, funds, 2)
	for _, f := range funds {
		assert.Equal(t, 0.0, f.AUM)
		assert.Equal(t, 0.0, f.CAGR)
	}
	assert.Equal(t, 2, rep.Defaulted[fund.FieldCAGR])
}

var factsheetSchema = PathSchema{
	Name:     "factsheet",
	NamePath: "$.scheme.name",
	IDPath:   "$.scheme.id",
	RiskPath: "$.riskometer",
	Fields: map[fund.Field]PathSpec{
		fund.FieldAvgYTM:       {Path: "$.portfolio.ytm", Percent: true},
		fund.FieldExpenseRatio: {Path: "$.costs.ter", Percent: true},
		fund.FieldCAGR:         {Path: "$.returns[?(@.period==\"3y\")].value", Percent: true},
	},
}

func TestNormalizePath(t *testing.T) {
	recs := decodeRecords(t, `[
		{"scheme": {"name": "Axis Corporate Bond Fund - Direct Plan", "id": 120},
		 "riskometer": "MODERATELY LOW",
		 "portfolio": {"ytm": "7.405"},
		 "costs": {"ter": 0.32},
		 "returns": [{"period": "1y", "value": 6.1}, {"period": "3y", "value": 7.1861}]},
		{"scheme": {"name": "No Costs Fund"}, "portfolio": {}}
	]`)

	funds, rep := Normalize(recs, factsheetSchema)
	require.Len(t, funds, 2)

	f := funds[0]
	assert.Equal(t, "120", f.ID)
	assert.Equal(t, fund.RiskModeratelyLow, f.Risk)
	assert.Equal(t, 7.4, f.AvgYTM)
	assert.Equal(t, 0.32, f.ExpenseRatio)
	assert.Equal(t, 7.19, f.CAGR)

	assert.Equal(t, 0, rep.Skipped)
	assert.Equal(t, 3, rep.Malformed())
	assert.Equal(t, []fund.Field{fund.FieldAvgYTM, fund.FieldCAGR, fund.FieldExpenseRatio}, rep.Fields())
}

func TestNormalizeNilRecord(t *testing.T) {
	funds, rep := Normalize([]RawRecord{nil}, factsheetSchema)
	assert.Empty(t, funds)
	assert.Equal(t, 1, rep.Skipped)
}

func TestReportMerge(t *testing.T) {
	a := Report{Records: 2, Skipped: 1, Defaulted: map[fund.Field]int{fund.FieldAUM: 1}}
	b := Report{Records: 3, Defaulted: map[fund.Field]int{fund.FieldAUM: 2, fund.FieldCAGR: 1}}

	var total Report
	total.Merge(a)
	total.Merge(b)

	assert.Equal(t, 5, total.Records)
	assert.Equal(t, 1, total.Skipped)
	assert.Equal(t, 3, total.Defaulted[fund.FieldAUM])
	assert.Equal(t, 5, total.Malformed())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(screenerSchema))
	assert.NoError(t, Validate(factsheetSchema))

	bad := screenerSchema
	bad.Filters = map[string]FieldSpec{"x": {Field: "nope"}}
	assert.Error(t, Validate(bad))

	assert.Error(t, Validate(PathSchema{Name: "empty"}))
	assert.Error(t, Validate(TaggedSchema{Name: "empty"}))
}
