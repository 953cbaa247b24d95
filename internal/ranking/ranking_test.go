package ranking

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/fundrank/internal/domain/fund"
)

var debtParams = []Parameter{
	{WeightKey: "cagrRanksRatio", Field: fund.FieldCAGR, Direction: Descending},
	{WeightKey: "volatalityRankRatio", Field: fund.FieldVolatility, Direction: Ascending},
	{WeightKey: "tenureRankRatio", Field: fund.FieldManagerTenure, Direction: Descending},
	{WeightKey: "sortinoRatio", Field: fund.FieldExpectedReturns, Direction: Descending},
}

var debtWeights = Weights{
	"cagrRanksRatio":      0.1,
	"volatalityRankRatio": 0.4,
	"tenureRankRatio":     0.1,
	"sortinoRatio":        0.4,
}

func TestRankGoldenDebt(t *testing.T) {
	funds := []fund.Fund{
		{Name: "A", CAGR: 6, Volatility: 1, ManagerTenure: 5, ExpectedReturns: 2},
		{Name: "B", CAGR: 7, Volatility: 0.5, ManagerTenure: 3, ExpectedReturns: 3},
	}

	ranked, err := Rank(funds, debtParams, debtWeights, StrictSequential)
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	assert.Equal(t, "B", ranked[0].Name)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 1.1, ranked[0].WeightedScore)
	assert.Equal(t, map[string]int{
		"cagrRanksRatio": 1, "volatalityRankRatio": 1, "tenureRankRatio": 2, "sortinoRatio": 1,
	}, ranked[0].ParamRanks)

	assert.Equal(t, "A", ranked[1].Name)
	assert.Equal(t, 2, ranked[1].Rank)
	assert.Equal(t, 1.9, ranked[1].WeightedScore)

	again, err := Rank(funds, debtParams, debtWeights, StrictSequential)
	require.NoError(t, err)
	assert.Equal(t, ranked, again)
}

func TestRankByParameterStrict(t *testing.T) {
	funds := []fund.Fund{
		{Name: "a", CAGR: 5},
		{Name: "b", CAGR: 5},
		{Name: "c", CAGR: 3},
		{Name: "d", CAGR: 9},
	}

	table := RankByParameter(funds, fund.FieldCAGR, Descending, StrictSequential)
	assert.Equal(t, RankTable{"d": 1, "a": 2, "b": 3, "c": 4}, table)

	table = RankByParameter(funds, fund.FieldCAGR, Ascending, StrictSequential)
	assert.Equal(t, RankTable{"c": 1, "a": 2, "b": 3, "d": 4}, table)
}

func TestRankByParameterTieGrouped(t *testing.T) {
	funds := []fund.Fund{
		{Name: "a", ExpenseRatio: 0.2},
		{Name: "b", ExpenseRatio: 0.1},
		{Name: "c", ExpenseRatio: 0.2},
		{Name: "d", ExpenseRatio: 0.2},
		{Name: "e", ExpenseRatio: 0.5},
	}

	table := RankByParameter(funds, fund.FieldExpenseRatio, Ascending, TieGrouped)
	assert.Equal(t, RankTable{"b": 1, "a": 2, "c": 2, "d": 2, "e": 5}, table)
}

func TestRankByParameterNaNIsWorst(t *testing.T) {
	funds := []fund.Fund{
		{Name: "a", SortinoRatio: math.NaN()},
		{Name: "b", SortinoRatio: 2},
		{Name: "c", SortinoRatio: math.NaN()},
		{Name: "d", SortinoRatio: 1},
	}

	for _, dir := range []Direction{Ascending, Descending} {
		strict := RankByParameter(funds, fund.FieldSortinoRatio, dir, StrictSequential)
		assert.Equal(t, 3, strict["a"], dir.String())
		assert.Equal(t, 4, strict["c"], dir.String())

		grouped := RankByParameter(funds, fund.FieldSortinoRatio, dir, TieGrouped)
		assert.Equal(t, 3, grouped["a"], dir.String())
		assert.Equal(t, 3, grouped["c"], dir.String())
	}

	unknown := RankByParameter(funds, fund.Field("nope"), Descending, TieGrouped)
	assert.Equal(t, RankTable{"a": 1, "b": 1, "c": 1, "d": 1}, unknown)
}

func TestRankNaNDoesNotLeakIntoScore(t *testing.T) {
	funds := []fund.Fund{
		{Name: "a", CAGR: math.NaN(), Volatility: 1},
		{Name: "b", CAGR: 4, Volatility: 2},
	}
	params := []Parameter{
		{WeightKey: "cagr", Field: fund.FieldCAGR, Direction: Descending},
		{WeightKey: "vol", Field: fund.FieldVolatility, Direction: Ascending},
	}

	ranked, err := Rank(funds, params, Weights{"cagr": 1, "vol": 0.5}, StrictSequential)
	require.NoError(t, err)
	for _, r := range ranked {
		assert.False(t, math.IsNaN(r.WeightedScore))
	}
	assert.Equal(t, "b", ranked[0].Name)
	assert.Equal(t, 2.0, ranked[0].WeightedScore)
	assert.Equal(t, 2.5, ranked[1].WeightedScore)
}

func TestRankByParameterIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	funds := make([]fund.Fund, 30)
	for i := range funds {
		funds[i] = fund.Fund{Name: string(rune('A' + i)), AUM: float64(rng.Intn(8))}
	}

	for _, mode := range []TieMode{StrictSequential, TieGrouped} {
		first := RankByParameter(funds, fund.FieldAUM, Descending, mode)

		sorted := append([]fund.Fund(nil), funds...)
		sort.SliceStable(sorted, func(i, j int) bool { return first[sorted[i].Name] < first[sorted[j].Name] })

		assert.Equal(t, first, RankByParameter(sorted, fund.FieldAUM, Descending, mode), mode.String())
	}
}

func TestRankPermutationProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 1; n <= 25; n++ {
		funds := make([]fund.Fund, n)
		for i := range funds {
			funds[i] = fund.Fund{
				Name:            string(rune('a' + i)),
				CAGR:            float64(rng.Intn(4)),
				Volatility:      float64(rng.Intn(3)),
				ManagerTenure:   float64(rng.Intn(5)),
				ExpectedReturns: float64(rng.Intn(2)),
			}
		}

		for _, mode := range []TieMode{StrictSequential, TieGrouped} {
			ranked, err := Rank(funds, debtParams, debtWeights, mode)
			require.NoError(t, err)
			for i, r := range ranked {
				assert.Equal(t, i+1, r.Rank)
				if i > 0 {
					assert.LessOrEqual(t, ranked[i-1].WeightedScore, r.WeightedScore)
				}
			}
		}

		table := RankByParameter(funds, fund.FieldCAGR, Descending, TieGrouped)
		idx, values := order(funds, fund.FieldCAGR, Descending)
		for pos, i := range idx {
			rank := table[funds[i].Name]
			if pos == 0 {
				assert.Equal(t, 1, rank)
				continue
			}
			prev := table[funds[idx[pos-1]].Name]
			if values[i] == values[idx[pos-1]] {
				assert.Equal(t, prev, rank, "ties share a rank")
			} else {
				assert.Equal(t, pos+1, rank, "new values jump to their position")
			}
		}
	}
}

func TestRankEqualScoresKeepInputOrder(t *testing.T) {
	params := []Parameter{
		{WeightKey: "cagr", Field: fund.FieldCAGR, Direction: Descending},
		{WeightKey: "aum", Field: fund.FieldAUM, Direction: Descending},
	}
	x := fund.Fund{Name: "X", CAGR: 9, AUM: 100}
	y := fund.Fund{Name: "Y", CAGR: 8, AUM: 200}
	w := Weights{"cagr": 1, "aum": 1}

	ranked, err := Rank([]fund.Fund{x, y}, params, w, StrictSequential)
	require.NoError(t, err)
	assert.Equal(t, ranked[0].WeightedScore, ranked[1].WeightedScore)
	assert.Equal(t, []string{"X", "Y"}, []string{ranked[0].Name, ranked[1].Name})

	ranked, err = Rank([]fund.Fund{y, x}, params, w, StrictSequential)
	require.NoError(t, err)
	assert.Equal(t, []string{"Y", "X"}, []string{ranked[0].Name, ranked[1].Name})
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 2, ranked[1].Rank)
}

func TestRankMissingWeightIsZero(t *testing.T) {
	funds := []fund.Fund{
		{Name: "A", CAGR: 6, Volatility: 1},
		{Name: "B", CAGR: 7, Volatility: 2},
	}
	ranked, err := Rank(funds, debtParams, Weights{"volatalityRankRatio": 1, "unknownKey": 50}, StrictSequential)
	require.NoError(t, err)

	assert.Equal(t, "A", ranked[0].Name)
	assert.Equal(t, 1.0, ranked[0].WeightedScore)
	assert.Equal(t, 2.0, ranked[1].WeightedScore)
}

func TestRankErrors(t *testing.T) {
	funds := []fund.Fund{{Name: "A"}, {Name: "A"}}

	_, err := Rank(funds, debtParams, debtWeights, StrictSequential)
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = Rank(funds[:1], nil, debtWeights, StrictSequential)
	assert.ErrorIs(t, err, ErrEmptyParameters)

	_, err = Rank(funds[:1], debtParams, Weights{"sortinoRatio": math.Inf(1)}, StrictSequential)
	assert.ErrorIs(t, err, ErrInvalidWeight)
}

func TestRankEmptyPopulation(t *testing.T) {
	ranked, err := Rank(nil, debtParams, debtWeights, TieGrouped)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestSortByRisk(t *testing.T) {
	labels := []string{"high", "low", "moderately low", "moderate"}
	funds := make([]fund.Fund, len(labels))
	for i, l := range labels {
		funds[i] = fund.Fund{Name: l, Risk: fund.ParseRisk(l)}
	}

	SortByRisk(funds)

	got := make([]string, len(funds))
	for i, f := range funds {
		got[i] = f.Name
	}
	assert.Equal(t, []string{"low", "moderate", "moderately low", "high"}, got)
}

func TestSortByRiskUnknownFirstAndStable(t *testing.T) {
	funds := []fund.Fund{
		{Name: "h1", Risk: fund.RiskHigh},
		{Name: "u", Risk: fund.RiskUnknown},
		{Name: "h2", Risk: fund.RiskHigh},
		{Name: "vh", Risk: fund.RiskVeryHigh},
	}
	SortByRisk(funds)
	assert.Equal(t, "u", funds[0].Name)
	assert.Equal(t, "h1", funds[1].Name)
	assert.Equal(t, "h2", funds[2].Name)
	assert.Equal(t, "vh", funds[3].Name)
}

func TestFilterByRisk(t *testing.T) {
	funds := []fund.Fund{
		{Name: "low", Risk: fund.RiskLow},
		{Name: "ml", Risk: fund.RiskModeratelyLow},
		{Name: "vh", Risk: fund.RiskVeryHigh},
		{Name: "unknown"},
	}

	kept := FilterByRisk(funds, fund.RiskModeratelyLow)
	require.Len(t, kept, 3)
	assert.Equal(t, "low", kept[0].Name)
	assert.Equal(t, "ml", kept[1].Name)
	assert.Equal(t, "unknown", kept[2].Name)

	assert.Len(t, FilterByRisk(funds, fund.RiskUnknown), 4)
}

func TestParseTieMode(t *testing.T) {
	m, err := ParseTieMode("Tie-Grouped")
	require.NoError(t, err)
	assert.Equal(t, TieGrouped, m)

	m, err = ParseTieMode("strict")
	require.NoError(t, err)
	assert.Equal(t, StrictSequential, m)

	_, err = ParseTieMode("dense")
	assert.Error(t, err)
}

func TestParseWeights(t *testing.T) {
	w, err := ParseWeights(" cagrRatio=0.1, aumRatio = 0.4 ,,")
	require.NoError(t, err)
	assert.Equal(t, Weights{"cagrRatio": 0.1, "aumRatio": 0.4}, w)

	w, err = ParseWeights("")
	require.NoError(t, err)
	assert.Empty(t, w)

	_, err = ParseWeights("cagrRatio")
	assert.Error(t, err)
	_, err = ParseWeights("cagrRatio=high")
	assert.Error(t, err)
	_, err = ParseWeights("cagrRatio=NaN")
	assert.ErrorIs(t, err, ErrInvalidWeight)
	_, err = WeightsFromStrings(map[string]string{"aumRatio": "+Inf"})
	assert.ErrorIs(t, err, ErrInvalidWeight)
}
