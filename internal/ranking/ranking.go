// Package ranking turns a fund population and a weight configuration into a
// total order. Each parameter is converted to ranks first, and the weighted
// sum of those ranks is the score, so a lower score is better.
package ranking

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sawpanic/fundrank/internal/domain/fund"
	"github.com/sawpanic/fundrank/internal/normalize"
)

var (
	// ErrEmptyParameters is returned when Rank is called without parameters
	ErrEmptyParameters = errors.New("no ranking parameters")
	// ErrDuplicateName is returned when two funds share a name in one run
	ErrDuplicateName = errors.New("duplicate fund name")
	// ErrInvalidWeight is returned for NaN or infinite weights
	ErrInvalidWeight = errors.New("invalid weight")
)

// RankTable maps a fund name to its 1-based position for one parameter
type RankTable map[string]int

// less orders a before b for direction dir. NaN is worst in both
// directions and never sorts ahead of a number.
func less(a, b float64, dir Direction) bool {
	switch {
	case math.IsNaN(a):
		return false
	case math.IsNaN(b):
		return true
	case dir == Descending:
		return a > b
	default:
		return a < b
	}
}

func same(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// order returns the indexes of funds sorted by field. The sort is stable, so
// equal values keep their input order.
func order(funds []fund.Fund, field fund.Field, dir Direction) ([]int, []float64) {
	values := make([]float64, len(funds))
	idx := make([]int, len(funds))
	for i := range funds {
		values[i] = funds[i].Value(field)
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return less(values[idx[i]], values[idx[j]], dir)
	})
	return idx, values
}

// RankByParameter ranks funds on a single field. Under StrictSequential a
// fund's rank is its sorted position; under TieGrouped funds with equal values
// share the rank of the first of them and the next value jumps to its position.
func RankByParameter(funds []fund.Fund, field fund.Field, dir Direction, mode TieMode) RankTable {
	idx, values := order(funds, field, dir)
	table := make(RankTable, len(funds))

	prevRank := 0
	for pos, i := range idx {
		rank := pos + 1
		if mode == TieGrouped && pos > 0 && same(values[i], values[idx[pos-1]]) {
			rank = prevRank
		}
		table[funds[i].Name] = rank
		prevRank = rank
	}
	return table
}

// Ranker ranks funds on a fixed parameter set
type Ranker struct {
	Params []Parameter
	Mode   TieMode
}

// Rank scores and orders funds. Each fund's WeightedScore is the sum of
// weight*rank over Params, rounded to two decimals; the result is sorted by
// ascending score with a stable sort, so equal scores keep input order, and
// Rank is the 1-based position in that order.
func (r Ranker) Rank(funds []fund.Fund, weights Weights) ([]fund.RankedFund, error) {
	if len(r.Params) == 0 {
		return nil, ErrEmptyParameters
	}
	if err := checkNames(funds); err != nil {
		return nil, err
	}
	for _, p := range r.Params {
		if w := weights[p.WeightKey]; math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: %s=%v", ErrInvalidWeight, p.WeightKey, w)
		}
	}

	tables := make([]RankTable, len(r.Params))
	for i, p := range r.Params {
		tables[i] = RankByParameter(funds, p.Field, p.Direction, r.Mode)
	}

	ranked := make([]fund.RankedFund, len(funds))
	for i, f := range funds {
		var score float64
		paramRanks := make(map[string]int, len(r.Params))
		for j, p := range r.Params {
			rank := tables[j][f.Name]
			paramRanks[p.WeightKey] = rank
			score += weights[p.WeightKey] * float64(rank)
		}
		ranked[i] = fund.RankedFund{
			Fund:          f,
			WeightedScore: normalize.RoundHalf2(score),
			ParamRanks:    paramRanks,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].WeightedScore < ranked[j].WeightedScore
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked, nil
}

// Rank is a convenience wrapper around Ranker
func Rank(funds []fund.Fund, params []Parameter, weights Weights, mode TieMode) ([]fund.RankedFund, error) {
	return Ranker{Params: params, Mode: mode}.Rank(funds, weights)
}

func checkNames(funds []fund.Fund) error {
	seen := make(map[string]struct{}, len(funds))
	for _, f := range funds {
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateName, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}
