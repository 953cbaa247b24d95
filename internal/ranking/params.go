package ranking

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sawpanic/fundrank/internal/domain/fund"
)

// TieMode selects how funds with equal values share ranks
type TieMode int

const (
	// StrictSequential gives every fund its 1-based sorted position, ties notwithstanding
	StrictSequential TieMode = iota
	// TieGrouped gives equal values the same rank; the next distinct value
	// takes its sorted position, leaving gaps (1, 1, 3).
	TieGrouped
)

func (m TieMode) String() string {
	switch m {
	case StrictSequential:
		return "strict-sequential"
	case TieGrouped:
		return "tie-grouped"
	default:
		return "unknown"
	}
}

// ParseTieMode accepts "strict", "strict-sequential", "grouped" and "tie-grouped"
func ParseTieMode(s string) (TieMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "strict-sequential", "sequential":
		return StrictSequential, nil
	case "grouped", "tie-grouped", "competition":
		return TieGrouped, nil
	default:
		return 0, fmt.Errorf("unknown tie mode %q", s)
	}
}

// Direction tells which end of a parameter is better
type Direction int

const (
	// Ascending ranks lower values first (expense ratio, volatility)
	Ascending Direction = iota
	// Descending ranks higher values first (returns, AUM)
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Parameter is one ranking criterion. WeightKey is the name the caller's
// weight configuration uses for it.
type Parameter struct {
	WeightKey string
	Field     fund.Field
	Direction Direction
}

func (p Parameter) String() string {
	return fmt.Sprintf("%s(%s %s)", p.WeightKey, p.Field, p.Direction)
}

// Weights maps a parameter's weight key to its multiplier. Weights are not
// normalized; a missing key weighs 0.
type Weights map[string]float64

// Keys returns the weight keys of params, in order
func Keys(params []Parameter) []string {
	keys := make([]string, len(params))
	for i, p := range params {
		keys[i] = p.WeightKey
	}
	return keys
}

// ParseWeights reads "key=value" pairs separated by commas
func ParseWeights(s string) (Weights, error) {
	pairs := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("weight %q: want key=value", part)
		}
		pairs[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return WeightsFromStrings(pairs)
}

// WeightsFromStrings converts textual weights, rejecting NaN and infinities
func WeightsFromStrings(pairs map[string]string) (Weights, error) {
	w := make(Weights, len(pairs))
	for k, v := range pairs {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("weight %s: %w", k, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %s=%v", ErrInvalidWeight, k, f)
		}
		w[k] = f
	}
	return w, nil
}
