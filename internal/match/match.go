// Package match resolves which record in one provider's pool describes the
// same fund as a record from another provider.
package match

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fundrank/internal/domain/fund"
)

// ErrFundNotFound is wrapped by every FundNotFoundError
var ErrFundNotFound = errors.New("fund not found")

// FundNotFoundError reports a reference fund with no acceptable candidate
type FundNotFoundError struct {
	Name string `json:"name"`
	Root string `json:"root"`
}

func (e *FundNotFoundError) Error() string {
	return fmt.Sprintf("fund not found: %q (root %q)", e.Name, e.Root)
}

func (e *FundNotFoundError) Unwrap() error { return ErrFundNotFound }

// Policy decides what a batch does when one reference fund has no match
type Policy int

const (
	// FailFast aborts the batch on the first miss
	FailFast Policy = iota
	// BestEffort keeps going and reports misses in Result.Unmatched
	BestEffort
)

func (p Policy) String() string {
	if p == BestEffort {
		return "best-effort"
	}
	return "fail-fast"
}

// ParsePolicy accepts "fail-fast" and "best-effort"
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail-fast", "strict":
		return FailFast, nil
	case "best-effort", "lenient":
		return BestEffort, nil
	default:
		return FailFast, fmt.Errorf("unknown match policy %q", s)
	}
}

// Options tunes candidate acceptance
type Options struct {
	// Epsilon widens the expense ratio comparison. Zero keeps exact
	// floating-point equality.
	Epsilon float64
}

// Matcher finds candidates with a fixed set of Options
type Matcher struct {
	opts Options
}

// NewMatcher creates a matcher
func NewMatcher(opts Options) *Matcher {
	return &Matcher{opts: opts}
}

// Match returns the first candidate in pool that is the direct plan of the
// same fund as ref. A candidate qualifies when its name contains the root of
// ref's name (case-insensitively), its expense ratio equals ref's, and its
// name says "Direct" but not "Regular".
func (m *Matcher) Match(ref fund.Fund, pool []fund.Fund) (fund.Fund, error) {
	root := RootName(ref.Name)
	if root == "" {
		return fund.Fund{}, &FundNotFoundError{Name: ref.Name, Root: root}
	}
	needle := strings.ToLower(root)

	for _, c := range pool {
		if !strings.Contains(strings.ToLower(c.Name), needle) {
			continue
		}
		if !m.sameExpense(ref.ExpenseRatio, c.ExpenseRatio) {
			continue
		}
		if !strings.Contains(c.Name, "Direct") || strings.Contains(c.Name, "Regular") {
			continue
		}
		return c, nil
	}
	return fund.Fund{}, &FundNotFoundError{Name: ref.Name, Root: root}
}

func (m *Matcher) sameExpense(a, b float64) bool {
	if m.opts.Epsilon == 0 {
		return a == b
	}
	return math.Abs(a-b) <= m.opts.Epsilon
}

// Pair links a reference fund to its counterpart in the candidate pool
type Pair struct {
	Reference fund.Fund
	Candidate fund.Fund
}

// Result is the outcome of matching a batch of reference funds
type Result struct {
	Pairs     []Pair
	Unmatched []*FundNotFoundError
}

// MatchAll matches every reference fund against pool. Under FailFast the
// first miss is returned as the error and no result is produced.
func (m *Matcher) MatchAll(refs []fund.Fund, pool []fund.Fund, policy Policy) (*Result, error) {
	res := &Result{Pairs: make([]Pair, 0, len(refs))}
	for _, ref := range refs {
		c, err := m.Match(ref, pool)
		if err != nil {
			var nf *FundNotFoundError
			if policy == FailFast || !errors.As(err, &nf) {
				return nil, err
			}
			log.Warn().
				Str("fund", ref.Name).
				Str("root", nf.Root).
				Msg("No counterpart found, dropping fund from batch")
			res.Unmatched = append(res.Unmatched, nf)
			continue
		}
		res.Pairs = append(res.Pairs, Pair{Reference: ref, Candidate: c})
	}
	return res, nil
}

// Match is a convenience wrapper using exact expense ratio equality
func Match(ref fund.Fund, pool []fund.Fund) (fund.Fund, error) {
	return NewMatcher(Options{}).Match(ref, pool)
}

// Merge copies the listed fields from src onto dst
func Merge(dst *fund.Fund, src fund.Fund, fields []fund.Field) {
	for _, f := range fields {
		dst.Set(f, src.Value(f))
	}
	if dst.ID == "" {
		dst.ID = src.ID
	}
}
