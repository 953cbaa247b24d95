package ranking

import (
	"sort"

	"github.com/sawpanic/fundrank/internal/domain/fund"
)

// SortByRisk orders funds by riskometer severity, stable for equal classes.
// Unknown classes have severity 0 and come first. The severity map puts
// "moderately low" after "moderate".
func SortByRisk(funds []fund.Fund) {
	sort.SliceStable(funds, func(i, j int) bool {
		return funds[i].Risk.Severity() < funds[j].Risk.Severity()
	})
}

// FilterByRisk keeps funds whose severity does not exceed ceiling's. Funds
// with an unknown class are kept. A RiskUnknown ceiling keeps everything.
func FilterByRisk(funds []fund.Fund, ceiling fund.RiskClass) []fund.Fund {
	if ceiling == fund.RiskUnknown {
		return funds
	}
	limit := ceiling.Severity()
	kept := make([]fund.Fund, 0, len(funds))
	for _, f := range funds {
		if f.Risk.Severity() <= limit {
			kept = append(kept, f)
		}
	}
	return kept
}
