package fund

import (
	"fmt"
	"strings"
)

// Category is a fund sector the engine knows how to rank
type Category string

const (
	CategoryDebt              Category = "debt"
	CategoryArbitrage         Category = "arbitrage"
	CategoryEquitySaver       Category = "equity-saver"
	CategoryIndex             Category = "index"
	CategoryDiversifiedEquity Category = "diversified-equity"
)

// Categories lists the supported categories in display order
var Categories = []Category{
	CategoryDebt,
	CategoryArbitrage,
	CategoryEquitySaver,
	CategoryIndex,
	CategoryDiversifiedEquity,
}

// ParseCategory accepts the canonical names plus underscore/space variants
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "-", " ", "-").Replace(norm)
	for _, c := range Categories {
		if string(c) == norm {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}
