package fund

import (
	"encoding/json"
	"strings"
)

// RiskClass is a provider riskometer classification
type RiskClass string

const (
	RiskUnknown        RiskClass = ""
	RiskLow            RiskClass = "low"
	RiskModerate       RiskClass = "moderate"
	RiskModeratelyLow  RiskClass = "moderately low"
	RiskModeratelyHigh RiskClass = "moderately high"
	RiskHigh           RiskClass = "high"
	RiskVeryHigh       RiskClass = "very high"
)

// riskSeverity is the ordering used by risk sorts. "moderately low" sorts
// after "moderate"; keep it that way, downstream recommendations depend on it.
var riskSeverity = map[RiskClass]int{
	RiskLow:            1,
	RiskModerate:       2,
	RiskModeratelyLow:  3,
	RiskModeratelyHigh: 4,
	RiskHigh:           5,
	RiskVeryHigh:       6,
}

// ParseRisk maps a provider label onto a RiskClass. Matching is
// case-insensitive and collapses inner whitespace. Unrecognised labels
// yield RiskUnknown.
func ParseRisk(label string) RiskClass {
	norm := RiskClass(strings.ToLower(strings.Join(strings.Fields(label), " ")))
	if _, ok := riskSeverity[norm]; ok {
		return norm
	}
	return RiskUnknown
}

// Severity returns the sort weight of r, 0 for unknown classes
func (r RiskClass) Severity() int {
	return riskSeverity[r]
}

func (r RiskClass) String() string {
	if r == RiskUnknown {
		return "unknown"
	}
	return string(r)
}

// UnmarshalJSON accepts any casing of the known labels
func (r *RiskClass) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = ParseRisk(s)
	return nil
}
