package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// placeholders providers print in place of a number
var placeholders = map[string]bool{
	"":    true,
	"-":   true,
	"--":  true,
	"na":  true,
	"n/a": true,
	"nil": true,
}

// parseNumber reads a provider value as a float. Providers mix JSON numbers
// with strings like "7.25%", "1,204.50" or "-", so all of those are accepted.
func parseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, finite(n)
	case float32:
		return float64(n), finite(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil && finite(f)
	case string:
		s := strings.TrimSpace(n)
		if placeholders[strings.ToLower(s)] {
			return 0, false
		}
		s = strings.NewReplacer("%", "", ",", "", " ", "").Replace(s)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || !finite(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func parseString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		s = strings.TrimSpace(s)
		return s, s != ""
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
