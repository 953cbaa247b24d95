package fund

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFundValueAndSet(t *testing.T) {
	var f Fund
	for i, field := range Fields {
		require.True(t, f.Set(field, float64(i+1)), "field %s", field)
	}
	for i, field := range Fields {
		assert.Equal(t, float64(i+1), f.Value(field), "field %s", field)
	}

	assert.True(t, math.IsNaN(f.Value("unknown")))
	assert.False(t, f.Set("unknown", 1))
}

func TestMarkUnavailable(t *testing.T) {
	f := Fund{Name: "A", ModifiedDuration: 4.2}
	assert.True(t, f.IsAvailable(FieldModifiedDuration))

	f.MarkUnavailable(FieldModifiedDuration, "timeout")

	assert.Equal(t, 0.0, f.ModifiedDuration)
	assert.False(t, f.IsAvailable(FieldModifiedDuration))
	assert.Equal(t, "timeout", f.Unavailable[FieldModifiedDuration])
	assert.True(t, f.IsAvailable(FieldCAGR))
}

func TestParseRisk(t *testing.T) {
	tests := []struct {
		label string
		want  RiskClass
	}{
		{"Low", RiskLow},
		{"MODERATE", RiskModerate},
		{"Moderately  Low", RiskModeratelyLow},
		{" moderately high ", RiskModeratelyHigh},
		{"High", RiskHigh},
		{"Very High", RiskVeryHigh},
		{"extreme", RiskUnknown},
		{"", RiskUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRisk(tt.label))
		})
	}
}

func TestRiskSeverity(t *testing.T) {
	assert.Equal(t, 0, RiskUnknown.Severity())
	assert.Less(t, RiskModerate.Severity(), RiskModeratelyLow.Severity())
	assert.Equal(t, 6, RiskVeryHigh.Severity())
}

func TestRiskUnmarshalJSON(t *testing.T) {
	var f Fund
	require.NoError(t, json.Unmarshal([]byte(`{"name":"X","risk":"Very HIGH"}`), &f))
	assert.Equal(t, RiskVeryHigh, f.Risk)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("Equity_Saver")
	require.NoError(t, err)
	assert.Equal(t, CategoryEquitySaver, c)

	c, err = ParseCategory("diversified equity")
	require.NoError(t, err)
	assert.Equal(t, CategoryDiversifiedEquity, c)

	_, err = ParseCategory("crypto")
	assert.Error(t, err)
}
