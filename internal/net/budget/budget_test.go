package budget

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *Tracker, now *time.Time) {
	t.now = func() time.Time { return *now }
	t.windowStart = windowStart(*now, t.resetHour)
}

func TestTrackerReserve(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tr := NewTracker("analytics", 3, 0, 0.5)
	fixedClock(tr, &now)

	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Reserve())
	}
	err := tr.Reserve()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, "analytics", ex.Provider)
	assert.Equal(t, int64(3), ex.Used)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), ex.ResetAt)

	s := tr.Stats()
	assert.True(t, s.Exhausted)
	assert.True(t, s.Warning)
	assert.Equal(t, int64(0), s.Remaining)
}

func TestTrackerResetsAtResetHour(t *testing.T) {
	now := time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC)
	tr := NewTracker("screener", 1, 6, 0)
	fixedClock(tr, &now)

	// before 06:00 the window opened yesterday
	assert.Equal(t, time.Date(2025, 3, 9, 6, 0, 0, 0, time.UTC), tr.windowStart)
	require.NoError(t, tr.Reserve())
	assert.Error(t, tr.Reserve())

	now = time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	require.NoError(t, tr.Reserve())
	s := tr.Stats()
	assert.Equal(t, int64(1), s.Used)
	assert.Equal(t, time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC), s.NextReset)
}

func TestNewTrackerDefaults(t *testing.T) {
	tr := NewTracker("x", 10, 42, 7)
	assert.Equal(t, 0, tr.resetHour)
	assert.Equal(t, 0.8, tr.warnAt)
}

func TestManager(t *testing.T) {
	m := NewManager()
	a := m.AddProvider("analytics", 1, 0, 0)
	m.AddProvider("screener", 5, 0, 0)

	require.NoError(t, a.Reserve())
	stats := m.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, int64(1), stats["analytics"].Used)
	assert.Equal(t, []string{"analytics"}, m.Exhausted())
}
