// Package budget tracks daily request quotas of metered provider APIs
package budget

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrExhausted is wrapped by every ExhaustedError
var ErrExhausted = errors.New("daily budget exhausted")

// ExhaustedError reports a provider that spent its daily quota
type ExhaustedError struct {
	Provider string
	Used     int64
	Limit    int64
	ResetAt  time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("budget exhausted for %s: %d/%d requests used, resets at %s",
		e.Provider, e.Used, e.Limit, e.ResetAt.Format("15:04 UTC"))
}

func (e *ExhaustedError) Unwrap() error { return ErrExhausted }

// Tracker counts the requests of one provider within a UTC day that starts
// at resetHour
type Tracker struct {
	mu          sync.Mutex
	provider    string
	limit       int64
	used        int64
	resetHour   int
	warnAt      float64
	warned      bool
	windowStart time.Time
	now         func() time.Time
}

// NewTracker creates a tracker. An out-of-range resetHour means midnight and
// an out-of-range warnAt means 0.8.
func NewTracker(provider string, limit int64, resetHour int, warnAt float64) *Tracker {
	if resetHour < 0 || resetHour > 23 {
		resetHour = 0
	}
	if warnAt <= 0 || warnAt > 1 {
		warnAt = 0.8
	}
	t := &Tracker{
		provider:  provider,
		limit:     limit,
		resetHour: resetHour,
		warnAt:    warnAt,
		now:       func() time.Time { return time.Now().UTC() },
	}
	t.windowStart = windowStart(t.now(), resetHour)
	return t
}

func windowStart(now time.Time, resetHour int) time.Time {
	start := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, time.UTC)
	if now.Before(start) {
		return start.AddDate(0, 0, -1)
	}
	return start
}

// rollover starts a new window once the current one has ended. Callers hold mu.
func (t *Tracker) rollover() {
	now := t.now()
	if !now.Before(t.windowStart.Add(24 * time.Hour)) {
		t.used = 0
		t.warned = false
		t.windowStart = windowStart(now, t.resetHour)
	}
}

// Reserve spends one request. It fails with an *ExhaustedError once the
// limit is reached and logs a warning the first time usage crosses warnAt.
func (t *Tracker) Reserve() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	if t.used >= t.limit {
		return &ExhaustedError{
			Provider: t.provider,
			Used:     t.used,
			Limit:    t.limit,
			ResetAt:  t.windowStart.Add(24 * time.Hour),
		}
	}
	t.used++

	if !t.warned && float64(t.used) >= t.warnAt*float64(t.limit) {
		t.warned = true
		log.Warn().
			Str("provider", t.provider).
			Int64("used", t.used).
			Int64("limit", t.limit).
			Msg("Provider budget nearly spent")
	}
	return nil
}

// Stats is a snapshot of one tracker
type Stats struct {
	Limit     int64     `json:"limit"`
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"`
	NextReset time.Time `json:"next_reset"`
	Warning   bool      `json:"warning"`
	Exhausted bool      `json:"exhausted"`
}

// Stats returns current budget statistics
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	return Stats{
		Limit:     t.limit,
		Used:      t.used,
		Remaining: t.limit - t.used,
		NextReset: t.windowStart.Add(24 * time.Hour),
		Warning:   float64(t.used) >= t.warnAt*float64(t.limit),
		Exhausted: t.used >= t.limit,
	}
}

// Manager holds the trackers of all metered providers
type Manager struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
}

// NewManager creates an empty manager
func NewManager() *Manager {
	return &Manager{trackers: make(map[string]*Tracker)}
}

// AddProvider registers a tracker for provider and returns it
func (m *Manager) AddProvider(provider string, limit int64, resetHour int, warnAt float64) *Tracker {
	t := NewTracker(provider, limit, resetHour, warnAt)
	m.mu.Lock()
	m.trackers[provider] = t
	m.mu.Unlock()
	return t
}

// Stats returns a snapshot of every tracker
func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Stats, len(m.trackers))
	for name, t := range m.trackers {
		out[name] = t.Stats()
	}
	return out
}

// Exhausted lists the providers without remaining budget, sorted
func (m *Manager) Exhausted() []string {
	var names []string
	for name, s := range m.Stats() {
		if s.Exhausted {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
