package http

import (
	"net/http"
	"runtime"
	"time"

	"github.com/sawpanic/fundrank/internal/net/budget"
	"github.com/sawpanic/fundrank/internal/net/circuit"
	"github.com/sawpanic/fundrank/internal/net/client"
)

// HealthSource reports provider circuit health
type HealthSource interface {
	GetHealthySummary() client.HealthSummary
	CircuitStats() map[string]circuit.Stats
	BudgetStats() map[string]budget.Stats
}

// health handles GET /health. A run with no providers, as in offline mode,
// is healthy. Some open circuits or a spent budget degrade it; all circuits
// open make it unhealthy.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Version:   s.deps.Version,
		Providers: ProviderSummary{Healthy: []string{}, Unhealthy: []string{}},
		System:    systemInfo(),
	}

	if s.deps.Health != nil {
		summary := s.deps.Health.GetHealthySummary()
		resp.Providers = ProviderSummary{
			Total:     summary.Total,
			Healthy:   summary.Healthy,
			Unhealthy: summary.Unhealthy,
		}
		resp.Circuits = s.deps.Health.CircuitStats()
		resp.Budgets = s.deps.Health.BudgetStats()

		exhausted := 0
		for _, b := range resp.Budgets {
			if b.Exhausted {
				exhausted++
			}
		}
		switch {
		case summary.Total > 0 && len(summary.Unhealthy) == summary.Total:
			resp.Status = "unhealthy"
		case len(summary.Unhealthy) > 0, exhausted > 0:
			resp.Status = "degraded"
		}
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	status := http.StatusOK
	if resp.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func systemInfo() SystemInfo {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		MemAlloc:      mem.Alloc,
	}
}
