package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestRegistryCounters(t *testing.T) {
	m := NewRegistry()

	m.RecordRun("debt", ResultSuccess)
	m.RecordRun("debt", ResultSuccess)
	m.RecordRun("debt", ResultDegraded)
	m.RecordUnmatched("debt", 3)
	m.RecordUnmatched("debt", 0)
	m.RecordMetricUnavailable("modifiedDuration")
	m.RecordMalformed("screener", "aum", 2)
	m.RecordProviderRequest("screener", "cache_hit")
	m.SetCircuitState("screener", 2)

	assert.Equal(t, 2.0, counterValue(t, m.Runs.WithLabelValues("debt", "success")))
	assert.Equal(t, 1.0, counterValue(t, m.Runs.WithLabelValues("debt", "degraded")))
	assert.Equal(t, 3.0, counterValue(t, m.UnmatchedFunds.WithLabelValues("debt")))
	assert.Equal(t, 1.0, counterValue(t, m.MetricUnavailable.WithLabelValues("modifiedDuration")))
	assert.Equal(t, 2.0, counterValue(t, m.MalformedRecords.WithLabelValues("screener", "aum")))
	assert.Equal(t, 1.0, counterValue(t, m.ProviderRequests.WithLabelValues("screener", "cache_hit")))
	assert.Equal(t, 2.0, gaugeValue(t, m.CircuitState.WithLabelValues("screener")))
}

func TestStepTimer(t *testing.T) {
	m := NewRegistry()

	timer := m.StartStepTimer(StepRank)
	time.Sleep(time.Millisecond)
	d := timer.Stop(ResultSuccess)
	assert.Greater(t, d, time.Duration(0))

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)

	var count uint64
	for _, f := range families {
		if f.GetName() != "fundrank_step_duration_seconds" {
			continue
		}
		for _, metric := range f.GetMetric() {
			count += metric.GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(1), count)
}

func TestNilRegistryIsNoop(t *testing.T) {
	var m *Registry
	assert.NotPanics(t, func() {
		m.RecordRun("debt", ResultError)
		m.RecordUnmatched("debt", 1)
		m.RecordMetricUnavailable("exitLoad")
		m.RecordMalformed("p", "f", 1)
		m.RecordProviderRequest("p", "ok")
		m.SetCircuitState("p", 0)
		m.StartStepTimer(StepFetch).Stop(ResultSuccess)
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	m := NewRegistry()
	m.RecordRun("index", ResultSuccess)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `fundrank_runs_total{category="index",result="success"} 1`)
}
