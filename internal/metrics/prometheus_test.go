package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
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

func TestPrometheusVacuumPass(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg)

	m.VacuumPass(3, 2, 1, 50*time.Millisecond)

	require.Equal(t, float64(1), counterValue(t, m.vacuumPasses))
	require.Equal(t, float64(3), counterValue(t, m.vacuumLogPruned))
	require.Equal(t, float64(2), counterValue(t, m.vacuumSegmentsFreed))
	require.Equal(t, float64(1), counterValue(t, m.vacuumPostingsPruned))
}

func TestPrometheusReaderLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg)

	m.ReaderRegistered()
	m.ReaderRegistered()
	require.Equal(t, float64(2), gaugeValue(t, m.readersActive))

	m.ReaderReleased(10 * time.Millisecond)
	require.Equal(t, float64(1), gaugeValue(t, m.readersActive))
}

func TestPrometheusCacheAccessLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg)

	m.CacheAccess("buffer_pool", true)
	m.CacheAccess("buffer_pool", false)
	m.CacheAccess("buffer_pool", false)

	families, err := reg.Gather()
	require.NoError(t, err)

	var hits, misses float64
	for _, fam := range families {
		if fam.GetName() != "sombra_cache_accesses_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" {
					switch label.GetValue() {
					case "hit":
						hits = metric.GetCounter().GetValue()
					case "miss":
						misses = metric.GetCounter().GetValue()
					}
				}
			}
		}
	}
	require.Equal(t, float64(1), hits)
	require.Equal(t, float64(2), misses)
}

func TestNoopSatisfiesInterface(t *testing.T) {
	var s StorageMetrics = Noop{}
	s.TreeOp("node", "split", 1)
	s.CacheAccess("buffer_pool", true)
	s.VacuumPass(1, 1, 1, time.Second)
	s.ReaderRegistered()
	s.ReaderReleased(time.Second)
	s.WriteCommitted(time.Second)
}
