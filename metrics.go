package adapt

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus collectors of an Orchestrator. A nil *metrics
// records nothing.
type metrics struct {
	schemaUpdates  *prometheus.CounterVec
	updateDuration *prometheus.HistogramVec
	tenantsSkipped prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		schemaUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adapt",
			Name:      "schema_updates_total",
			Help:      "Total number of schema updates by result",
		}, []string{"result"}),
		updateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "adapt",
			Name:      "schema_update_duration_seconds",
			Help:      "Duration of schema updates in seconds, including drop-first",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tenant"}),
		tenantsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adapt",
			Name:      "tenants_skipped_total",
			Help:      "Total number of tenant configurations skipped because the run-gate was disabled",
		}),
	}

	for _, c := range []prometheus.Collector{m.schemaUpdates, m.updateDuration, m.tenantsSkipped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observeUpdate(tenant string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.schemaUpdates.WithLabelValues(result).Inc()
	m.updateDuration.WithLabelValues(tenant).Observe(time.Since(started).Seconds())
}

func (m *metrics) skipped(tenants int) {
	if m == nil {
		return
	}
	m.tenantsSkipped.Add(float64(tenants))
}
