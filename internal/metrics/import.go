package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ImportMetrics records import runs, rows and lock waits.
type ImportMetrics struct {
	registry *prometheus.Registry

	runsTotal    *prometheus.CounterVec
	rowsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	lockWait     prometheus.Histogram
	runsInFlight prometheus.Gauge
}

func NewImportMetrics(service string) *ImportMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "catalog",
			Subsystem:   "import",
			Name:        "runs_total",
			Help:        "Finished import runs by final status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	rowsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "catalog",
			Subsystem:   "import",
			Name:        "rows_total",
			Help:        "Processed import rows by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "catalog",
			Subsystem:   "import",
			Name:        "run_duration_seconds",
			Help:        "Import run duration in seconds by final status.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	lockWait := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "catalog",
			Subsystem:   "import",
			Name:        "lock_wait_seconds",
			Help:        "Time spent waiting for the global import lock.",
			Buckets:     []float64{0.01, 0.1, 1, 5, 15, 60, 300, 900},
			ConstLabels: constLabels,
		},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "catalog",
			Subsystem:   "import",
			Name:        "runs_in_flight",
			Help:        "Import runs holding the lock.",
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(runsTotal, rowsTotal, runDuration, lockWait, runsInFlight)

	return &ImportMetrics{
		registry:     registry,
		runsTotal:    runsTotal,
		rowsTotal:    rowsTotal,
		runDuration:  runDuration,
		lockWait:     lockWait,
		runsInFlight: runsInFlight,
	}
}

func (m *ImportMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *ImportMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *ImportMetrics) LockAcquired(waited time.Duration) {
	m.lockWait.Observe(waited.Seconds())
	m.runsInFlight.Inc()
}

func (m *ImportMetrics) RowProcessed(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	m.rowsTotal.WithLabelValues(outcome).Inc()
}

func (m *ImportMetrics) RunFinished(status string, duration time.Duration) {
	m.runsInFlight.Dec()
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}
