// Package metrics exposes Prometheus collectors for the grid loader.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch results recorded by ObserveFetch.
const (
	ResultOK     = "ok"
	ResultCached = "cached"
	ResultError  = "error"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	fetches        *prometheus.CounterVec
	stale          prometheus.Counter
	invariant      prometheus.Counter
	activeLevel    *prometheus.GaugeVec
	refreshSeconds prometheus.Histogram
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "plategrid_fetches_total",
			Help: "Tile fetches issued against raster sources, by result.",
		}, []string{"result"}),
		stale: f.NewCounter(prometheus.CounterOpts{
			Name: "plategrid_stale_results_total",
			Help: "Refresh batches discarded because the active level changed.",
		}),
		invariant: f.NewCounter(prometheus.CounterOpts{
			Name: "plategrid_invariant_violations_total",
			Help: "Refresh batches rejected for configuration invariant violations.",
		}),
		activeLevel: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plategrid_active_level",
			Help: "Currently active pyramid level per plate.",
		}, []string{"plate"}),
		refreshSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "plategrid_refresh_seconds",
			Help:    "Wall time of refresh batches.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
}

func (m *Metrics) ObserveFetch(result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveStale() {
	if m == nil {
		return
	}
	m.stale.Inc()
}

func (m *Metrics) ObserveInvariantViolation() {
	if m == nil {
		return
	}
	m.invariant.Inc()
}

func (m *Metrics) SetActiveLevel(plate string, level int) {
	if m == nil {
		return
	}
	m.activeLevel.WithLabelValues(plate).Set(float64(level))
}

func (m *Metrics) ObserveRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.refreshSeconds.Observe(d.Seconds())
}
