package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFetch(ResultOK)
	m.ObserveFetch(ResultOK)
	m.ObserveFetch(ResultError)
	m.ObserveStale()
	m.SetActiveLevel("plate", 3)
	m.ObserveRefresh(20 * time.Millisecond)

	if got := testutil.ToFloat64(m.fetches.WithLabelValues(ResultOK)); got != 2 {
		t.Fatalf("ok fetches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.stale); got != 1 {
		t.Fatalf("stale = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.activeLevel.WithLabelValues("plate")); got != 3 {
		t.Fatalf("active level = %v, want 3", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveFetch(ResultOK)
	m.ObserveStale()
	m.ObserveInvariantViolation()
	m.SetActiveLevel("p", 1)
	m.ObserveRefresh(time.Second)
}
