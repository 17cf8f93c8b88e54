package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the engine's collectors on a private prometheus
// registry so the /metrics endpoint exposes only what this process
// owns.
type Registry struct {
	reg *prometheus.Registry

	RefreshRuns     prometheus.Counter
	RefreshFailures prometheus.Counter
	RefreshSeconds  prometheus.Histogram

	StoresIngested  prometheus.Counter
	OffersIngested  prometheus.Counter
	StoresSkipped   prometheus.Counter
	ZipsSkipped     prometheus.Counter
	SamplesDropped  prometheus.Counter
	FlattenFailures prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	runs := prometheus.NewCounter(prometheus.CounterOpts{Name: "clearance_refresh_runs_total"})
	failures := prometheus.NewCounter(prometheus.CounterOpts{Name: "clearance_refresh_failures_total"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "clearance_refresh_duration_seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	stores := prometheus.NewCounter(prometheus.CounterOpts{Name: "clearance_stores_ingested_total"})
	offers := prometheus.NewCounter(prometheus.CounterOpts{Name: "clearance_offers_ingested_total"})
	storesSkipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "clearance_stores_skipped_total"})
	zipsSkipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "clearance_zips_skipped_total"})
	samplesDropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "clearance_orphan_samples_dropped_total"})
	flattenFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "clearance_flatten_failures_total"})

	r.MustRegister(runs, failures, duration, stores, offers, storesSkipped, zipsSkipped, samplesDropped, flattenFailures)
	return &Registry{
		reg:             r,
		RefreshRuns:     runs,
		RefreshFailures: failures,
		RefreshSeconds:  duration,
		StoresIngested:  stores,
		OffersIngested:  offers,
		StoresSkipped:   storesSkipped,
		ZipsSkipped:     zipsSkipped,
		SamplesDropped:  samplesDropped,
		FlattenFailures: flattenFailures,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
