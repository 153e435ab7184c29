// Package metrics exposes the process-level counters named in spec.md
// §4.F's /metrics endpoint, using a dedicated Prometheus registry served
// through promhttp.HandlerFor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dwelltrack/internal/engine"
)

// Registry owns an isolated Prometheus registry so repeated construction
// (e.g. in tests) never collides with the default global registry.
type Registry struct {
	registry *prometheus.Registry

	observationsProcessed  prometheus.Counter
	observationsDuplicate  prometheus.Counter
	observationsOutOfOrder prometheus.Counter
	observationsDropped    prometheus.Counter
	activeObjects          prometheus.Gauge
}

// New builds a Registry with the engine's counters wired as collectors.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		observationsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dwelltrack_observations_processed_total",
			Help: "Observations successfully applied to object state.",
		}),
		observationsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dwelltrack_observations_duplicate_total",
			Help: "Observations rejected as duplicates of an already-seen event_id.",
		}),
		observationsOutOfOrder: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dwelltrack_observations_out_of_order_total",
			Help: "Observations rejected for arriving behind the partition watermark.",
		}),
		observationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dwelltrack_observations_dropped_total",
			Help: "Detected objects dropped by the normalizer for failing per-object validation.",
		}),
		activeObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dwelltrack_active_objects",
			Help: "Objects currently occupying a non-null cell, as of the last periodic metrics sync.",
		}),
	}
	reg.MustRegister(
		r.observationsProcessed,
		r.observationsDuplicate,
		r.observationsOutOfOrder,
		r.observationsDropped,
		r.activeObjects,
	)
	return r
}

// Sync copies an engine.Stats snapshot into the counters. Prometheus
// counters only move forward, so Sync adds the delta since the last call.
func (r *Registry) Sync(prev, cur engine.Stats) {
	r.observationsProcessed.Add(float64(cur.Processed - prev.Processed))
	r.observationsDuplicate.Add(float64(cur.Duplicates - prev.Duplicates))
	r.observationsOutOfOrder.Add(float64(cur.OutOfOrder - prev.OutOfOrder))
	r.observationsDropped.Add(float64(cur.Dropped - prev.Dropped))
}

// SetActiveObjects records the current count of occupied-cell objects.
func (r *Registry) SetActiveObjects(n int) {
	r.activeObjects.Set(float64(n))
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
