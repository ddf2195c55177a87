package station

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the per-engine Prometheus counters the control surface
// (internal/control) exposes at /metrics: trains processed, threshold
// crossings, and platform clones, each labeled by stop id.
type Metrics struct {
	TrainsProcessed *prometheus.CounterVec
	ThresholdEvents *prometheus.CounterVec
	ClonedPlatforms *prometheus.CounterVec
}

// NewMetrics registers the engine's counters against reg and returns the
// handle Platforms update as they run.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TrainsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_station_trains_processed_total",
			Help: "Trains consumed by a station's platform.",
		}, []string{"stop"}),
		ThresholdEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_station_threshold_events_total",
			Help: "Threshold/Okay backpressure transitions emitted by a station.",
		}, []string{"stop", "kind"}),
		ClonedPlatforms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_station_cloned_platforms_total",
			Help: "Additional worker platforms spawned for a station under sustained backpressure.",
		}, []string{"stop"}),
	}
	reg.MustRegister(m.TrainsProcessed, m.ThresholdEvents, m.ClonedPlatforms)
	return m
}
