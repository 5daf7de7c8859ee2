package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// crime-map pipeline.
type Metrics struct {
	IncidentsIngested prometheus.Counter
	BoundariesLoaded  prometheus.Gauge
	PipelineRunning   prometheus.Gauge

	// Reconciliation metrics.
	JoinOutcomes      *prometheus.CounterVec // labels: method={contains,nearest,label,sentinel}
	SentinelRecords   *prometheus.CounterVec // labels: geography={unincorporated-unknown,outside-county,unmatched}
	UnmappedCityLabel prometheus.Counter

	// Stage timing.
	StageDuration *prometheus.HistogramVec // labels: stage={parse,normalize,join,aggregate}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.IncidentsIngested,
		m.BoundariesLoaded,
		m.PipelineRunning,
		m.JoinOutcomes,
		m.SentinelRecords,
		m.UnmappedCityLabel,
		m.StageDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		IncidentsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crime_etl",
			Name:      "incidents_ingested_total",
			Help:      "Total incident rows read from the yearly extract.",
		}),
		BoundariesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crime_etl",
			Name:      "boundaries_loaded",
			Help:      "Number of boundary polygons in the loaded layer.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crime_etl",
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress.",
		}),
		JoinOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crime_etl",
			Name:      "join_outcomes_total",
			Help:      "Geography assignments by join method.",
		}, []string{"method"}),
		SentinelRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crime_etl",
			Name:      "sentinel_records_total",
			Help:      "Incidents that landed in a sentinel geography bucket.",
		}, []string{"geography"}),
		UnmappedCityLabel: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crime_etl",
			Name:      "unmapped_city_labels_total",
			Help:      "City labels the normalizer could not map, pre-deduplication.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crime_etl",
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
	}
}
