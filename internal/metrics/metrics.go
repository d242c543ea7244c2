// Package metrics defines the Prometheus collectors this service exposes
// at /metrics, in the tradition of tusd's own MetricsOpenConnections
// gauge and prometheuscollector package.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the service registers. A single
// instance is constructed at startup and threaded through the HTTP
// layer and ingestion pipeline.
type Metrics struct {
	UploadsCreated   prometheus.Counter
	UploadsCompleted prometheus.Counter
	UploadsFailed    prometheus.Counter
	BytesReceived    prometheus.Counter
	FeaturesIngested prometheus.Counter
	IngestDuration   prometheus.Histogram
	TileRequests     *prometheus.CounterVec
	TileCacheHits    prometheus.Counter
	TileCacheMisses  prometheus.Counter
	OpenConnections  prometheus.Gauge
}

// New constructs all collectors. Call Register to make them visible on
// /metrics; New does not register them itself so tests can construct a
// Metrics without touching the global Prometheus registry.
func New() *Metrics {
	return &Metrics{
		UploadsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridwalk_uploads_created_total",
			Help: "Total number of layers created via POST /layers.",
		}),
		UploadsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridwalk_uploads_completed_total",
			Help: "Total number of uploads that reached StatusReady.",
		}),
		UploadsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridwalk_uploads_failed_total",
			Help: "Total number of uploads that reached StatusFailed.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridwalk_upload_bytes_received_total",
			Help: "Total bytes received across all PATCH requests.",
		}),
		FeaturesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridwalk_features_ingested_total",
			Help: "Total number of features written to the SpatialStore.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridwalk_ingest_duration_seconds",
			Help:    "Time spent streaming a completed upload into the SpatialStore.",
			Buckets: prometheus.DefBuckets,
		}),
		TileRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridwalk_tile_requests_total",
			Help: "Total tile requests, labeled by response status.",
		}, []string{"status"}),
		TileCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridwalk_tile_cache_hits_total",
			Help: "Total tile requests served from the LRU or Redis cache tier.",
		}),
		TileCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridwalk_tile_cache_misses_total",
			Help: "Total tile requests that fell through to the SpatialStore.",
		}),
		OpenConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridwalk_connections_open",
			Help: "Current number of open HTTP connections.",
		}),
	}
}

// Register adds every collector in m to reg, typically
// prometheus.DefaultRegisterer so promhttp.Handler picks them up.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.UploadsCreated, m.UploadsCompleted, m.UploadsFailed, m.BytesReceived,
		m.FeaturesIngested, m.IngestDuration, m.TileRequests, m.TileCacheHits,
		m.TileCacheMisses, m.OpenConnections,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
