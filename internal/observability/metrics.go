// Package observability provides the process logger and Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "forecast_prep"

// Metrics holds the Prometheus counters and histograms of the pipeline stages.
type Metrics struct {
	TriangulationCache *prometheus.CounterVec // labels: result={hit,miss}
	FieldsRegridded    *prometheus.CounterVec // labels: field
	OutOfDomainPoints  *prometheus.CounterVec // labels: field
	HistogramChunks    prometheus.Counter
	HistogramExcluded  prometheus.Counter
	ArtifactsWritten   *prometheus.CounterVec   // labels: kind
	StageDuration      *prometheus.HistogramVec // labels: stage, status
}

var stageBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200}

func newMetrics() *Metrics {
	return &Metrics{
		TriangulationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triangulation_cache_total",
			Help:      "Triangulation cache lookups by result.",
		}, []string{"result"}),
		FieldsRegridded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fields_regridded_total",
			Help:      "Fields reduced and interpolated onto the regional grid.",
		}, []string{"field"}),
		OutOfDomainPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "out_of_domain_points_total",
			Help:      "Destination points left NaN because they fall outside the source hull.",
		}, []string{"field"}),
		HistogramChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "histogram_chunks_total",
			Help:      "Row chunks binned into histogram counts.",
		}),
		HistogramExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "histogram_excluded_pixels_total",
			Help:      "Histogram pixels left uncounted because every member was missing.",
		}),
		ArtifactsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_written_total",
			Help:      "Output files written by kind.",
		}, []string{"kind"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of a pipeline stage run.",
			Buckets:   stageBuckets,
		}, []string{"stage", "status"}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.TriangulationCache,
		m.FieldsRegridded,
		m.OutOfDomainPoints,
		m.HistogramChunks,
		m.HistogramExcluded,
		m.ArtifactsWritten,
		m.StageDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// TriangulationCacheHit implements interp.CacheObserver.
func (m *Metrics) TriangulationCacheHit() {
	m.TriangulationCache.WithLabelValues("hit").Inc()
}

// TriangulationCacheMiss implements interp.CacheObserver.
func (m *Metrics) TriangulationCacheMiss() {
	m.TriangulationCache.WithLabelValues("miss").Inc()
}

// FieldRegridded records one regridded field and its out-of-domain point count.
func (m *Metrics) FieldRegridded(field string, excluded int) {
	m.FieldsRegridded.WithLabelValues(field).Inc()
	if excluded > 0 {
		m.OutOfDomainPoints.WithLabelValues(field).Add(float64(excluded))
	}
}

// HistogramChunkDone records one binned row chunk.
func (m *Metrics) HistogramChunkDone() {
	m.HistogramChunks.Inc()
}

// HistogramPixelsExcluded records pixels excluded from one valid time's counts.
func (m *Metrics) HistogramPixelsExcluded(n int) {
	m.HistogramExcluded.Add(float64(n))
}

// ArtifactWritten records an output file of kind.
func (m *Metrics) ArtifactWritten(kind string) {
	m.ArtifactsWritten.WithLabelValues(kind).Inc()
}

// ObserveStage records how long a stage run took.
func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}
