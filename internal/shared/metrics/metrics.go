package metrics

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	factory = promauto.With(registry)

	ingestionStarted = factory.NewCounter(prometheus.CounterOpts{
		Name: "paper_ingestion_started_total",
		Help: "Total uploads accepted for ingestion",
	})
	ingestionRejected = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_ingestion_rejected_total",
		Help: "Total uploads rejected before storage, by reason",
	}, []string{"reason"})
	extractionCompleted = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_extraction_completed_total",
		Help: "Total extractions that reached ready, by file type",
	}, []string{"file_type"})
	extractionFailed = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_extraction_failed_total",
		Help: "Total extractions that ended failed, by failure class",
	}, []string{"class"})
	extractionDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "paper_extraction_duration_ms",
		Help:    "Extraction duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
	})
	enrichmentFailed = factory.NewCounter(prometheus.CounterOpts{
		Name: "paper_enrichment_failed_total",
		Help: "Total enrichment attempts that failed",
	})
	jobsReceived = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_jobs_received_total",
		Help: "Total jobs received by workers, by backend",
	}, []string{"backend"})
	jobsCompleted = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_jobs_completed_total",
		Help: "Total jobs completed by workers, by backend",
	}, []string{"backend"})
	jobsFailed = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_jobs_failed_total",
		Help: "Total jobs that failed and will be retried, by backend",
	}, []string{"backend"})
	jobsDropped = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "paper_jobs_dropped_total",
		Help: "Total jobs dropped as unrecoverable, by backend",
	}, []string{"backend"})
	inflightExtractions = factory.NewGauge(prometheus.GaugeOpts{
		Name: "paper_extractions_in_flight",
		Help: "Extractions currently running in this process",
	})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IncIngestionStarted increments the accepted upload counter.
func IncIngestionStarted() { ingestionStarted.Inc() }

// IncIngestionRejected increments the rejected upload counter for reason.
func IncIngestionRejected(reason string) { ingestionRejected.WithLabelValues(reason).Inc() }

// IncExtractionCompleted increments the completed counter.
func IncExtractionCompleted(fileType string) { extractionCompleted.WithLabelValues(fileType).Inc() }

// IncExtractionFailed increments the failed counter.
func IncExtractionFailed(class string) { extractionFailed.WithLabelValues(class).Inc() }

// ObserveExtractionDurationMs records an extraction duration in milliseconds.
func ObserveExtractionDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	extractionDuration.Observe(value)
}

func IncEnrichmentFailed() { enrichmentFailed.Inc() }

func IncJobsReceived(backend string)  { jobsReceived.WithLabelValues(backend).Inc() }
func IncJobsCompleted(backend string) { jobsCompleted.WithLabelValues(backend).Inc() }
func IncJobsFailed(backend string)    { jobsFailed.WithLabelValues(backend).Inc() }
func IncJobsDropped(backend string)   { jobsDropped.WithLabelValues(backend).Inc() }

// TrackInflight marks an extraction as running and returns the matching done func.
func TrackInflight() func() {
	inflightExtractions.Inc()
	return inflightExtractions.Dec
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := HTTPHandler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// HTTPHandler exposes the registry for non-gin servers such as the worker.
func HTTPHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry, for tests.
func Registry() *prometheus.Registry { return registry }

// NowMillis returns the current time in milliseconds.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
