package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rescue_request_duration_seconds",
			Help:    "Request processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)

	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_request_total",
			Help: "Total number of requests processed",
		},
		[]string{"status"},
	)

	ModeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_mode_total",
			Help: "Requests by gated answer mode",
		},
		[]string{"mode"},
	)

	SufficiencyLevel = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_sufficiency_level_total",
			Help: "Requests by evidence sufficiency verdict",
		},
		[]string{"level"},
	)

	RetrievalAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rescue_retrieval_attempts",
			Help:    "Knowledge base recall attempts per request",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	KBDocsKept = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rescue_kb_docs_kept",
			Help:    "Knowledge base documents kept per request",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	ToolFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_tool_failures_total",
			Help: "Evidence tool failures by tool name",
		},
		[]string{"tool"},
	)

	FallbackResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_fallback_responses_total",
			Help: "Requests answered with the fixed fallback template",
		},
		[]string{"mode"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescue_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rescue_documents_processed_total",
			Help: "Total documents ingested into the knowledge base",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(RequestTotal)
	prometheus.MustRegister(ModeTotal)
	prometheus.MustRegister(SufficiencyLevel)
	prometheus.MustRegister(RetrievalAttempts)
	prometheus.MustRegister(KBDocsKept)
	prometheus.MustRegister(ToolFailures)
	prometheus.MustRegister(FallbackResponses)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsProcessed)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
