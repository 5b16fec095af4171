package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	ordersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of medication orders created",
		},
		[]string{"medication"},
	)

	ordersUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_updated_total",
			Help: "Total number of versioned order updates",
		},
	)

	duplicateWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duplicate_warnings_total",
			Help: "Total number of duplicate-detector findings",
		},
		[]string{"check", "severity"},
	)

	reviewsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_submitted_total",
			Help: "Total number of pharmacist review submissions",
		},
		[]string{"status"},
	)

	carePlansGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "care_plans_generated_total",
			Help: "Total number of care plan generation calls",
		},
		[]string{"kind", "outcome"},
	)

	carePlanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "care_plan_generation_duration_seconds",
			Help:    "Care plan generation call duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)

	exportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exports_generated_total",
			Help: "Total number of exports generated",
		},
		[]string{"format"},
	)

	auditEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries created",
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath caps path length to avoid cardinality explosion from IDs
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordOrderCreated records a successful order submission
func RecordOrderCreated(medication string) {
	ordersCreated.WithLabelValues(medication).Inc()
}

// RecordOrderUpdated records a versioned order update
func RecordOrderUpdated() {
	ordersUpdated.Inc()
}

// RecordDuplicateWarning records a duplicate-detector finding
func RecordDuplicateWarning(check, severity string) {
	duplicateWarnings.WithLabelValues(check, severity).Inc()
}

// RecordReviewSubmitted records a pharmacist review and the resulting status
func RecordReviewSubmitted(status string) {
	reviewsSubmitted.WithLabelValues(status).Inc()
}

// RecordCarePlanGeneration records a generation call by kind
// (initial, update, regenerate) and outcome (ok, error)
func RecordCarePlanGeneration(kind, outcome string, duration time.Duration) {
	carePlansGenerated.WithLabelValues(kind, outcome).Inc()
	carePlanDuration.Observe(duration.Seconds())
}

// RecordExport records an export by format
func RecordExport(format string) {
	exportsGenerated.WithLabelValues(format).Inc()
}

// RecordAuditEntry records an audit entry creation
func RecordAuditEntry() {
	auditEntriesTotal.Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
