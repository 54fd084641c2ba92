package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Order lifecycle metrics
	orderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Total number of order status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	// Task generation metrics
	tasksGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_generated_total",
			Help: "Total number of execution tasks generated",
		},
		[]string{"order_kind", "category"},
	)

	// Duty assignment metrics
	dutyAssignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duty_assignments_total",
			Help: "Total number of duty assignment resolutions",
		},
		[]string{"outcome"},
	)

	// Stop/rollback metrics
	taskLocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_locks_total",
			Help: "Total number of task lock/restore operations",
		},
		[]string{"operation"},
	)

	// Overdue sweep metrics
	overdueTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overdue_tasks_total",
			Help: "Total number of tasks detected overdue by the sweep",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		orderTransitionsTotal,
		tasksGeneratedTotal,
		dutyAssignmentsTotal,
		taskLocksTotal,
		overdueTasksTotal,
	)
}

// RecordOrderTransition records one order status transition
func RecordOrderTransition(from, to string) {
	orderTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordTasksGenerated records generated tasks by order kind and category
func RecordTasksGenerated(orderKind, category string, count int) {
	tasksGeneratedTotal.WithLabelValues(orderKind, category).Add(float64(count))
}

// RecordDutyAssignment records a duty assignment outcome
// (assigned, unassigned, ambiguous)
func RecordDutyAssignment(outcome string) {
	dutyAssignmentsTotal.WithLabelValues(outcome).Inc()
}

// RecordTaskLock records a lock/restore ledger operation
func RecordTaskLock(operation string, count int) {
	taskLocksTotal.WithLabelValues(operation).Add(float64(count))
}

// RecordOverdueTask records one overdue task detected by the sweep
func RecordOverdueTask(category string) {
	overdueTasksTotal.WithLabelValues(category).Inc()
}

// MetricsHandler returns the Prometheus metrics HTTP handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder captures the response status code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware records request counts and latencies per endpoint
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}
