package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "climbs",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "climbs",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "climbs",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	ledgerPostings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "climbs",
			Subsystem: "ledger",
			Name:      "postings_total",
			Help:      "Shares and savings postings by outcome.",
		},
		[]string{"book", "type", "result"},
	)

	loansIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "climbs",
			Subsystem: "loans",
			Name:      "issued_total",
			Help:      "Total number of loans issued.",
		},
	)

	loanPayments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "climbs",
			Subsystem: "loans",
			Name:      "payments_total",
			Help:      "Loan payments applied, by resulting loan status.",
		},
		[]string{"status"},
	)

	ordersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "climbs",
			Subsystem: "canteen",
			Name:      "orders_placed_total",
			Help:      "Canteen orders placed, by customer type and payment mode.",
		},
		[]string{"customer_type", "payment_mode"},
	)

	orderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "climbs",
			Subsystem: "canteen",
			Name:      "order_transitions_total",
			Help:      "Canteen order status transitions.",
		},
		[]string{"status"},
	)

	registrations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "climbs",
			Subsystem: "membership",
			Name:      "registrations_total",
			Help:      "Total number of member registrations.",
		},
	)

	backups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "climbs",
			Subsystem: "backup",
			Name:      "snapshots_total",
			Help:      "Database snapshots attempted, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerPostings,
		loansIssued,
		loanPayments,
		ordersPlaced,
		orderTransitions,
		registrations,
		backups,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP metrics collection. Requests are
// labelled with the ServeMux pattern that matched them so path parameters do
// not blow up label cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routeLabel(r)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordLedgerPosting counts a shares or savings posting attempt.
func RecordLedgerPosting(book, direction string, ok bool) {
	result := "rejected"
	if ok {
		result = "posted"
	}
	ledgerPostings.WithLabelValues(book, direction, result).Inc()
}

func RecordLoanIssued() {
	loansIssued.Inc()
}

func RecordLoanPayment(status string) {
	loanPayments.WithLabelValues(status).Inc()
}

func RecordOrderPlaced(customerType, paymentMode string) {
	ordersPlaced.WithLabelValues(customerType, paymentMode).Inc()
}

func RecordOrderTransition(status string) {
	orderTransitions.WithLabelValues(status).Inc()
}

func RecordRegistration() {
	registrations.Inc()
}

func RecordBackup(ok bool) {
	result := "failed"
	if ok {
		result = "uploaded"
	}
	backups.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which the
// websocket upgrade needs.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	// Patterns carry the method ("GET /canteen/menu"); method is its own label.
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}
