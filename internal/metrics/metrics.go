// Package metrics exposes prometheus collectors for HTTP traffic and account activity.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestDuration tracks HTTP request duration in seconds by method, route, status.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// RequestTotal counts HTTP requests by method, route, status.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// AccountEvents counts account workflow outcomes (signup, login, verify, resend) by result.
	AccountEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_events_total",
			Help: "Account workflow events by kind and result",
		},
		[]string{"event", "result"},
	)

	// EmailsTotal counts outbound emails by kind and result (sent, failed).
	EmailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_total",
			Help: "Outbound emails by kind and result",
		},
		[]string{"kind", "result"},
	)

	// ExpenseMutations counts ledger writes by operation.
	ExpenseMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expense_mutations_total",
			Help: "Expense create/update/delete operations",
		},
		[]string{"op"},
	)
)

var initOnce sync.Once

func init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestDuration, RequestTotal, AccountEvents, EmailsTotal, ExpenseMutations)
	})
}

// RecordRequest records duration and count for an HTTP request. route should be
// the router pattern, not the raw path, to keep label cardinality bounded.
func RecordRequest(method, route string, statusCode int, durationSeconds float64) {
	if route == "" {
		route = "unmatched"
	}
	status := strconv.Itoa(statusCode)
	RequestDuration.WithLabelValues(method, route, status).Observe(durationSeconds)
	RequestTotal.WithLabelValues(method, route, status).Inc()
}

// AccountEvent counts one account workflow outcome.
func AccountEvent(event, result string) {
	AccountEvents.WithLabelValues(event, result).Inc()
}

// Email counts one outbound email attempt.
func Email(kind string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	EmailsTotal.WithLabelValues(kind, result).Inc()
}

// ExpenseMutation counts one ledger write.
func ExpenseMutation(op string) {
	ExpenseMutations.WithLabelValues(op).Inc()
}
