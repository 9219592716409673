package middleware

import (
	"net/http"
	"time"

	"expense-tracker/internal/metrics"

	"github.com/go-chi/chi/v5"
)

// Prometheus records request duration and count per route pattern, so
// /edit-expense/1 and /edit-expense/2 share one series.
func Prometheus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrap := wrapWriter(w)
		next.ServeHTTP(wrap, r)
		if r.URL.Path == "/metrics" {
			return
		}
		var route string
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		metrics.RecordRequest(r.Method, route, wrap.status, time.Since(start).Seconds())
	})
}
