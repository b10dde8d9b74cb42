package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"runcore/internal/platform/metrics"
)

// Metrics records request counts and durations by route pattern (not raw
// path, to keep cardinality bounded for routes like /courses/{id}),
// mirroring the teacher's MetricsInterceptor.
func Metrics(reg *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reg == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := routePattern(r)
			statusClass := strconv.Itoa(rec.status/100) + "xx"
			reg.HTTPRequestsTotal.WithLabelValues(route, statusClass).Inc()
			reg.HTTPDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
