package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"benchd.sh/internal/metrics"
)

// NewMetricsMiddleware records request counts and latency per route
func NewMetricsMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := NewResponseWriter(w)

			next.ServeHTTP(rw, r)

			metrics.RecordHTTPRequest(
				serviceName,
				r.Method,
				routeLabel(r),
				strconv.Itoa(rw.StatusCode()),
				time.Since(start).Seconds(),
				float64(rw.BytesWritten()),
			)
		})
	}
}

// routeLabel uses the matched route template so label cardinality stays
// bounded by the route table.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
