package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/repairradar/repairradar/internal/gateway/metrics"
)

// MetricsMiddleware records request count, latency and sizes, labelled by
// the matched route pattern
func MetricsMiddleware(m *metrics.Metrics, routes *RouteLabels) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routes.Label(r.URL.Path)

			active := m.HTTPActiveRequests.WithLabelValues(r.Method, route)
			active.Inc()
			defer active.Dec()

			sw := newStatusWriter(w)
			next(sw, r)

			m.RecordHTTPRequest(r.Method, route, strconv.Itoa(sw.status),
				time.Since(start), max(r.ContentLength, 0), sw.written)
		}
	}
}
