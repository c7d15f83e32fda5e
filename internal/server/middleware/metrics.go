package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/simexchange/internal/metrics"
)

// Metrics returns middleware that records request durations by method,
// matched route and status code.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			m.HTTPRequestDuration.With(
				"method", r.Method,
				"route", routeOf(r),
				"code", strconv.Itoa(rw.statusCode),
			).Observe(time.Since(start).Seconds())
		})
	}
}
