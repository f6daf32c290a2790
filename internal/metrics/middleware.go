package metrics

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// otherRoute labels requests for paths the server does not serve.
const otherRoute = "other"

// statusRecorder captures the status code written by the next handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func record(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

// HTTPMiddleware records request count, latency and in-flight requests.
// The path label is one of routes, or "other" for anything else, so that
// probes for random URLs cannot grow the series count.
func HTTPMiddleware(reg *Registry, routes ...string) func(http.Handler) http.Handler {
	known := make(map[string]bool, len(routes))
	for _, r := range routes {
		known[r] = true
	}
	label := func(path string) string {
		if len(known) == 0 || known[path] {
			return path
		}
		return otherRoute
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reg.InFlightInc()
			defer reg.InFlightDec()

			start := time.Now()
			rw := record(w)
			next.ServeHTTP(rw, r)

			reg.RecordRequest(r.Method, label(r.URL.Path), rw.status, time.Since(start).Seconds())
		})
	}
}

// LoggingMiddleware logs one line per request, tagged with the incoming
// request id or a fresh one, which is echoed back in the response.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			start := time.Now()
			rw := record(w)
			next.ServeHTTP(rw, r)

			logger.Info("http request",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.status),
				zap.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			)
		})
	}
}
