package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHTTPMiddleware_CountsByRouteAndStatusClass(t *testing.T) {
	reg := NewRegistry()
	handler := HTTPMiddleware(reg, "/api/status", "/metrics")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/status" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))

	assert.Equal(t, http.StatusNotFound, serve(handler, http.MethodGet, "/api/status").Code)
	assert.Equal(t, http.StatusOK, serve(handler, http.MethodGet, "/metrics").Code)
	serve(handler, http.MethodGet, "/wp-login.php")
	serve(handler, http.MethodGet, "/.env")

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.httpRequestsTotal.WithLabelValues("GET", "/api/status", "4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.httpRequestsTotal.WithLabelValues("GET", "/metrics", "2xx")))
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.httpRequestsTotal.WithLabelValues("GET", "other", "2xx")))
	assert.Equal(t, 3, testutil.CollectAndCount(reg.httpRequestsTotal))
	assert.Equal(t, 3, testutil.CollectAndCount(reg.httpRequestDuration))
}

func TestHTTPMiddleware_NoRoutesKeepsPath(t *testing.T) {
	reg := NewRegistry()
	handler := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	serve(handler, http.MethodPost, "/anything")
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.httpRequestsTotal.WithLabelValues("POST", "/anything", "2xx")))
}

func TestHTTPMiddleware_TracksInFlight(t *testing.T) {
	reg := NewRegistry()

	during := -1.0
	handler := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(reg.httpRequestsInFlight)
	}))

	serve(handler, http.MethodGet, "/api/health")
	assert.Equal(t, 1.0, during)
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.httpRequestsInFlight))
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := LoggingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := serve(handler, http.MethodGet, "/api/health")

	requestID := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, requestID)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, requestID, fields["request_id"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "/api/health", fields["path"])
	assert.Equal(t, "GET", fields["method"])
}

func TestLoggingMiddleware_KeepsIncomingRequestID(t *testing.T) {
	handler := LoggingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
