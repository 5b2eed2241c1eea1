package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetricsMiddleware_RecordsStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := HTTPMetricsMiddleware(m, "/api/v1/requests")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/requests", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/v1/requests", "POST", "4xx")))
}

func TestHTTPMetricsMiddleware_PreservesFlusher(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	var flushable bool
	h := HTTPMetricsMiddleware(m, "/stream")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.True(t, flushable)
}

func TestSetState(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	all := []string{"IDLE", "PROCESSING", "SPEAKING"}

	m.SetState("SPEAKING", all)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oracleState.WithLabelValues("SPEAKING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.oracleState.WithLabelValues("IDLE")))

	m.SetState("IDLE", all)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.oracleState.WithLabelValues("SPEAKING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oracleState.WithLabelValues("IDLE")))
}

func TestStatusCodeToString(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToString(202))
	assert.Equal(t, "3xx", statusCodeToString(304))
	assert.Equal(t, "4xx", statusCodeToString(412))
	assert.Equal(t, "5xx", statusCodeToString(503))
	assert.Equal(t, "unknown", statusCodeToString(99))
}
