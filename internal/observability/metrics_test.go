package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/asns", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "atlas_http_requests_total")
}

func TestEngineCountersExposed(t *testing.T) {
	metrics := NewMetrics()
	metrics.LineProcessed(4)
	metrics.LineProcessed(6)
	metrics.BatchLineSkipped()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	require.Contains(t, body, "atlas_asn_lines_processed_total 2")
	require.Contains(t, body, "atlas_asn_units_processed_total 10")
	require.Contains(t, body, "atlas_asn_batch_lines_skipped_total 1")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.LineProcessed(1)
	metrics.BatchLineSkipped()
	require.NotNil(t, metrics.Handler())
	require.NotNil(t, metrics.Registerer())
}
