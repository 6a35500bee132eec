package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePrediction(t *testing.T) {
	m := New()
	m.ObservePrediction("cats", "model", 20*time.Millisecond)
	m.ObservePrediction("cats", "cache", time.Millisecond)
	m.ObservePrediction("unknown", "model", 20*time.Millisecond)
	m.ObservePredictionError("decode")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.predictions.WithLabelValues("cats", "model")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.predictions.WithLabelValues("unknown", "model")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.predictionErrors.WithLabelValues("decode")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePrediction("cats", "model", time.Second)
		m.ObservePredictionError("inference")
		m.ObserveRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodPost, "/predict", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `imgclass_http_requests_total{method="POST",route="/predict",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
