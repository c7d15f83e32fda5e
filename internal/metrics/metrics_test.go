package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsExported(t *testing.T) {
	m := PrometheusMetrics("simex_test")
	m.WizardTransitions.With("kind", "advance").Add(1)
	m.Deployments.With("status", "success").Add(1)
	m.DeployDuration.Observe(3)
	m.HTTPRequestDuration.With("method", "GET", "route", "/api/health", "code", "200").Observe(0.01)

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `simex_test_wizard_transitions_total{kind="advance"} 1`)
	assert.Contains(t, body, `simex_test_deploy_outcomes_total{status="success"} 1`)
	assert.Contains(t, body, `simex_test_deploy_duration_seconds_count 1`)
	assert.Contains(t, body, `route="/api/health"`)
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	assert.NotPanics(t, func() {
		m.CollateralMoves.With("action", "deposit", "result", "ok").Add(1)
		m.SelectorFetches.With("watcher", "orderbook", "result", "ok").Add(1)
		m.ValidationFailures.With("step", "pricing").Add(1)
	})
}
