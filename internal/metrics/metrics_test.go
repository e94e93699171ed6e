package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.AttemptFinished("confirmed", "sol-usdc")
	m.AttemptFinished("confirmed", "sol-usdc")
	m.AttemptFinished("rejected", "sol-usdc")
	m.InFlightInc()
	m.InFlightInc()
	m.InFlightDec()
	m.ObserveStage("sign", time.Now().Add(-time.Second))
	m.SessionEvent("connected")
	m.SessionEvents("expired", 3)
	m.SessionEvents("expired", 0)

	body := scrape(t, m)
	assert.Contains(t, body, `deposit_attempts_total{pool_id="sol-usdc",status="confirmed"} 2`)
	assert.Contains(t, body, `deposit_attempts_total{pool_id="sol-usdc",status="rejected"} 1`)
	assert.Contains(t, body, "deposit_attempts_in_flight 1")
	assert.Contains(t, body, `deposit_stage_duration_seconds_count{stage="sign"} 1`)
	assert.Contains(t, body, `wallet_session_events_total{event="connected"} 1`)
	assert.Contains(t, body, `wallet_session_events_total{event="expired"} 3`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AttemptFinished("confirmed", "p")
		m.ObserveStage("build", time.Now())
		m.InFlightInc()
		m.InFlightDec()
		m.SessionEvent("created")
		m.SessionEvents("expired", 2)
	})
	assert.Nil(t, m.Registry())
}
