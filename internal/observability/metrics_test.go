package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/callkit/internal/reconcile"
	"github.com/ent0n29/callkit/internal/session"
)

func TestSessionListenerTracksActiveGauge(t *testing.T) {
	m := NewMetricsWithRegistry("test", prometheus.NewRegistry())
	l := m.SessionListener()

	l.OnStateChange(session.StateNotStarted, session.StateConnecting)
	l.OnStateChange(session.StateConnecting, session.StateActive)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))

	l.OnStateChange(session.StateActive, session.StateEnded)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionTransitions.WithLabelValues("active", "ended")))
}

func TestObserveRegistrationAndValidation(t *testing.T) {
	m := NewMetricsWithRegistry("test", prometheus.NewRegistry())

	m.ObserveRegistration("acme", "web", 120*time.Millisecond, nil)
	m.ObserveRegistration("acme", "web", 80*time.Millisecond, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues("acme", "web", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues("acme", "web", "error")))

	m.ObserveValidation("acme", reconcile.Validation{
		"first_name": reconcile.StatusValid,
		"last_name":  reconcile.StatusValid,
		"dob":        reconcile.StatusInvalid,
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FieldValidations.WithLabelValues("acme", "valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FieldValidations.WithLabelValues("acme", "invalid")))

	m.ObservePoll("completed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisPolls.WithLabelValues("completed")))
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	m := NewMetrics("callkit")
	m.ObservePoll("exhausted")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `callkit_analysis_polls_total{outcome="exhausted"} 1`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
