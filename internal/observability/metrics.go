package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ent0n29/callkit/internal/reconcile"
	"github.com/ent0n29/callkit/internal/session"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Registrations       *prometheus.CounterVec
	RegistrationLatency *prometheus.HistogramVec
	SessionTransitions  *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge
	AnalysisPolls       *prometheus.CounterVec
	FieldValidations    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers instruments on a private registry that also carries
// the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetricsWithRegistry(namespace, reg)
}

func NewMetricsWithRegistry(namespace string, reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Call registrations by brand, kind and outcome.",
		}, []string{"brand", "kind", "outcome"}),
		RegistrationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registration_latency_ms",
			Help:      "Latency of call registration requests in milliseconds.",
			Buckets:   []float64{50, 100, 200, 300, 500, 800, 1200, 2000, 5000},
		}, []string{"kind"}),
		SessionTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions.",
		}, []string{"from", "to"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions currently connecting or active.",
		}),
		AnalysisPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_polls_total",
			Help:      "Post-call analysis polls by outcome.",
		}, []string{"outcome"}),
		FieldValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_validations_total",
			Help:      "Reconciled identity fields by brand and status.",
		}, []string{"brand", "status"}),
		gatherer: reg,
	}
}

func (m *Metrics) ObserveRegistration(brand, kind string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Registrations.WithLabelValues(brand, kind, outcome).Inc()
	m.RegistrationLatency.WithLabelValues(kind).Observe(float64(d.Milliseconds()))
}

// ObservePoll matches analysis.Observer.
func (m *Metrics) ObservePoll(outcome string) {
	m.AnalysisPolls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveValidation(brand string, v reconcile.Validation) {
	for _, status := range v {
		m.FieldValidations.WithLabelValues(brand, string(status)).Inc()
	}
}

// SessionListener counts transitions and keeps the active gauge in step
// with sessions entering and leaving the live states.
func (m *Metrics) SessionListener() session.Listener {
	return session.Listener{
		OnStateChange: func(from, to session.State) {
			m.SessionTransitions.WithLabelValues(string(from), string(to)).Inc()
			wasLive := from == session.StateConnecting || from == session.StateActive
			isLive := to == session.StateConnecting || to == session.StateActive
			switch {
			case isLive && !wasLive:
				m.ActiveSessions.Inc()
			case wasLive && !isLive:
				m.ActiveSessions.Dec()
			}
		},
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
