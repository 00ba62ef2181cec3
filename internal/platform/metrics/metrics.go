package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts vault decision outcomes. Labels stay low-cardinality:
// action and status only, never handles or agents.
type Metrics struct {
	Decisions   *prometheus.CounterVec
	RateLimited prometheus.Counter
	AuthFailed  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentvault_decisions_total",
			Help: "Vault authorization decisions by action and status",
		}, []string{"action", "status"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentvault_rate_limited_total",
			Help: "Resolve requests rejected by the rate limiter",
		}),
		AuthFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentvault_token_auth_failures_total",
			Help: "Bearer token authentication failures",
		}),
	}
}

func (m *Metrics) ObserveDecision(action, status string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(action, status).Inc()
}

func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

func (m *Metrics) ObserveAuthFailure() {
	if m == nil {
		return
	}
	m.AuthFailed.Inc()
}
