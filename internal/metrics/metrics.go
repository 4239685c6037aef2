// Package metrics exposes Prometheus counters for authentication outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeStepUpRequired     = "stepup_required"
	OutcomeInvalidCode        = "invalid_code"
	OutcomeError              = "error"
)

// AuthMetrics counts login and step-up attempts by role and outcome.
type AuthMetrics struct {
	LoginAttempts  *prometheus.CounterVec
	StepUpAttempts *prometheus.CounterVec
}

// New creates the counters and registers them on the given registerer.
func New(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by principal role and outcome",
		}, []string{"role", "outcome"}),
		StepUpAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_stepup_attempts_total",
			Help: "Second-factor verification attempts by role and outcome",
		}, []string{"role", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.LoginAttempts, m.StepUpAttempts)
	}
	return m
}

// ObserveLogin records a login attempt outcome.
func (m *AuthMetrics) ObserveLogin(role, outcome string) {
	m.LoginAttempts.WithLabelValues(role, outcome).Inc()
}

// ObserveStepUp records a step-up verification outcome.
func (m *AuthMetrics) ObserveStepUp(role, outcome string) {
	m.StepUpAttempts.WithLabelValues(role, outcome).Inc()
}
