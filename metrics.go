package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

const outcomeDependencyFailure = "dependency_failure"

// SettingsMetrics counts settings workflow outcomes
type SettingsMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewSettingsMetrics creates the collectors and registers them on reg.
// A nil registerer leaves the collectors unregistered.
func NewSettingsMetrics(reg prometheus.Registerer) (*SettingsMetrics, error) {
	m := &SettingsMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authninja",
			Subsystem: "settings",
			Name:      "outcomes_total",
			Help:      "Number of settings update requests by outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		if err := reg.Register(m.outcomes); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Observe increments the counter for the outcome, or for a dependency
// failure when err is not nil.
func (m *SettingsMetrics) Observe(outcome Outcome, err error) {
	if m == nil {
		return
	}
	label := string(outcome.Kind)
	if err != nil {
		label = outcomeDependencyFailure
	}
	m.outcomes.WithLabelValues(label).Inc()
}

// Outcomes exposes the counter vector for tests and custom registries
func (m *SettingsMetrics) Outcomes() *prometheus.CounterVec {
	return m.outcomes
}
