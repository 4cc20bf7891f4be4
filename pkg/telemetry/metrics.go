// Package telemetry exposes Prometheus collectors for credential flows and a
// validation listener that turns resolver outcomes into audit records.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "credentials"

// Metrics groups the collectors updated by the issuer, resolver and commands.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	issued     *prometheus.CounterVec
	resolved   *prometheus.CounterVec
	rotations  prometheus.Counter
	operations *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them with reg. A nil
// registerer skips registration, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Tokens minted and persisted, by kind.",
		}, []string{"kind"}),
		resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_resolutions_total",
			Help:      "Session resolver outcomes, by final state.",
		}, []string{"state"}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_rotations_total",
			Help:      "Access tokens silently reissued from a refresh bearer.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Credential service operations, by verb and result.",
		}, []string{"verb", "result"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.issued, m.resolved, m.rotations, m.operations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// TokenIssued counts a persisted token of the given kind.
func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.issued.WithLabelValues(kind).Inc()
}

// Resolved counts a resolver outcome.
func (m *Metrics) Resolved(state string) {
	if m == nil {
		return
	}
	m.resolved.WithLabelValues(state).Inc()
}

// Rotated counts a silent access rotation.
func (m *Metrics) Rotated() {
	if m == nil {
		return
	}
	m.rotations.Inc()
}

// Operation counts a service operation result. err == nil is recorded as "ok".
func (m *Metrics) Operation(verb string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(verb, result).Inc()
}
