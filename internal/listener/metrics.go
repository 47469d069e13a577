package listener

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/cepsnap/internal/engine"
)

// FiredMetricName is the fully qualified name of the firing counter.
const FiredMetricName = "cepsnap_rules_fired_total"

// Metrics exports rule firings as a Prometheus counter.
type Metrics struct {
	fired *prometheus.CounterVec
}

// NewMetrics registers cepsnap_rules_fired_total{rule} on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	fired := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cepsnap",
		Name:      "rules_fired_total",
		Help:      "Total number of rule firings by package-qualified rule name.",
	}, []string{"rule"})
	if err := reg.Register(fired); err != nil {
		return nil, err
	}
	return &Metrics{fired: fired}, nil
}

// AfterMatchFired implements engine.AgendaEventListener.
func (m *Metrics) AfterMatchFired(match engine.Match) {
	m.fired.WithLabelValues(match.Rule).Inc()
}
