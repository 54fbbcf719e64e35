package vmm

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts dispatched actions by name and outcome.
type Metrics struct {
	MetricActionsTotal *prometheus.CounterVec
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	labels := []string{"action", "outcome"}

	m := &Metrics{
		MetricActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ember", Subsystem: "vmm", Name: "actions_total", Help: "Dispatched VMM actions"}, labels),
	}

	reg.MustRegister(m.MetricActionsTotal)

	return m
}

func (m *Metrics) observe(action Action, response Response) {
	if m == nil {
		return
	}

	outcome := "ok"
	if !response.Ok() {
		outcome = "error"
	}
	m.MetricActionsTotal.WithLabelValues(action.Name(), outcome).Inc()
}
