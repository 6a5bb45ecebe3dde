package session

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	SessionsActive prometheus.Gauge
	QuantityOps    *prometheus.CounterVec
	PolicyApplied  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_sessions_active",
			Help: "Open sessions holding a product store",
		}),
		QuantityOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_quantity_ops_total",
				Help: "Quantity operations by kind; applied is false for unknown product ids",
			},
			[]string{"op", "applied"},
		),
		PolicyApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_policy_applied_total",
				Help: "Flash sale and recommendation changes applied",
			},
			[]string{"policy"},
		),
	}

	reg.MustRegister(m.SessionsActive, m.QuantityOps, m.PolicyApplied)
	return m
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.SessionsActive.Inc()
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.SessionsActive.Dec()
	}
}

func (m *Metrics) quantityOp(op string, applied bool) {
	if m != nil {
		m.QuantityOps.WithLabelValues(op, strconv.FormatBool(applied)).Inc()
	}
}

func (m *Metrics) policyApplied(policy string) {
	if m != nil {
		m.PolicyApplied.WithLabelValues(policy).Inc()
	}
}
