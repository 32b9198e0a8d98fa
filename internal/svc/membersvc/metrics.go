package membersvc

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the member service counters. A nil *Metrics records nothing.
type Metrics struct {
	Lookups         *prometheus.CounterVec
	Verifications   *prometheus.CounterVec
	Rehashes        *prometheus.CounterVec
	AttributeWrites *prometheus.CounterVec
}

// NewMetrics creates the member service counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer, componentID string) *Metrics {
	labels := prometheus.Labels{"component": componentID}

	m := &Metrics{
		Lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "memberfed_lookups_total",
				Help:        "Member lookups by key and result",
				ConstLabels: labels,
			},
			[]string{"by", "result"},
		),
		Verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "memberfed_credential_verifications_total",
				Help:        "Password verifications by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		Rehashes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "memberfed_credential_rehashes_total",
				Help:        "Plaintext secrets rewritten as digests after a successful verification",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
		AttributeWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "memberfed_attribute_writes_total",
				Help:        "Mapped attribute writes by result",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(m.Lookups, m.Verifications, m.Rehashes, m.AttributeWrites)

	return m
}

func (m *Metrics) lookup(by, result string) {
	if m != nil {
		m.Lookups.WithLabelValues(by, result).Inc()
	}
}

func (m *Metrics) verification(outcome string) {
	if m != nil {
		m.Verifications.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) rehash(result string) {
	if m != nil {
		m.Rehashes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) attributeWrite(result string) {
	if m != nil {
		m.AttributeWrites.WithLabelValues(result).Inc()
	}
}
