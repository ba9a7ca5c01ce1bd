package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics tracks the order lifecycle and the stock mutations it causes.
// A nil *OrderMetrics is valid and records nothing.
type OrderMetrics struct {
	transitions     *prometheus.CounterVec
	payments        *prometheus.CounterVec
	stockMovements  *prometheus.CounterVec
	missingVariants prometheus.Counter
	oversold        prometheus.Counter
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "status_transitions_total",
			Help:      "Order status transitions by source and target status.",
		}, []string{"from", "to"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "payment_signals_total",
			Help:      "Payment signals handled, by source and outcome.",
		}, []string{"source", "outcome"}),
		stockMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "stock_movements_total",
			Help:      "Ledger entries written, by kind.",
		}, []string{"kind"}),
		missingVariants: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "missing_variants_total",
			Help:      "Order line items whose variant no longer exists at decrement time.",
		}),
		oversold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "oversold_total",
			Help:      "Order decrements that left a variant with negative stock.",
		}),
	}
	reg.MustRegister(m.transitions, m.payments, m.stockMovements, m.missingVariants, m.oversold)
	return m
}

func (m *OrderMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *OrderMetrics) IncPaymentSignal(source, outcome string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

func (m *OrderMetrics) IncStockMovement(kind string) {
	if m == nil || m.stockMovements == nil {
		return
	}
	m.stockMovements.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *OrderMetrics) IncMissingVariant() {
	if m == nil || m.missingVariants == nil {
		return
	}
	m.missingVariants.Inc()
}

func (m *OrderMetrics) IncOversold() {
	if m == nil || m.oversold == nil {
		return
	}
	m.oversold.Inc()
}
