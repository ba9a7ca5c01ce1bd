package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics tracks the outbox publisher loop.
type OutboxMetrics struct {
	published  *prometheus.CounterVec
	retried    *prometheus.CounterVec
	deadLetter *prometheus.CounterVec
}

// NewOutboxMetrics registers the publisher metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events marked published.",
		}, []string{"event_type"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "retried_total",
			Help:      "Outbox events that failed and will be retried.",
		}, []string{"event_type"}),
		deadLetter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "dead_lettered_total",
			Help:      "Outbox events moved to the DLQ.",
		}, []string{"event_type", "reason"}),
	}
	reg.MustRegister(m.published, m.retried, m.deadLetter)
	return m
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncRetried(eventType string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncDeadLetter(eventType, reason string) {
	if m == nil || m.deadLetter == nil {
		return
	}
	m.deadLetter.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}

// OutboxBacklog is reported by the cron worker after each retention pass.
type OutboxBacklog struct {
	pending prometheus.Gauge
	pruned  prometheus.Counter
}

func NewOutboxBacklog(reg prometheus.Registerer) *OutboxBacklog {
	if reg == nil {
		return &OutboxBacklog{}
	}
	b := &OutboxBacklog{
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "pending_events",
			Help:      "Outbox rows still waiting for a successful publish.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "pruned_total",
			Help:      "Outbox rows removed by retention.",
		}),
	}
	reg.MustRegister(b.pending, b.pruned)
	return b
}

func (b *OutboxBacklog) SetPending(n int64) {
	if b == nil || b.pending == nil {
		return
	}
	b.pending.Set(float64(n))
}

func (b *OutboxBacklog) AddPruned(n int64) {
	if b == nil || b.pruned == nil || n <= 0 {
		return
	}
	b.pruned.Add(float64(n))
}
