package subscription

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for webhook event processing.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics groups the reconciliation counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	webhookEvents *prometheus.CounterVec
	creditOps     *prometheus.CounterVec
	planChanges   *prometheus.CounterVec
	catalogPrices prometheus.Gauge
	rewards       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cutsync",
			Name:      "webhook_events_total",
			Help:      "Provider webhook events by normalized type and outcome.",
		}, []string{"type", "outcome"}),
		creditOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cutsync",
			Name:      "credit_operations_total",
			Help:      "Credit consume and refund calls by result.",
		}, []string{"op", "result"}),
		planChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cutsync",
			Name:      "plan_changes_total",
			Help:      "Plan change requests by kind and result.",
		}, []string{"kind", "result"}),
		catalogPrices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cutsync",
			Name:      "catalog_prices_synced",
			Help:      "Prices upserted by the last catalog sync.",
		}),
		rewards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cutsync",
			Name:      "rewards_total",
			Help:      "Upgrade rewards by stage and result.",
		}, []string{"stage", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.webhookEvents, m.creditOps, m.planChanges, m.catalogPrices, m.rewards)
	}
	return m
}

func (m *Metrics) webhookEvent(eventType EventType, outcome string) {
	if m != nil {
		m.webhookEvents.WithLabelValues(string(eventType), outcome).Inc()
	}
}

func (m *Metrics) creditOp(op string, err error) {
	if m != nil {
		m.creditOps.WithLabelValues(op, resultLabel(err)).Inc()
	}
}

func (m *Metrics) planChange(kind ChangeKind, err error) {
	if m != nil {
		m.planChanges.WithLabelValues(string(kind), resultLabel(err)).Inc()
	}
}

func (m *Metrics) catalogSynced(n int) {
	if m != nil {
		m.catalogPrices.Set(float64(n))
	}
}

func (m *Metrics) reward(stage string, err error) {
	if m != nil {
		m.rewards.WithLabelValues(stage, resultLabel(err)).Inc()
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
