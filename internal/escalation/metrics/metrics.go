package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the escalation dispatcher.
type Metrics struct {
	CallsRecorded   *prometheus.CounterVec
	StatusUpdates   *prometheus.CounterVec
	PublishFailures prometheus.Counter
}

// New registers the escalation metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CallsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "saferide_escalation_calls_recorded_total",
			Help: "Escalation calls recorded, labelled by whether the location was a fallback",
		}, []string{"fallback"}),

		StatusUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "saferide_escalation_status_updates_total",
			Help: "Escalation call status updates by new status",
		}, []string{"status"}),

		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "saferide_escalation_intent_publish_failures_total",
			Help: "Escalation intents that could not be handed to the telephony integration",
		}),
	}
}

func (m *Metrics) IncrementCallRecorded(fallback bool) {
	if m != nil {
		label := "false"
		if fallback {
			label = "true"
		}
		m.CallsRecorded.WithLabelValues(label).Inc()
	}
}

func (m *Metrics) IncrementStatusUpdate(status string) {
	if m != nil {
		m.StatusUpdates.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncrementPublishFailure() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}
