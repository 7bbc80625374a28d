package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for tracking sessions.
type Metrics struct {
	SessionsOpened      prometheus.Counter
	SessionsClosed      prometheus.Counter
	SamplesAppended     *prometheus.CounterVec
	LateSamplesRejected prometheus.Counter
	Subscribers         prometheus.Gauge
}

// New registers the tracking metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "saferide_tracking_sessions_opened_total",
			Help: "Tracking sessions opened",
		}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "saferide_tracking_sessions_closed_total",
			Help: "Tracking sessions closed",
		}),
		SamplesAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "saferide_tracking_samples_total",
			Help: "Location samples received by outcome",
		}, []string{"outcome"}), // outcome: "stored", "duplicate"
		LateSamplesRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "saferide_tracking_late_samples_rejected_total",
			Help: "Location samples rejected because their session was already closed",
		}),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "saferide_tracking_subscribers",
			Help: "Live tracking stream subscribers",
		}),
	}
}

func (m *Metrics) IncrementOpened() {
	if m != nil {
		m.SessionsOpened.Inc()
	}
}

func (m *Metrics) IncrementClosed() {
	if m != nil {
		m.SessionsClosed.Inc()
	}
}

func (m *Metrics) IncrementSample(stored bool) {
	if m != nil {
		outcome := "duplicate"
		if stored {
			outcome = "stored"
		}
		m.SamplesAppended.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementLateSample() {
	if m != nil {
		m.LateSamplesRejected.Inc()
	}
}

func (m *Metrics) AddSubscriber(delta float64) {
	if m != nil {
		m.Subscribers.Add(delta)
	}
}
