package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification state machine.
type Metrics struct {
	Started *prometheus.CounterVec

	// Answers by step and result
	Answers *prometheus.CounterVec

	// Time between a question being asked and answered
	AnswerDelay *prometheus.HistogramVec

	TrackingOpenFailures prometheus.Counter
}

// New registers the verification metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Started: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "saferide_verifications_started_total",
			Help: "Verification start attempts by result",
		}, []string{"result"}), // result: "started", "not_configured", "already_in_progress"

		Answers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "saferide_verification_answers_total",
			Help: "Submitted challenge answers by step and result",
		}, []string{"step", "result"}),

		AnswerDelay: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "saferide_verification_answer_delay_seconds",
			Help:    "Time between a challenge question being asked and answered",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"step"}),

		TrackingOpenFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "saferide_verification_tracking_open_failures_total",
			Help: "Tracking sessions that could not be opened after a correct first answer",
		}),
	}
}

func (m *Metrics) IncrementStarted(result string) {
	if m != nil {
		m.Started.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementAnswer(step string, correct bool) {
	if m != nil {
		result := "mismatch"
		if correct {
			result = "match"
		}
		m.Answers.WithLabelValues(step, result).Inc()
	}
}

func (m *Metrics) ObserveAnswerDelay(step string, d time.Duration) {
	if m != nil && d >= 0 {
		m.AnswerDelay.WithLabelValues(step).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementTrackingOpenFailure() {
	if m != nil {
		m.TrackingOpenFailures.Inc()
	}
}
