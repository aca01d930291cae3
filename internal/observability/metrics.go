package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the quiz engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	persistence       *prometheus.CounterVec
	sessionsStarted   prometheus.Counter
	sessionsCompleted prometheus.Counter
	generation        *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		persistence: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studyquiz_persistence_attempts_total",
				Help: "Document store calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studyquiz_sessions_started_total",
			Help: "Quiz sessions started or resumed",
		}),
		sessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studyquiz_sessions_completed_total",
			Help: "Quiz sessions finalized with a result",
		}),
		generation: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studyquiz_generation_duration_seconds",
				Help:    "Duration of question generation calls",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "outcome"},
		),
	}
	reg.MustRegister(m.persistence, m.sessionsStarted, m.sessionsCompleted, m.generation)
	return m
}

func (m *Metrics) ObservePersistence(op string, err error) {
	if m == nil {
		return
	}
	m.persistence.WithLabelValues(op, outcome(err)).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

func (m *Metrics) SessionCompleted() {
	if m == nil {
		return
	}
	m.sessionsCompleted.Inc()
}

func (m *Metrics) ObserveGeneration(provider string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.generation.WithLabelValues(provider, outcome(err)).Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
