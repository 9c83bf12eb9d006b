package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the voice pipeline.
// Every method is safe to call on a nil receiver so components can run unmetered in tests.
type Metrics struct {
	StageTransitions     *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	RegistrationOutcomes *prometheus.CounterVec
	Revocations          *prometheus.CounterVec
	Audits               *prometheus.CounterVec
	CapturesCreated      *prometheus.CounterVec
	ActiveSessions       prometheus.Gauge
	BiometricCircuitOpen prometheus.Gauge
}

// New creates and registers all Prometheus metrics. Call once per process.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors against reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StageTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceid_registration_stage_transitions_total",
			Help: "Registration pipeline stage entries",
		}, []string{"stage"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceid_registration_stage_duration_seconds",
			Help:    "Time spent in each registration pipeline stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		RegistrationOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceid_registrations_total",
			Help: "Completed registration runs by outcome and failure code",
		}, []string{"outcome", "code"}),
		Revocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceid_credential_revocations_total",
			Help: "Credential revocation attempts by outcome",
		}, []string{"outcome"}),
		Audits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceid_audits_total",
			Help: "Synthetic-audio audits by result",
		}, []string{"result"}),
		CapturesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceid_captures_total",
			Help: "Capture sessions created by source",
		}, []string{"source"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceid_active_sessions",
			Help: "User sessions currently open",
		}),
		BiometricCircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceid_biometric_circuit_open",
			Help: "1 while the biometric provider circuit breaker is open",
		}),
	}
}

// ObserveStage records entry into stage and the time spent in the previous one.
func (m *Metrics) ObserveStage(stage, previous string, since time.Time) {
	if m == nil {
		return
	}
	m.StageTransitions.WithLabelValues(stage).Inc()
	if previous != "" && !since.IsZero() {
		m.StageDuration.WithLabelValues(previous).Observe(time.Since(since).Seconds())
	}
}

func (m *Metrics) IncRegistration(outcome, code string) {
	if m == nil {
		return
	}
	m.RegistrationOutcomes.WithLabelValues(outcome, code).Inc()
}

func (m *Metrics) IncRevocation(outcome string) {
	if m == nil {
		return
	}
	m.Revocations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAudit(result string) {
	if m == nil {
		return
	}
	m.Audits.WithLabelValues(result).Inc()
}

func (m *Metrics) IncCapture(source string) {
	if m == nil {
		return
	}
	m.CapturesCreated.WithLabelValues(source).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BiometricCircuitOpen.Set(1)
		return
	}
	m.BiometricCircuitOpen.Set(0)
}
