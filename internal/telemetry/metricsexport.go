package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionExporter exposes live session telemetry as Prometheus
// gauges/counters. It is an observability convenience wired only by
// cmd/bioctl (the run commands' optional --metrics-addr flag and the
// `serve-metrics` command) — no core package
// (safety, metrics, protocolrunner, assessment) depends on it, keeping
// the core free of network I/O per the specification's non-goals.
type SessionExporter struct {
	registry *prometheus.Registry

	sessionState          *prometheus.GaugeVec
	stepsCompletedTotal   prometheus.Counter
	liveVrmsPatient       prometheus.Gauge
	frequenciesTestedTotal prometheus.Counter
}

// NewSessionExporter builds a SessionExporter with its own registry so
// it never collides with the default global one.
func NewSessionExporter() *SessionExporter {
	reg := prometheus.NewRegistry()
	e := &SessionExporter{
		registry: reg,
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bioctl_session_state",
			Help: "1 for the currently active session state, 0 otherwise, labeled by state name.",
		}, []string{"state"}),
		stepsCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bioctl_protocol_steps_completed_total",
			Help: "Total number of protocol steps that finished normally.",
		}),
		liveVrmsPatient: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bioctl_live_vrms_patient_volts",
			Help: "Most recent patient-channel RMS voltage observed during a session.",
		}),
		frequenciesTestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bioctl_assessment_frequencies_tested_total",
			Help: "Total number of candidate frequencies tested across all assessments.",
		}),
	}
	reg.MustRegister(e.sessionState, e.stepsCompletedTotal, e.liveVrmsPatient, e.frequenciesTestedTotal)
	return e
}

// SetState zeroes every known state gauge and sets the current one to 1.
func (e *SessionExporter) SetState(states []string, current string) {
	for _, s := range states {
		e.sessionState.WithLabelValues(s).Set(0)
	}
	e.sessionState.WithLabelValues(current).Set(1)
}

func (e *SessionExporter) IncStepsCompleted()     { e.stepsCompletedTotal.Inc() }
func (e *SessionExporter) IncFrequenciesTested()  { e.frequenciesTestedTotal.Inc() }
func (e *SessionExporter) SetLiveVrmsPatient(v float64) { e.liveVrmsPatient.Set(v) }

// Handler returns the HTTP handler an operator can mount at /metrics.
func (e *SessionExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
