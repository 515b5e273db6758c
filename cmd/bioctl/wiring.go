package main

import (
	"errors"
	"os"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/config"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/events"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/hardware"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/sessionlog"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/telemetry"
)

// ErrNoHardware is returned by bindHardware for the "none" backend:
// the core never simulates hardware implicitly, so a caller must
// explicitly opt into the replay fixture or a real driver.
var ErrNoHardware = errors.New(`bioctl: no hardware backend selected; pass --hardware=replay for the deterministic fixture, or wire a real driver`)

func loadConfig() (config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.Load(cfgFile)
}

func newLogger() *telemetry.Logger {
	level := telemetry.LogLevelInfo
	if verbose {
		level = telemetry.LogLevelDebug
	}
	return telemetry.NewLogger(telemetry.LoggerConfig{
		Level:  level,
		Format: telemetry.LogFormatText,
		Output: os.Stderr,
	})
}

// bindHardware resolves the --hardware flag to a concrete hardware.Io.
// There is deliberately no fallback: an unrecognized or "none" value
// is a hard error, never a silent simulation.
func bindHardware() (hardware.Io, error) {
	switch hardwareKind {
	case "replay":
		return hardware.NewReplay(), nil
	case "none", "":
		return nil, ErrNoHardware
	default:
		return nil, errors.New("bioctl: unknown --hardware backend " + hardwareKind)
	}
}

func newReportStore() *sessionlog.Store {
	return sessionlog.NewStore("./reports", 100)
}

var (
	runnerStates     = []string{"idle", "preparing", "running", "paused", "finished", "aborting", "error"}
	assessmentStates = []string{"idle", "preparing", "baseline", "testing", "analyzing", "finished", "aborted", "error"}
)

// sessionSink fans every event out to collect (so the caller can still
// persist a session report) and, when exporter is non-nil, folds it
// into the live Prometheus gauges served on the run's --metrics-addr.
// A separate `bioctl serve-metrics` process builds its own exporter
// and never sees these values.
type sessionSink struct {
	collect  *events.CollectSink
	exporter *telemetry.SessionExporter
	apply    func(*telemetry.SessionExporter, events.Event)
}

func (s *sessionSink) Emit(e events.Event) {
	s.collect.Emit(e)
	if s.exporter != nil {
		s.apply(s.exporter, e)
	}
}

// applyRunnerEvent folds a protocolrunner event into the exporter's
// session-state gauge and step counter.
func applyRunnerEvent(exporter *telemetry.SessionExporter, e events.Event) {
	switch e.Kind {
	case events.KindStarted:
		exporter.SetState(runnerStates, "running")
	case events.KindStateChanged:
		exporter.SetState(runnerStates, e.State)
	case events.KindStepFinished:
		exporter.IncStepsCompleted()
	case events.KindFinished:
		exporter.SetState(runnerStates, "finished")
	case events.KindAborted:
		exporter.SetState(runnerStates, "idle")
	case events.KindErrorOccurred:
		exporter.SetState(runnerStates, "error")
	}
}

// applyAssessmentEvent folds an assessment event into the exporter's
// session-state gauge, frequency counter, and last-observed patient
// RMS voltage.
func applyAssessmentEvent(exporter *telemetry.SessionExporter, e events.Event) {
	switch e.Kind {
	case events.KindStateChanged:
		exporter.SetState(assessmentStates, e.State)
	case events.KindResultItem:
		exporter.IncFrequenciesTested()
		if e.FrequencyResult != nil {
			exporter.SetLiveVrmsPatient(e.FrequencyResult.VrmsPatient)
		}
	}
}
