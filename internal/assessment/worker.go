// Package assessment drives a baseline-then-sweep assessment against a
// hardware.Io: capture a baseline with the generator off, test each
// candidate frequency, then rank and report the best candidates.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/events"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/hardware"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/metrics"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/protocol"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/safety"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/telemetry"
)

// State is one node of the AssessmentWorker state machine.
type State int

const (
	Idle State = iota
	Preparing
	Baseline
	Testing
	Analyzing
	Finished
	Aborted
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Baseline:
		return "baseline"
	case Testing:
		return "testing"
	case Analyzing:
		return "analyzing"
	case Finished:
		return "finished"
	case Aborted:
		return "aborted"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

var (
	ErrBusy                = errors.New("assessment: worker is not idle")
	ErrHardwareUnavailable = errors.New("assessment: hardware is not connected")
)

const (
	settleAfterStopMs   = 500
	settleAfterStreamMs = 500
	settleBeforeTestMs  = 200
	energyBandLoHz      = 0.1
	energyBandHiHz      = 5.0
)

// Worker is the AssessmentWorker facade: new(hardware, event_sink),
// start(config), abort(), state().
type Worker struct {
	io     hardware.Io
	sink   events.Sink
	logger *telemetry.Logger

	sleep func(time.Duration)
	rng   *rand.Rand

	mu       sync.Mutex
	state    State
	progress float64
	aborted  bool
	abortCh  chan struct{}
}

// New returns an Idle Worker bound to io and sink.
func New(io hardware.Io, sink events.Sink, logger *telemetry.Logger) *Worker {
	if logger == nil {
		logger = telemetry.NewNop()
	}
	return &Worker{
		io:     io,
		sink:   sink,
		logger: logger,
		sleep:  time.Sleep,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// ProgressPercent returns floor(100*i/N) as described in the
// specification; 100 is only reached once ranking completes.
func (w *Worker) ProgressPercent() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int(math.Floor(w.progress))
}

// Abort requests cooperative cancellation; the worker checks for it
// between steps and between frequencies, per the concurrency model.
func (w *Worker) Abort() {
	w.mu.Lock()
	if w.aborted || w.state == Idle || w.state == Finished || w.state == Aborted || w.state == Error {
		w.mu.Unlock()
		return
	}
	w.aborted = true
	ch := w.abortCh
	w.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

func (w *Worker) isAborted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.aborted
}

// Start validates cfg and, on success, runs the baseline-then-sweep
// assessment synchronously in the calling goroutine (callers that
// want concurrency run Start in their own goroutine, matching the
// one-session-owns-one-task model of the specification).
func (w *Worker) Start(ctx context.Context, cfg protocol.AssessmentConfig) ([]protocol.FrequencyResult, error) {
	w.mu.Lock()
	if w.state != Idle {
		w.mu.Unlock()
		return nil, ErrBusy
	}
	if !w.io.IsConnected() {
		w.mu.Unlock()
		return nil, ErrHardwareUnavailable
	}
	w.state = Preparing
	w.aborted = false
	w.abortCh = make(chan struct{})
	w.progress = 0
	w.mu.Unlock()
	w.emit(events.Event{Kind: events.KindStateChanged, State: Preparing.String()})

	if err := w.validate(cfg); err != nil {
		w.setState(Error)
		w.emit(events.Event{Kind: events.KindErrorOccurred, FaultDetail: err.Error()})
		return nil, err
	}

	w.setState(Baseline)
	baseline, err := w.captureBaseline(ctx, cfg)
	if err != nil {
		w.setState(Error)
		w.logger.Error("baseline capture failed", "error", err)
		w.emit(events.Event{Kind: events.KindErrorOccurred, FaultDetail: err.Error()})
		return nil, err
	}
	w.emit(events.Event{Kind: events.KindBaselineMeasured, Baseline: &baseline})

	w.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	order := frequencyOrder(cfg.Frequencies, cfg.RandomizeOrder, w.rng)

	w.setState(Testing)
	var results []protocol.FrequencyResult
	for i, f := range order {
		w.mu.Lock()
		w.progress = 100 * float64(i) / float64(len(order))
		w.mu.Unlock()

		if w.isAborted() {
			w.setState(Aborted)
			w.emit(events.Event{Kind: events.KindAborted, AbortReason: "cooperative abort between frequencies"})
			return nil, nil
		}

		result, err := w.testFrequency(ctx, cfg, baseline, f)
		if err != nil {
			w.logger.Warn("frequency test failed, continuing", "frequency_hz", f, "error", err)
			continue
		}
		results = append(results, result)
		w.emit(events.Event{Kind: events.KindResultItem, FrequencyResult: &result})

		if w.isAborted() {
			w.setState(Aborted)
			w.emit(events.Event{Kind: events.KindAborted, AbortReason: "cooperative abort between frequencies"})
			return nil, nil
		}
	}

	w.setState(Analyzing)
	ranked := rank(results)
	topN := cfg.TopN
	if topN <= 0 || topN > len(ranked) {
		topN = len(ranked)
	}
	top := ranked[:topN]

	w.mu.Lock()
	w.progress = 100
	w.mu.Unlock()

	w.emit(events.Event{Kind: events.KindFinished, Results: top})
	w.setState(Finished)
	w.setState(Idle)
	return top, nil
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	w.emit(events.Event{Kind: events.KindStateChanged, State: s.String()})
}

func (w *Worker) emit(e events.Event) {
	if w.sink != nil {
		w.sink.Emit(e)
	}
}

// validate checks every candidate frequency against the fixed
// per-candidate bound (0 < hz <= 100000), applies the Nyquist
// advisory, which only warns, and checks the test amplitude (at zero
// offset) through the safety kernel.
func (w *Worker) validate(cfg protocol.AssessmentConfig) error {
	if len(cfg.Frequencies) == 0 {
		return errors.New("assessment: frequencies must not be empty")
	}
	limits := safety.DefaultLimits()
	if cfg.SafetyLimits != nil {
		limits = *cfg.SafetyLimits
	}

	var maxFreq float64
	for _, f := range cfg.Frequencies {
		if !(f > 0) || f > 100000 {
			return fmt.Errorf("assessment: frequency %v out of range (0, 100000]", f)
		}
		if f > maxFreq {
			maxFreq = f
		}
	}
	if cfg.SampleRateHz > 0 && cfg.SampleRateHz < 2*maxFreq {
		w.logger.Warn("sample rate below Nyquist for highest candidate frequency",
			"sample_rate_hz", cfg.SampleRateHz, "max_frequency_hz", maxFreq)
	}

	out := safety.AssertSafeOutput(cfg.TestAmpVpp, 0, limits)
	if !out.OK() {
		f := out.First()
		return fmt.Errorf("assessment: test_amp_vpp rejected: %s (%s)", f.Kind, f.Detail)
	}
	return nil
}

func (w *Worker) captureBaseline(ctx context.Context, cfg protocol.AssessmentConfig) (protocol.Baseline, error) {
	if err := w.io.StopOutput(); err != nil {
		return protocol.Baseline{}, err
	}
	w.sleep(settleAfterStopMs * time.Millisecond)

	if err := w.io.StartStream(cfg.SampleRateHz, cfg.VoltageRangeV); err != nil {
		return protocol.Baseline{}, err
	}
	w.sleep(settleAfterStreamMs * time.Millisecond)

	ch1, ch2, err := w.io.ReadStream(ctx, cfg.BaselineDurationS)
	if err != nil {
		_ = w.io.StopStream()
		return protocol.Baseline{}, err
	}
	if err := w.io.StopStream(); err != nil {
		return protocol.Baseline{}, err
	}

	vrmsPatient := metrics.Vrms(ch2)
	vrmsShunt := metrics.Vrms(ch1)
	b := protocol.Baseline{
		VrmsPatient:  vrmsPatient,
		VppPatient:   metrics.Vpp(ch2),
		VdcPatient:   metrics.Vdc(ch2),
		VrmsShunt:    vrmsShunt,
		ImpedanceOhm: metrics.ImpedanceOhm(vrmsPatient, vrmsShunt, cfg.RShuntOhm),
		Energy01_5Hz: metrics.BandEnergy(ch2, energyBandLoHz, energyBandHiHz, cfg.SampleRateHz),
		NoiseLevel:   metrics.ArtifactLevel(ch2),
		Timestamp:    time.Now(),
	}
	return b, nil
}

// testFrequency runs the eight-step per-frequency sequence described
// in the specification. On any hardware error it stops output and
// stream best-effort and returns the error; Start then logs the
// frequency as failed (no result emitted) and moves on, per the
// measurement-anomaly-is-not-fatal error taxonomy.
func (w *Worker) testFrequency(ctx context.Context, cfg protocol.AssessmentConfig, baseline protocol.Baseline, f float64) (result protocol.FrequencyResult, err error) {
	cleanup := func() {
		_ = w.io.StopOutput()
		_ = w.io.StopStream()
	}

	if err = w.io.ConfigureGenerator(protocol.Sine, cfg.TestAmpVpp, 0); err != nil {
		cleanup()
		return protocol.FrequencyResult{}, err
	}
	if err = w.io.SetFrequency(f); err != nil {
		cleanup()
		return protocol.FrequencyResult{}, err
	}
	if err = w.io.StartStream(cfg.SampleRateHz, cfg.VoltageRangeV); err != nil {
		cleanup()
		return protocol.FrequencyResult{}, err
	}
	w.sleep(settleBeforeTestMs * time.Millisecond)

	start := time.Now()
	if err = w.io.StartOutput(); err != nil {
		cleanup()
		return protocol.FrequencyResult{}, err
	}

	ch1, ch2, readErr := w.io.ReadStream(ctx, cfg.DwellS)
	testDuration := time.Since(start).Seconds()
	if readErr != nil {
		cleanup()
		return protocol.FrequencyResult{}, readErr
	}
	if err = w.io.StopOutput(); err != nil {
		cleanup()
		return protocol.FrequencyResult{}, err
	}
	if err = w.io.StopStream(); err != nil {
		return protocol.FrequencyResult{}, err
	}

	vrmsPatient := metrics.Vrms(ch2)
	vrmsShunt := metrics.Vrms(ch1)
	vppPatient := metrics.Vpp(ch2)
	impedance := metrics.ImpedanceOhm(vrmsPatient, vrmsShunt, cfg.RShuntOhm)
	energy := metrics.BandEnergy(ch2, energyBandLoHz, energyBandHiHz, cfg.SampleRateHz)
	artifact := metrics.ArtifactLevel(ch2)

	deltaZ := metrics.PercentDelta(impedance, baseline.ImpedanceOhm)
	deltaRMS := metrics.PercentDelta(vrmsPatient, baseline.VrmsPatient)
	deltaVpp := metrics.PercentDelta(vppPatient, baseline.VppPatient)
	deltaEnergy := metrics.PercentDelta(energy, baseline.Energy01_5Hz)

	score := metrics.CompositeScore(deltaZ, deltaRMS, deltaVpp, artifact)
	valid := metrics.IsValid(impedance, vrmsPatient, artifact)

	result = protocol.FrequencyResult{
		Frequency:         f,
		VrmsPatient:       vrmsPatient,
		VppPatient:        vppPatient,
		VdcPatient:        metrics.Vdc(ch2),
		VrmsShunt:         vrmsShunt,
		CurrentMA:         metrics.CurrentMA(vrmsShunt, cfg.RShuntOhm),
		ImpedanceOhm:      impedance,
		ImpedancePhaseDeg: metrics.PhaseDeg(ch1, ch2),
		DeltaZPercent:     deltaZ,
		DeltaRMSPercent:   deltaRMS,
		DeltaVppPercent:   deltaVpp,
		DeltaEnergy01_5Hz: deltaEnergy,
		Score:             score,
		ArtifactLevel:     artifact,
		IsValid:           valid,
		TestDurationS:     testDuration,
		Timestamp:         time.Now(),
	}
	return result, nil
}

// frequencyOrder returns the order frequencies are tested in: a
// uniformly random permutation when requested (seeded from a
// non-reproducible source at session start), or the input order
// otherwise. The caller's original slice is never mutated.
func frequencyOrder(frequencies []float64, randomize bool, rng *rand.Rand) []float64 {
	order := append([]float64(nil), frequencies...)
	if !randomize {
		return order
	}
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}

// rank sorts results by score descending, with invalid results always
// sorted after valid ones regardless of score — a true bottom-of-order
// placement rather than the magic-sentinel-value approach this is
// grounded on.
func rank(results []protocol.FrequencyResult) []protocol.FrequencyResult {
	out := append([]protocol.FrequencyResult(nil), results...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsValid != out[j].IsValid {
			return out[i].IsValid // valid sorts before invalid
		}
		return out[i].Score > out[j].Score
	})
	return out
}
