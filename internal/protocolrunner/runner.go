// Package protocolrunner drives a Protocol step by step against a
// hardware.Io, emitting lifecycle and live-metrics events through an
// events.Sink. It replaces the worker-as-thread-object pattern this
// core is descended from with an explicit, queryable state machine:
// state lives in a field, not in the control flow of a run loop a
// caller cannot observe from outside.
package protocolrunner

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/events"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/hardware"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/protocol"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/safety"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/telemetry"
)

// State is one node of the ProtocolRunner state machine.
type State int

const (
	Idle State = iota
	Preparing
	Running
	Paused
	Finished
	Aborting
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	case Aborting:
		return "aborting"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Errors a Start/Pause/Resume call can return. These are session
// control-flow errors, distinct from the safety.Result a failed
// validation produces.
var (
	ErrBusy               = errors.New("protocolrunner: runner is not idle")
	ErrHardwareUnavailable = errors.New("protocolrunner: hardware is not connected")
	ErrNotRunning         = errors.New("protocolrunner: not running")
	ErrNotPaused          = errors.New("protocolrunner: not paused")
)

const (
	defaultTickInterval = 100 * time.Millisecond
	defaultInterStepGap = 100 * time.Millisecond
)

// Runner is the ProtocolRunner facade: new(hardware, event_sink),
// start(protocol), pause(), resume(), abort(reason), state(),
// current_metrics().
type Runner struct {
	io     hardware.Io
	sink   events.Sink
	logger *telemetry.Logger

	// Injectable for deterministic tests; default to the real clock.
	sleep        func(time.Duration)
	now          func() time.Time
	tickInterval time.Duration
	interStepGap time.Duration

	mu                 sync.Mutex
	state              State
	proto              protocol.Protocol
	stepIndex          int
	startTime          time.Time
	stepStartTime      time.Time
	stepElapsedAtPause time.Duration
	lastMetrics        protocol.LiveMetrics

	abortCh  chan string
	pauseCh  chan struct{}
	resumeCh chan struct{}
}

// New returns an Idle Runner bound to io and sink.
func New(io hardware.Io, sink events.Sink, logger *telemetry.Logger) *Runner {
	if logger == nil {
		logger = telemetry.NewNop()
	}
	return &Runner{
		io:           io,
		sink:         sink,
		logger:       logger,
		sleep:        time.Sleep,
		now:          time.Now,
		tickInterval: defaultTickInterval,
		interStepGap: defaultInterStepGap,
		state:        Idle,
	}
}

// State returns the runner's current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// CurrentMetrics returns the most recently computed LiveMetrics.
func (r *Runner) CurrentMetrics() protocol.LiveMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastMetrics
}

// Start validates p against its own SafetyLimits (or defaults) and,
// on success, begins running it on a dedicated goroutine. It returns
// ErrBusy if the runner is not Idle, ErrHardwareUnavailable if the
// hardware is not connected, or a *ValidationError wrapping the
// aggregated safety.Result if any step is unsafe.
func (r *Runner) Start(p protocol.Protocol) error {
	r.mu.Lock()
	if r.state != Idle {
		r.mu.Unlock()
		return ErrBusy
	}
	if !r.io.IsConnected() {
		r.mu.Unlock()
		return ErrHardwareUnavailable
	}
	r.state = Preparing
	r.mu.Unlock()

	limits := safety.DefaultLimits()
	if p.SafetyLimits != nil {
		limits = *p.SafetyLimits
	}

	result := validateProtocol(p, limits)
	if !result.OK() {
		r.mu.Lock()
		r.state = Error
		r.mu.Unlock()
		fault := result.First()
		r.emit(events.Event{Kind: events.KindErrorOccurred, FaultKind: string(fault.Kind), FaultDetail: fault.Detail})
		r.logger.Warn("protocol rejected by safety kernel", "fault_kind", fault.Kind, "fault_detail", fault.Detail)
		return &ValidationError{Result: result}
	}

	r.mu.Lock()
	r.proto = p
	r.stepIndex = 0
	r.startTime = r.now()
	r.state = Running
	r.abortCh = make(chan string, 1)
	r.pauseCh = make(chan struct{}, 1)
	r.resumeCh = make(chan struct{}, 1)
	r.mu.Unlock()

	r.emit(events.Event{Kind: events.KindStarted, Protocol: &p})
	go r.run()
	return nil
}

// ValidationError wraps the aggregated safety.Result of a rejected Start.
type ValidationError struct {
	Result safety.Result
}

func (e *ValidationError) Error() string {
	f := e.Result.First()
	return fmt.Sprintf("protocolrunner: safety validation failed: %s (%s)", f.Kind, f.Detail)
}

// validateProtocol aggregates every step's safety faults plus the two
// per-protocol checks the specification adds on top of the kernel:
// hz <= max_frequency_hz (already covered by ValidateFrequency) and
// dwell_s <= max_single_frequency_duration_min * 60.
func validateProtocol(p protocol.Protocol, limits safety.Limits) safety.Result {
	var faults []safety.Fault
	maxDwellS := limits.MaxSingleFrequencyDurationMin * 60
	for _, step := range p.Steps {
		out := safety.AssertSafeOutput(step.AmpVpp, step.OffsetV, limits)
		faults = append(faults, out.Faults...)

		freq := safety.ValidateFrequency(step.Hz, limits)
		faults = append(faults, freq.Faults...)

		if step.DwellS > maxDwellS {
			faults = append(faults, safety.Fault{
				Kind:   safety.DurationExceedsMax,
				Detail: fmt.Sprintf("%.3f > %.3f", step.DwellS, maxDwellS),
			})
		}
	}
	return safety.Result{Faults: faults}
}

// Pause stops output and freezes progress within the current step.
// Only valid from Running.
func (r *Runner) Pause() error {
	r.mu.Lock()
	if r.state != Running {
		r.mu.Unlock()
		return ErrNotRunning
	}
	ch := r.pauseCh
	r.mu.Unlock()
	select {
	case ch <- struct{}{}:
	default:
	}
	return nil
}

// Resume reconfigures hardware for the current step and continues
// from the frozen elapsed time. Only valid from Paused.
func (r *Runner) Resume() error {
	r.mu.Lock()
	if r.state != Paused {
		r.mu.Unlock()
		return ErrNotPaused
	}
	ch := r.resumeCh
	r.mu.Unlock()
	select {
	case ch <- struct{}{}:
	default:
	}
	return nil
}

// Abort stops the session from any non-terminal state.
func (r *Runner) Abort(reason string) {
	r.mu.Lock()
	if r.state == Idle || r.state == Finished || r.state == Error {
		r.mu.Unlock()
		return
	}
	ch := r.abortCh
	r.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- reason:
	default:
	}
}

func (r *Runner) emit(e events.Event) {
	if r.sink != nil {
		r.sink.Emit(e)
	}
}

// run is the per-session goroutine. It owns stepping through every
// Step, live-metrics ticking, pause/resume, and abort handling.
func (r *Runner) run() {
	r.mu.Lock()
	proto := r.proto
	r.mu.Unlock()

	prevAmp, prevOffset := 0.0, 0.0

	for i, step := range proto.Steps {
		r.mu.Lock()
		r.stepIndex = i
		r.stepStartTime = r.now()
		r.mu.Unlock()

		r.emit(events.Event{Kind: events.KindStepStarted, StepIndex: i, Step: &step})

		if err := hardware.SoftRamp(r.io, step.Waveform, prevAmp, prevOffset, step.AmpVpp, step.OffsetV, step.EffectiveRampMs(), r.sleep); err != nil {
			r.abortOnHardwareFault(i, err)
			return
		}
		if err := r.io.SetFrequency(step.Hz); err != nil {
			r.abortOnHardwareFault(i, err)
			return
		}
		if err := r.applyMode(step); err != nil {
			r.abortOnHardwareFault(i, err)
			return
		}
		if err := r.io.StartOutput(); err != nil {
			r.abortOnHardwareFault(i, err)
			return
		}

		if aborted := r.runStepTicks(i, step); aborted {
			return
		}

		_ = r.io.StopOutput()
		r.emit(events.Event{Kind: events.KindStepFinished, StepIndex: i})
		prevAmp, prevOffset = step.AmpVpp, step.OffsetV

		if i < len(proto.Steps)-1 {
			r.sleep(r.interStepGap)
		}
	}

	_ = r.io.StopOutput()
	r.mu.Lock()
	r.state = Finished
	r.mu.Unlock()
	r.emit(events.Event{Kind: events.KindFinished})
	r.mu.Lock()
	r.state = Idle
	r.mu.Unlock()
}

func (r *Runner) applyMode(step protocol.Step) error {
	switch step.Mode {
	case protocol.Burst:
		if err := r.io.SetBurstByCycles(step.EffectiveBurstCycles()); err != nil && !errors.Is(err, hardware.ErrUnsupported) {
			return err
		}
	case protocol.Gated:
		if err := r.io.EnableExternalTriggerGated(true); err != nil && !errors.Is(err, hardware.ErrUnsupported) {
			return err
		}
	default: // Continuous
		if err := r.io.EnableExternalTriggerGated(false); err != nil && !errors.Is(err, hardware.ErrUnsupported) {
			return err
		}
	}
	return nil
}

// runStepTicks drives the 100ms live-metrics loop for one step until
// its dwell time elapses, handling pause/resume/abort. It returns
// true if the session was aborted (the caller must not continue).
func (r *Runner) runStepTicks(index int, step protocol.Step) (aborted bool) {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	r.mu.Lock()
	deadline := r.stepStartTime.Add(time.Duration(step.DwellS * float64(time.Second)))
	abortCh, pauseCh := r.abortCh, r.pauseCh
	total := len(r.proto.Steps)
	r.mu.Unlock()

	for {
		select {
		case reason := <-abortCh:
			_ = r.io.StopOutput()
			r.mu.Lock()
			r.state = Idle
			r.mu.Unlock()
			r.emit(events.Event{Kind: events.KindAborted, AbortReason: reason})
			return true

		case <-pauseCh:
			elapsed := r.now().Sub(r.stepStartTime)
			_ = r.io.StopOutput()
			r.mu.Lock()
			r.stepElapsedAtPause = elapsed
			r.state = Paused
			r.mu.Unlock()
			r.emit(events.Event{Kind: events.KindStateChanged, State: Paused.String()})

			select {
			case reason := <-abortCh:
				r.mu.Lock()
				r.state = Idle
				r.mu.Unlock()
				r.emit(events.Event{Kind: events.KindAborted, AbortReason: reason})
				return true
			case <-r.resumeCh:
				if err := hardware.SoftRamp(r.io, step.Waveform, 0, 0, step.AmpVpp, step.OffsetV, step.EffectiveRampMs(), r.sleep); err != nil {
					r.abortOnHardwareFault(index, err)
					return true
				}
				if err := r.io.StartOutput(); err != nil {
					r.abortOnHardwareFault(index, err)
					return true
				}
				r.mu.Lock()
				r.stepStartTime = r.now().Add(-r.stepElapsedAtPause)
				deadline = r.stepStartTime.Add(time.Duration(step.DwellS * float64(time.Second)))
				r.state = Running
				r.mu.Unlock()
				r.emit(events.Event{Kind: events.KindStateChanged, State: Running.String()})
			}

		case <-ticker.C:
			r.emitLiveMetrics(index, total, step)
			if !r.now().Before(deadline) {
				return false
			}
		}
	}
}

func (r *Runner) emitLiveMetrics(index, total int, step protocol.Step) {
	r.mu.Lock()
	elapsedStep := r.now().Sub(r.stepStartTime).Seconds()
	stepProgress := 0.0
	if step.DwellS > 0 {
		stepProgress = elapsedStep / step.DwellS
	}
	if stepProgress > 1 {
		stepProgress = 1
	}
	if stepProgress < 0 {
		stepProgress = 0
	}
	overallProgress := (float64(index) + stepProgress) / float64(total)
	elapsedTotal := r.now().Sub(r.startTime).Seconds()
	var remaining float64
	if overallProgress > 0 {
		remaining = elapsedTotal/overallProgress - elapsedTotal
	}
	if remaining < 0 {
		remaining = 0
	}
	m := protocol.LiveMetrics{
		StepIndex:         index,
		TotalSteps:        total,
		StepProgress:      stepProgress,
		OverallProgress:   overallProgress,
		CurrentFrequency:  step.Hz,
		CurrentAmplitude:  step.AmpVpp,
		ElapsedS:          elapsedTotal,
		RemainingS:        remaining,
		StepStartTime:     r.stepStartTime,
		ProtocolStartTime: r.startTime,
	}
	r.lastMetrics = m
	r.mu.Unlock()
	r.emit(events.Event{Kind: events.KindLiveMetrics, LiveMetrics: &m})
}

func (r *Runner) abortOnHardwareFault(index int, cause error) {
	_ = r.io.StopOutput()
	r.mu.Lock()
	r.state = Error
	r.mu.Unlock()
	r.logger.Error("hardware fault aborted session", "step_index", index, "error", cause)
	r.emit(events.Event{Kind: events.KindErrorOccurred, StepIndex: index, FaultKind: "hardware_error", FaultDetail: cause.Error()})
}
