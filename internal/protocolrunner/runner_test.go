package protocolrunner

import (
	"testing"
	"time"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/events"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/hardware"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/protocol"
)

// fakeClock lets tests run a multi-second protocol in milliseconds:
// sleep advances the fake time by d without waiting, and now() advances
// by a fixed step each call, simulating wall-clock progress.
type fakeClock struct {
	t     time.Time
	step  time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func (c *fakeClock) sleep(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestRunner(io hardware.Io, sink events.Sink) (*Runner, *fakeClock) {
	r := New(io, sink, nil)
	clock := &fakeClock{t: time.Unix(0, 0), step: 20 * time.Millisecond}
	r.now = clock.now
	r.sleep = clock.sleep
	r.tickInterval = time.Microsecond // fires essentially every loop iteration under the fake clock
	r.interStepGap = time.Millisecond
	return r, clock
}

func twoStepProtocol() protocol.Protocol {
	return protocol.Protocol{
		Name: "happy-path",
		Steps: []protocol.Step{
			{Hz: 440, DwellS: 2, AmpVpp: 1.0, Waveform: protocol.Sine, Mode: protocol.Continuous, RampMs: 1},
			{Hz: 528, DwellS: 3, AmpVpp: 1.2, Waveform: protocol.Sine, Mode: protocol.Continuous, RampMs: 1},
		},
	}
}

func waitForState(t *testing.T, r *Runner, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("runner did not reach state %s within %s (last state %s)", want, timeout, r.State())
}

func TestStart_HappyPathEventOrderAndDuration(t *testing.T) {
	io := hardware.NewReplay()
	sink := &events.CollectSink{}
	r, _ := newTestRunner(io, sink)

	p := twoStepProtocol()
	if got := p.TotalDurationS(); got != 5.0 {
		t.Fatalf("TotalDurationS() = %v, want 5.0", got)
	}
	if got := p.MaxAmpVpp(); got != 1.2 {
		t.Fatalf("MaxAmpVpp() = %v, want 1.2", got)
	}

	if err := r.Start(p); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitForState(t, r, Idle, 5*time.Second)

	kinds := sink.Kinds()
	if len(kinds) == 0 || kinds[0] != events.KindStarted {
		t.Fatalf("first event = %v, want Started", kinds)
	}
	if kinds[len(kinds)-1] != events.KindFinished {
		t.Fatalf("last event = %v, want Finished", kinds)
	}

	idxStepStarted0, idxStepFinished0, idxStepStarted1 := -1, -1, -1
	for i, e := range sink.Events {
		switch {
		case e.Kind == events.KindStepStarted && e.StepIndex == 0 && idxStepStarted0 == -1:
			idxStepStarted0 = i
		case e.Kind == events.KindStepFinished && e.StepIndex == 0 && idxStepFinished0 == -1:
			idxStepFinished0 = i
		case e.Kind == events.KindStepStarted && e.StepIndex == 1 && idxStepStarted1 == -1:
			idxStepStarted1 = i
		}
	}
	if !(idxStepStarted0 < idxStepFinished0 && idxStepFinished0 < idxStepStarted1) {
		t.Fatalf("step ordering violated: started0=%d finished0=%d started1=%d", idxStepStarted0, idxStepFinished0, idxStepStarted1)
	}
}

func TestStart_RejectsUnsafeAmplitude(t *testing.T) {
	io := hardware.NewReplay()
	sink := &events.CollectSink{}
	r, _ := newTestRunner(io, sink)

	p := protocol.NewSimple("too-hot", 100, 1, 5.0, protocol.Sine)
	err := r.Start(p)
	if err == nil {
		t.Fatal("Start must reject amplitude above max_amp_vpp")
	}
	if r.State() != Error {
		t.Fatalf("state = %s, want Error", r.State())
	}
	kinds := sink.Kinds()
	if len(kinds) != 1 || kinds[0] != events.KindErrorOccurred {
		t.Fatalf("events = %v, want exactly [ErrorOccurred]", kinds)
	}
}

func TestStart_BusyWhenNotIdle(t *testing.T) {
	io := hardware.NewReplay()
	sink := &events.CollectSink{}
	r, _ := newTestRunner(io, sink)

	if err := r.Start(twoStepProtocol()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := r.Start(twoStepProtocol()); err != ErrBusy {
		t.Fatalf("second Start error = %v, want ErrBusy", err)
	}
	r.Abort("cleanup")
}

func TestAbort_MidStepStopsOutputAndSkipsRemainingSteps(t *testing.T) {
	io := hardware.NewReplay()
	sink := &events.CollectSink{}
	r, _ := newTestRunner(io, sink)
	// Each tick advances the fake clock by about 60ms, so step 0 (2s)
	// takes about 34 ticks: at 10ms per tick it stays running for
	// roughly 0.3s of real time, well past the abort below.
	r.tickInterval = 10 * time.Millisecond

	p := twoStepProtocol()
	if err := r.Start(p); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Give the goroutine a moment to enter step 0's tick loop, then abort.
	time.Sleep(5 * time.Millisecond)
	r.Abort("user")

	waitForState(t, r, Idle, 5*time.Second)

	kinds := sink.Kinds()
	if kinds[len(kinds)-1] != events.KindAborted {
		t.Fatalf("last event = %v, want Aborted", kinds)
	}
	for _, e := range sink.Events {
		if e.Kind == events.KindStepStarted && e.StepIndex == 1 {
			t.Fatal("StepStarted(1) must never be emitted after an abort during step 0")
		}
	}

	foundStop := false
	for _, c := range io.Calls {
		if c == "stop_output" {
			foundStop = true
		}
	}
	if !foundStop {
		t.Fatal("hardware must receive at least one stop_output call on abort")
	}
}
