package hardware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/protocol"
)

func TestReplay_IsConnectedByDefault(t *testing.T) {
	r := NewReplay()
	if !r.IsConnected() {
		t.Fatal("a fresh Replay must report connected")
	}
}

func TestReplay_DisconnectFailsSubsequentCalls(t *testing.T) {
	r := NewReplay()
	r.Disconnect()
	if r.IsConnected() {
		t.Fatal("IsConnected must report false after Disconnect")
	}
	if err := r.StartOutput(); !errors.Is(err, ErrHardwareLost) {
		t.Fatalf("StartOutput after disconnect = %v, want ErrHardwareLost", err)
	}
}

func TestReplay_ReadStreamReturnsRequestedSampleCount(t *testing.T) {
	r := NewReplay()
	if err := r.ConfigureGenerator(protocol.Sine, 1.0, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.SetFrequency(100); err != nil {
		t.Fatal(err)
	}
	if err := r.StartStream(1000, 5); err != nil {
		t.Fatal(err)
	}
	if err := r.StartOutput(); err != nil {
		t.Fatal(err)
	}

	ch1, ch2, err := r.ReadStream(context.Background(), 0.1)
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	if len(ch1) != 100 || len(ch2) != 100 {
		t.Fatalf("got %d/%d samples, want 100/100 for 0.1s at 1000Hz", len(ch1), len(ch2))
	}
}

func TestReplay_ReadStreamRespectsCancelledContext(t *testing.T) {
	r := NewReplay()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := r.ReadStream(ctx, 0.1); !errors.Is(err, ErrTimeout) {
		t.Fatalf("ReadStream with cancelled ctx = %v, want ErrTimeout", err)
	}
}

func TestReplay_RecordsCallsInOrder(t *testing.T) {
	r := NewReplay()
	_ = r.ConfigureGenerator(protocol.Sine, 1.0, 0)
	_ = r.SetFrequency(100)
	_ = r.StartOutput()
	_ = r.StopOutput()

	want := []string{"configure_generator", "set_frequency", "start_output", "stop_output"}
	if len(r.Calls) != len(want) {
		t.Fatalf("Calls = %v, want %v", r.Calls, want)
	}
	for i, c := range want {
		if r.Calls[i] != c {
			t.Errorf("Calls[%d] = %q, want %q", i, r.Calls[i], c)
		}
	}
}

func TestSoftRamp_WritesAtLeast20IntermediatesThenExactTarget(t *testing.T) {
	r := NewReplay()
	var sleeps int
	noSleep := func(time.Duration) { sleeps++ }

	if err := SoftRamp(r, protocol.Sine, 0, 0, 1.0, 0.1, 100, noSleep); err != nil {
		t.Fatalf("SoftRamp: %v", err)
	}

	configureCalls := 0
	for _, c := range r.Calls {
		if c == "configure_generator" {
			configureCalls++
		}
	}
	if configureCalls < 21 { // 20 intermediates + 1 final write
		t.Errorf("got %d configure_generator calls, want at least 21", configureCalls)
	}
	if r.currentAmp != 1.0 {
		t.Errorf("final amp = %v, want exactly 1.0", r.currentAmp)
	}
	if sleeps < 19 {
		t.Errorf("got %d sleeps, want at least 19 between 20 intermediate steps", sleeps)
	}
}

func TestSoftRamp_ZeroRampWritesTargetDirectly(t *testing.T) {
	r := NewReplay()
	if err := SoftRamp(r, protocol.Sine, 0, 0, 0.5, 0, 0, func(time.Duration) {}); err != nil {
		t.Fatalf("SoftRamp: %v", err)
	}
	if len(r.Calls) != 1 || r.Calls[0] != "configure_generator" {
		t.Fatalf("zero ramp must issue exactly one configure_generator call, got %v", r.Calls)
	}
}
