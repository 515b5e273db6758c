package hardware

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/protocol"
)

// Replay is a deterministic, fully in-memory stand-in for a real
// device, for tests and demos. It never touches real I/O and refuses
// to be mistaken for one: a caller must construct it explicitly (see
// SPEC_FULL.md §12 — the core never simulates hardware implicitly).
//
// Synthesis mirrors the Python MockHS3Service this is grounded on: CH1
// (shunt) carries a small current-proportional sine plus noise, CH2
// (patient) carries that same signal scaled by a simulated impedance
// with a slow 0.5Hz modulation, plus its own noise floor.
type Replay struct {
	mu sync.Mutex

	connected     bool
	generating    bool
	streaming     bool
	currentHz     float64
	currentAmp    float64
	sampleRateHz  float64
	simulatedZOhm float64
	rng           *rand.Rand

	// Calls records every method invocation in order, for test
	// assertions (e.g. "at least one StopOutput call after abort").
	Calls []string
}

// NewReplay returns a connected replay fixture with a 1kΩ simulated
// patient impedance, matching the teacher's mock default.
func NewReplay() *Replay {
	return &Replay{
		connected:     true,
		simulatedZOhm: 1000,
		rng:           rand.New(rand.NewSource(1)),
	}
}

// SetSimulatedImpedance overrides the default 1kΩ simulated impedance,
// used by assessment-ranking tests that need a known delta across
// frequencies.
func (r *Replay) SetSimulatedImpedance(ohm float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.simulatedZOhm = ohm
}

// Disconnect makes IsConnected report false and every subsequent call
// fail with ErrHardwareLost, simulating a mid-session disconnect.
func (r *Replay) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
}

func (r *Replay) record(name string) {
	r.Calls = append(r.Calls, name)
}

func (r *Replay) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *Replay) ConfigureGenerator(waveform protocol.Waveform, ampVpp, offsetV float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("configure_generator")
	if !r.connected {
		return ErrHardwareLost
	}
	r.currentAmp = ampVpp
	return nil
}

func (r *Replay) SetFrequency(hz float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("set_frequency")
	if !r.connected {
		return ErrHardwareLost
	}
	r.currentHz = hz
	return nil
}

func (r *Replay) SetBurstByCycles(n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("set_burst_by_cycles")
	if !r.connected {
		return ErrHardwareLost
	}
	return nil
}

func (r *Replay) EnableExternalTriggerGated(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("enable_external_trigger_gated")
	if !r.connected {
		return ErrHardwareLost
	}
	return nil
}

func (r *Replay) StartOutput() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("start_output")
	if !r.connected {
		return ErrHardwareLost
	}
	r.generating = true
	return nil
}

func (r *Replay) StopOutput() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("stop_output")
	r.generating = false
	if !r.connected {
		return ErrHardwareLost
	}
	return nil
}

func (r *Replay) StartStream(sampleRateHz, voltageRangeV float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("start_stream")
	if !r.connected {
		return ErrHardwareLost
	}
	r.streaming = true
	r.sampleRateHz = sampleRateHz
	return nil
}

func (r *Replay) StopStream() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("stop_stream")
	r.streaming = false
	if !r.connected {
		return ErrHardwareLost
	}
	return nil
}

func (r *Replay) ReadStream(ctx context.Context, seconds float64) ([]float64, []float64, error) {
	r.mu.Lock()
	generating := r.generating
	hz := r.currentHz
	sampleRateHz := r.sampleRateHz
	zSim := r.simulatedZOhm
	r.record("read_stream")
	connected := r.connected
	r.mu.Unlock()

	if !connected {
		return nil, nil, ErrHardwareLost
	}
	if sampleRateHz <= 0 {
		sampleRateHz = 1000
	}

	select {
	case <-ctx.Done():
		return nil, nil, ErrTimeout
	default:
	}

	n := int(seconds * sampleRateHz)
	if n < 1 {
		n = 1
	}
	ch1 := make([]float64, n)
	ch2 := make([]float64, n)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRateHz
		if generating && hz > 0 {
			ch1Signal := 0.001 * math.Sin(2*math.Pi*hz*t)
			ch1Noise := 0.0001 * r.rng.NormFloat64()
			ch1[i] = ch1Signal + ch1Noise

			ch2Signal := ch1Signal * zSim * (1 + 0.1*math.Sin(2*math.Pi*0.5*t))
			ch2Noise := 0.001 * r.rng.NormFloat64()
			ch2[i] = ch2Signal + ch2Noise
		} else {
			ch1[i] = 0.0001 * r.rng.NormFloat64()
			ch2[i] = 0.001 * r.rng.NormFloat64()
		}
	}
	return ch1, ch2, nil
}
