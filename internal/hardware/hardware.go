// Package hardware defines the abstract generator+scope contract the
// core depends on. The core never talks to a concrete device driver;
// a real driver, a loopback test harness, and a deterministic replay
// fixture are all equally acceptable implementations of Io.
package hardware

import (
	"context"
	"errors"
	"time"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/protocol"
)

// Sentinel causes for session-ending hardware faults.
var (
	ErrNotConnected = errors.New("hardware not connected")
	ErrHardwareLost = errors.New("hardware connection lost")
	ErrTimeout      = errors.New("read_stream deadline exceeded")
	ErrBusy         = errors.New("hardware already owned by an active session")
)

// Io is the capability bundle the core consumes. CH1 is always the
// shunt channel, CH2 is always the patient channel.
type Io interface {
	IsConnected() bool

	ConfigureGenerator(waveform protocol.Waveform, ampVpp, offsetV float64) error
	SetFrequency(hz float64) error

	// SetBurstByCycles is an optional capability; implementations that
	// cannot support burst mode return ErrUnsupported.
	SetBurstByCycles(n int) error
	// EnableExternalTriggerGated is an optional capability; see
	// SetBurstByCycles.
	EnableExternalTriggerGated(on bool) error

	StartOutput() error
	StopOutput() error

	StartStream(sampleRateHz, voltageRangeV float64) error
	StopStream() error

	// ReadStream blocks until `seconds` worth of samples are available
	// or an internal deadline of seconds+1.0s elapses, whichever comes
	// first. On deadline it returns ErrTimeout.
	ReadStream(ctx context.Context, seconds float64) (ch1, ch2 []float64, err error)
}

// ErrUnsupported is returned by an Io implementation for an optional
// capability it does not provide.
var ErrUnsupported = errors.New("capability not supported by this hardware")

// SoftRamp steps amp/offset from their current values to targets over
// at least 20 linear increments spread across rampMs milliseconds,
// writing each intermediate value via configure, and finally writes
// the exact target. The ramp is best-effort: if any intermediate
// write fails, it writes the final target directly and returns the
// last error seen. The error does not tell an intermediate failure
// from a failed final write; protocolrunner treats either one as a
// hardware fault and aborts the session.
func SoftRamp(io Io, waveform protocol.Waveform, fromAmp, fromOffset, toAmp, toOffset float64, rampMs int, sleep func(time.Duration)) error {
	const minSteps = 20
	if rampMs <= 0 {
		return io.ConfigureGenerator(waveform, toAmp, toOffset)
	}
	stepDuration := time.Duration(rampMs) * time.Millisecond / minSteps
	var lastErr error
	for i := 1; i <= minSteps; i++ {
		frac := float64(i) / float64(minSteps)
		amp := fromAmp + (toAmp-fromAmp)*frac
		offset := fromOffset + (toOffset-fromOffset)*frac
		if err := io.ConfigureGenerator(waveform, amp, offset); err != nil {
			lastErr = err
			break
		}
		if sleep != nil && i < minSteps {
			sleep(stepDuration)
		}
	}
	if err := io.ConfigureGenerator(waveform, toAmp, toOffset); err != nil {
		return err
	}
	return lastErr
}
