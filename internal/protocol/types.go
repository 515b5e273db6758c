// Package protocol holds the shared, mostly-inert data model the rest
// of the core exchanges: the stimulation plan a ProtocolRunner drives,
// the sweep configuration an AssessmentWorker drives, and the
// measurement types both produce.
package protocol

import (
	"math"
	"time"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/safety"
)

// Waveform selects the generator's output shape.
type Waveform int

const (
	Sine Waveform = iota
	Square
	Triangle
	Arbitrary
)

func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Square:
		return "square"
	case Triangle:
		return "triangle"
	case Arbitrary:
		return "arbitrary"
	default:
		return "unknown"
	}
}

// Mode selects how the generator gates its output during a step.
type Mode int

const (
	Continuous Mode = iota
	Burst
	Gated
)

func (m Mode) String() string {
	switch m {
	case Continuous:
		return "continuous"
	case Burst:
		return "burst"
	case Gated:
		return "gated"
	default:
		return "unknown"
	}
}

// Step is one entry in a Protocol.
type Step struct {
	Hz          float64
	DwellS      float64
	AmpVpp      float64
	OffsetV     float64
	Waveform    Waveform
	Mode        Mode
	BurstCycles int // 0 means "derive automatically"
	RampMs      int
}

// EffectiveBurstCycles returns the configured burst count, or
// max(1, round(hz*dwell_s)) when the step does not set one explicitly.
func (s Step) EffectiveBurstCycles() int {
	if s.BurstCycles > 0 {
		return s.BurstCycles
	}
	n := int(math.Round(s.Hz * s.DwellS))
	if n < 1 {
		n = 1
	}
	return n
}

// EffectiveRampMs returns the configured ramp duration, defaulting to
// 100ms when unset.
func (s Step) EffectiveRampMs() int {
	if s.RampMs > 0 {
		return s.RampMs
	}
	return 100
}

// Protocol is a non-empty ordered sequence of Steps plus metadata.
type Protocol struct {
	Name         string
	Description  string
	Steps        []Step
	SafetyLimits *safety.Limits // optional override; nil means caller-supplied defaults
}

// TotalDurationS returns the sum of every step's dwell time.
func (p Protocol) TotalDurationS() float64 {
	var total float64
	for _, s := range p.Steps {
		total += s.DwellS
	}
	return total
}

// FrequencyRange returns (min hz, max hz) across all steps.
func (p Protocol) FrequencyRange() (float64, float64) {
	if len(p.Steps) == 0 {
		return 0, 0
	}
	lo, hi := p.Steps[0].Hz, p.Steps[0].Hz
	for _, s := range p.Steps[1:] {
		if s.Hz < lo {
			lo = s.Hz
		}
		if s.Hz > hi {
			hi = s.Hz
		}
	}
	return lo, hi
}

// MaxAmpVpp returns the largest amplitude across all steps.
func (p Protocol) MaxAmpVpp() float64 {
	var max float64
	for _, s := range p.Steps {
		if s.AmpVpp > max {
			max = s.AmpVpp
		}
	}
	return max
}

// NewSimple builds a single-step Protocol at one frequency.
func NewSimple(name string, hz, dwellS, ampVpp float64, waveform Waveform) Protocol {
	return Protocol{
		Name: name,
		Steps: []Step{
			{Hz: hz, DwellS: dwellS, AmpVpp: ampVpp, Waveform: waveform, Mode: Continuous, RampMs: 100},
		},
	}
}

// NewSweep builds an evenly-spaced multi-step Protocol sweeping from
// startHz to endHz over the given number of steps.
func NewSweep(name string, startHz, endHz float64, steps int, dwellS, ampVpp float64) Protocol {
	if steps < 1 {
		steps = 1
	}
	p := Protocol{Name: name, Steps: make([]Step, 0, steps)}
	if steps == 1 {
		p.Steps = append(p.Steps, Step{Hz: startHz, DwellS: dwellS, AmpVpp: ampVpp, Waveform: Sine, Mode: Continuous, RampMs: 100})
		return p
	}
	step := (endHz - startHz) / float64(steps-1)
	for i := 0; i < steps; i++ {
		p.Steps = append(p.Steps, Step{
			Hz:       startHz + step*float64(i),
			DwellS:   dwellS,
			AmpVpp:   ampVpp,
			Waveform: Sine,
			Mode:     Continuous,
			RampMs:   100,
		})
	}
	return p
}

// AssessmentConfig configures a baseline-then-sweep assessment.
type AssessmentConfig struct {
	Frequencies       []float64
	DwellS            float64
	TestAmpVpp        float64
	RShuntOhm         float64
	TopN              int
	BaselineDurationS float64
	SampleRateHz      float64
	VoltageRangeV     float64
	RandomizeOrder    bool
	SafetyLimits      *safety.Limits
}

// Baseline is the channel statistics captured once per assessment with
// the generator off.
type Baseline struct {
	VrmsPatient  float64
	VppPatient   float64
	VdcPatient   float64
	VrmsShunt    float64
	ImpedanceOhm float64
	Energy01_5Hz float64
	NoiseLevel   float64
	Timestamp    time.Time
}

// FrequencyResult is the measurement produced for one candidate
// frequency during an assessment sweep.
type FrequencyResult struct {
	Frequency float64

	VrmsPatient float64
	VppPatient  float64
	VdcPatient  float64
	VrmsShunt   float64
	CurrentMA   float64

	ImpedanceOhm      float64
	ImpedancePhaseDeg float64

	DeltaZPercent     float64
	DeltaRMSPercent   float64
	DeltaVppPercent   float64
	DeltaEnergy01_5Hz float64

	Score         float64
	ArtifactLevel float64
	IsValid       bool

	TestDurationS float64
	Timestamp     time.Time
}

// LiveMetrics is the periodic progress telemetry a ProtocolRunner
// emits while a session runs.
type LiveMetrics struct {
	StepIndex         int
	TotalSteps        int
	StepProgress      float64
	OverallProgress   float64
	CurrentFrequency  float64
	CurrentAmplitude  float64
	ElapsedS          float64
	RemainingS        float64
	StepStartTime     time.Time
	ProtocolStartTime time.Time
}
