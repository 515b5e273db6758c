package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/protocol"
)

// protocolFile is the YAML-facing document an operator authors a
// Protocol as; it is translated into the core's protocol.Protocol
// once parsed, keeping internal/protocol itself free of a YAML
// dependency.
type protocolFile struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Steps       []protocolStepDoc `yaml:"steps"`
}

type protocolStepDoc struct {
	Hz          float64 `yaml:"hz"`
	DwellS      float64 `yaml:"dwell_s"`
	AmpVpp      float64 `yaml:"amp_vpp"`
	OffsetV     float64 `yaml:"offset_v"`
	Waveform    string  `yaml:"waveform"`
	Mode        string  `yaml:"mode"`
	BurstCycles int     `yaml:"burst_cycles"`
	RampMs      int     `yaml:"ramp_ms"`
}

func loadProtocolFile(path string) (protocol.Protocol, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return protocol.Protocol{}, fmt.Errorf("read %s: %w", path, err)
	}
	var doc protocolFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return protocol.Protocol{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(doc.Steps) == 0 {
		return protocol.Protocol{}, fmt.Errorf("%s: protocol must have at least one step", path)
	}

	steps := make([]protocol.Step, 0, len(doc.Steps))
	for i, s := range doc.Steps {
		waveform, err := parseWaveform(s.Waveform)
		if err != nil {
			return protocol.Protocol{}, fmt.Errorf("%s: step %d: %w", path, i, err)
		}
		mode, err := parseMode(s.Mode)
		if err != nil {
			return protocol.Protocol{}, fmt.Errorf("%s: step %d: %w", path, i, err)
		}
		steps = append(steps, protocol.Step{
			Hz:          s.Hz,
			DwellS:      s.DwellS,
			AmpVpp:      s.AmpVpp,
			OffsetV:     s.OffsetV,
			Waveform:    waveform,
			Mode:        mode,
			BurstCycles: s.BurstCycles,
			RampMs:      s.RampMs,
		})
	}

	return protocol.Protocol{
		Name:        doc.Name,
		Description: doc.Description,
		Steps:       steps,
	}, nil
}

func parseWaveform(s string) (protocol.Waveform, error) {
	switch s {
	case "", "sine":
		return protocol.Sine, nil
	case "square":
		return protocol.Square, nil
	case "triangle":
		return protocol.Triangle, nil
	case "arbitrary":
		return protocol.Arbitrary, nil
	default:
		return 0, fmt.Errorf("unknown waveform %q", s)
	}
}

func parseMode(s string) (protocol.Mode, error) {
	switch s {
	case "", "continuous":
		return protocol.Continuous, nil
	case "burst":
		return protocol.Burst, nil
	case "gated":
		return protocol.Gated, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}
