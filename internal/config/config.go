// Package config loads the controller's YAML configuration: safety
// limits plus session defaults, with environment-variable expansion
// before parsing, mirroring the teacher's config layer.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/safety"
)

// SessionDefaults holds the operator-facing defaults a fresh protocol
// or assessment form is pre-populated with; none of these are
// safety-relevant on their own, they are only starting points a
// human still has to confirm.
type SessionDefaults struct {
	DefaultWaveform      string  `yaml:"default_waveform"`
	DefaultDwellS        float64 `yaml:"default_dwell_s"`
	DefaultRampMs        int     `yaml:"default_ramp_ms"`
	DefaultSampleRateHz  float64 `yaml:"default_sample_rate_hz"`
	DefaultVoltageRangeV float64 `yaml:"default_voltage_range_v"`
	DefaultRShuntOhm     float64 `yaml:"default_r_shunt_ohm"`
}

// Config is the top-level document the controller loads at startup.
type Config struct {
	Safety   safety.Limits   `yaml:"safety"`
	Defaults SessionDefaults `yaml:"defaults"`
}

// Default returns the built-in configuration: clinical default safety
// limits plus conservative session defaults.
func Default() Config {
	return Config{
		Safety: safety.DefaultLimits(),
		Defaults: SessionDefaults{
			DefaultWaveform:      "sine",
			DefaultDwellS:        10,
			DefaultRampMs:        100,
			DefaultSampleRateHz:  10000,
			DefaultVoltageRangeV: 5,
			DefaultRShuntOhm:     1000,
		},
	}
}

// Load reads a YAML document from path, expanding ${VAR}/$VAR
// references against the process environment before parsing (so a
// deployment can inject, e.g., a site-specific max session duration
// without editing the file), then validates the result.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects a configuration whose safety limits are internally
// inconsistent, catching operator typos before they reach a session.
func (c Config) Validate() error {
	s := c.Safety
	switch {
	case s.MaxAmpVpp <= 0:
		return fmt.Errorf("safety.max_amp_vpp must be positive, got %v", s.MaxAmpVpp)
	case s.MaxOffsetV < 0:
		return fmt.Errorf("safety.max_offset_v must not be negative, got %v", s.MaxOffsetV)
	case s.MaxTotalVoltage <= 0:
		return fmt.Errorf("safety.max_total_voltage must be positive, got %v", s.MaxTotalVoltage)
	case s.MinFrequencyHz <= 0:
		return fmt.Errorf("safety.min_frequency_hz must be positive, got %v", s.MinFrequencyHz)
	case s.MaxFrequencyHz <= s.MinFrequencyHz:
		return fmt.Errorf("safety.max_frequency_hz (%v) must exceed min_frequency_hz (%v)", s.MaxFrequencyHz, s.MinFrequencyHz)
	case s.MaxSessionDurationMin <= 0:
		return fmt.Errorf("safety.max_session_duration_min must be positive, got %v", s.MaxSessionDurationMin)
	case s.MaxSingleFrequencyDurationMin <= 0:
		return fmt.Errorf("safety.max_single_frequency_duration_min must be positive, got %v", s.MaxSingleFrequencyDurationMin)
	case len(s.RequiredConfirmations) == 0:
		return fmt.Errorf("safety.required_confirmations must not be empty")
	}
	return nil
}
