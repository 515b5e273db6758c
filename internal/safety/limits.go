// Package safety implements the pure, side-effect-free validator that
// gates every electrical stimulus the controller produces: amplitude,
// DC offset, frequency, session duration, patient contraindications,
// and operator confirmations. Nothing in this package touches a clock,
// a device, or a log sink — it is decision logic only.
package safety

// Limits is the immutable configuration a session validates stimuli
// against. Zero value is not meaningful; use DefaultLimits or load one
// from internal/config.
type Limits struct {
	MaxAmpVpp      float64 `yaml:"max_amp_vpp"`
	MaxOffsetV     float64 `yaml:"max_offset_v"`
	MaxTotalVoltage float64 `yaml:"max_total_voltage"`

	MinFrequencyHz float64 `yaml:"min_frequency_hz"`
	MaxFrequencyHz float64 `yaml:"max_frequency_hz"`

	MaxSessionDurationMin       float64 `yaml:"max_session_duration_min"`
	MaxSingleFrequencyDurationMin float64 `yaml:"max_single_frequency_duration_min"`

	// RequireSeriesResistorOhm is advisory to the caller: it is encoded
	// into the confirmation taxonomy ("series resistor installed") and
	// never checked electrically by this package.
	RequireSeriesResistorOhm float64 `yaml:"require_series_resistor_ohm"`

	// ForbiddenPatientFlags maps a flag name to whether it blocks the
	// session when present and truthy on the patient.
	ForbiddenPatientFlags map[string]bool `yaml:"forbidden_patient_flags"`

	// RequiredConfirmations is the ordered list of confirmation keys an
	// operator must affirm before a session may start.
	RequiredConfirmations []string `yaml:"required_confirmations"`
}

// DefaultLimits returns the clinical default limits named in the
// specification's data model.
func DefaultLimits() Limits {
	return Limits{
		MaxAmpVpp:                     2.0,
		MaxOffsetV:                    0.5,
		MaxTotalVoltage:               2.5,
		MinFrequencyHz:                0.1,
		MaxFrequencyHz:                100000,
		MaxSessionDurationMin:         60,
		MaxSingleFrequencyDurationMin: 10,
		RequireSeriesResistorOhm:      100000,
		ForbiddenPatientFlags: map[string]bool{
			"pacemaker":                  true,
			"implanted_defibrillator":    true,
			"insulin_pump":               true,
			"cochlear_implant":           true,
			"deep_brain_stimulator":      true,
			"metallic_implant":           true,
			"epilepsy":                   true,
			"pregnancy":                  true,
			"active_cancer":              true,
			"recent_chemo":               true,
			"recent_radio":               true,
			"minor":                      true,
			"critical_state":             true,
			"anticoagulants":             true,
			"seizure_history":            true,
			"recent_surgery":             true,
			"recent_invasive_procedure":  true,
		},
		RequiredConfirmations: []string{
			"isolation_verified",
			"series_resistor_installed",
			"patient_informed",
			"consent_signed",
			"emergency_prepared",
			"supervisor_present",
		},
	}
}
