package safety

// FaultKind names the violated rule rather than carrying a localized
// message — rendering fault kinds into operator-facing text is the
// host's responsibility, never the kernel's.
type FaultKind string

const (
	AmplitudeInvalid       FaultKind = "amplitude_invalid"
	AmplitudeExceedsMax    FaultKind = "amplitude_exceeds_max"
	OffsetExceedsMax       FaultKind = "offset_exceeds_max"
	TotalVoltageExceedsMax FaultKind = "total_voltage_exceeds_max"
	FrequencyInvalid       FaultKind = "frequency_invalid"
	FrequencyBelowMin      FaultKind = "frequency_below_min"
	FrequencyAboveMax      FaultKind = "frequency_above_max"
	DurationInvalid        FaultKind = "duration_invalid"
	DurationExceedsMax     FaultKind = "duration_exceeds_max"
	PatientContraindicated FaultKind = "patient_contraindicated"
	ConfirmationMissing    FaultKind = "confirmation_missing"
	ParameterNotFinite     FaultKind = "parameter_not_finite"
)

// Fault is a single structured safety rejection. Field holds the
// flag/confirmation key for PatientContraindicated/ConfirmationMissing
// faults and is empty otherwise.
type Fault struct {
	Kind   FaultKind
	Detail string
	Field  string
}

// Result aggregates zero or more faults. A zero-value Result is OK.
type Result struct {
	Faults []Fault
}

// OK returns true when no fault was raised.
func (r Result) OK() bool {
	return len(r.Faults) == 0
}

// First returns the first fault, or the zero Fault if OK.
func (r Result) First() Fault {
	if len(r.Faults) == 0 {
		return Fault{}
	}
	return r.Faults[0]
}

func single(f Fault) Result {
	return Result{Faults: []Fault{f}}
}

func ok() Result {
	return Result{}
}

func merge(results ...Result) Result {
	var out Result
	for _, r := range results {
		out.Faults = append(out.Faults, r.Faults...)
	}
	return out
}
