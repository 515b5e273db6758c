package safety

import (
	"fmt"
	"math"
	"strings"
)

// AssertSafeOutput validates a proposed amplitude/offset pair against
// limits. Checks run in the fixed order of the specification and
// short-circuit on the first violation, matching the single-fault
// nature of each individual electrical check.
func AssertSafeOutput(ampVpp, offsetV float64, limits Limits) Result {
	if !isFinite(ampVpp) || !isFinite(offsetV) {
		return single(Fault{Kind: ParameterNotFinite, Detail: "amplitude/offset must be finite"})
	}
	if ampVpp < 0 {
		return single(Fault{Kind: AmplitudeInvalid, Detail: "amplitude cannot be negative"})
	}
	if ampVpp > limits.MaxAmpVpp {
		return single(Fault{
			Kind:   AmplitudeExceedsMax,
			Detail: fmt.Sprintf("%.3f > %.3f", ampVpp, limits.MaxAmpVpp),
		})
	}
	if math.Abs(offsetV) > limits.MaxOffsetV {
		return single(Fault{
			Kind:   OffsetExceedsMax,
			Detail: fmt.Sprintf("%.3f > %.3f", math.Abs(offsetV), limits.MaxOffsetV),
		})
	}
	totalPositive := ampVpp/2 + offsetV
	totalNegative := -ampVpp/2 + offsetV
	maxTotal := math.Max(math.Abs(totalPositive), math.Abs(totalNegative))
	if maxTotal > limits.MaxTotalVoltage {
		return single(Fault{
			Kind:   TotalVoltageExceedsMax,
			Detail: fmt.Sprintf("%.3f > %.3f", maxTotal, limits.MaxTotalVoltage),
		})
	}
	return ok()
}

// ValidateFrequency rejects non-finite, non-positive, or out-of-range
// frequencies.
func ValidateFrequency(hz float64, limits Limits) Result {
	if !isFinite(hz) {
		return single(Fault{Kind: FrequencyInvalid, Detail: "frequency must be finite"})
	}
	if hz <= 0 {
		return single(Fault{Kind: FrequencyInvalid, Detail: "frequency must be positive"})
	}
	if hz < limits.MinFrequencyHz {
		return single(Fault{
			Kind:   FrequencyBelowMin,
			Detail: fmt.Sprintf("%.2f < %.2f", hz, limits.MinFrequencyHz),
		})
	}
	if hz > limits.MaxFrequencyHz {
		return single(Fault{
			Kind:   FrequencyAboveMax,
			Detail: fmt.Sprintf("%.2f > %.2f", hz, limits.MaxFrequencyHz),
		})
	}
	return ok()
}

// ValidateSessionDuration rejects non-positive or over-limit session
// lengths, expressed in minutes.
func ValidateSessionDuration(minutes float64, limits Limits) Result {
	if !isFinite(minutes) || minutes <= 0 {
		return single(Fault{Kind: DurationInvalid, Detail: "duration must be positive"})
	}
	if minutes > limits.MaxSessionDurationMin {
		return single(Fault{
			Kind:   DurationExceedsMax,
			Detail: fmt.Sprintf("%.1f > %.1f", minutes, limits.MaxSessionDurationMin),
		})
	}
	return ok()
}

// CheckPatientFlags returns one PatientContraindicated fault per
// forbidden flag that is present and truthy on the patient. An absent
// or falsy flag never produces a fault.
func CheckPatientFlags(patient map[string]any, limits Limits) Result {
	var out Result
	for flag, blocking := range limits.ForbiddenPatientFlags {
		if !blocking {
			continue
		}
		if isTruthy(patient[flag]) {
			out.Faults = append(out.Faults, Fault{
				Kind:   PatientContraindicated,
				Field:  flag,
				Detail: fmt.Sprintf("patient flag %q is contraindicated", flag),
			})
		}
	}
	return out
}

// RequireConfirmations returns one ConfirmationMissing fault per
// required confirmation key that is absent or falsy.
func RequireConfirmations(confirmations map[string]any, limits Limits) Result {
	var out Result
	for _, key := range limits.RequiredConfirmations {
		if !isTruthy(confirmations[key]) {
			out.Faults = append(out.Faults, Fault{
				Kind:   ConfirmationMissing,
				Field:  key,
				Detail: fmt.Sprintf("confirmation %q is required", key),
			})
		}
	}
	return out
}

// ComprehensiveCheck runs every sub-check and aggregates all faults
// into a single Result. Unlike the source this is derived from, it
// never short-circuits across categories: amplitude/offset, frequency,
// patient flags, and confirmations are all evaluated and every fault
// is reported, so a caller sees the complete set of violations in one
// call instead of fixing them one at a time.
func ComprehensiveCheck(ampVpp, offsetV, hz float64, patient, confirmations map[string]any, limits Limits) Result {
	return merge(
		AssertSafeOutput(ampVpp, offsetV, limits),
		ValidateFrequency(hz, limits),
		CheckPatientFlags(patient, limits),
		RequireConfirmations(confirmations, limits),
	)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

var affirmativeStrings = map[string]bool{
	"sim": true, "yes": true, "true": true, "1": true, "positivo": true,
}

// isTruthy coerces a dynamically-typed patient/confirmation value into
// a boolean using the locale-insensitive rules of the specification:
// a Go bool is used as-is, a number is truthy iff non-zero, and a
// string is truthy iff its lowercased form is an affirmative token.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return affirmativeStrings[strings.ToLower(strings.TrimSpace(val))]
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case float32:
		return val != 0
	case float64:
		return val != 0
	default:
		return false
	}
}
