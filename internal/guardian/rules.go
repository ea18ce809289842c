package guardian

import (
	"fmt"

	"github.com/evgrid/guardian/internal/telemetry"
)

// Rated safe operating envelope for a charger. Telemetry outside these bounds
// is physically impossible for healthy hardware, not merely suspicious.
const (
	MinVoltage = 200.0
	MaxVoltage = 260.0
	MinCurrent = 0.0
	MaxCurrent = 50.0
)

// Physics reconciliation defaults. The validator integrates instantaneous
// power across the session and compares it against the reported meter value;
// a relative divergence beyond the tolerance is fraud. The noise floor keeps
// the ratio stable while the calculated energy is still near zero.
const (
	DefaultPhysicsTolerance = 0.05 // 5%, covers sensor imprecision
	DefaultEnergyNoiseFloor = 0.01 // kWh
)

// sampleInterval is the fixed telemetry cadence in seconds. This is a
// contract with the producers, not a tunable: the physics integration is only
// unit-correct for uniform 1-second sampling.
const sampleInterval = 1.0

// Rule identifies which check a violation came from.
type Rule string

const (
	RuleVoltageBound Rule = "voltage_bound"
	RuleCurrentBound Rule = "current_bound"
	RuleEnergyRewind Rule = "energy_rewind"
	RulePhysicsCheck Rule = "physics_check"
)

// Violation carries the first rule breach found in a session.
type Violation struct {
	Rule      Rule
	TimeIndex int
	Reason    string
}

// Validator scans a session's readings in time order and reports the first
// rule violation. It holds no per-session state; one Validator is safe for
// concurrent use.
type Validator struct {
	tolerance  float64
	noiseFloor float64
}

// NewValidator creates a rule validator with default physics tolerances.
func NewValidator() *Validator {
	return &Validator{
		tolerance:  DefaultPhysicsTolerance,
		noiseFloor: DefaultEnergyNoiseFloor,
	}
}

// WithTolerance overrides the physics reconciliation tolerance.
func (v *Validator) WithTolerance(t float64) *Validator {
	v.tolerance = t
	return v
}

// WithNoiseFloor overrides the calculated-energy noise floor in kWh.
func (v *Validator) WithNoiseFloor(f float64) *Validator {
	v.noiseFloor = f
	return v
}

// Validate evaluates the four fraud rules over the session in time order and
// returns at the first violation; an earlier-in-time violation always wins
// over a later one.
func (v *Validator) Validate(session *telemetry.Session) Verdict {
	return verdictFromViolation(v.FirstViolation(session))
}

func verdictFromViolation(violation *Violation) Verdict {
	if violation != nil {
		return Verdict{Status: StatusFraud, Reason: violation.Reason}
	}
	return Verdict{Status: StatusValid, Reason: "session completed normally"}
}

// FirstViolation scans the session in time order and returns the first rule
// breach, or nil when the session is clean. Readings are sorted defensively
// first: the energy and physics rules are sequential-process checks and an
// out-of-order reading would produce false positives.
//
// Rules, in evaluation order per reading:
//  1. voltage inside [200, 260] V
//  2. current inside [0, 50] A
//  3. cumulative energy never decreases against the previous reading
//  4. reported energy stays within tolerance of the integrated V*I energy
func (v *Validator) FirstViolation(session *telemetry.Session) *Violation {
	readings := session.Sorted()

	var (
		prevEnergy       float64
		calculatedEnergy float64
	)

	for i, r := range readings {
		if r.Voltage < MinVoltage || r.Voltage > MaxVoltage {
			return &Violation{
				Rule:      RuleVoltageBound,
				TimeIndex: r.TimeIndex,
				Reason:    fmt.Sprintf("Voltage anomaly detected: %gV at t=%d", r.Voltage, r.TimeIndex),
			}
		}

		if r.Current < MinCurrent || r.Current > MaxCurrent {
			return &Violation{
				Rule:      RuleCurrentBound,
				TimeIndex: r.TimeIndex,
				Reason:    fmt.Sprintf("Current anomaly detected: %gA at t=%d", r.Current, r.TimeIndex),
			}
		}

		if i > 0 && r.EnergyKWh < prevEnergy {
			return &Violation{
				Rule:      RuleEnergyRewind,
				TimeIndex: r.TimeIndex,
				Reason:    fmt.Sprintf("Energy decrease detected at t=%d (%g -> %g)", r.TimeIndex, prevEnergy, r.EnergyKWh),
			}
		}

		// The first reading has no preceding interval to integrate over.
		if i > 0 {
			powerKW := r.Voltage * r.Current / 1000.0
			calculatedEnergy += powerKW * (sampleInterval / 3600.0)
		}

		if calculatedEnergy > v.noiseFloor {
			relErr := abs(r.EnergyKWh-calculatedEnergy) / calculatedEnergy
			if relErr > v.tolerance {
				return &Violation{
					Rule:      RulePhysicsCheck,
					TimeIndex: r.TimeIndex,
					Reason: fmt.Sprintf("Energy mismatch at t=%d: reported %.4f kWh vs calculated %.4f kWh",
						r.TimeIndex, r.EnergyKWh, calculatedEnergy),
				}
			}
		}

		prevEnergy = r.EnergyKWh
	}

	return nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
