package guardian

import (
	"errors"

	"github.com/evgrid/guardian/internal/telemetry"
)

// ErrEmptySession is returned when an evaluation is asked for a session with
// zero readings. An empty session is a caller error, never a VALID verdict.
var ErrEmptySession = errors.New("session has no readings")

// FeatureNames fixes the feature order used at training time. The classifier
// receives features in exactly this order; reordering silently corrupts
// predictions, so the order is an invariant of the artifact contract, not a
// convention.
var FeatureNames = [5]string{
	"max_voltage",
	"min_voltage",
	"mean_current",
	"total_energy",
	"physics_diff",
}

// FeatureVector summarizes one session into the five scalars the classifier
// was trained on.
type FeatureVector struct {
	MaxVoltage  float64 `json:"max_voltage"`
	MinVoltage  float64 `json:"min_voltage"`
	MeanCurrent float64 `json:"mean_current"`
	TotalEnergy float64 `json:"total_energy"`
	PhysicsDiff float64 `json:"physics_diff"`
}

// Values returns the vector in training order.
func (f FeatureVector) Values() [5]float64 {
	return [5]float64{f.MaxVoltage, f.MinVoltage, f.MeanCurrent, f.TotalEnergy, f.PhysicsDiff}
}

// ExtractFeatures reduces a session to its feature vector. Readings are
// sorted defensively by time index first.
//
// TotalEnergy is the maximum reported energy_kwh in the session: the meter is
// cumulative, so the peak value is the session total regardless of input
// order. PhysicsDiff is the absolute gap between that total and the
// whole-session rectangle-rule integral of V*I. This is a one-shot aggregate
// for the classifier; the rule validator keeps its own streaming version of
// the same physics because the two consumers need different failure
// semantics (hard reject vs soft signal).
func ExtractFeatures(session *telemetry.Session) (FeatureVector, error) {
	if session == nil || session.Len() == 0 {
		return FeatureVector{}, ErrEmptySession
	}

	readings := session.Sorted()

	fv := FeatureVector{
		MaxVoltage: readings[0].Voltage,
		MinVoltage: readings[0].Voltage,
	}

	var (
		currentSum       float64
		calculatedEnergy float64
	)
	for _, r := range readings {
		if r.Voltage > fv.MaxVoltage {
			fv.MaxVoltage = r.Voltage
		}
		if r.Voltage < fv.MinVoltage {
			fv.MinVoltage = r.Voltage
		}
		currentSum += r.Current
		if r.EnergyKWh > fv.TotalEnergy {
			fv.TotalEnergy = r.EnergyKWh
		}
		calculatedEnergy += r.Voltage * r.Current / 1000.0 / 3600.0
	}

	fv.MeanCurrent = currentSum / float64(len(readings))
	fv.PhysicsDiff = abs(fv.TotalEnergy - calculatedEnergy)

	return fv, nil
}
