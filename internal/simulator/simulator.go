// Package simulator generates synthetic charging-session telemetry.
//
// Sessions follow the same physics the fraud engine checks: a stable
// per-session voltage/current baseline with small jitter, a cumulative energy
// counter integrated at the fixed 1-second cadence, and a permanent sensor
// calibration bias of up to about one percent, since real chargers read
// slightly high or low for their whole life. Fraud scenarios tamper with that honest
// stream in the ways seen in the field.
package simulator

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/evgrid/guardian/internal/telemetry"
)

// Scenario names a telemetry pattern to generate.
type Scenario string

const (
	ScenarioNormal        Scenario = "normal"
	ScenarioVoltageSpike  Scenario = "voltage_spike"  // spike above the 260V envelope
	ScenarioVoltageDip    Scenario = "voltage_dip"    // dip below the 200V envelope
	ScenarioCurrentSpike  Scenario = "current_spike"  // draw above the 50A envelope
	ScenarioEnergyRewind  Scenario = "energy_rewind"  // meter counter rolled backwards
	ScenarioSalamiSlicing Scenario = "salami_slicing" // consistent % energy inflation
)

// FraudScenarios lists every tampering pattern the generator knows.
var FraudScenarios = []Scenario{
	ScenarioVoltageSpike,
	ScenarioVoltageDip,
	ScenarioCurrentSpike,
	ScenarioEnergyRewind,
	ScenarioSalamiSlicing,
}

// Labels attached to generated sessions.
const (
	LabelNormal = "normal"
	LabelFraud  = "fraud"
)

// Anomalies are injected mid-session so the rule engine has clean readings
// to scan through first.
const (
	anomalyStart = 10
	anomalyEnd   = 15
)

// salamiInflation is the energy over-reporting factor for the salami-slicing
// scenario. Stacked on the worst-case sensor bias it stays clear of the 5%
// physics tolerance, so the attack is always detectable.
const salamiInflation = 1.08

const (
	voltageNominal = 230.0
	currentNominal = 10.0
)

// Generator produces deterministic sessions from a seeded random source.
type Generator struct {
	rng *rand.Rand
}

// New creates a generator. The same seed always produces the same sessions.
func New(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Session generates one session of the given scenario and duration in
// seconds. The returned label is LabelNormal or LabelFraud.
func (g *Generator) Session(id string, scenario Scenario, duration int) (*telemetry.Session, string) {
	baseVoltage := voltageNominal + g.uniform(-3, 3)
	baseCurrent := currentNominal + g.uniform(-1, 1)

	// Permanent per-charger calibration error, within the physics tolerance.
	sensorBias := g.uniform(0.99, 1.01)

	label := LabelNormal
	if scenario != ScenarioNormal {
		label = LabelFraud
	}

	readings := make([]telemetry.Reading, 0, duration)
	var energyKWh float64

	for t := 0; t < duration; t++ {
		voltage := baseVoltage + g.uniform(-1, 1)
		current := baseCurrent + g.uniform(-0.5, 0.5)
		anomalyNow := t >= anomalyStart && t < anomalyEnd

		if anomalyNow {
			switch scenario {
			case ScenarioVoltageSpike:
				voltage = g.uniform(265, 290)
			case ScenarioVoltageDip:
				voltage = g.uniform(150, 190)
			case ScenarioCurrentSpike:
				current = g.uniform(55, 80)
			}
		}

		rewindNow := scenario == ScenarioEnergyRewind && anomalyNow
		switch {
		case rewindNow:
			energyKWh = max(0, energyKWh-0.02)
		case t > 0:
			// The meter starts at zero; the first sample has no preceding
			// interval to accumulate over.
			stepKWh := voltage * current / 1000.0 / 3600.0
			if scenario == ScenarioSalamiSlicing {
				stepKWh *= salamiInflation
			}
			energyKWh += stepKWh * sensorBias
		}

		readings = append(readings, telemetry.Reading{
			TimeIndex: t,
			SessionID: id,
			Voltage:   round1(voltage),
			Current:   round1(current),
			EnergyKWh: energyKWh,
		})
	}

	return &telemetry.Session{ID: id, Readings: readings}, label
}

// FraudSession generates a session with a randomly chosen tampering pattern.
func (g *Generator) FraudSession(id string, duration int) (*telemetry.Session, Scenario) {
	scenario := FraudScenarios[g.rng.Intn(len(FraudScenarios))]
	session, _ := g.Session(id, scenario, duration)
	return session, scenario
}

// Dataset generates a labeled mix of sessions. fraudRatio is the fraction of
// sessions that get a tampering pattern.
func (g *Generator) Dataset(count, duration int, fraudRatio float64) []Labeled {
	out := make([]Labeled, 0, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("S%03d", i+1)
		scenario := ScenarioNormal
		if g.rng.Float64() < fraudRatio {
			scenario = FraudScenarios[g.rng.Intn(len(FraudScenarios))]
		}
		session, label := g.Session(id, scenario, duration)
		out = append(out, Labeled{Session: session, Label: label, Scenario: scenario})
	}
	return out
}

// Labeled pairs a generated session with its ground-truth label.
type Labeled struct {
	Session  *telemetry.Session
	Label    string
	Scenario Scenario
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
