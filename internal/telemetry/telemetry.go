// Package telemetry defines the charging-session telemetry model.
//
// A Reading is one sampled instant of a charging session: voltage, current,
// and the meter's cumulative energy counter. A Session is every reading that
// shares one session ID. Producers sample at a fixed 1-second cadence; that
// cadence is a contract relied on by the physics checks downstream.
package telemetry

import (
	"fmt"
	"math"
	"sort"
)

// Reading is one telemetry sample. Immutable once produced.
type Reading struct {
	TimeIndex int     `json:"time_index"`
	SessionID string  `json:"session_id"`
	Voltage   float64 `json:"voltage"`
	Current   float64 `json:"current"`
	EnergyKWh float64 `json:"energy_kwh"`
}

// Session is the full set of readings for one charging event. Callers may
// supply readings in any order; consumers sort before evaluating.
type Session struct {
	ID       string    `json:"session_id"`
	Readings []Reading `json:"readings"`
}

// MalformedReadingError reports a reading that cannot be evaluated. A bad
// reading is propagated, never dropped: silently skipping a sample could hide
// the exact second where tampering happened.
type MalformedReadingError struct {
	TimeIndex int
	Field     string
	Detail    string
}

func (e *MalformedReadingError) Error() string {
	return fmt.Sprintf("malformed reading at t=%d: %s %s", e.TimeIndex, e.Field, e.Detail)
}

// Validate checks a single reading for structural problems.
func (r Reading) Validate() error {
	if r.TimeIndex < 0 {
		return &MalformedReadingError{TimeIndex: r.TimeIndex, Field: "time_index", Detail: "must be non-negative"}
	}
	if r.SessionID == "" {
		return &MalformedReadingError{TimeIndex: r.TimeIndex, Field: "session_id", Detail: "is required"}
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"voltage", r.Voltage},
		{"current", r.Current},
		{"energy_kwh", r.EnergyKWh},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &MalformedReadingError{TimeIndex: r.TimeIndex, Field: f.name, Detail: "is not a finite number"}
		}
	}
	return nil
}

// NewSession builds a session from readings, validating each one.
func NewSession(id string, readings []Reading) (*Session, error) {
	for _, r := range readings {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return &Session{ID: id, Readings: readings}, nil
}

// Sorted returns the readings in time order without mutating the session.
// The sort is stable so duplicate time indexes keep their input order.
func (s *Session) Sorted() []Reading {
	out := make([]Reading, len(s.Readings))
	copy(out, s.Readings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimeIndex < out[j].TimeIndex
	})
	return out
}

// Len returns the number of readings in the session.
func (s *Session) Len() int {
	return len(s.Readings)
}
