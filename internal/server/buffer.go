package server

import (
	"sync"

	"github.com/evgrid/guardian/internal/telemetry"
)

// maxBufferedReadings caps the in-memory session buffer. A charger feeding
// 1 Hz telemetry hits this after roughly 4.5 hours, far past any plausible
// charging session.
const maxBufferedReadings = 16384

// sessionBuffer accumulates the readings of the currently observed session.
// The engine itself is stateless; this buffer is the only mutable state in
// the service and exists so /v1/ingest + /v1/status can mirror the live
// dashboard flow. Persistence is deliberately absent.
type sessionBuffer struct {
	mu        sync.Mutex
	sessionID string
	readings  []telemetry.Reading
}

// Append adds a reading, adopting its session ID if the buffer is fresh.
// Returns the buffered count, or false when the buffer is full.
func (b *sessionBuffer) Append(r telemetry.Reading) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.readings) >= maxBufferedReadings {
		return len(b.readings), false
	}
	if b.sessionID == "" {
		b.sessionID = r.SessionID
	}
	b.readings = append(b.readings, r)
	return len(b.readings), true
}

// Snapshot copies the buffered readings into a session the engine can own
// for one evaluation. Returns nil when nothing is buffered.
func (b *sessionBuffer) Snapshot() *telemetry.Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.readings) == 0 {
		return nil
	}
	readings := make([]telemetry.Reading, len(b.readings))
	copy(readings, b.readings)
	return &telemetry.Session{ID: b.sessionID, Readings: readings}
}

// Reset clears the buffer for the next session.
func (b *sessionBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionID = ""
	b.readings = nil
}

// Len returns the buffered reading count.
func (b *sessionBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.readings)
}
