package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evgrid/guardian/internal/guardian"
	"github.com/evgrid/guardian/internal/logging"
	"github.com/evgrid/guardian/internal/metrics"
	"github.com/evgrid/guardian/internal/telemetry"
	"github.com/evgrid/guardian/internal/traces"
	"github.com/evgrid/guardian/internal/validation"
)

// predictRequest is a complete session submitted for evaluation.
type predictRequest struct {
	SessionID string              `json:"session_id"`
	Data      []telemetry.Reading `json:"data"`
}

// ingestRequest is a single live reading.
type ingestRequest struct {
	TimeIndex int     `json:"time_index"`
	SessionID string  `json:"session_id"`
	Voltage   float64 `json:"voltage"`
	Current   float64 `json:"current"`
	EnergyKWh float64 `json:"energy_kwh"`
}

// predictHandler evaluates a whole session in one shot.
func (s *Server) predictHandler(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON body",
		})
		return
	}

	req.SessionID = validation.SanitizeSessionID(req.SessionID)
	if errs := validation.Validate(
		validation.Required("session_id", req.SessionID),
		validation.MaxLength("session_id", req.SessionID, validation.MaxSessionIDLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	session, err := telemetry.NewSession(req.SessionID, req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "malformed_reading",
			"message": err.Error(),
		})
		return
	}
	s.evaluate(c, session)
}

// ingestHandler appends one reading to the live session buffer.
func (s *Server) ingestHandler(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON body",
		})
		return
	}

	req.SessionID = validation.SanitizeSessionID(req.SessionID)
	if errs := validation.Validate(
		validation.Required("session_id", req.SessionID),
		validation.NonNegative("time_index", req.TimeIndex),
		validation.Finite("voltage", req.Voltage),
		validation.Finite("current", req.Current),
		validation.Finite("energy_kwh", req.EnergyKWh),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	reading := telemetry.Reading{
		TimeIndex: req.TimeIndex,
		SessionID: req.SessionID,
		Voltage:   req.Voltage,
		Current:   req.Current,
		EnergyKWh: req.EnergyKWh,
	}

	count, ok := s.buffer.Append(reading)
	if !ok {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":   "buffer_full",
			"message": "Session buffer is full, evaluate and reset first",
		})
		return
	}

	metrics.ReadingsIngestedTotal.Inc()

	c.JSON(http.StatusOK, gin.H{
		"session_id": req.SessionID,
		"buffered":   count,
	})
}

// statusHandler evaluates whatever has been ingested so far.
func (s *Server) statusHandler(c *gin.Context) {
	session := s.buffer.Snapshot()
	if session == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  "idle",
			"message": "no active session",
		})
		return
	}
	s.evaluate(c, session)
}

// resetHandler clears the live session buffer.
func (s *Server) resetHandler(c *gin.Context) {
	s.buffer.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// currentSessionHandler returns the buffered readings without evaluating.
func (s *Server) currentSessionHandler(c *gin.Context) {
	session := s.buffer.Snapshot()
	if session == nil {
		c.JSON(http.StatusOK, gin.H{
			"session_id": "",
			"readings":   []telemetry.Reading{},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"readings":   session.Readings,
	})
}

// evaluate runs the engine over a session and writes the decision or a
// mapped error response.
func (s *Server) evaluate(c *gin.Context, session *telemetry.Session) {
	ctx, span := traces.StartSpan(c.Request.Context(), "guardian.evaluate",
		traces.SessionID(session.ID),
		traces.ReadingCount(session.Len()),
	)
	defer span.End()

	decision, err := s.engine.Evaluate(ctx, session)
	if err != nil {
		span.RecordError(err)

		var malformed *telemetry.MalformedReadingError
		switch {
		case errors.Is(err, guardian.ErrEmptySession):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "empty_session",
				"message": "Session contains no readings",
			})
		case errors.As(err, &malformed):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "malformed_reading",
				"message": err.Error(),
			})
		default:
			logging.L(ctx).Error("evaluation failed",
				"session_id", session.ID,
				"error", err,
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "evaluation_failed",
				"message": "Could not evaluate session",
			})
		}
		return
	}

	span.SetAttributes(
		traces.DecisionStatus(string(decision.Status)),
		traces.DetectionMethod(string(decision.Method)),
	)

	logging.L(ctx).Info("session evaluated",
		"session_id", session.ID,
		"status", decision.Status,
		"method", decision.Method,
		"readings", session.Len(),
	)

	c.JSON(http.StatusOK, decision)
}
