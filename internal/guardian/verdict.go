// Package guardian implements the fraud decision engine for EV charging
// sessions.
//
// Two independent detectors look at every session: a deterministic rule
// validator enforcing the hardware safety envelope and physics consistency,
// and an externally trained statistical classifier over session-level
// features. Their verdicts are merged by a fixed precedence policy: the model
// label is authoritative when a model is loaded, with the rule verdict always
// retained as the interpretable audit trail.
package guardian

// Status is the session-level fraud label.
type Status string

const (
	StatusValid Status = "VALID"
	StatusFraud Status = "FRAUD"
)

// Method identifies which detector produced the authoritative label.
type Method string

const (
	MethodRuleBased Method = "rule_based"
	MethodMLModel   Method = "ml_model"
)

// Verdict is the output of a single detector.
type Verdict struct {
	Status Status `json:"status"`
	Reason string `json:"reason"`
}

// Decision is the externally visible result of evaluating one session.
// Created once per evaluation and never mutated afterward.
type Decision struct {
	SessionID string `json:"session_id"`
	Status    Status `json:"status"`
	Reason    string `json:"reason"`
	Method    Method `json:"detection_method"`

	// Confidence is the predicted-class probability in [0,1]. Only set when
	// the model path produced the label.
	Confidence *float64 `json:"ml_confidence,omitempty"`

	// Features is the vector the classifier saw, for explainability. Only set
	// when the model path ran.
	Features *FeatureVector `json:"features,omitempty"`
}
