package guardian

import (
	"context"
	"fmt"
	"time"

	"github.com/evgrid/guardian/internal/classifier"
	"github.com/evgrid/guardian/internal/metrics"
	"github.com/evgrid/guardian/internal/telemetry"
)

// LoadModel decodes a model artifact, pinning the manifest to the feature
// order ExtractFeatures produces. This is the one-time initialization step;
// the returned model must never be mutated afterward. Callers that get an
// error degrade to rule-only evaluation instead of failing.
func LoadModel(artifact []byte) (classifier.Model, error) {
	return classifier.Load(artifact, FeatureNames[:])
}

// LoadModelFile is LoadModel over an artifact on disk.
func LoadModelFile(path string) (classifier.Model, error) {
	return classifier.LoadFile(path, FeatureNames[:])
}

// ModelVerdict pairs the classifier's label with its predicted-class
// confidence.
type ModelVerdict struct {
	Status     Status
	Confidence float64
}

// Engine evaluates charging sessions. It is a pure function of its input:
// no readings are retained across calls and the model, once attached, is
// read-only. Concurrent evaluations need no locking.
type Engine struct {
	validator *Validator
	adapter   *classifier.Adapter
}

// NewEngine creates an engine with a default rule validator and no model.
// Without a model every evaluation runs in rule-only mode.
func NewEngine() *Engine {
	return &Engine{
		validator: NewValidator(),
		adapter:   classifier.NewAdapter(nil),
	}
}

// WithValidator overrides the rule validator.
func (e *Engine) WithValidator(v *Validator) *Engine {
	e.validator = v
	return e
}

// WithModel attaches a loaded classifier. Replacing a model on a live engine
// is not supported; build a new engine instead.
func (e *Engine) WithModel(m classifier.Model) *Engine {
	e.adapter = classifier.NewAdapter(m)
	return e
}

// ModelLoaded reports whether a classifier is attached.
func (e *Engine) ModelLoaded() bool {
	return e.adapter.Loaded()
}

// Evaluate classifies one session as VALID or FRAUD.
//
// The rule validator and the classifier run independently; Combine merges
// their verdicts. A session with zero readings fails with ErrEmptySession and
// a structurally broken reading fails with MalformedReadingError; neither is
// ever silently treated as VALID.
func (e *Engine) Evaluate(ctx context.Context, session *telemetry.Session) (*Decision, error) {
	if session == nil || session.Len() == 0 {
		return nil, ErrEmptySession
	}
	for _, r := range session.Readings {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("session %s: %w", session.ID, err)
		}
	}

	start := time.Now()

	violation := e.validator.FirstViolation(session)
	if violation != nil {
		metrics.RuleViolationsTotal.WithLabelValues(string(violation.Rule)).Inc()
	}
	ruleVerdict := verdictFromViolation(violation)

	var (
		modelVerdict *ModelVerdict
		fv           FeatureVector
	)
	if e.adapter.Loaded() {
		var err error
		fv, err = ExtractFeatures(session)
		if err != nil {
			return nil, err
		}
		values := fv.Values()
		result := e.adapter.Classify(values[:])
		status := StatusValid
		if result.Class == 1 {
			status = StatusFraud
		}
		modelVerdict = &ModelVerdict{Status: status, Confidence: result.Confidence}
	}

	decision := Combine(ruleVerdict, modelVerdict)
	decision.SessionID = session.ID
	if modelVerdict != nil {
		decision.Features = &fv
	}

	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	metrics.EvaluationsTotal.WithLabelValues(string(decision.Status), string(decision.Method)).Inc()

	return &decision, nil
}

// Combine merges the two detector verdicts into one decision.
//
// The precedence policy is the product's fraud policy, reproduced exactly:
// when a model verdict exists its label is authoritative and the rule verdict
// becomes supporting evidence. Model fraud confirmed by the rules gets a
// confirmation note without the rule's specific reason; model valid against a
// rule fraud surfaces the disagreement by appending the rule reason. Without
// a model the rule verdict stands alone, with no confidence score.
func Combine(rule Verdict, model *ModelVerdict) Decision {
	if model == nil {
		return Decision{
			Status: rule.Status,
			Reason: rule.Reason,
			Method: MethodRuleBased,
		}
	}

	confidence := model.Confidence
	var reason string
	if model.Status == StatusFraud {
		reason = fmt.Sprintf("ML model detected fraud (confidence: %.1f%%)", confidence*100)
		if rule.Status == StatusFraud {
			reason += " | confirmed by rule-based check"
		}
	} else {
		reason = fmt.Sprintf("ML model: valid session (confidence: %.1f%%)", confidence*100)
		if rule.Status == StatusFraud {
			reason += " | rule-based check: " + rule.Reason
		}
	}

	return Decision{
		Status:     model.Status,
		Reason:     reason,
		Method:     MethodMLModel,
		Confidence: &confidence,
	}
}

// BatchSummary aggregates decisions over a set of sessions.
type BatchSummary struct {
	Total     int
	Valid     int
	Fraud     int
	Decisions []*Decision
}

// EvaluateAll evaluates every session and tallies the outcomes. The first
// input error aborts the batch.
func (e *Engine) EvaluateAll(ctx context.Context, sessions []*telemetry.Session) (*BatchSummary, error) {
	summary := &BatchSummary{Decisions: make([]*Decision, 0, len(sessions))}
	for _, s := range sessions {
		d, err := e.Evaluate(ctx, s)
		if err != nil {
			return nil, err
		}
		summary.Total++
		if d.Status == StatusFraud {
			summary.Fraud++
		} else {
			summary.Valid++
		}
		summary.Decisions = append(summary.Decisions, d)
	}
	return summary, nil
}
