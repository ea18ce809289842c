// Package classifier is the inference boundary over an externally trained
// binary fraud classifier.
//
// Training happens offline; this package only loads a serialized model
// artifact and answers predict / predict-probability queries. The artifact is
// a versioned JSON document describing a tree ensemble together with the
// feature-name manifest it was trained on. The loader rejects any artifact
// whose manifest differs from the feature order the caller expects, turning a
// silent feature-reordering corruption into a load error.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ArtifactVersion is the artifact schema version this loader understands.
const ArtifactVersion = 1

var (
	// ErrInvalidArtifact reports a missing or corrupt model artifact.
	ErrInvalidArtifact = errors.New("invalid model artifact")

	// ErrFeatureMismatch reports an artifact trained on a different feature
	// order than the caller extracts.
	ErrFeatureMismatch = errors.New("model feature order mismatch")
)

// Model is the two-function contract the decision engine depends on.
// Predict returns the class index (0 = valid, 1 = fraud).
// PredictProbability returns [p_valid, p_fraud].
type Model interface {
	Predict(features []float64) int
	PredictProbability(features []float64) [2]float64
}

// node is one decision-tree node. A node with Feature < 0 is a leaf and
// Value holds its training-set class counts [valid, fraud].
type node struct {
	Feature   int        `json:"feature"`
	Threshold float64    `json:"threshold"`
	Left      int        `json:"left"`
	Right     int        `json:"right"`
	Value     [2]float64 `json:"value"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

// Forest is a random-forest ensemble decoded from an artifact. Immutable
// after Load; safe for concurrent use.
type Forest struct {
	Version  int      `json:"version"`
	Features []string `json:"features"`
	Trees    []tree   `json:"trees"`
}

// Load decodes and validates a model artifact. wantFeatures is the feature
// order the caller's extractor produces; a manifest that differs in length,
// order, or naming fails with ErrFeatureMismatch.
func Load(artifact []byte, wantFeatures []string) (*Forest, error) {
	var f Forest
	if err := json.Unmarshal(artifact, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}

	if f.Version != ArtifactVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidArtifact, f.Version)
	}
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("%w: artifact contains no trees", ErrInvalidArtifact)
	}
	if len(f.Features) != len(wantFeatures) {
		return nil, fmt.Errorf("%w: artifact has %d features, expected %d",
			ErrFeatureMismatch, len(f.Features), len(wantFeatures))
	}
	for i, name := range wantFeatures {
		if f.Features[i] != name {
			return nil, fmt.Errorf("%w: position %d is %q, expected %q",
				ErrFeatureMismatch, i, f.Features[i], name)
		}
	}

	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return nil, fmt.Errorf("%w: tree %d is empty", ErrInvalidArtifact, ti)
		}
		for ni, n := range t.Nodes {
			if n.Feature >= len(f.Features) {
				return nil, fmt.Errorf("%w: tree %d node %d references feature %d",
					ErrInvalidArtifact, ti, ni, n.Feature)
			}
			if n.Feature >= 0 && (n.Left < 0 || n.Left >= len(t.Nodes) || n.Right < 0 || n.Right >= len(t.Nodes)) {
				return nil, fmt.Errorf("%w: tree %d node %d has out-of-range children",
					ErrInvalidArtifact, ti, ni)
			}
		}
	}

	return &f, nil
}

// LoadFile reads and decodes a model artifact from disk.
func LoadFile(path string, wantFeatures []string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	return Load(data, wantFeatures)
}

// PredictProbability averages the per-tree class distributions, matching how
// a scikit-learn style forest combines its trees.
func (f *Forest) PredictProbability(features []float64) [2]float64 {
	var sum [2]float64
	for _, t := range f.Trees {
		p := t.classify(features)
		sum[0] += p[0]
		sum[1] += p[1]
	}
	n := float64(len(f.Trees))
	return [2]float64{sum[0] / n, sum[1] / n}
}

// Predict returns the class with the higher averaged probability. Ties break
// toward valid: fraud requires a strict majority signal.
func (f *Forest) Predict(features []float64) int {
	p := f.PredictProbability(features)
	if p[1] > p[0] {
		return 1
	}
	return 0
}

// classify walks one tree to its leaf and returns the normalized class
// distribution there.
func (t *tree) classify(features []float64) [2]float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			total := n.Value[0] + n.Value[1]
			if total <= 0 {
				return [2]float64{0.5, 0.5}
			}
			return [2]float64{n.Value[0] / total, n.Value[1] / total}
		}
		if features[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Result is a classification with its predicted-class confidence.
type Result struct {
	Class      int     // 0 = valid, 1 = fraud
	Confidence float64 // probability of the predicted class, in [0,1]
}

// Adapter turns feature vectors into labeled results. A nil model is a valid
// configuration: Classify then reports no result and callers degrade to
// rule-only mode.
type Adapter struct {
	model Model
}

// NewAdapter wraps a model for inference. model may be nil.
func NewAdapter(model Model) *Adapter {
	return &Adapter{model: model}
}

// Loaded reports whether a model is available.
func (a *Adapter) Loaded() bool {
	return a != nil && a.model != nil
}

// Classify runs the model over a feature vector. The confidence is the
// probability of the predicted class, not always the fraud-class probability:
// a valid prediction carries the valid-class probability.
func (a *Adapter) Classify(features []float64) *Result {
	if !a.Loaded() {
		return nil
	}
	class := a.model.Predict(features)
	p := a.model.PredictProbability(features)
	return &Result{Class: class, Confidence: p[class]}
}
