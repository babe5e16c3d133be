package staging

import (
	"slices"

	"github.com/audiolibrelab/sleepstage/internal/features"
	"github.com/audiolibrelab/sleepstage/internal/recording"
)

// FeatureClassifier is a pre-trained model that consumes a feature table
// whose columns follow RequiredFeatures exactly.
type FeatureClassifier interface {
	RequiredFeatures() []string
	Labels() []string
	PredictLabels(t *features.Table) ([]string, error)
	PredictProbabilities(t *features.Table) ([][]float64, error)
}

// ModelRequest describes the inputs a pipeline can offer a model, so a
// resolver can pick a compatible one.
type ModelRequest struct {
	Roles       []recording.Role
	HasMetadata bool
}

// ClassifierResolver turns an opaque model reference into a classifier.
type ClassifierResolver interface {
	Resolve(ref string, req ModelRequest) (FeatureClassifier, error)
}

// Probabilities holds one row per epoch and one column per class label.
type Probabilities struct {
	Labels []string    `json:"labels"`
	Values [][]float64 `json:"values"`
}

func (p *Probabilities) Rows() int { return len(p.Values) }

func (p *Probabilities) Clone() *Probabilities {
	out := &Probabilities{Labels: slices.Clone(p.Labels), Values: make([][]float64, len(p.Values))}
	for i, row := range p.Values {
		out.Values[i] = slices.Clone(row)
	}
	return out
}

// Column returns the probabilities of one class across epochs.
func (p *Probabilities) Column(label string) ([]float64, bool) {
	j := slices.Index(p.Labels, label)
	if j < 0 {
		return nil, false
	}
	out := make([]float64, len(p.Values))
	for i, row := range p.Values {
		out[i] = row[j]
	}
	return out, true
}

// Confidence returns the highest class probability of each epoch.
func (p *Probabilities) Confidence() []float64 {
	out := make([]float64, len(p.Values))
	for i, row := range p.Values {
		if len(row) > 0 {
			out[i] = slices.Max(row)
		}
	}
	return out
}

// MajorityOnly returns a copy where every value except the row maximum is
// zeroed. Ties keep the first class.
func (p *Probabilities) MajorityOnly() *Probabilities {
	out := p.Clone()
	for _, row := range out.Values {
		if len(row) == 0 {
			continue
		}
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		for j := range row {
			if j != best {
				row[j] = 0
			}
		}
	}
	return out
}
