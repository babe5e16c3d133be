// Package classifier implements the portable softmax-linear model format
// and the naming convention used to find a model for a pipeline.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/sleepstage/internal/errs"
	"github.com/audiolibrelab/sleepstage/internal/features"
)

// Format is the only supported value of the model's format field.
const Format = "softmax-linear"

// Model is a multinomial logistic regression over standardized features:
//
//	z_c = intercept_c + sum_j coefficients_cj * (x_j - center_j) / scale_j
//
// followed by a softmax over classes.
type Model struct {
	Format       string      `yaml:"format" json:"format"`
	Version      string      `yaml:"version" json:"version"`
	Classes      []string    `yaml:"classes" json:"classes"`
	Features     []string    `yaml:"features" json:"features"`
	Intercept    []float64   `yaml:"intercept" json:"intercept"`
	Coefficients [][]float64 `yaml:"coefficients" json:"coefficients"`
	Center       []float64   `yaml:"center,omitempty" json:"center,omitempty"`
	Scale        []float64   `yaml:"scale,omitempty" json:"scale,omitempty"`

	Path string `yaml:"-" json:"-"`
}

// Load reads a model from a YAML or JSON file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &errs.ModelNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Parse decodes and validates a model. JSON input is accepted since it is
// valid YAML.
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes the model as JSON when path ends in .json and as YAML
// otherwise.
func (m *Model) Save(path string) error {
	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(m, "", "  ")
	} else {
		data, err = yaml.Marshal(m)
	}
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	return nil
}

// Validate checks the shape of every field.
func (m *Model) Validate() error {
	if m.Format != Format {
		return fmt.Errorf("format: expected %q, got %q", Format, m.Format)
	}
	nc, nf := len(m.Classes), len(m.Features)
	if nc < 2 {
		return fmt.Errorf("classes: need at least 2, got %d", nc)
	}
	if nf == 0 {
		return fmt.Errorf("features: list is empty")
	}
	if dup := firstDuplicate(m.Classes); dup != "" {
		return fmt.Errorf("classes: duplicate %q", dup)
	}
	if dup := firstDuplicate(m.Features); dup != "" {
		return fmt.Errorf("features: duplicate %q", dup)
	}
	if len(m.Intercept) != nc {
		return fmt.Errorf("intercept: expected %d values, got %d", nc, len(m.Intercept))
	}
	if len(m.Coefficients) != nc {
		return fmt.Errorf("coefficients: expected %d rows, got %d", nc, len(m.Coefficients))
	}
	for i, row := range m.Coefficients {
		if len(row) != nf {
			return fmt.Errorf("coefficients[%d]: expected %d values, got %d", i, nf, len(row))
		}
	}
	if m.Center != nil && len(m.Center) != nf {
		return fmt.Errorf("center: expected %d values, got %d", nf, len(m.Center))
	}
	if m.Scale != nil {
		if len(m.Scale) != nf {
			return fmt.Errorf("scale: expected %d values, got %d", nf, len(m.Scale))
		}
		for j, s := range m.Scale {
			if s == 0 {
				return fmt.Errorf("scale[%d] (%s): must be non-zero", j, m.Features[j])
			}
		}
	}
	return nil
}

func firstDuplicate(names []string) string {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return n
		}
		seen[n] = true
	}
	return ""
}

func (m *Model) RequiredFeatures() []string { return slices.Clone(m.Features) }

func (m *Model) Labels() []string { return slices.Clone(m.Classes) }

func (m *Model) checkColumns(t *features.Table) error {
	names := t.Names()
	if slices.Equal(names, m.Features) {
		return nil
	}
	if err := features.Diff(m.Features, names); err != nil {
		return err
	}
	return fmt.Errorf("feature columns are not in model order")
}

// PredictProbabilities returns the softmax class probabilities of each
// row. Columns must follow RequiredFeatures exactly. Missing values (NaN)
// are treated as equal to the centre and contribute nothing.
func (m *Model) PredictProbabilities(t *features.Table) ([][]float64, error) {
	if err := m.checkColumns(t); err != nil {
		return nil, err
	}

	nc := len(m.Classes)
	out := make([][]float64, t.Rows())
	for i := range out {
		x := t.Row(i)
		z := make([]float64, nc)
		for c := 0; c < nc; c++ {
			z[c] = m.Intercept[c]
			for j, v := range x {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				if m.Center != nil {
					v -= m.Center[j]
				}
				if m.Scale != nil {
					v /= m.Scale[j]
				}
				z[c] += m.Coefficients[c][j] * v
			}
		}
		out[i] = softmax(z)
	}
	return out, nil
}

// PredictLabels returns the most probable class of each row.
func (m *Model) PredictLabels(t *features.Table) ([]string, error) {
	proba, err := m.PredictProbabilities(t)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(proba))
	for i, row := range proba {
		best := 0
		for c, v := range row {
			if v > row[best] {
				best = c
			}
		}
		out[i] = m.Classes[best]
	}
	return out, nil
}

func softmax(z []float64) []float64 {
	hi := slices.Max(z)
	out := make([]float64, len(z))
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v - hi)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
