package classifier

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/sleepstage/internal/errs"
	"github.com/audiolibrelab/sleepstage/internal/features"
	"github.com/audiolibrelab/sleepstage/internal/recording"
	"github.com/audiolibrelab/sleepstage/internal/staging"
)

func twoFeatureModel() *Model {
	return &Model{
		Format:       Format,
		Version:      "0.1.0",
		Classes:      []string{"W", "N2"},
		Features:     []string{"eeg_std", "time_hour"},
		Intercept:    []float64{0, 0},
		Coefficients: [][]float64{{1, 0}, {-1, 0}},
		Center:       []float64{10, 0},
		Scale:        []float64{2, 1},
	}
}

func table(std ...float32) *features.Table {
	hours := make([]float32, len(std))
	return features.NewTable(len(std), []features.Column{
		{Name: "eeg_std", Kind: features.Float32, Floats: std},
		{Name: "time_hour", Kind: features.Float32, Floats: hours},
	})
}

func TestModel_Predict(t *testing.T) {
	m := twoFeatureModel()
	require.NoError(t, m.Validate())

	tbl := table(14, 6, float32(math.NaN()))
	proba, err := m.PredictProbabilities(tbl)
	require.NoError(t, err)
	require.Len(t, proba, 3)

	// z = ±(x-10)/2, so row 0 has z = (2, -2).
	want := 1 / (1 + math.Exp(-4))
	assert.InDelta(t, want, proba[0][0], 1e-12)
	assert.InDelta(t, 1-want, proba[0][1], 1e-12)
	assert.InDelta(t, 0.5, proba[2][0], 1e-12)
	for _, row := range proba {
		assert.InDelta(t, 1.0, row[0]+row[1], 1e-12)
	}

	labels, err := m.PredictLabels(tbl)
	require.NoError(t, err)
	assert.Equal(t, []string{"W", "N2", "W"}, labels)
}

func TestModel_ColumnChecks(t *testing.T) {
	m := twoFeatureModel()

	reordered, err := table(1).Reindex([]string{"time_hour", "eeg_std"})
	require.NoError(t, err)
	_, err = m.PredictProbabilities(reordered)
	assert.ErrorContains(t, err, "order")

	other := features.NewTable(1, []features.Column{{Name: "eog_std", Kind: features.Float32, Floats: []float32{1}}})
	_, err = m.PredictLabels(other)
	var fm *errs.FeatureMismatchError
	assert.True(t, errors.As(err, &fm))
}

func TestModel_Validate(t *testing.T) {
	cases := map[string]func(m *Model){
		"format":       func(m *Model) { m.Format = "lightgbm" },
		"classes":      func(m *Model) { m.Classes = []string{"W"} },
		"intercept":    func(m *Model) { m.Intercept = []float64{0} },
		"coefficients": func(m *Model) { m.Coefficients[1] = []float64{1} },
		"center":       func(m *Model) { m.Center = []float64{1} },
		"scale":        func(m *Model) { m.Scale[0] = 0 },
		"features":     func(m *Model) { m.Features = []string{"eeg_std", "eeg_std"} },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			m := twoFeatureModel()
			mutate(m)
			err := m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), field)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"model.yaml", "model.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, twoFeatureModel().Save(path))

		m, err := Load(path)
		require.NoError(t, err, name)
		assert.Equal(t, path, m.Path)
		assert.Equal(t, []string{"eeg_std", "time_hour"}, m.RequiredFeatures())
		assert.Equal(t, []string{"W", "N2"}, m.Labels())
	}

	_, err := Load(filepath.Join(dir, "nope.yaml"))
	var nf *errs.ModelNotFoundError
	require.True(t, errors.As(err, &nf))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("format: softmax-linear\nclasses: [W]\n"), 0644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "classes")
}

func TestModelName(t *testing.T) {
	req := staging.ModelRequest{Roles: []recording.Role{recording.RoleEMG, recording.RoleEEG, recording.RoleEOG}, HasMetadata: true}
	assert.Equal(t, "clf_eeg+eog+emg+demo_lin_0.1.0", ModelName(req, ""))

	req = staging.ModelRequest{Roles: []recording.Role{recording.RoleEEG}}
	assert.Equal(t, "clf_eeg_lin_0.2.0", ModelName(req, "0.2.0"))
}

func TestConventionResolver(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, twoFeatureModel().Save(filepath.Join(dir, "clf_eeg+eog_lin_0.1.0.json")))

	r := &ConventionResolver{Directory: dir}
	req := staging.ModelRequest{Roles: []recording.Role{recording.RoleEEG, recording.RoleEOG}}
	clf, err := r.Resolve(AutoRef, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"W", "N2"}, clf.Labels())

	_, err = r.Resolve(AutoRef, staging.ModelRequest{Roles: []recording.Role{recording.RoleEEG}})
	var nf *errs.ModelNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Contains(t, nf.Path, "clf_eeg_lin_0.1.0")

	explicit := filepath.Join(dir, "custom.yaml")
	require.NoError(t, twoFeatureModel().Save(explicit))
	_, err = r.Resolve(explicit, req)
	require.NoError(t, err)
}
