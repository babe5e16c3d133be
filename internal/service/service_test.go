package service

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/sleepstage/internal/classifier"
	"github.com/audiolibrelab/sleepstage/internal/config"
	"github.com/audiolibrelab/sleepstage/internal/errs"
	"github.com/audiolibrelab/sleepstage/internal/metrics"
	"github.com/audiolibrelab/sleepstage/internal/recording"
	"github.com/audiolibrelab/sleepstage/internal/staging"
)

type fixture struct {
	dir     string
	edf     string
	cfg     *config.Config
	metrics *metrics.Metrics
	svc     Service
}

// writeNight saves a ten minute single-channel EEG recording.
func writeNight(t *testing.T, path string) {
	t.Helper()
	const sf = 100
	x := make([]float64, sf*600)
	for i := range x {
		tt := float64(i) / sf
		amp := 40e-6
		if tt > 300 {
			amp = 80e-6
		}
		x[i] = amp*math.Sin(2*math.Pi*10*tt) + 15e-6*math.Sin(2*math.Pi*1.5*tt)
	}
	rec := &recording.Recording{
		SamplingRate: sf,
		Channels:     []recording.Channel{{Label: "C4-M1", Samples: x}},
	}
	require.NoError(t, recording.SaveEDF(path, rec))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{dir: dir, edf: filepath.Join(dir, "night 1.edf")}
	writeNight(t, f.edf)

	f.cfg = config.Default()
	f.cfg.Profile = "test"
	f.cfg.Channels = []config.Channel{{Name: "c4", Label: "C4-M1", Role: "eeg"}}
	f.cfg.Model.Directory = filepath.Join(dir, "models")
	f.cfg.Output.Directory = filepath.Join(dir, "out")
	f.cfg.Store.Path = filepath.Join(dir, "runs.db")
	require.NoError(t, os.MkdirAll(f.cfg.Model.Directory, 0755))

	f.metrics = metrics.New(prometheus.NewRegistry())
	f.svc = New(f.cfg, "", f.metrics)
	t.Cleanup(func() { f.svc.Close() })
	return f
}

// installModel writes an "auto" model that matches the recording's
// feature columns and separates the two halves of the night by EEG std.
func (f *fixture) installModel(t *testing.T) {
	t.Helper()
	table, err := f.svc.Features(f.edf)
	require.NoError(t, err)

	names := table.Names()
	coef := [][]float64{make([]float64, len(names)), make([]float64, len(names))}
	for j, name := range names {
		if name == "eeg_std" {
			coef[0][j] = -1
			coef[1][j] = 1
		}
	}
	m := &classifier.Model{
		Format:       classifier.Format,
		Version:      classifier.DefaultVersion,
		Classes:      []string{"W", "N3"},
		Features:     names,
		Intercept:    []float64{0, 0},
		Coefficients: coef,
	}
	name := classifier.ModelName(staging.ModelRequest{Roles: []recording.Role{recording.RoleEEG}}, "")
	require.NoError(t, m.Save(filepath.Join(f.cfg.Model.Directory, name+".yaml")))
}

func TestService_Features(t *testing.T) {
	f := newFixture(t)

	table, err := f.svc.Features(f.edf)
	require.NoError(t, err)
	assert.Equal(t, 20, table.Rows())
	assert.Contains(t, table.Names(), "eeg_std")
	assert.Contains(t, table.Names(), "time_hour")
	assert.Equal(t, 20.0, testutil.ToFloat64(f.metrics.EpochsProcessed))
	assert.Empty(t, f.svc.GetLastError())
}

func TestService_Stage(t *testing.T) {
	f := newFixture(t)
	f.installModel(t)

	res, err := f.svc.Stage(f.edf, StageOptions{Save: true})
	require.NoError(t, err)
	require.Len(t, res.Hypnogram, 20)
	assert.Equal(t, "auto", res.ModelRef)
	assert.Equal(t, map[string]string{"eeg": "C4-M1"}, res.Channels)
	assert.Equal(t, 30.0, res.Onsets[1])
	assert.Equal(t, []string{"W", "N3"}, res.Probabilities.Labels)
	assert.NotEmpty(t, res.RunID)

	run, err := f.svc.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Hypnogram, run.Hypnogram)
	assert.Equal(t, "test", run.Profile)

	runs, err := f.svc.ListRuns()
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Runs.WithLabelValues("success")))

	majority, err := f.svc.Stage(f.edf, StageOptions{MajorityOnly: true})
	require.NoError(t, err)
	assert.Empty(t, majority.RunID)
	for _, row := range majority.Probabilities.Values {
		zeros := 0
		for _, v := range row {
			if v == 0 {
				zeros++
			}
		}
		assert.Equal(t, 1, zeros)
	}
}

func TestService_StageReader(t *testing.T) {
	f := newFixture(t)
	f.installModel(t)

	file, err := os.Open(f.edf)
	require.NoError(t, err)
	defer file.Close()

	res, err := f.svc.StageReader("upload.edf", file, StageOptions{})
	require.NoError(t, err)
	assert.Equal(t, "upload.edf", res.Recording)
	assert.Len(t, res.Hypnogram, 20)
}

func TestService_StageMissingModel(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Stage(f.edf, StageOptions{})
	var nf *errs.ModelNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Contains(t, f.svc.GetLastError(), "Staging failed")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Runs.WithLabelValues("model_not_found")))
}

func TestService_StageUnknownChannel(t *testing.T) {
	f := newFixture(t)
	f.cfg.Channels[0].Label = "Fpz-Cz"

	_, err := f.svc.Stage(f.edf, StageOptions{})
	var ive *errs.InputValidationError
	require.True(t, errors.As(err, &ive))
	assert.Equal(t, "channel", ive.Field)
}

func TestService_RunPipeline(t *testing.T) {
	f := newFixture(t)
	f.installModel(t)

	require.NoError(t, f.svc.RunPipeline(f.edf, "fhp"))
	for _, kind := range []string{"features", "hypnogram", "probabilities"} {
		data, err := os.ReadFile(filepath.Join(f.cfg.Output.Directory, "night_1_"+kind+".csv"))
		require.NoError(t, err, kind)
		assert.Equal(t, 21, strings.Count(string(data), "\n"), kind)
	}

	runs, err := f.svc.ListRuns()
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	err = f.svc.RunPipeline(f.edf, "fx")
	assert.ErrorContains(t, err, "unknown pipeline step")
}

func TestService_ListChannels(t *testing.T) {
	f := newFixture(t)
	info, err := f.svc.ListChannels(f.edf)
	require.NoError(t, err)
	require.Len(t, info.Signals, 1)
	assert.Equal(t, "C4-M1", info.Signals[0].Label)
	assert.Equal(t, 100.0, info.Signals[0].SamplingRate)
}

func TestCleanFileName(t *testing.T) {
	assert.Equal(t, "night_1", cleanFileName("night 1"))
	assert.Equal(t, "SC4001E0-PSG", cleanFileName("SC4001E0-PSG"))
	assert.Equal(t, "ab", cleanFileName("a/b?"))
}
