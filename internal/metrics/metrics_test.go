package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/audiolibrelab/sleepstage/internal/errs"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.AddEpochs(20)
	m.AddEpochs(10)
	assert.Equal(t, 30.0, testutil.ToFloat64(m.EpochsProcessed))

	m.RecordRun(nil)
	m.RecordRun(fmt.Errorf("predict: %w", &errs.FeatureMismatchError{TableOnly: []string{"eeg_std"}}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("feature_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeatureMismatches))

	m.ObserveStep(StepFit, time.Now())
	assert.Equal(t, 1, testutil.CollectAndCount(m.StepDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AddEpochs(1)
		m.RecordRun(nil)
		m.ObserveStep(StepPredict, time.Now())
	})
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "invalid_input", Outcome(errs.Invalid("age", 130.0, "out of range")))
	assert.Equal(t, "model_not_found", Outcome(&errs.ModelNotFoundError{Path: "m.yaml"}))
	assert.Equal(t, "data_quality", Outcome(&errs.DataQualityError{Channel: "C4-M1", Stage: "input"}))
	assert.Equal(t, "error", Outcome(fmt.Errorf("boom")))
}
