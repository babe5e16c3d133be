// Package metrics holds the Prometheus collectors for staging runs. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/audiolibrelab/sleepstage/internal/errs"
)

const (
	StepFit     = "fit"
	StepPredict = "predict"
)

type Metrics struct {
	StepDuration      *prometheus.HistogramVec
	EpochsProcessed   prometheus.Counter
	Runs              *prometheus.CounterVec
	FeatureMismatches prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sleepstage",
				Subsystem: "pipeline",
				Name:      "step_duration_seconds",
				Help:      "Time spent in each pipeline step",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"step"},
		),
		EpochsProcessed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sleepstage",
				Subsystem: "pipeline",
				Name:      "epochs_total",
				Help:      "Total number of epochs featurized",
			},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sleepstage",
				Subsystem: "service",
				Name:      "runs_total",
				Help:      "Total number of staging runs by outcome",
			},
			[]string{"outcome"},
		),
		FeatureMismatches: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sleepstage",
				Subsystem: "pipeline",
				Name:      "feature_mismatches_total",
				Help:      "Total number of classifier/table feature mismatches",
			},
		),
	}
}

// ObserveStep records the duration of a step started at start.
func (m *Metrics) ObserveStep(step string, start time.Time) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddEpochs(n int) {
	if m == nil {
		return
	}
	m.EpochsProcessed.Add(float64(n))
}

// RecordRun counts a finished run under an outcome derived from err.
func (m *Metrics) RecordRun(err error) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(Outcome(err)).Inc()
	var fm *errs.FeatureMismatchError
	if errors.As(err, &fm) {
		m.FeatureMismatches.Inc()
	}
}

// Outcome classifies an error for the runs counter.
func Outcome(err error) string {
	var (
		ive *errs.InputValidationError
		fm  *errs.FeatureMismatchError
		nf  *errs.ModelNotFoundError
		dq  *errs.DataQualityError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &ive):
		return "invalid_input"
	case errors.As(err, &fm):
		return "feature_mismatch"
	case errors.As(err, &nf):
		return "model_not_found"
	case errors.As(err, &dq):
		return "data_quality"
	default:
		return "error"
	}
}
