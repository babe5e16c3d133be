// Package staging runs sleep staging on a recording: it validates the
// inputs, builds the feature table and aligns it with a classifier.
//
// A Pipeline is not safe for concurrent use.
package staging

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/audiolibrelab/sleepstage/internal/dsp"
	"github.com/audiolibrelab/sleepstage/internal/errs"
	"github.com/audiolibrelab/sleepstage/internal/features"
	"github.com/audiolibrelab/sleepstage/internal/recording"
)

const (
	// TargetRate is the rate every channel is resampled to.
	TargetRate = 100.0
	// MinSampleRate is the lowest accepted input rate in Hz.
	MinSampleRate = 80.0
	// MinMinutes is the shortest accepted recording.
	MinMinutes = 5.0
)

// State tracks what the pipeline has computed.
type State int

const (
	Unfitted State = iota
	Fitted
	Predicted
)

func (s State) String() string {
	switch s {
	case Fitted:
		return "fitted"
	case Predicted:
		return "predicted"
	}
	return "unfitted"
}

// ChannelPick assigns a role to one channel of the recording.
type ChannelPick struct {
	Role  recording.Role
	Label string
}

// ParsePicks parses "role=label" pairs.
func ParsePicks(pairs []string) ([]ChannelPick, error) {
	picks := make([]ChannelPick, 0, len(pairs))
	for _, pair := range pairs {
		role, label, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(label) == "" {
			return nil, errs.Invalid("channel pick", pair, "expected role=label")
		}
		r, err := recording.ParseRole(role)
		if err != nil {
			return nil, errs.Invalid("role", role, "must be one of eeg, eog, emg, ecg, hr, acc")
		}
		picks = append(picks, ChannelPick{Role: r, Label: strings.TrimSpace(label)})
	}
	return picks, nil
}

// Pipeline owns the preprocessed channels of one recording and the
// feature table and predictions derived from them.
type Pipeline struct {
	picks    []ChannelPick
	channels []features.Channel
	meta     *recording.Metadata
	opts     features.Options

	state  State
	table  *features.Table
	labels []string
	proba  *Probabilities
}

// New validates the inputs, resamples every picked channel to TargetRate
// and converts electrophysiological channels from volts to microvolts.
// Exactly one EEG pick is required.
func New(rec *recording.Recording, picks []ChannelPick, meta *recording.Metadata, opts features.Options) (*Pipeline, error) {
	if rec == nil {
		return nil, errs.Invalid("recording", nil, "is required")
	}
	if err := validatePicks(rec, picks); err != nil {
		return nil, err
	}
	if rec.SamplingRate < MinSampleRate {
		return nil, errs.Invalid("sampling rate", rec.SamplingRate, "must be at least %g Hz", MinSampleRate)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	ordered := slices.Clone(picks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Role.Index() < ordered[j].Role.Index() })

	channels := make([]features.Channel, len(ordered))
	for i, pick := range ordered {
		src, _ := rec.Channel(pick.Label)
		x := dsp.Resample(src.Samples[:rec.Samples()], rec.SamplingRate, TargetRate)
		if pick.Role.Electrophysiological() {
			for k := range x {
				x[k] *= 1e6
			}
		}
		channels[i] = features.Channel{Role: pick.Role, Label: pick.Label, Samples: x}
	}

	minutes := float64(len(channels[0].Samples)) / TargetRate / 60
	if minutes < MinMinutes {
		return nil, errs.Invalid("duration", fmt.Sprintf("%.2f min", minutes), "at least %g minutes of data is required", MinMinutes)
	}

	var md *recording.Metadata
	if !meta.Empty() {
		cp := *meta
		md = &cp
	}

	slog.Debug("Pipeline ready", "channels", len(channels), "from", rec.SamplingRate, "minutes", minutes)
	return &Pipeline{picks: ordered, channels: channels, meta: md, opts: opts}, nil
}

func validatePicks(rec *recording.Recording, picks []ChannelPick) error {
	if len(picks) == 0 {
		return errs.Invalid("channels", nil, "at least an EEG channel is required")
	}
	seen := make(map[recording.Role]string)
	for _, p := range picks {
		if !p.Role.Valid() {
			return errs.Invalid("role", string(p.Role), "must be one of eeg, eog, emg, ecg, hr, acc")
		}
		if prev, dup := seen[p.Role]; dup {
			return errs.Invalid("role", string(p.Role), "assigned to both %q and %q", prev, p.Label)
		}
		seen[p.Role] = p.Label
	}
	if _, ok := seen[recording.RoleEEG]; !ok {
		return errs.Invalid("channels", nil, "an EEG channel is required")
	}
	for _, p := range picks {
		if _, ok := rec.Channel(p.Label); !ok {
			return errs.Invalid("channel", fmt.Sprintf("%q", p.Label), "not found in recording (available: %s)", strings.Join(rec.Labels(), ", "))
		}
	}
	return nil
}

func (p *Pipeline) State() State { return p.state }

func (p *Pipeline) Options() features.Options { return p.opts }

// Picks returns the channel assignment in canonical role order.
func (p *Pipeline) Picks() []ChannelPick { return slices.Clone(p.picks) }

// Request describes the pipeline's inputs for model resolution.
func (p *Pipeline) Request() ModelRequest {
	roles := make([]recording.Role, len(p.picks))
	for i, pick := range p.picks {
		roles[i] = pick.Role
	}
	return ModelRequest{Roles: roles, HasMetadata: p.meta != nil}
}

// Fit computes the feature table, discarding any earlier predictions.
func (p *Pipeline) Fit() error {
	table, err := features.Compute(TargetRate, p.channels, p.meta, p.opts)
	if err != nil {
		return err
	}
	p.table = table
	p.labels = nil
	p.proba = nil
	p.state = Fitted
	slog.Info("Features extracted", "epochs", table.Rows(), "columns", table.Len())
	return nil
}

func (p *Pipeline) ensureFitted() error {
	if p.state == Unfitted {
		return p.Fit()
	}
	return nil
}

// Features returns a copy of the feature table, fitting first if needed.
func (p *Pipeline) Features() (*features.Table, error) {
	if err := p.ensureFitted(); err != nil {
		return nil, err
	}
	return p.table.Clone(), nil
}

// FeatureNames returns the sorted column names of the feature table.
func (p *Pipeline) FeatureNames() ([]string, error) {
	if err := p.ensureFitted(); err != nil {
		return nil, err
	}
	return p.table.Names(), nil
}

// EpochOnsets returns the start of each epoch in seconds.
func (p *Pipeline) EpochOnsets() ([]float64, error) {
	if err := p.ensureFitted(); err != nil {
		return nil, err
	}
	out := make([]float64, p.table.Rows())
	for i := range out {
		out[i] = float64(i) * p.opts.EpochSeconds
	}
	return out, nil
}

// Validate checks that the classifier requires exactly the table's
// feature names, each once, in any order.
func (p *Pipeline) Validate(clf FeatureClassifier) error {
	if err := p.ensureFitted(); err != nil {
		return err
	}
	return features.Diff(clf.RequiredFeatures(), p.table.Names())
}

// Predict returns one label per epoch and caches the class probabilities.
func (p *Pipeline) Predict(clf FeatureClassifier) ([]string, error) {
	if err := p.Validate(clf); err != nil {
		return nil, err
	}
	x, err := p.table.Reindex(clf.RequiredFeatures())
	if err != nil {
		return nil, err
	}

	labels, err := clf.PredictLabels(x)
	if err != nil {
		return nil, fmt.Errorf("classifier prediction failed: %w", err)
	}
	values, err := clf.PredictProbabilities(x)
	if err != nil {
		return nil, fmt.Errorf("classifier probabilities failed: %w", err)
	}

	classes := clf.Labels()
	if len(labels) != x.Rows() || len(values) != x.Rows() {
		return nil, fmt.Errorf("classifier returned %d labels and %d probability rows for %d epochs", len(labels), len(values), x.Rows())
	}
	for i, row := range values {
		if len(row) != len(classes) {
			return nil, fmt.Errorf("classifier returned %d probabilities for epoch %d, expected %d", len(row), i, len(classes))
		}
	}

	p.labels = slices.Clone(labels)
	p.proba = &Probabilities{Labels: slices.Clone(classes), Values: values}
	p.state = Predicted
	return slices.Clone(p.labels), nil
}

// PredictProba returns the cached probabilities of the last prediction,
// predicting with clf when there are none.
func (p *Pipeline) PredictProba(clf FeatureClassifier) (*Probabilities, error) {
	if p.state != Predicted {
		if _, err := p.Predict(clf); err != nil {
			return nil, err
		}
	}
	return p.proba.Clone(), nil
}

// Hypnogram returns the cached labels of the last prediction.
func (p *Pipeline) Hypnogram() ([]string, bool) {
	if p.state != Predicted {
		return nil, false
	}
	return slices.Clone(p.labels), true
}

// PredictRef resolves ref (for example "auto" or a file path) and predicts.
func (p *Pipeline) PredictRef(res ClassifierResolver, ref string) ([]string, error) {
	clf, err := res.Resolve(ref, p.Request())
	if err != nil {
		return nil, err
	}
	return p.Predict(clf)
}

// PredictProbaRef resolves ref and returns probabilities.
func (p *Pipeline) PredictProbaRef(res ClassifierResolver, ref string) (*Probabilities, error) {
	if p.state == Predicted {
		return p.proba.Clone(), nil
	}
	clf, err := res.Resolve(ref, p.Request())
	if err != nil {
		return nil, err
	}
	return p.PredictProba(clf)
}
