// Package features turns preprocessed channels into the per-epoch feature
// table consumed by the sleep-stage classifier.
package features

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"github.com/sourcegraph/conc/pool"

	"github.com/audiolibrelab/sleepstage/internal/dsp"
	"github.com/audiolibrelab/sleepstage/internal/errs"
	"github.com/audiolibrelab/sleepstage/internal/recording"
)

const (
	permOrder   = 3
	permDelay   = 1
	higuchiKmax = 10
	welchSecs   = 5
)

// Options controls epoching and smoothing.
type Options struct {
	EpochSeconds    float64
	CenteredMinutes float64
	PastMinutes     float64
	// Workers bounds the number of channels processed at once. Zero means
	// GOMAXPROCS.
	Workers int
}

func DefaultOptions() Options {
	return Options{EpochSeconds: 30, CenteredMinutes: 5, PastMinutes: 5}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.EpochSeconds < 5 || o.EpochSeconds > 30 {
		return errs.Invalid("epoch length", o.EpochSeconds, "must be between 5 and 30 seconds")
	}
	if o.CenteredMinutes <= 0 {
		return errs.Invalid("centered smoothing window", o.CenteredMinutes, "must be positive")
	}
	if o.PastMinutes <= 0 {
		return errs.Invalid("past smoothing window", o.PastMinutes, "must be positive")
	}
	return nil
}

// Channel is one preprocessed input: samples at the assembler's rate, in
// microvolts for electrophysiological roles.
type Channel struct {
	Role    recording.Role
	Label   string
	Samples []float64
}

// Assembler extracts and merges per-channel features.
type Assembler struct {
	SampleRate float64
	Options    Options
}

func NewAssembler(sf float64, opts Options) *Assembler {
	return &Assembler{SampleRate: sf, Options: opts}
}

// ColumnNames lists the unprefixed base features computed for a role.
func ColumnNames(role recording.Role) []string {
	names := []string{"std", "iqr", "skew", "kurt", "nzc", "hmob", "hcomp"}
	if role.Spectral() {
		for _, b := range Bands {
			names = append(names, b.Name)
		}
	}
	if role == recording.RoleEEG {
		names = append(names, "dt", "ds", "db", "at")
	}
	names = append(names, "abspow", "perm", "higuchi", "petrosian")
	if role == recording.RoleHR {
		names = append(names, "mean", "rmssd")
	}
	return names
}

// Extract computes the base features of one channel. The returned frame
// uses unprefixed names; times holds the start of each epoch in seconds.
func (a *Assembler) Extract(ch Channel) (frame *Frame, times []float64, err error) {
	x := ch.Samples
	if ch.Role.Electrophysiological() {
		bp, err := dsp.NewBandpass(a.SampleRate, Broadband.Low, Broadband.High)
		if err != nil {
			return nil, nil, err
		}
		x = bp.Apply(x)
		if i := dsp.FirstNonFinite(x); i >= 0 {
			return nil, nil, &errs.DataQualityError{
				Channel: ch.Label,
				Stage:   "filter",
				Detail:  fmt.Sprintf("non-finite value at sample %d", i),
			}
		}
	} else if i := dsp.FirstNonFinite(x); i >= 0 {
		return nil, nil, &errs.DataQualityError{
			Channel: ch.Label,
			Stage:   "input",
			Detail:  fmt.Sprintf("non-finite value at sample %d", i),
		}
	}

	times, epochs := dsp.Epochs(x, a.SampleRate, a.Options.EpochSeconds)
	n := len(epochs)
	spe := dsp.SamplesPerEpoch(a.SampleRate, a.Options.EpochSeconds)
	welch := dsp.NewWelch(a.SampleRate, min(int(math.Round(welchSecs*a.SampleRate)), spe))
	freqs := welch.Freqs()

	cols := make(map[string][]float64)
	names := ColumnNames(ch.Role)
	for _, name := range names {
		cols[name] = make([]float64, n)
	}

	for i, e := range epochs {
		cols["std"][i] = Std(e)
		cols["iqr"][i] = IQR(e)
		cols["skew"][i] = Skew(e)
		cols["kurt"][i] = Kurt(e)
		cols["nzc"][i] = ZeroCrossings(e)
		cols["hmob"][i] = Mobility(e)
		cols["hcomp"][i] = Complexity(e)

		psd := welch.PSD(e)
		if ch.Role.Spectral() {
			for j, p := range RelativeBandPowers(freqs, psd, Bands) {
				cols[Bands[j].Name][i] = p
			}
		}
		if ch.Role == recording.RoleEEG {
			delta := cols["sdelta"][i] + cols["fdelta"][i]
			cols["dt"][i] = delta / cols["theta"][i]
			cols["ds"][i] = delta / cols["sigma"][i]
			cols["db"][i] = delta / cols["beta"][i]
			cols["at"][i] = cols["alpha"][i] / cols["theta"][i]
		}
		cols["abspow"][i] = AbsolutePower(freqs, psd, Broadband)
		cols["perm"][i] = PermEntropy(e, permOrder, permDelay)
		cols["higuchi"][i] = Higuchi(e, higuchiKmax)
		cols["petrosian"][i] = Petrosian(e)
		if ch.Role == recording.RoleHR {
			cols["mean"][i] = Mean(e)
			cols["rmssd"][i] = RMSSD(e)
		}
	}

	frame = NewFrame(n)
	for _, name := range names {
		frame.Set(name, cols[name])
	}
	return frame, times, nil
}

// Assemble extracts every channel concurrently and merges the results
// into one frame with columns named <role>_<feature>. All channels are
// truncated to the smallest epoch count.
func (a *Assembler) Assemble(channels []Channel) (*Frame, []float64, error) {
	if len(channels) == 0 {
		return nil, nil, errs.Invalid("channels", nil, "at least one channel is required")
	}

	workers := a.Options.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	frames := make([]*Frame, len(channels))
	times := make([][]float64, len(channels))
	p := pool.New().WithMaxGoroutines(workers).WithErrors().WithFirstError()
	for i, ch := range channels {
		p.Go(func() error {
			f, t, err := a.Extract(ch)
			if err != nil {
				return fmt.Errorf("channel %s (%s): %w", ch.Label, ch.Role, err)
			}
			frames[i], times[i] = f, t
			slog.Debug("Extracted channel features", "channel", ch.Label, "role", ch.Role, "epochs", f.Rows())
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, nil, err
	}

	shortest := 0
	for i := range frames {
		if frames[i].Rows() < frames[shortest].Rows() {
			shortest = i
		}
	}
	rows := frames[shortest].Rows()
	if rows == 0 {
		return nil, nil, errs.Invalid("recording", nil, "shorter than one %g s epoch", a.Options.EpochSeconds)
	}

	merged := NewFrame(rows)
	for i, ch := range channels {
		merged.Merge(string(ch.Role)+"_", frames[i])
	}
	return merged, times[shortest][:rows], nil
}
