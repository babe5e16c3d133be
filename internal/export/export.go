// Package export writes feature tables, hypnograms and probability tables
// in the formats selectable through output.format.
package export

import (
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/audiolibrelab/sleepstage/internal/features"
	"github.com/audiolibrelab/sleepstage/internal/staging"
)

// Hypnogram is one predicted stage per epoch.
type Hypnogram struct {
	Onsets     []float64 // seconds from recording start
	Stages     []string
	Confidence []float64 // optional
}

// Encoder writes each kind of pipeline output in one format.
type Encoder interface {
	Extension() string
	Features(w io.Writer, t *features.Table) error
	Hypnogram(w io.Writer, h Hypnogram) error
	Probabilities(w io.Writer, p *staging.Probabilities, onsets []float64) error
}

var encoders = map[string]Encoder{}

// Register adds or replaces the encoder for a format name.
func Register(format string, enc Encoder) { encoders[format] = enc }

func init() {
	Register("csv", delimited{comma: ',', ext: "csv"})
	Register("tsv", delimited{comma: '\t', ext: "tsv"})
	Register("json", jsonEncoder{})
}

func Lookup(format string) (Encoder, bool) {
	enc, ok := encoders[format]
	return enc, ok
}

// Formats lists registered format names in sorted order.
func Formats() []string {
	return slices.Sorted(maps.Keys(encoders))
}

func get(format string) (Encoder, error) {
	enc, ok := encoders[format]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (no encoder registered)", format)
	}
	return enc, nil
}

func WriteFeatures(format string, w io.Writer, t *features.Table) error {
	enc, err := get(format)
	if err != nil {
		return err
	}
	return enc.Features(w, t)
}

func WriteHypnogram(format string, w io.Writer, h Hypnogram) error {
	enc, err := get(format)
	if err != nil {
		return err
	}
	if len(h.Onsets) != len(h.Stages) {
		return fmt.Errorf("hypnogram has %d onsets for %d stages", len(h.Onsets), len(h.Stages))
	}
	if h.Confidence != nil && len(h.Confidence) != len(h.Stages) {
		return fmt.Errorf("hypnogram has %d confidence values for %d stages", len(h.Confidence), len(h.Stages))
	}
	return enc.Hypnogram(w, h)
}

func WriteProbabilities(format string, w io.Writer, p *staging.Probabilities, onsets []float64) error {
	enc, err := get(format)
	if err != nil {
		return err
	}
	if len(onsets) != p.Rows() {
		return fmt.Errorf("probabilities have %d rows for %d onsets", p.Rows(), len(onsets))
	}
	return enc.Probabilities(w, p, onsets)
}

// cell formats a float for text output. NaN and infinities become an
// empty cell.
func cell(v float64, bits int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, bits)
}

func featureCell(c *features.Column, i int) string {
	if c.Kind == features.Int64 {
		return strconv.FormatInt(c.Ints[i], 10)
	}
	return cell(float64(c.Floats[i]), 32)
}
