package export

import (
	"encoding/json"
	"io"
	"math"

	"github.com/audiolibrelab/sleepstage/internal/features"
	"github.com/audiolibrelab/sleepstage/internal/staging"
)

type jsonEncoder struct{}

func (jsonEncoder) Extension() string { return "json" }

// number marshals NaN and infinities as null.
type number float64

func (n number) MarshalJSON() ([]byte, error) {
	v := float64(n)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

type featureDoc struct {
	Epochs  int                 `json:"epochs"`
	Columns []string            `json:"columns"`
	Data    map[string][]number `json:"data"`
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (jsonEncoder) Features(w io.Writer, t *features.Table) error {
	doc := featureDoc{Epochs: t.Rows(), Columns: t.Names(), Data: make(map[string][]number, t.Len())}
	for j := 0; j < t.Len(); j++ {
		c := t.ColumnAt(j)
		vals := make([]number, t.Rows())
		for i := range vals {
			vals[i] = number(c.Float(i))
		}
		doc.Data[c.Name] = vals
	}
	return encode(w, doc)
}

type hypnogramEntry struct {
	Epoch      int     `json:"epoch"`
	Onset      number  `json:"onset"`
	Stage      string  `json:"stage"`
	Confidence *number `json:"confidence,omitempty"`
}

func (jsonEncoder) Hypnogram(w io.Writer, h Hypnogram) error {
	entries := make([]hypnogramEntry, len(h.Stages))
	for i, stage := range h.Stages {
		entries[i] = hypnogramEntry{Epoch: i, Onset: number(h.Onsets[i]), Stage: stage}
		if h.Confidence != nil {
			c := number(h.Confidence[i])
			entries[i].Confidence = &c
		}
	}
	return encode(w, entries)
}

type probabilityDoc struct {
	Labels []string   `json:"labels"`
	Onsets []number   `json:"onsets"`
	Values [][]number `json:"values"`
}

func (jsonEncoder) Probabilities(w io.Writer, p *staging.Probabilities, onsets []float64) error {
	doc := probabilityDoc{Labels: p.Labels, Onsets: numbers(onsets), Values: make([][]number, len(p.Values))}
	for i, row := range p.Values {
		doc.Values[i] = numbers(row)
	}
	return encode(w, doc)
}

func numbers(xs []float64) []number {
	out := make([]number, len(xs))
	for i, x := range xs {
		out[i] = number(x)
	}
	return out
}
