package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/audiolibrelab/sleepstage/internal/features"
	"github.com/audiolibrelab/sleepstage/internal/staging"
)

// delimited writes CSV or TSV with a header row.
type delimited struct {
	comma rune
	ext   string
}

func (d delimited) Extension() string { return d.ext }

func (d delimited) writer(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = d.comma
	return cw
}

func (d delimited) Features(w io.Writer, t *features.Table) error {
	cw := d.writer(w)
	header := append([]string{"epoch"}, t.Names()...)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for i := 0; i < t.Rows(); i++ {
		record[0] = strconv.Itoa(i)
		for j := 0; j < t.Len(); j++ {
			record[j+1] = featureCell(t.ColumnAt(j), i)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (d delimited) Hypnogram(w io.Writer, h Hypnogram) error {
	cw := d.writer(w)
	header := []string{"epoch", "onset", "stage"}
	if h.Confidence != nil {
		header = append(header, "confidence")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, stage := range h.Stages {
		record := []string{strconv.Itoa(i), cell(h.Onsets[i], 64), stage}
		if h.Confidence != nil {
			record = append(record, cell(h.Confidence[i], 64))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (d delimited) Probabilities(w io.Writer, p *staging.Probabilities, onsets []float64) error {
	cw := d.writer(w)
	header := append([]string{"epoch", "onset"}, p.Labels...)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for i, row := range p.Values {
		record[0] = strconv.Itoa(i)
		record[1] = cell(onsets[i], 64)
		for c, v := range row {
			record[c+2] = cell(v, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
