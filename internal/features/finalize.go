package features

import (
	"log/slog"
	"math"
	"sort"

	"github.com/audiolibrelab/sleepstage/internal/recording"
)

// Finalize adds the temporal columns and any metadata, converts to the
// output types and sorts the columns by name.
func Finalize(f *Frame, times []float64, meta *recording.Metadata) *Table {
	rows := f.Rows()
	hour := make([]float64, rows)
	norm := make([]float64, rows)
	last := times[rows-1]
	for i := 0; i < rows; i++ {
		hour[i] = times[i] / 3600
		norm[i] = times[i] / last
	}
	f.Set("time_hour", hour)
	f.Set("time_norm", norm)

	names := f.Names()
	cols := make([]Column, 0, len(names)+2)
	for _, name := range names {
		x, _ := f.Get(name)
		c := Column{Name: name, Kind: Float32, Floats: make([]float32, rows)}
		for i, v := range x {
			c.Floats[i] = float32(v)
		}
		cols = append(cols, c)
	}

	if meta != nil && meta.Age != nil {
		cols = append(cols, constantInt("age", rows, int64(math.Trunc(*meta.Age))))
	}
	if meta != nil && meta.Male != nil {
		var v int64
		if *meta.Male {
			v = 1
		}
		cols = append(cols, constantInt("male", rows, v))
	}

	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	return NewTable(rows, cols)
}

func constantInt(name string, rows int, v int64) Column {
	c := Column{Name: name, Kind: Int64, Ints: make([]int64, rows)}
	for i := range c.Ints {
		c.Ints[i] = v
	}
	return c
}

// Compute runs extraction, smoothing and finalization for a set of
// channels sampled at sf.
func Compute(sf float64, channels []Channel, meta *recording.Metadata, opts Options) (*Table, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	frame, times, err := NewAssembler(sf, opts).Assemble(channels)
	if err != nil {
		return nil, err
	}
	Smooth(frame, opts)
	table := Finalize(frame, times, meta)
	slog.Debug("Feature table ready", "epochs", table.Rows(), "columns", table.Len())
	return table, nil
}
