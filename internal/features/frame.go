package features

import "slices"

// Frame is the float64 working set the assembler and smoother operate on
// before the table is finalized. Column order is insertion order.
type Frame struct {
	rows  int
	names []string
	data  map[string][]float64
}

func NewFrame(rows int) *Frame {
	return &Frame{rows: rows, data: make(map[string][]float64)}
}

func (f *Frame) Rows() int { return f.rows }

func (f *Frame) Names() []string { return slices.Clone(f.names) }

// Set adds or replaces a column. Values beyond the frame's row count are
// ignored.
func (f *Frame) Set(name string, values []float64) {
	if _, ok := f.data[name]; !ok {
		f.names = append(f.names, name)
	}
	f.data[name] = values[:min(len(values), f.rows)]
}

func (f *Frame) Get(name string) ([]float64, bool) {
	v, ok := f.data[name]
	return v, ok
}

// Merge copies every column of other into f under prefix+name.
func (f *Frame) Merge(prefix string, other *Frame) {
	for _, name := range other.names {
		f.Set(prefix+name, other.data[name])
	}
}
