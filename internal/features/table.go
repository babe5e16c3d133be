package features

import (
	"math"
	"slices"
	"sort"

	"github.com/audiolibrelab/sleepstage/internal/errs"
)

// Kind is the storage type of a column.
type Kind int

const (
	Float32 Kind = iota
	Int64
)

func (k Kind) String() string {
	if k == Int64 {
		return "int64"
	}
	return "float32"
}

// Column is one named feature. Exactly one of Floats and Ints is set,
// according to Kind.
type Column struct {
	Name   string
	Kind   Kind
	Floats []float32
	Ints   []int64
}

// Float returns row i as float64.
func (c *Column) Float(i int) float64 {
	if c.Kind == Int64 {
		return float64(c.Ints[i])
	}
	return float64(c.Floats[i])
}

func (c *Column) clone() Column {
	out := Column{Name: c.Name, Kind: c.Kind}
	if c.Floats != nil {
		out.Floats = slices.Clone(c.Floats)
	}
	if c.Ints != nil {
		out.Ints = slices.Clone(c.Ints)
	}
	return out
}

// Table is an epoch-indexed feature table with an explicit column order.
type Table struct {
	rows   int
	cols   []Column
	byName map[string]int
}

// NewTable builds a table from columns of equal length.
func NewTable(rows int, cols []Column) *Table {
	t := &Table{rows: rows, cols: cols, byName: make(map[string]int, len(cols))}
	for i, c := range cols {
		t.byName[c.Name] = i
	}
	return t
}

func (t *Table) Rows() int { return t.rows }

func (t *Table) Len() int { return len(t.cols) }

// Names returns the column names in table order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column. The column shares storage with the
// table; callers that keep it should Clone the table first.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return &t.cols[i], true
}

// ColumnAt returns the i-th column.
func (t *Table) ColumnAt(i int) *Column { return &t.cols[i] }

// Value returns the value at (row, name), or NaN if the column is absent.
func (t *Table) Value(row int, name string) float64 {
	c, ok := t.Column(name)
	if !ok {
		return math.NaN()
	}
	return c.Float(row)
}

// Row returns one row in column order.
func (t *Table) Row(i int) []float64 {
	out := make([]float64, len(t.cols))
	for j := range t.cols {
		out[j] = t.cols[j].Float(i)
	}
	return out
}

// Matrix returns the table as rows of float64 in column order.
func (t *Table) Matrix() [][]float64 {
	out := make([][]float64, t.rows)
	for i := range out {
		out[i] = t.Row(i)
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	cols := make([]Column, len(t.cols))
	for i := range t.cols {
		cols[i] = t.cols[i].clone()
	}
	return NewTable(t.rows, cols)
}

// Reindex returns a copy whose columns follow names exactly. Any name
// missing from the table, or any table column not listed, is an error.
func (t *Table) Reindex(names []string) (*Table, error) {
	if err := Diff(names, t.Names()); err != nil {
		return nil, err
	}
	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = t.cols[t.byName[name]].clone()
	}
	return NewTable(t.rows, cols), nil
}

// Diff compares the names a consumer requires with the names available
// and returns a FeatureMismatchError listing both sides of the symmetric
// difference and any repeated required name, or nil when required lists
// each available name exactly once.
func Diff(required, available []string) error {
	req := make(map[string]bool, len(required))
	var dup []string
	for _, n := range required {
		if req[n] && !slices.Contains(dup, n) {
			dup = append(dup, n)
		}
		req[n] = true
	}
	avail := make(map[string]bool, len(available))
	for _, n := range available {
		avail[n] = true
	}

	var missing, extra []string
	for n := range req {
		if !avail[n] {
			missing = append(missing, n)
		}
	}
	for n := range avail {
		if !req[n] {
			extra = append(extra, n)
		}
	}
	if len(missing) == 0 && len(extra) == 0 && len(dup) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	sort.Strings(dup)
	return &errs.FeatureMismatchError{ClassifierOnly: missing, TableOnly: extra, Duplicated: dup}
}
