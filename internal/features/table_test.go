package features

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/sleepstage/internal/errs"
)

func sampleTable() *Table {
	return NewTable(3, []Column{
		{Name: "age", Kind: Int64, Ints: []int64{40, 40, 40}},
		{Name: "eeg_std", Kind: Float32, Floats: []float32{1, 2, 3}},
		{Name: "time_hour", Kind: Float32, Floats: []float32{0, 0.5, 1}},
	})
}

func TestTable_Accessors(t *testing.T) {
	tbl := sampleTable()
	assert.Equal(t, 3, tbl.Rows())
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"age", "eeg_std", "time_hour"}, tbl.Names())
	assert.Equal(t, 2.0, tbl.Value(1, "eeg_std"))
	assert.Equal(t, 40.0, tbl.Value(2, "age"))
	assert.True(t, math.IsNaN(tbl.Value(0, "nope")))
	assert.Equal(t, []float64{40, 3, 1}, tbl.Row(2))
	assert.Len(t, tbl.Matrix(), 3)
}

func TestTable_CloneIsIndependent(t *testing.T) {
	tbl := sampleTable()
	cp := tbl.Clone()
	col, ok := cp.Column("eeg_std")
	require.True(t, ok)
	col.Floats[0] = 99

	assert.Equal(t, 1.0, tbl.Value(0, "eeg_std"))
	assert.Equal(t, 99.0, cp.Value(0, "eeg_std"))
}

func TestTable_Reindex(t *testing.T) {
	tbl := sampleTable()
	out, err := tbl.Reindex([]string{"time_hour", "age", "eeg_std"})
	require.NoError(t, err)
	assert.Equal(t, []string{"time_hour", "age", "eeg_std"}, out.Names())
	assert.Equal(t, []float64{0.5, 40, 2}, out.Row(1))
	assert.Equal(t, Int64, out.ColumnAt(1).Kind)
}

func TestTable_ReindexMismatch(t *testing.T) {
	tbl := sampleTable()

	_, err := tbl.Reindex([]string{"age", "eeg_std"})
	var fm *errs.FeatureMismatchError
	require.True(t, errors.As(err, &fm))
	assert.Empty(t, fm.ClassifierOnly)
	assert.Equal(t, []string{"time_hour"}, fm.TableOnly)

	_, err = tbl.Reindex([]string{"age", "eeg_std", "time_hour", "male"})
	require.True(t, errors.As(err, &fm))
	assert.Equal(t, []string{"male"}, fm.ClassifierOnly)
	assert.Empty(t, fm.TableOnly)
	assert.Contains(t, err.Error(), "male")
}

func TestDiff(t *testing.T) {
	assert.NoError(t, Diff([]string{"a", "b"}, []string{"b", "a"}))

	err := Diff([]string{"a", "c", "b"}, []string{"b", "d", "a"})
	var fm *errs.FeatureMismatchError
	require.True(t, errors.As(err, &fm))
	assert.Equal(t, []string{"c"}, fm.ClassifierOnly)
	assert.Equal(t, []string{"d"}, fm.TableOnly)
	assert.Empty(t, fm.Duplicated)
}

func TestDiff_RepeatedRequiredName(t *testing.T) {
	err := Diff([]string{"a", "b", "a", "a"}, []string{"a", "b"})
	var fm *errs.FeatureMismatchError
	require.True(t, errors.As(err, &fm))
	assert.Equal(t, []string{"a"}, fm.Duplicated)
	assert.Empty(t, fm.ClassifierOnly)
	assert.Empty(t, fm.TableOnly)
	assert.Contains(t, err.Error(), "more than once")
}

func TestFrame(t *testing.T) {
	f := NewFrame(2)
	f.Set("b", []float64{1, 2, 3})
	f.Set("a", []float64{4, 5})
	f.Set("b", []float64{7, 8})
	assert.Equal(t, []string{"b", "a"}, f.Names())
	b, _ := f.Get("b")
	assert.Equal(t, []float64{7, 8}, b)

	g := NewFrame(2)
	g.Merge("eeg_", f)
	assert.Equal(t, []string{"eeg_b", "eeg_a"}, g.Names())
}
