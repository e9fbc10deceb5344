package tabular

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/potok/core"
)

func sample() *Frame {
	return MustFrame(
		core.Index{"a", "b", "c", "d"},
		[]string{"x1", "x2", "y"},
		[][]float64{{1, 10, 0}, {2, 20, 1}, {3, 30, 0}, {4, 40, 1}},
		"y",
	)
}

func TestNewFrame_Validation(t *testing.T) {
	tests := []struct {
		name    string
		index   core.Index
		columns []string
		rows    [][]float64
		targets []string
		check   func(error) bool
	}{
		{name: "row count", index: core.Index{"a"}, columns: []string{"x"}, rows: nil, check: core.IsShapeMismatch},
		{name: "row width", index: core.Index{"a"}, columns: []string{"x"}, rows: [][]float64{{1, 2}}, check: core.IsShapeMismatch},
		{name: "duplicate column", index: core.Index{"a"}, columns: []string{"x", "x"}, rows: [][]float64{{1, 2}}, check: core.IsInvalidInput},
		{name: "unknown target", index: core.Index{"a"}, columns: []string{"x"}, rows: [][]float64{{1}}, targets: []string{"y"}, check: core.IsInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrame(tt.index, tt.columns, tt.rows, tt.targets...)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestFrame_CopiesInput(t *testing.T) {
	rows := [][]float64{{1}, {2}}
	f := MustFrame(core.Index{"a", "b"}, []string{"x"}, rows)
	rows[0][0] = 99
	col, err := f.Column("x")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, col)
}

func TestFrame_FeaturesTargets(t *testing.T) {
	f := sample()
	assert.Equal(t, []string{"x1", "x2"}, f.FeatureColumns())

	x, err := f.Features()
	require.NoError(t, err)
	assert.Equal(t, []string{"x1", "x2"}, x.(*Frame).Columns())
	assert.Empty(t, x.(*Frame).TargetColumns())

	y, err := f.Targets()
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, y.(*Frame).Columns())
	assert.Equal(t, []string{"y"}, y.(*Frame).TargetColumns())
	assert.Equal(t, f.Index(), y.Index())

	sel, err := f.SelectColumns([]string{"y", "x1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x1"}, sel.Columns())
	assert.Equal(t, []string{"y"}, sel.TargetColumns())
	_, err = f.SelectColumns([]string{"nope"})
	assert.True(t, core.IsInvalidInput(err))
}

func TestFrame_SelectByIndex(t *testing.T) {
	f := sample()

	sel, err := f.SelectByIndex(core.Index{"d", "b"})
	require.NoError(t, err)
	assert.Equal(t, core.Index{"b", "d"}, sel.Index(), "container order is kept")

	same, err := f.SelectByIndex(f.Index())
	require.NoError(t, err)
	assert.True(t, f.Equal(same.(*Frame)))

	_, err = f.SelectByIndex(core.Index{"a", "z"})
	assert.True(t, core.IsOutOfRange(err))
}

func TestFrame_Reindex(t *testing.T) {
	f := sample()

	re, err := f.Reindex(core.Index{"c", "a", "c"})
	require.NoError(t, err)
	assert.Equal(t, core.Index{"c", "a", "c"}, re.Index())
	col, err := re.(*Frame).Column("x1")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 3}, col)

	same, err := f.Reindex(f.Index())
	require.NoError(t, err)
	assert.True(t, f.Equal(same.(*Frame)))

	_, err = f.Reindex(core.Index{"z"})
	assert.True(t, core.IsOutOfRange(err))
}

func TestFrame_Combine(t *testing.T) {
	f := sample()
	head, _ := f.SelectByIndex(core.Index{"a", "b"})
	tail, _ := f.SelectByIndex(core.Index{"c", "d"})

	all, err := core.Combine([]core.Data{head, tail})
	require.NoError(t, err)
	assert.True(t, f.Equal(all.(*Frame)))

	one, err := core.Combine([]core.Data{f})
	require.NoError(t, err)
	assert.True(t, f.Equal(one.(*Frame)))

	x, _ := f.Features()
	_, err = core.Combine([]core.Data{f, x})
	assert.True(t, core.IsShapeMismatch(err))

	// 同列但目标标记不同
	unmarked := MustFrame(core.Index{"e"}, f.Columns(), [][]float64{make([]float64, len(f.Columns()))})
	_, err = core.Combine([]core.Data{f, unmarked})
	assert.True(t, core.IsShapeMismatch(err))
}

func TestFrame_Mean(t *testing.T) {
	a := MustFrame(core.Index{"p", "q"}, []string{"y"}, [][]float64{{1}, {3}})
	b := MustFrame(core.Index{"q", "p"}, []string{"y"}, [][]float64{{5}, {3}})

	m, err := core.Mean([]core.Data{a, b})
	require.NoError(t, err)
	assert.Equal(t, core.Index{"p", "q"}, m.Index())
	col, _ := m.(*Frame).Column("y")
	assert.Equal(t, []float64{2, 4}, col)

	c := MustFrame(core.Index{"p", "r"}, []string{"y"}, [][]float64{{1}, {3}})
	_, err = core.Mean([]core.Data{a, c})
	assert.True(t, core.IsShapeMismatch(err))
}

func TestFrame_WithColumn(t *testing.T) {
	f := sample()

	g, err := f.WithColumn("x3", []float64{0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"x1", "x2", "y", "x3"}, g.Columns())
	assert.Len(t, f.Columns(), 3, "original frame is unchanged")

	h, err := f.WithColumn("x1", []float64{9, 9, 9, 9})
	require.NoError(t, err)
	col, _ := h.Column("x1")
	assert.Equal(t, []float64{9, 9, 9, 9}, col)

	_, err = f.WithColumn("x4", []float64{1})
	assert.True(t, core.IsShapeMismatch(err))
}

func TestCSV_RoundTrip(t *testing.T) {
	in := "id,x1,x2,y\nu1,1,,0\nu2,2.5,nan,1\nu3,-3,4,\n"

	f, err := ReadCSV(strings.NewReader(in), "id", "y")
	require.NoError(t, err)
	assert.Equal(t, core.Index{"u1", "u2", "u3"}, f.Index())
	assert.Equal(t, []string{"x1", "x2", "y"}, f.Columns())
	assert.Equal(t, []string{"y"}, f.TargetColumns())
	x2, _ := f.Column("x2")
	assert.True(t, math.IsNaN(x2[0]))
	assert.True(t, math.IsNaN(x2[1]))
	assert.Equal(t, 4.0, x2[2])

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, f, "id"))
	back, err := ReadCSV(&buf, "id", "y")
	require.NoError(t, err)
	assert.True(t, f.Equal(back))
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1,2\n"), "id")
	assert.True(t, core.IsInvalidInput(err))

	_, err = ReadCSV(strings.NewReader("id,a\nr1,abc\n"), "id")
	assert.Error(t, err)

	f, err := ReadCSV(strings.NewReader("a,b\n1,2\n3,4\n"), "")
	require.NoError(t, err)
	assert.Equal(t, core.Index{"0", "1"}, f.Index())
}
