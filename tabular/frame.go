// Package tabular 提供 core.Data 的表格实现：按行索引的 float64 表。
package tabular

import (
	"fmt"
	"math"
	"slices"

	"github.com/rushteam/potok/core"
)

// Frame 是行索引的数值表，列分为特征列与目标列。
// Frame 不可变，所有操作返回新的 Frame。
type Frame struct {
	index   core.Index
	columns []string
	targets []string
	rows    [][]float64
	pos     map[string]int
}

// NewFrame 构建 Frame，targets 必须是 columns 的子集。
func NewFrame(index core.Index, columns []string, rows [][]float64, targets ...string) (*Frame, error) {
	if len(rows) != len(index) {
		return nil, core.ShapeMismatchf(core.ModuleData, "tabular: %d rows for %d index keys", len(rows), len(index))
	}
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, dup := seen[c]; dup {
			return nil, core.InvalidInputf(core.ModuleData, "tabular: duplicate column %q", c)
		}
		seen[c] = struct{}{}
	}
	for _, t := range targets {
		if _, ok := seen[t]; !ok {
			return nil, core.InvalidInputf(core.ModuleData, "tabular: target %q is not a column", t)
		}
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, core.ShapeMismatchf(core.ModuleData, "tabular: row %d has %d values, want %d", i, len(r), len(columns))
		}
	}
	return newFrame(slices.Clone(index), slices.Clone(columns), slices.Clone(targets), cloneRows(rows)), nil
}

// MustFrame 与 NewFrame 相同，出错时 panic。
func MustFrame(index core.Index, columns []string, rows [][]float64, targets ...string) *Frame {
	f, err := NewFrame(index, columns, rows, targets...)
	if err != nil {
		panic(err)
	}
	return f
}

func cloneRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out
}

func newFrame(index core.Index, columns, targets []string, rows [][]float64) *Frame {
	pos := make(map[string]int, len(index))
	for i := len(index) - 1; i >= 0; i-- {
		pos[index[i]] = i
	}
	return &Frame{index: index, columns: columns, targets: targets, rows: rows, pos: pos}
}

// Len 返回行数。
func (f *Frame) Len() int { return len(f.rows) }

// Columns 返回列名。
func (f *Frame) Columns() []string { return slices.Clone(f.columns) }

// TargetColumns 返回目标列名。
func (f *Frame) TargetColumns() []string { return slices.Clone(f.targets) }

// FeatureColumns 返回非目标列名。
func (f *Frame) FeatureColumns() []string {
	out := make([]string, 0, len(f.columns))
	for _, c := range f.columns {
		if !slices.Contains(f.targets, c) {
			out = append(out, c)
		}
	}
	return out
}

// Row 返回第 i 行的副本。
func (f *Frame) Row(i int) []float64 { return slices.Clone(f.rows[i]) }

// RowMap 返回第 i 行的 column -> value。
func (f *Frame) RowMap(i int) map[string]float64 {
	m := make(map[string]float64, len(f.columns))
	for j, c := range f.columns {
		m[c] = f.rows[i][j]
	}
	return m
}

// Column 返回整列数据。
func (f *Frame) Column(name string) ([]float64, error) {
	j := slices.Index(f.columns, name)
	if j < 0 {
		return nil, core.InvalidInputf(core.ModuleData, "tabular: unknown column %q", name)
	}
	out := make([]float64, len(f.rows))
	for i, r := range f.rows {
		out[i] = r[j]
	}
	return out, nil
}

// Matrix 按 cols 顺序取出行主序矩阵。
func (f *Frame) Matrix(cols []string) ([][]float64, error) {
	js := make([]int, len(cols))
	for k, c := range cols {
		j := slices.Index(f.columns, c)
		if j < 0 {
			return nil, core.InvalidInputf(core.ModuleData, "tabular: unknown column %q", c)
		}
		js[k] = j
	}
	out := make([][]float64, len(f.rows))
	for i, r := range f.rows {
		row := make([]float64, len(js))
		for k, j := range js {
			row[k] = r[j]
		}
		out[i] = row
	}
	return out, nil
}

// WithColumn 返回新增（或覆盖）一列后的 Frame，该列为特征列。
func (f *Frame) WithColumn(name string, values []float64) (*Frame, error) {
	if len(values) != len(f.rows) {
		return nil, core.ShapeMismatchf(core.ModuleData, "tabular: column %q has %d values, want %d", name, len(values), len(f.rows))
	}
	j := slices.Index(f.columns, name)
	columns := slices.Clone(f.columns)
	if j < 0 {
		columns = append(columns, name)
	}
	rows := make([][]float64, len(f.rows))
	for i, r := range f.rows {
		row := slices.Clone(r)
		if j < 0 {
			row = append(row, values[i])
		} else {
			row[j] = values[i]
		}
		rows[i] = row
	}
	return newFrame(slices.Clone(f.index), columns, slices.Clone(f.targets), rows), nil
}

func (f *Frame) project(cols, targets []string) *Frame {
	m, _ := f.Matrix(cols)
	return newFrame(slices.Clone(f.index), slices.Clone(cols), targets, m)
}

// SelectColumns 按 cols 顺序取出若干列，保留其中的目标列标记。
func (f *Frame) SelectColumns(cols []string) (*Frame, error) {
	if _, err := f.Matrix(cols); err != nil {
		return nil, err
	}
	var targets []string
	for _, c := range cols {
		if slices.Contains(f.targets, c) {
			targets = append(targets, c)
		}
	}
	return f.project(cols, targets), nil
}

// Features 返回只含特征列的 Frame。
func (f *Frame) Features() (core.Data, error) {
	return f.project(f.FeatureColumns(), nil), nil
}

// Targets 返回只含目标列的 Frame。
func (f *Frame) Targets() (core.Data, error) {
	return f.project(f.targets, slices.Clone(f.targets)), nil
}

// Index 返回行索引。
func (f *Frame) Index() core.Index { return slices.Clone(f.index) }

// SelectByIndex 按容器原有顺序保留 idx 中的行，idx 中有不存在的 key 时返回 OUT_OF_RANGE。
func (f *Frame) SelectByIndex(idx core.Index) (core.Data, error) {
	want := idx.Set()
	for k := range want {
		if _, ok := f.pos[k]; !ok {
			return nil, core.OutOfRangef(core.ModuleData, "tabular: key %q not in index", k)
		}
	}
	index := make(core.Index, 0, len(want))
	rows := make([][]float64, 0, len(want))
	for i, k := range f.index {
		if _, ok := want[k]; ok {
			index = append(index, k)
			rows = append(rows, slices.Clone(f.rows[i]))
		}
	}
	return newFrame(index, slices.Clone(f.columns), slices.Clone(f.targets), rows), nil
}

// Reindex 按 idx 重排（可重复），输出 Index 严格等于 idx。
func (f *Frame) Reindex(idx core.Index) (core.Data, error) {
	rows := make([][]float64, len(idx))
	for i, k := range idx {
		p, ok := f.pos[k]
		if !ok {
			return nil, core.OutOfRangef(core.ModuleData, "tabular: key %q not in index", k)
		}
		rows[i] = slices.Clone(f.rows[p])
	}
	return newFrame(slices.Clone(idx), slices.Clone(f.columns), slices.Clone(f.targets), rows), nil
}

func asFrames(datas []core.Data) ([]*Frame, error) {
	frames := make([]*Frame, len(datas))
	for i, d := range datas {
		fr, ok := d.(*Frame)
		if !ok {
			return nil, core.KindMismatchf(core.ModuleData, "tabular: input %d is %s, want *tabular.Frame", i, core.KindName(d))
		}
		if i > 0 && !slices.Equal(fr.columns, frames[0].columns) {
			return nil, core.ShapeMismatchf(core.ModuleData, "tabular: input %d columns %v differ from %v", i, fr.columns, frames[0].columns)
		}
		if i > 0 && !sameTargets(fr.targets, frames[0].targets) {
			return nil, core.ShapeMismatchf(core.ModuleData, "tabular: input %d targets %v differ from %v", i, fr.targets, frames[0].targets)
		}
		frames[i] = fr
	}
	return frames, nil
}

func sameTargets(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// Combine 按行拼接同列的 Frame。
func (f *Frame) Combine(datas []core.Data) (core.Data, error) {
	frames, err := asFrames(datas)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, core.InvalidInputf(core.ModuleData, "tabular: nothing to combine")
	}
	var (
		index core.Index
		rows  [][]float64
	)
	for _, fr := range frames {
		index = append(index, fr.index...)
		for _, r := range fr.rows {
			rows = append(rows, slices.Clone(r))
		}
	}
	return newFrame(index, slices.Clone(frames[0].columns), slices.Clone(frames[0].targets), rows), nil
}

// Mean 对同列、同 key 集合的 Frame 逐元素求均值，结果按第一个 Frame 的 Index 排列。
func (f *Frame) Mean(datas []core.Data) (core.Data, error) {
	frames, err := asFrames(datas)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, core.InvalidInputf(core.ModuleData, "tabular: nothing to average")
	}
	base := frames[0]
	sum := make([][]float64, len(base.rows))
	for i, r := range base.rows {
		sum[i] = slices.Clone(r)
	}
	for k, fr := range frames[1:] {
		if !fr.index.SameKeys(base.index) || fr.Len() != base.Len() {
			return nil, core.ShapeMismatchf(core.ModuleData, "tabular: input %d index differs from input 0", k+1)
		}
		aligned, err := fr.Reindex(base.index)
		if err != nil {
			return nil, err
		}
		for i, r := range aligned.(*Frame).rows {
			for j, v := range r {
				sum[i][j] += v
			}
		}
	}
	n := float64(len(frames))
	for _, r := range sum {
		for j := range r {
			r[j] /= n
		}
	}
	return newFrame(slices.Clone(base.index), slices.Clone(base.columns), slices.Clone(base.targets), sum), nil
}

// Equal 判断两个 Frame 的索引、列与数值是否完全相同（NaN 视为相等）。
func (f *Frame) Equal(other *Frame) bool {
	if other == nil {
		return false
	}
	if !f.index.Equal(other.index) || !slices.Equal(f.columns, other.columns) || !slices.Equal(f.targets, other.targets) {
		return false
	}
	for i, r := range f.rows {
		for j, v := range r {
			w := other.rows[i][j]
			if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
				return false
			}
		}
	}
	return true
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame(rows=%d, columns=%v, targets=%v)", len(f.rows), f.columns, f.targets)
}

var (
	_ core.Data     = (*Frame)(nil)
	_ core.Averager = (*Frame)(nil)
)
