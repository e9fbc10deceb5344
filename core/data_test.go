package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vec 是测试用的最小 Data：每个 key 一个数值。
type vec struct {
	idx  Index
	vals []float64
}

func newVec(keys ...string) *vec {
	v := &vec{idx: Index(keys), vals: make([]float64, len(keys))}
	for i := range keys {
		v.vals[i] = float64(i)
	}
	return v
}

func (v *vec) Features() (Data, error) { return v, nil }
func (v *vec) Targets() (Data, error)  { return v, nil }
func (v *vec) Index() Index            { return append(Index(nil), v.idx...) }

func (v *vec) pos(k string) (int, bool) {
	for i, key := range v.idx {
		if key == k {
			return i, true
		}
	}
	return 0, false
}

func (v *vec) SelectByIndex(idx Index) (Data, error) {
	want := idx.Set()
	out := &vec{}
	for k := range want {
		if _, ok := v.pos(k); !ok {
			return nil, OutOfRangef(ModuleData, "vec: %q", k)
		}
	}
	for i, k := range v.idx {
		if _, ok := want[k]; ok {
			out.idx = append(out.idx, k)
			out.vals = append(out.vals, v.vals[i])
		}
	}
	return out, nil
}

func (v *vec) Reindex(idx Index) (Data, error) {
	out := &vec{}
	for _, k := range idx {
		p, ok := v.pos(k)
		if !ok {
			return nil, OutOfRangef(ModuleData, "vec: %q", k)
		}
		out.idx = append(out.idx, k)
		out.vals = append(out.vals, v.vals[p])
	}
	return out, nil
}

func (v *vec) Combine(datas []Data) (Data, error) {
	out := &vec{}
	for _, d := range datas {
		o := d.(*vec)
		out.idx = append(out.idx, o.idx...)
		out.vals = append(out.vals, o.vals...)
	}
	return out, nil
}

// other 是另一种具体类型，用于 KIND_MISMATCH。
type other struct{ *vec }

func TestIndex_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Index
		eq   bool
		same bool
	}{
		{name: "identical", a: Index{"a", "b"}, b: Index{"a", "b"}, eq: true, same: true},
		{name: "reordered", a: Index{"a", "b"}, b: Index{"b", "a"}, eq: false, same: true},
		{name: "different keys", a: Index{"a", "b"}, b: Index{"a", "c"}, eq: false, same: false},
		{name: "empty", a: Index{}, b: nil, eq: true, same: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.eq, tt.a.Equal(tt.b))
			assert.Equal(t, tt.same, tt.a.SameKeys(tt.b))
		})
	}
}

func TestData_IndexRoundTrip(t *testing.T) {
	d := newVec("a", "b", "c", "d")

	sel, err := d.SelectByIndex(d.Index())
	require.NoError(t, err)
	assert.Equal(t, d.Index(), sel.Index())

	re, err := d.Reindex(d.Index())
	require.NoError(t, err)
	assert.Equal(t, d.Index(), re.Index())

	re, err = d.Reindex(Index{"c", "a", "c"})
	require.NoError(t, err)
	assert.Equal(t, Index{"c", "a", "c"}, re.Index())

	_, err = d.SelectByIndex(Index{"z"})
	assert.True(t, IsOutOfRange(err))
}

func TestCombine(t *testing.T) {
	a, b := newVec("a", "b"), newVec("c")

	single, err := Combine([]Data{a})
	require.NoError(t, err)
	assert.Equal(t, a.Index(), single.Index())

	both, err := Combine([]Data{a, b})
	require.NoError(t, err)
	assert.Equal(t, Index{"a", "b", "c"}, both.Index())

	_, err = Combine([]Data{a, &other{b}})
	assert.True(t, IsKindMismatch(err))

	_, err = Combine(nil)
	assert.True(t, IsInvalidInput(err))
}

func TestMean_NotSupported(t *testing.T) {
	_, err := Mean([]Data{newVec("a"), newVec("a")})
	assert.True(t, IsNotSupported(err))
}

func TestDomainError_Wrapped(t *testing.T) {
	err := fmt.Errorf("layer 2 (kfold): %w", fmt.Errorf("branch 1: %w", ShapeMismatchf(ModulePipeline, "boom")))

	assert.True(t, IsShapeMismatch(err))
	assert.False(t, IsNotFitted(err))
	de := GetDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, ModulePipeline, de.Module)
	assert.True(t, errors.Is(err, NewDomainError(ModulePipeline, ErrorCodeShapeMismatch, "")))

	assert.True(t, IsNotFitted(fmt.Errorf("x: %w", ErrNotFitted)))
	assert.True(t, IsStoreNotFound(ErrStoreNotFound))
}

func TestJoinKey(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{parts: []string{"models", "layer_0", "kfold_0"}, want: "models/layer_0/kfold_0"},
		{parts: []string{"/models/", "", "state.json"}, want: "models/state.json"},
		{parts: []string{"", "manifest.yaml"}, want: "manifest.yaml"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinKey(tt.parts...))
	}
}
