package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/potok/core"
	"github.com/rushteam/potok/store"
	"github.com/rushteam/potok/tabular"
)

func newDemo() *Pipeline {
	return New("demo", &identityNode{}, &splitNode{n: 3}, &meanModel{})
}

func TestPipeline_SaveLoad(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	x, y := branches(2, 6)

	p := newDemo()
	_, _, err := p.Fit(ctx, x, y)
	require.NoError(t, err)
	require.NoError(t, p.Save(ctx, st, "models/demo"))

	m, err := ReadManifest(ctx, st, "models/demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", m.Name)
	assert.Equal(t, p.FitID(), m.FitID)
	require.Len(t, m.Layers, 3)
	assert.Equal(t, LayerManifest{Node: "identity", Branches: 2, Shape: []int{0, 0}}, m.Layers[0])
	assert.Equal(t, LayerManifest{Node: "split", Branches: 2, Shape: []int{3, 3}}, m.Layers[1])
	assert.Equal(t, LayerManifest{Node: "mean", Branches: 6, Shape: []int{0, 0, 0, 0, 0, 0}}, m.Layers[2])

	keys, err := st.Keys(ctx, "models/demo/layer_2/")
	require.NoError(t, err)
	assert.Len(t, keys, 6)
	assert.Contains(t, keys, "models/demo/layer_2/mean_5/mean")

	loaded := newDemo()
	require.NoError(t, loaded.Load(ctx, st, "models/demo"))
	assert.True(t, loaded.Fitted())
	assert.Equal(t, p.FitID(), loaded.FitID())
	assert.True(t, loaded.Layers()[0].Node(1).(*identityNode).loaded)

	want, err := p.Predict(ctx, x)
	require.NoError(t, err)
	got, err := loaded.Predict(ctx, x)
	require.NoError(t, err)
	require.Equal(t, want.Len(), got.Len())
	for i := 0; i < want.Len(); i++ {
		wf := want.At(i).Get(core.RoleTrain).(*tabular.Frame)
		gf := got.At(i).Get(core.RoleTrain).(*tabular.Frame)
		assert.True(t, wf.Equal(gf), "branch %d differs", i)
	}
}

func TestPipeline_SaveBeforeFit(t *testing.T) {
	err := newDemo().Save(context.Background(), store.NewMemoryStore(), "x")
	assert.True(t, core.IsNotFitted(err))
}

func TestPipeline_LoadMismatch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	x, y := branches(1, 6)
	p := newDemo()
	_, _, err := p.Fit(ctx, x, y)
	require.NoError(t, err)
	require.NoError(t, p.Save(ctx, st, "m"))

	// 复制一份并把 split 层的 fan-out 改为负数
	keys, err := st.Keys(ctx, "m/")
	require.NoError(t, err)
	vals, err := st.BatchGet(ctx, keys)
	require.NoError(t, err)
	for k, v := range vals {
		require.NoError(t, st.Set(ctx, "bad/"+strings.TrimPrefix(k, "m/"), v))
	}
	m, err := ReadManifest(ctx, st, "m")
	require.NoError(t, err)
	m.Layers[1].Shape = []int{-1}
	raw, err := yaml.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, st.Set(ctx, "bad/manifest.yaml", raw))

	tests := []struct {
		name   string
		p      *Pipeline
		prefix string
		check  func(error) bool
	}{
		{name: "fewer nodes", p: New("demo", &identityNode{}, &splitNode{n: 3}), prefix: "m", check: core.IsShapeMismatch},
		{name: "renamed node", p: New("demo", &identityNode{name: "other"}, &splitNode{n: 3}, &meanModel{}), prefix: "m", check: core.IsShapeMismatch},
		{name: "negative fan-out", p: newDemo(), prefix: "bad", check: core.IsInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Load(ctx, st, tt.prefix)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.False(t, tt.p.Fitted())
		})
	}

	err = newDemo().Load(ctx, st, "missing")
	assert.True(t, core.IsStoreNotFound(err))
}
