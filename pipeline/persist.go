package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/potok/core"
)

const manifestKey = "manifest.yaml"

// Manifest 记录一次 Fit 的执行历史形状，Load 时据此重建 Layer。
type Manifest struct {
	Name    string          `yaml:"name"`
	FitID   string          `yaml:"fit_id"`
	SavedAt time.Time       `yaml:"saved_at"`
	Layers  []LayerManifest `yaml:"layers"`
}

// LayerManifest 是单个 Layer 的记录。
type LayerManifest struct {
	Node     string `yaml:"node"`
	Branches int    `yaml:"branches"`
	Shape    []int  `yaml:"shape"`
}

func layerPrefix(prefix string, k int) string {
	return core.JoinKey(prefix, fmt.Sprintf("layer_%d", k))
}

// Save 把执行历史写入 Store：
//
//	<prefix>/manifest.yaml
//	<prefix>/layer_<k>/<nodeName>_<branch>/...
func (p *Pipeline) Save(ctx context.Context, st core.Store, prefix string) error {
	if !p.fitted {
		return core.ErrNotFitted
	}
	m := Manifest{Name: p.Name, FitID: p.fitID, SavedAt: time.Now().UTC()}
	for k, layer := range p.layers {
		m.Layers = append(m.Layers, LayerManifest{Node: layer.Name(), Branches: layer.Len(), Shape: layer.Shape()})
		if err := layer.Save(ctx, st, layerPrefix(prefix, k)); err != nil {
			return fmt.Errorf("layer %d: %w", k, err)
		}
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := st.Set(ctx, core.JoinKey(prefix, manifestKey), data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	p.log().Info("pipeline saved", "pipeline", p.Name, "fit_id", p.fitID, "store", st.Name(), "prefix", prefix)
	return nil
}

// ReadManifest 读取 prefix 下的 manifest。
func ReadManifest(ctx context.Context, st core.Store, prefix string) (*Manifest, error) {
	data, err := st.Get(ctx, core.JoinKey(prefix, manifestKey))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Load 根据 manifest 把每个 Node 模板克隆成对应分支数的 Layer，并恢复每个副本的状态。
// Node 序列必须与保存时一致。
func (p *Pipeline) Load(ctx context.Context, st core.Store, prefix string) error {
	m, err := ReadManifest(ctx, st, prefix)
	if err != nil {
		return err
	}
	if len(m.Layers) != len(p.Nodes) {
		return core.ShapeMismatchf(core.ModulePipeline,
			"pipeline: manifest has %d layers, pipeline has %d nodes", len(m.Layers), len(p.Nodes))
	}

	layers := make([]*Layer, len(p.Nodes))
	for k, node := range p.Nodes {
		lm := m.Layers[k]
		if lm.Node != node.Name() {
			return core.ShapeMismatchf(core.ModulePipeline,
				"pipeline: layer %d was saved from node %q, pipeline has %q", k, lm.Node, node.Name())
		}
		if lm.Branches < 1 || len(lm.Shape) != lm.Branches {
			return core.InvalidInputf(core.ModulePipeline,
				"pipeline: layer %d manifest has %d branches and shape %v", k, lm.Branches, lm.Shape)
		}
		if slices.ContainsFunc(lm.Shape, func(s int) bool { return s < 0 }) {
			return core.InvalidInputf(core.ModulePipeline,
				"pipeline: layer %d manifest has a negative fan-out in shape %v", k, lm.Shape)
		}
		if k > 0 && layers[k-1].OutputLen() != lm.Branches {
			return core.ShapeMismatchf(core.ModulePipeline,
				"pipeline: layer %d has %d branches, previous layer outputs %d", k, lm.Branches, layers[k-1].OutputLen())
		}
		layer := p.newLayer(node, lm.Branches)
		layer.shape = append([]int(nil), lm.Shape...)
		if err := layer.Load(ctx, st, layerPrefix(prefix, k)); err != nil {
			return fmt.Errorf("layer %d: %w", k, err)
		}
		layers[k] = layer
	}

	p.layers = layers
	p.fitted = true
	p.fitID = m.FitID
	p.log().Info("pipeline loaded", "pipeline", p.Name, "fit_id", m.FitID, "store", st.Name(), "prefix", prefix)
	return nil
}
