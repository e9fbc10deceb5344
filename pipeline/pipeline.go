package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/rushteam/potok/core"
)

// Pipeline 是 potok 的核心抽象：把 Node 串成有序的阶段序列。
//
// Fit 时每个 Node 按当前分支数复制成一个 Layer，依次执行并记录下来；
// 记录下来的 Layer 列表是复现预测所需的全部状态：
//   - PredictForward 按原顺序重放
//   - PredictBackward 按逆序重放，把预测还原到最初传入的分支形状
//
// 同一个 Pipeline 不支持并发调用 Fit 与 Predict。
type Pipeline struct {
	Name  string
	Nodes []Node

	// MaxConcurrent 透传给每个 Layer，控制分支并发
	MaxConcurrent int

	// Logger 为 nil 时使用 slog.Default()
	Logger *slog.Logger

	layers []*Layer
	fitted bool
	fitID  string
}

// New 创建 Pipeline。
func New(name string, nodes ...Node) *Pipeline {
	return &Pipeline{Name: name, Nodes: append([]Node(nil), nodes...)}
}

// Append 把另一个 Pipeline 的 Node 内联到末尾，返回自身便于链式调用。
func (p *Pipeline) Append(other *Pipeline) *Pipeline {
	p.Nodes = append(p.Nodes, other.Nodes...)
	return p
}

func (p *Pipeline) log() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Fitted 判断是否已 Fit 或 Load。
func (p *Pipeline) Fitted() bool { return p.fitted }

// FitID 返回最近一次 Fit（或 Load 得到）的运行 ID。
func (p *Pipeline) FitID() string { return p.fitID }

// Layers 返回执行历史（只读副本）。
func (p *Pipeline) Layers() []*Layer { return append([]*Layer(nil), p.layers...) }

func (p *Pipeline) newLayer(node Node, n int) *Layer {
	layer := ReplicateLayer(node, n)
	layer.MaxConcurrent = p.MaxConcurrent
	layer.logger = p.log().With("node", node.Name())
	return layer
}

// Fit 依次对每个 Node 构建 Layer 并执行，返回最后一层的 (x, y)。
// 任何一层失败都会中止整个 Fit，之前的执行历史保持不变。
func (p *Pipeline) Fit(ctx context.Context, x, y core.BranchSet) (core.BranchSet, core.BranchSet, error) {
	fitID := uuid.NewString()
	logger := p.log().With("pipeline", p.Name, "fit_id", fitID)
	logger.Info("fit start", "nodes", len(p.Nodes), "branches", x.Len())

	layers := make([]*Layer, 0, len(p.Nodes))
	for k, node := range p.Nodes {
		if x.Len() != y.Len() {
			return core.BranchSet{}, core.BranchSet{}, core.ShapeMismatchf(core.ModulePipeline,
				"pipeline: x and y branch counts differ before layer %d: %d vs %d", k, x.Len(), y.Len())
		}
		layer := p.newLayer(node, x.Len())
		x2, y2, err := layer.Fit(ctx, x, y)
		if err != nil {
			logger.Error("fit failed", "layer", k, "node", node.Name(), "error", err)
			return core.BranchSet{}, core.BranchSet{}, fmt.Errorf("layer %d (%s): %w", k, node.Name(), err)
		}
		logger.Debug("layer fitted", "layer", k, "node", node.Name(), "in", x.Len(), "out", x2.Len())
		x, y = x2, y2
		layers = append(layers, layer)
	}

	p.layers = layers
	p.fitted = true
	p.fitID = fitID
	logger.Info("fit done", "branches", x.Len())
	return x, y, nil
}

// PredictForward 按原顺序重放执行历史。
func (p *Pipeline) PredictForward(ctx context.Context, x core.BranchSet) (core.BranchSet, error) {
	if !p.fitted {
		return core.BranchSet{}, core.ErrNotFitted
	}
	for k, layer := range p.layers {
		x2, err := layer.PredictForward(ctx, x)
		if err != nil {
			return core.BranchSet{}, fmt.Errorf("layer %d (%s): %w", k, layer.Name(), err)
		}
		x = x2
	}
	return x, nil
}

// PredictBackward 按逆序重放执行历史，把 y 还原到 Fit 时最初的分支形状。
func (p *Pipeline) PredictBackward(ctx context.Context, y core.BranchSet) (core.BranchSet, error) {
	if !p.fitted {
		return core.BranchSet{}, core.ErrNotFitted
	}
	for k := len(p.layers) - 1; k >= 0; k-- {
		layer := p.layers[k]
		y2, err := layer.PredictBackward(ctx, y)
		if err != nil {
			return core.BranchSet{}, fmt.Errorf("layer %d (%s): %w", k, layer.Name(), err)
		}
		y = y2
	}
	return y, nil
}

// Predict = PredictBackward(PredictForward(x))。
func (p *Pipeline) Predict(ctx context.Context, x core.BranchSet) (core.BranchSet, error) {
	y, err := p.PredictForward(ctx, x)
	if err != nil {
		return core.BranchSet{}, err
	}
	return p.PredictBackward(ctx, y)
}

// FitPredict 先 Fit，再直接对 Fit 输出的 y 做 PredictBackward，
// 不做第二次前向，得到训练期的留出预测（例如 out-of-fold）。
func (p *Pipeline) FitPredict(ctx context.Context, x, y core.BranchSet) (core.BranchSet, error) {
	_, y2, err := p.Fit(ctx, x, y)
	if err != nil {
		return core.BranchSet{}, err
	}
	return p.PredictBackward(ctx, y2)
}

func (p *Pipeline) String() string {
	names := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		names[i] = n.Name()
	}
	return fmt.Sprintf("(%s: %s)", p.Name, strings.Join(names, " -> "))
}
