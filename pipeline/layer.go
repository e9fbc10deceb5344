package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/potok/core"
)

// Layer 把同一个 Node 按分支复制多份，在一个 BranchSet 上执行。
//
// Fit 时记录每个分支的扇出数（shape）：0 表示该分支输出单个 Unit，
// n 表示拆成了 n 个子分支。展平按分支顺序拼接所有子分支；
// PredictBackward 按同一个 shape 把细粒度分支重新分组，因此各分支扇出不同也能正确还原。
type Layer struct {
	// MaxConcurrent 控制分支并发：0/1 顺序执行，>1 限制并发数，<0 不限制
	MaxConcurrent int

	nodes  []Node
	shape  []int
	logger *slog.Logger
}

// NewLayer 用已克隆好的 Node 构建 Layer，每个分支一个。
func NewLayer(nodes ...Node) *Layer {
	return &Layer{nodes: append([]Node(nil), nodes...)}
}

// ReplicateLayer 把模板 Node 克隆 n 份构建 Layer。
func ReplicateLayer(template Node, n int) *Layer {
	nodes := make([]Node, n)
	for i := range nodes {
		nodes[i] = template.Clone()
	}
	return NewLayer(nodes...)
}

// Len 返回分支数（Node 副本数）。
func (l *Layer) Len() int { return len(l.nodes) }

// Node 返回第 i 个分支上的 Node 副本。
func (l *Layer) Node(i int) Node { return l.nodes[i] }

// Name 返回该层 Node 的名称。
func (l *Layer) Name() string {
	if len(l.nodes) == 0 {
		return ""
	}
	return l.nodes[0].Name()
}

// Shape 返回 Fit 时记录的每分支扇出数，未 Fit 时为 nil。
func (l *Layer) Shape() []int { return append([]int(nil), l.shape...) }

// OutputLen 返回展平后下一层的分支数。
func (l *Layer) OutputLen() int {
	total := 0
	for _, s := range l.shape {
		total += max(s, 1)
	}
	return total
}

func (l *Layer) log() *slog.Logger {
	if l.logger == nil {
		return slog.Default()
	}
	return l.logger
}

// Fit 对每个 (Node 副本, x 分支, y 分支) 独立执行 Fit，然后分别展平 x 与 y。
func (l *Layer) Fit(ctx context.Context, x, y core.BranchSet) (core.BranchSet, core.BranchSet, error) {
	if len(l.nodes) != x.Len() || x.Len() != y.Len() {
		return core.BranchSet{}, core.BranchSet{}, core.ShapeMismatchf(core.ModulePipeline,
			"pipeline: layer and data shapes must be same: layer=%d x=%d y=%d", len(l.nodes), x.Len(), y.Len())
	}

	xs := make([]core.Output, len(l.nodes))
	ys := make([]core.Output, len(l.nodes))
	err := l.run(ctx, func(ctx context.Context, i int) error {
		l.log().Debug("fit branch", "node", l.nodes[i].Name(), "branch", i, "x", x.At(i).String())
		xo, yo, err := l.nodes[i].Fit(ctx, x.At(i), y.At(i))
		if err != nil {
			return fmt.Errorf("branch %d: %w", i, err)
		}
		xs[i], ys[i] = xo, yo
		return nil
	})
	if err != nil {
		return core.BranchSet{}, core.BranchSet{}, err
	}

	x2, xShape, err := flatten(xs)
	if err != nil {
		return core.BranchSet{}, core.BranchSet{}, fmt.Errorf("flatten x: %w", err)
	}
	y2, yShape, err := flatten(ys)
	if err != nil {
		return core.BranchSet{}, core.BranchSet{}, fmt.Errorf("flatten y: %w", err)
	}
	if !equalShape(xShape, yShape) {
		return core.BranchSet{}, core.BranchSet{}, core.ShapeMismatchf(core.ModulePipeline,
			"pipeline: x and y fan-out differ: %v vs %v", xShape, yShape)
	}
	l.shape = xShape
	return x2, y2, nil
}

// PredictForward 对每个分支执行 PredictForward 并展平，扇出必须与 Fit 时一致。
func (l *Layer) PredictForward(ctx context.Context, x core.BranchSet) (core.BranchSet, error) {
	if len(l.nodes) != x.Len() {
		return core.BranchSet{}, core.ShapeMismatchf(core.ModulePipeline,
			"pipeline: layer and data shapes must be same: layer=%d x=%d", len(l.nodes), x.Len())
	}

	xs := make([]core.Output, len(l.nodes))
	err := l.run(ctx, func(ctx context.Context, i int) error {
		xo, err := l.nodes[i].PredictForward(ctx, x.At(i))
		if err != nil {
			return fmt.Errorf("branch %d: %w", i, err)
		}
		xs[i] = xo
		return nil
	})
	if err != nil {
		return core.BranchSet{}, err
	}

	x2, shape, err := flatten(xs)
	if err != nil {
		return core.BranchSet{}, fmt.Errorf("flatten x: %w", err)
	}
	if l.shape != nil && !equalShape(shape, l.shape) {
		return core.BranchSet{}, core.ShapeMismatchf(core.ModulePipeline,
			"pipeline: forward fan-out %v differs from fit fan-out %v", shape, l.shape)
	}
	return x2, nil
}

// PredictBackward 按 Fit 时的 shape 还原分组，逐分支执行 PredictBackward。
// 结果是本层输入形状的 BranchSet，不再展平。
func (l *Layer) PredictBackward(ctx context.Context, y core.BranchSet) (core.BranchSet, error) {
	grouped, err := l.unflatten(y)
	if err != nil {
		return core.BranchSet{}, err
	}
	if len(grouped) != len(l.nodes) {
		return core.BranchSet{}, core.ShapeMismatchf(core.ModulePipeline,
			"pipeline: layer and data shapes must be same: layer=%d y=%d", len(l.nodes), len(grouped))
	}

	out := make([]core.Unit, len(l.nodes))
	err = l.run(ctx, func(ctx context.Context, i int) error {
		u, err := l.nodes[i].PredictBackward(ctx, grouped[i])
		if err != nil {
			return fmt.Errorf("branch %d: %w", i, err)
		}
		out[i] = u
		return nil
	})
	if err != nil {
		return core.BranchSet{}, err
	}
	return core.NewBranchSet(out...)
}

// run 对每个分支调用 fn。结果由 fn 按下标写入，收集顺序与执行顺序无关。
func (l *Layer) run(ctx context.Context, fn func(ctx context.Context, i int) error) error {
	n := len(l.nodes)
	if l.MaxConcurrent == 0 || l.MaxConcurrent == 1 || n <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if l.MaxConcurrent > 0 {
		eg.SetLimit(l.MaxConcurrent)
	}
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			return fn(egCtx, i)
		})
	}
	return eg.Wait()
}

// flatten 按分支顺序拼接所有输出，并返回每个分支的扇出数。
func flatten(outs []core.Output) (core.BranchSet, []int, error) {
	shape := make([]int, len(outs))
	units := make([]core.Unit, 0, len(outs))
	for i, o := range outs {
		if o.IsZero() {
			return core.BranchSet{}, nil, core.InvalidInputf(core.ModulePipeline, "pipeline: branch %d returned an empty output", i)
		}
		shape[i] = o.Fanout()
		units = append(units, o.Units()...)
	}
	b, err := core.NewBranchSet(units...)
	if err != nil {
		return core.BranchSet{}, nil, err
	}
	return b, shape, nil
}

// unflatten 按 shape 把细粒度 BranchSet 还原为每个分支一个 Output。
func (l *Layer) unflatten(y core.BranchSet) ([]core.Output, error) {
	if l.shape == nil {
		return nil, core.ErrNotFitted
	}
	if want := l.OutputLen(); y.Len() != want {
		return nil, core.ShapeMismatchf(core.ModulePipeline,
			"pipeline: layer expects %d branches from fan-out %v, got %d", want, l.shape, y.Len())
	}
	units := y.Units()
	outs := make([]core.Output, len(l.shape))
	start := 0
	for i, s := range l.shape {
		if s < 0 || start+max(s, 1) > len(units) {
			return nil, core.ShapeMismatchf(core.ModulePipeline,
				"pipeline: branch %d has invalid fan-out %d in %v", i, s, l.shape)
		}
		if s == 0 {
			outs[i] = core.Single(units[start])
			start++
			continue
		}
		sub, err := core.NewBranchSet(units[start : start+s]...)
		if err != nil {
			return nil, fmt.Errorf("branch %d: %w", i, err)
		}
		outs[i] = core.Split(sub)
		start += s
	}
	return outs, nil
}

// Save 把每个分支的 Node 保存到 <prefix>/<name>_<i>。
func (l *Layer) Save(ctx context.Context, st core.Store, prefix string) error {
	for i, node := range l.nodes {
		if err := node.Save(ctx, st, branchKey(prefix, node, i)); err != nil {
			return fmt.Errorf("save %s branch %d: %w", node.Name(), i, err)
		}
	}
	return nil
}

// Load 从 <prefix>/<name>_<i> 恢复每个分支的 Node。
func (l *Layer) Load(ctx context.Context, st core.Store, prefix string) error {
	for i, node := range l.nodes {
		if err := node.Load(ctx, st, branchKey(prefix, node, i)); err != nil {
			return fmt.Errorf("load %s branch %d: %w", node.Name(), i, err)
		}
	}
	return nil
}

func branchKey(prefix string, node Node, i int) string {
	return core.JoinKey(prefix, fmt.Sprintf("%s_%d", node.Name(), i))
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
