package pipeline

import (
	"context"

	"github.com/rushteam/potok/core"
)

// Node 是 Pipeline 的最小可扩展单元（一个处理阶段）。
//
// 引擎通过以下操作驱动 Node：
//   - Fit：训练内部状态，返回该阶段前向变换后的 (x', y')；结果可以是 core.Split（内部拆出子分支）
//   - PredictForward：只读已训练状态，推理时使用
//   - PredictBackward：把细粒度分支的输出映射回 Fit 时收到的粗粒度形状（例如多折合并）
//   - Clone：返回状态全新、互不共享的副本，Layer 为每个分支各克隆一份
//   - Save / Load：以 prefix 为根读写自身状态
//
// 同一个 Node 实例只会被一个分支使用，内部无需加锁；
// 但 Clone 出的副本之间不得共享任何可变状态。
type Node interface {
	Name() string

	Fit(ctx context.Context, x, y core.Unit) (core.Output, core.Output, error)
	PredictForward(ctx context.Context, x core.Unit) (core.Output, error)
	PredictBackward(ctx context.Context, y core.Output) (core.Unit, error)

	Clone() Node

	Save(ctx context.Context, st core.Store, prefix string) error
	Load(ctx context.Context, st core.Store, prefix string) error
}
