package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rushteam/potok/core"
	"github.com/rushteam/potok/tabular"
)

// 测试用 Node 与数据构造工具。

func testFrame(prefix string, n int) *tabular.Frame {
	index := make(core.Index, n)
	rows := make([][]float64, n)
	for i := range index {
		index[i] = fmt.Sprintf("%s%d", prefix, i)
		rows[i] = []float64{float64(i), float64(2 * i)}
	}
	return tabular.MustFrame(index, []string{"x", "y"}, rows, "y")
}

// trainXY 返回只有 train 角色的 (x, y) Unit。
func trainXY(prefix string, n int) (core.Unit, core.Unit) {
	f := testFrame(prefix, n)
	xf, _ := f.Features()
	yf, _ := f.Targets()
	return core.MustUnit(map[core.Role]core.Data{core.RoleTrain: xf}),
		core.MustUnit(map[core.Role]core.Data{core.RoleTrain: yf})
}

// branches 构造 n 个分支，每个分支 rows 行，index 前缀为 b<i>_。
func branches(n, rows int) (core.BranchSet, core.BranchSet) {
	xs := make([]core.Unit, n)
	ys := make([]core.Unit, n)
	for i := range xs {
		xs[i], ys[i] = trainXY(fmt.Sprintf("b%d_", i), rows)
	}
	return core.MustBranchSet(xs...), core.MustBranchSet(ys...)
}

// identityNode 不拆分，x/y 原样透传；Save 写入一个标记供 Load 校验。
type identityNode struct {
	name   string
	loaded bool
}

func (n *identityNode) Name() string {
	if n.name == "" {
		return "identity"
	}
	return n.name
}

func (n *identityNode) Clone() Node { return &identityNode{name: n.name} }

func (n *identityNode) Fit(ctx context.Context, x, y core.Unit) (core.Output, core.Output, error) {
	return core.Single(x), core.Single(y), nil
}

func (n *identityNode) PredictForward(ctx context.Context, x core.Unit) (core.Output, error) {
	return core.Single(x), nil
}

func (n *identityNode) PredictBackward(ctx context.Context, y core.Output) (core.Unit, error) {
	return y.SingleUnit(core.ModuleNode)
}

func (n *identityNode) Save(ctx context.Context, st core.Store, prefix string) error {
	return st.Set(ctx, core.JoinKey(prefix, "state"), []byte(n.Name()))
}

func (n *identityNode) Load(ctx context.Context, st core.Store, prefix string) error {
	if _, err := st.Get(ctx, core.JoinKey(prefix, "state")); err != nil {
		return err
	}
	n.loaded = true
	return nil
}

// splitNode 把一个分支复制成 k 个子分支。
// fanout 为空时 k 固定为 n；fanout 返回 0 时输出单个 Unit。
// PredictBackward 按角色对子分支求均值。
type splitNode struct {
	n      int
	fanout func(x core.Unit) int

	k int
}

func (n *splitNode) Name() string { return "split" }

func (n *splitNode) Clone() Node { return &splitNode{n: n.n, fanout: n.fanout} }

func (n *splitNode) fanoutOf(x core.Unit) int {
	if n.fanout != nil {
		return n.fanout(x)
	}
	return n.n
}

func replicate(u core.Unit, k int) core.Output {
	if k == 0 {
		return core.Single(u)
	}
	units := make([]core.Unit, k)
	for i := range units {
		units[i] = u
	}
	return core.Split(core.MustBranchSet(units...))
}

func (n *splitNode) Fit(ctx context.Context, x, y core.Unit) (core.Output, core.Output, error) {
	n.k = n.fanoutOf(x)
	return replicate(x, n.k), replicate(y, n.k), nil
}

func (n *splitNode) PredictForward(ctx context.Context, x core.Unit) (core.Output, error) {
	return replicate(x, n.fanoutOf(x)), nil
}

func (n *splitNode) PredictBackward(ctx context.Context, y core.Output) (core.Unit, error) {
	if n.k == 0 {
		return y.SingleUnit(core.ModuleNode)
	}
	if y.Fanout() != n.k {
		return core.Unit{}, core.ShapeMismatchf(core.ModuleNode, "split: want %d sub-branches, got %d", n.k, y.Fanout())
	}
	b := y.Branches()
	out := make(map[core.Role]core.Data)
	for _, r := range b.Roles() {
		datas := make([]core.Data, b.Len())
		for i := range datas {
			datas[i] = b.At(i).Get(r)
		}
		mean, err := core.Mean(datas)
		if err != nil {
			return core.Unit{}, err
		}
		out[r] = mean
	}
	return core.NewUnit(out)
}

func (n *splitNode) Save(ctx context.Context, st core.Store, prefix string) error {
	return st.Set(ctx, core.JoinKey(prefix, "k"), []byte(strconv.Itoa(n.k)))
}

func (n *splitNode) Load(ctx context.Context, st core.Store, prefix string) error {
	data, err := st.Get(ctx, core.JoinKey(prefix, "k"))
	if err != nil {
		return err
	}
	n.k, err = strconv.Atoi(string(data))
	return err
}

// meanModel 学习 y.train 中 "y" 列的均值，对 x 的每个角色输出常数预测。
type meanModel struct {
	mean   float64
	fitted bool
}

func (n *meanModel) Name() string { return "mean" }

func (n *meanModel) Clone() Node { return &meanModel{} }

func (n *meanModel) Fit(ctx context.Context, x, y core.Unit) (core.Output, core.Output, error) {
	col, err := y.Get(core.RoleTrain).(*tabular.Frame).Column("y")
	if err != nil {
		return core.Output{}, core.Output{}, err
	}
	sum := 0.0
	for _, v := range col {
		sum += v
	}
	n.mean = sum / float64(len(col))
	n.fitted = true
	pred, err := n.PredictForward(ctx, x)
	if err != nil {
		return core.Output{}, core.Output{}, err
	}
	return core.Single(x), pred, nil
}

func (n *meanModel) PredictForward(ctx context.Context, x core.Unit) (core.Output, error) {
	if !n.fitted {
		return core.Output{}, core.ErrNotFitted
	}
	out := make(map[core.Role]core.Data)
	for _, r := range x.Roles() {
		idx := x.Get(r).Index()
		rows := make([][]float64, len(idx))
		for i := range rows {
			rows[i] = []float64{n.mean}
		}
		f, err := tabular.NewFrame(idx, []string{"y"}, rows, "y")
		if err != nil {
			return core.Output{}, err
		}
		out[r] = f
	}
	u, err := core.NewUnit(out)
	if err != nil {
		return core.Output{}, err
	}
	return core.Single(u), nil
}

func (n *meanModel) PredictBackward(ctx context.Context, y core.Output) (core.Unit, error) {
	return y.SingleUnit(core.ModuleNode)
}

func (n *meanModel) Save(ctx context.Context, st core.Store, prefix string) error {
	return st.Set(ctx, core.JoinKey(prefix, "mean"), []byte(strconv.FormatFloat(n.mean, 'g', -1, 64)))
}

func (n *meanModel) Load(ctx context.Context, st core.Store, prefix string) error {
	data, err := st.Get(ctx, core.JoinKey(prefix, "mean"))
	if err != nil {
		return err
	}
	if n.mean, err = strconv.ParseFloat(string(data), 64); err != nil {
		return err
	}
	n.fitted = true
	return nil
}

// failNode 在 fail 为 true 时 Fit 失败。
type failNode struct {
	identityNode
	fail bool
}

func (n *failNode) Name() string { return "fail" }

func (n *failNode) Clone() Node { return &failNode{fail: n.fail} }

func (n *failNode) Fit(ctx context.Context, x, y core.Unit) (core.Output, core.Output, error) {
	if n.fail {
		return core.Output{}, core.Output{}, core.InvalidInputf(core.ModuleNode, "fail: asked to fail")
	}
	return core.Single(x), core.Single(y), nil
}

// skewNode 让 x 拆分而 y 不拆分。
type skewNode struct{ identityNode }

func (n *skewNode) Clone() Node { return &skewNode{} }

func (n *skewNode) Fit(ctx context.Context, x, y core.Unit) (core.Output, core.Output, error) {
	return replicate(x, 2), core.Single(y), nil
}

// slowNode 按 delay 休眠后透传，并统计同时在执行的分支数峰值。
type slowNode struct {
	identityNode
	delay func(x core.Unit) time.Duration

	inflight *atomic.Int32
	peak     *atomic.Int32
}

func newSlowNode(delay func(x core.Unit) time.Duration) *slowNode {
	return &slowNode{delay: delay, inflight: &atomic.Int32{}, peak: &atomic.Int32{}}
}

func (n *slowNode) Name() string { return "slow" }

func (n *slowNode) Clone() Node {
	return &slowNode{delay: n.delay, inflight: n.inflight, peak: n.peak}
}

func (n *slowNode) Fit(ctx context.Context, x, y core.Unit) (core.Output, core.Output, error) {
	cur := n.inflight.Add(1)
	defer n.inflight.Add(-1)
	for {
		p := n.peak.Load()
		if cur <= p || n.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	select {
	case <-time.After(n.delay(x)):
	case <-ctx.Done():
		return core.Output{}, core.Output{}, ctx.Err()
	}
	return core.Single(x), core.Single(y), nil
}
