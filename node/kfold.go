package node

import (
	"context"
	"fmt"
	"math/rand"
	"slices"

	"github.com/rushteam/potok/core"
	"github.com/rushteam/potok/pipeline"
)

// KFold 把一个分支拆成 K 个子分支（交叉验证）。
//
//   - Fit：train 角色按折切分，第 i 个子分支的 train 为其余折、valid 为第 i 折；
//     test 角色原样复制到每个子分支。valid 由折生成，x 或 y 已带 valid 时返回 INVALID_INPUT
//   - PredictForward：把输入原样复制 K 份
//   - PredictBackward：若各子分支的 valid 恰好是 Fit 时的各折，则把 valid 预测拼接并按
//     原 train 顺序重排，得到 out-of-fold 的 train 预测；其余角色按折求均值
type KFold struct {
	K       int
	Shuffle bool
	Seed    int64

	trainIndex core.Index
	folds      []core.Index
}

// NewKFold 创建 K 折拆分 Node。
func NewKFold(k int, shuffle bool, seed int64) *KFold {
	return &KFold{K: k, Shuffle: shuffle, Seed: seed}
}

func (n *KFold) Name() string { return "kfold" }

func (n *KFold) Clone() pipeline.Node {
	return &KFold{K: n.K, Shuffle: n.Shuffle, Seed: n.Seed}
}

// split 把 index 分成 K 折，每折内保持原有顺序。
func (n *KFold) split(index core.Index) ([]core.Index, error) {
	if n.K < 2 {
		return nil, core.InvalidInputf(core.ModuleNode, "node: kfold needs k >= 2, got %d", n.K)
	}
	if index.Len() < n.K {
		return nil, core.InvalidInputf(core.ModuleNode, "node: kfold k=%d exceeds %d train rows", n.K, index.Len())
	}
	order := make([]int, index.Len())
	for i := range order {
		order[i] = i
	}
	if n.Shuffle {
		rng := rand.New(rand.NewSource(n.Seed))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	buckets := make([][]int, n.K)
	for i, p := range order {
		buckets[i%n.K] = append(buckets[i%n.K], p)
	}
	folds := make([]core.Index, n.K)
	for i, b := range buckets {
		slices.Sort(b)
		fold := make(core.Index, len(b))
		for j, p := range b {
			fold[j] = index[p]
		}
		folds[i] = fold
	}
	return folds, nil
}

// foldUnit 构造第 i 折的子分支：train/valid 来自 u.train，test 原样保留。
func (n *KFold) foldUnit(u core.Unit, i int) (core.Unit, error) {
	train := u.Get(core.RoleTrain)
	if train == nil {
		return core.Unit{}, core.InvalidInputf(core.ModuleNode, "node: kfold needs a train role (roles %v)", u.Roles())
	}
	valid := n.folds[i]
	validSet := valid.Set()
	rest := make(core.Index, 0, n.trainIndex.Len()-valid.Len())
	for _, k := range n.trainIndex {
		if _, ok := validSet[k]; !ok {
			rest = append(rest, k)
		}
	}
	tr, err := train.SelectByIndex(rest)
	if err != nil {
		return core.Unit{}, err
	}
	va, err := train.SelectByIndex(valid)
	if err != nil {
		return core.Unit{}, err
	}
	m := map[core.Role]core.Data{core.RoleTrain: tr, core.RoleValid: va}
	if test := u.Get(core.RoleTest); test != nil {
		m[core.RoleTest] = test
	}
	return core.NewUnit(m)
}

func (n *KFold) Fit(ctx context.Context, x, y core.Unit) (core.Output, core.Output, error) {
	if x.Has(core.RoleValid) || y.Has(core.RoleValid) {
		return core.Output{}, core.Output{}, core.InvalidInputf(core.ModuleNode,
			"node: kfold builds valid from the folds, input already has one (x roles %v, y roles %v)", x.Roles(), y.Roles())
	}
	train := x.Get(core.RoleTrain)
	if train == nil {
		return core.Output{}, core.Output{}, core.InvalidInputf(core.ModuleNode, "node: kfold needs a train role (roles %v)", x.Roles())
	}
	folds, err := n.split(train.Index())
	if err != nil {
		return core.Output{}, core.Output{}, err
	}
	n.trainIndex, n.folds = train.Index(), folds

	xs := make([]core.Unit, n.K)
	ys := make([]core.Unit, n.K)
	for i := 0; i < n.K; i++ {
		if xs[i], err = n.foldUnit(x, i); err != nil {
			return core.Output{}, core.Output{}, fmt.Errorf("fold %d x: %w", i, err)
		}
		if ys[i], err = n.foldUnit(y, i); err != nil {
			return core.Output{}, core.Output{}, fmt.Errorf("fold %d y: %w", i, err)
		}
	}
	xb, err := core.NewBranchSet(xs...)
	if err != nil {
		return core.Output{}, core.Output{}, err
	}
	yb, err := core.NewBranchSet(ys...)
	if err != nil {
		return core.Output{}, core.Output{}, err
	}
	return core.Split(xb), core.Split(yb), nil
}

func (n *KFold) PredictForward(ctx context.Context, x core.Unit) (core.Output, error) {
	if n.K < 2 {
		return core.Output{}, core.InvalidInputf(core.ModuleNode, "node: kfold needs k >= 2, got %d", n.K)
	}
	units := make([]core.Unit, n.K)
	for i := range units {
		units[i] = x
	}
	b, err := core.NewBranchSet(units...)
	if err != nil {
		return core.Output{}, err
	}
	return core.Split(b), nil
}

func (n *KFold) PredictBackward(ctx context.Context, y core.Output) (core.Unit, error) {
	if !y.IsSplit() || y.Branches().Len() != n.K {
		return core.Unit{}, core.ShapeMismatchf(core.ModuleNode, "node: kfold expects %d sub-branches, got %d", n.K, y.Fanout())
	}
	b := y.Branches()
	roles := b.Roles()
	oof := n.isOutOfFold(b)

	out := make(map[core.Role]core.Data, 3)
	if oof {
		valids := make([]core.Data, b.Len())
		for i := range valids {
			valids[i] = b.At(i).Get(core.RoleValid)
		}
		combined, err := core.Combine(valids)
		if err != nil {
			return core.Unit{}, fmt.Errorf("combine valid: %w", err)
		}
		train, err := combined.Reindex(n.trainIndex)
		if err != nil {
			return core.Unit{}, fmt.Errorf("reindex out-of-fold: %w", err)
		}
		out[core.RoleTrain] = train
	}
	for _, r := range roles {
		if oof && (r == core.RoleTrain || r == core.RoleValid) {
			continue
		}
		datas := make([]core.Data, b.Len())
		for i := range datas {
			datas[i] = b.At(i).Get(r)
		}
		mean, err := core.Mean(datas)
		if err != nil {
			return core.Unit{}, fmt.Errorf("average %s: %w", r, err)
		}
		out[r] = mean
	}
	return core.NewUnit(out)
}

// isOutOfFold 判断各子分支的 valid 是否正好是 Fit 时的各折。
func (n *KFold) isOutOfFold(b core.BranchSet) bool {
	if n.folds == nil || !slices.Contains(b.Roles(), core.RoleValid) {
		return false
	}
	for i := 0; i < b.Len(); i++ {
		if !b.At(i).Get(core.RoleValid).Index().SameKeys(n.folds[i]) {
			return false
		}
	}
	return true
}

type kfoldState struct {
	K          int          `json:"k"`
	TrainIndex core.Index   `json:"train_index"`
	Folds      []core.Index `json:"folds"`
}

func (n *KFold) Save(ctx context.Context, st core.Store, prefix string) error {
	return saveJSON(ctx, st, prefix, kfoldState{K: n.K, TrainIndex: n.trainIndex, Folds: n.folds})
}

func (n *KFold) Load(ctx context.Context, st core.Store, prefix string) error {
	var s kfoldState
	if err := loadJSON(ctx, st, prefix, &s); err != nil {
		return err
	}
	if s.K != n.K || len(s.Folds) != n.K {
		return core.ShapeMismatchf(core.ModuleNode, "node: saved kfold has k=%d (%d folds), node has k=%d", s.K, len(s.Folds), n.K)
	}
	n.trainIndex, n.folds = s.TrainIndex, s.Folds
	return nil
}

var _ pipeline.Node = (*KFold)(nil)
