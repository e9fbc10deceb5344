package core

import "fmt"

// BranchSet 是流水线某一位置上并行分支的有序集合，每个分支一个 Unit。
//
// 不变量：
//   - 至少一个分支，且没有零值 Unit
//   - 所有分支的数据为同一具体类型
//   - 各分支角色集合的交集非空（Roles）
//
// 分支身份由位置决定，不由名字决定。
type BranchSet struct {
	units []Unit
	roles []Role
}

// NewBranchSet 校验并构建 BranchSet。
func NewBranchSet(units ...Unit) (BranchSet, error) {
	if len(units) == 0 {
		return BranchSet{}, InvalidInputf(ModuleData, "data: branch set must contain at least one branch")
	}
	var kind string
	for i, u := range units {
		if u.IsZero() {
			return BranchSet{}, InvalidInputf(ModuleData, "data: branch %d is empty", i)
		}
		if i == 0 {
			kind = u.Kind()
			continue
		}
		if u.Kind() != kind {
			return BranchSet{}, KindMismatchf(ModuleData, "data: branch %d is %s, want %s", i, u.Kind(), kind)
		}
	}
	roles := intersectRoles(units)
	if len(roles) == 0 {
		return BranchSet{}, ErrEmptyIntersection
	}
	return BranchSet{units: append([]Unit(nil), units...), roles: roles}, nil
}

// MustBranchSet 与 NewBranchSet 相同，出错时 panic。
func MustBranchSet(units ...Unit) BranchSet {
	b, err := NewBranchSet(units...)
	if err != nil {
		panic(err)
	}
	return b
}

func intersectRoles(units []Unit) []Role {
	counts := make(map[Role]int, len(AllRoles))
	for _, u := range units {
		for _, r := range u.Roles() {
			counts[r]++
		}
	}
	roles := make([]Role, 0, len(AllRoles))
	for _, r := range AllRoles {
		if counts[r] == len(units) {
			roles = append(roles, r)
		}
	}
	return roles
}

// Len 返回分支数。
func (b BranchSet) Len() int { return len(b.units) }

// At 返回第 i 个分支。
func (b BranchSet) At(i int) Unit { return b.units[i] }

// Units 返回分支的副本。
func (b BranchSet) Units() []Unit { return append([]Unit(nil), b.units...) }

// Roles 返回所有分支共有的角色（交集），按固定顺序。
func (b BranchSet) Roles() []Role { return append([]Role(nil), b.roles...) }

// Project 只保留指定角色，返回单角色 Unit 组成的 BranchSet。
func (b BranchSet) Project(r Role) (BranchSet, error) {
	out := make([]Unit, len(b.units))
	for i, u := range b.units {
		d := u.Get(r)
		if d == nil {
			return BranchSet{}, ShapeMismatchf(ModuleData, "data: branch %d has no role %s", i, r)
		}
		pu, err := Of(r, d)
		if err != nil {
			return BranchSet{}, err
		}
		out[i] = pu
	}
	return NewBranchSet(out...)
}

func (b BranchSet) mapUnits(fn func(int, Unit) (Unit, error)) (BranchSet, error) {
	out := make([]Unit, len(b.units))
	for i, u := range b.units {
		nu, err := fn(i, u)
		if err != nil {
			return BranchSet{}, fmt.Errorf("branch %d: %w", i, err)
		}
		out[i] = nu
	}
	return NewBranchSet(out...)
}

// Features 对每个分支取特征部分。
func (b BranchSet) Features() (BranchSet, error) {
	return b.mapUnits(func(_ int, u Unit) (Unit, error) { return u.Features() })
}

// Targets 对每个分支取目标部分。
func (b BranchSet) Targets() (BranchSet, error) {
	return b.mapUnits(func(_ int, u Unit) (Unit, error) { return u.Targets() })
}

// Index 返回每个分支的 IndexUnit。
func (b BranchSet) Index() []IndexUnit {
	out := make([]IndexUnit, len(b.units))
	for i, u := range b.units {
		out[i] = u.Index()
	}
	return out
}

// SelectByIndex 按位置逐分支取子集，idx 长度必须与分支数一致。
func (b BranchSet) SelectByIndex(idx []IndexUnit) (BranchSet, error) {
	if len(idx) != len(b.units) {
		return BranchSet{}, ShapeMismatchf(ModuleData, "data: branch sets must be same shape: %d vs %d", len(b.units), len(idx))
	}
	return b.mapUnits(func(i int, u Unit) (Unit, error) { return u.SelectByIndex(idx[i]) })
}

// Reindex 按位置逐分支重排，idx 长度必须与分支数一致。
func (b BranchSet) Reindex(idx []IndexUnit) (BranchSet, error) {
	if len(idx) != len(b.units) {
		return BranchSet{}, ShapeMismatchf(ModuleData, "data: branch sets must be same shape: %d vs %d", len(b.units), len(idx))
	}
	return b.mapUnits(func(i int, u Unit) (Unit, error) { return u.Reindex(idx[i]) })
}

func (b BranchSet) String() string {
	return fmt.Sprintf("BranchSet(len=%d, roles=%v)", len(b.units), b.roles)
}
