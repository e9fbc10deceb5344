package core

import (
	"fmt"
	"strings"
)

// Role 是 Unit 中数据的角色名。
type Role string

const (
	RoleTrain Role = "train"
	RoleValid Role = "valid"
	RoleTest  Role = "test"
)

// AllRoles 按固定顺序列出全部角色，Unit 的遍历顺序与此一致。
var AllRoles = []Role{RoleTrain, RoleValid, RoleTest}

func roleSlot(r Role) (int, bool) {
	switch r {
	case RoleTrain:
		return 0, true
	case RoleValid:
		return 1, true
	case RoleTest:
		return 2, true
	}
	return 0, false
}

// ParseRole 把字符串解析为 Role。
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleSlot(r); !ok {
		return "", InvalidInputf(ModuleData, "data: unknown role %q", s)
	}
	return r, nil
}

// Unit 是单个分支上的 train/valid/test 数据包。
//
// 不变量：
//   - 至少有一个角色
//   - 所有角色的数据为同一具体类型
//
// Unit 对调用方不可变，修改操作（With/Without）返回新的 Unit。
type Unit struct {
	data [3]Data
}

// NewUnit 根据 role -> data 构建 Unit，nil 值视为未设置。
func NewUnit(m map[Role]Data) (Unit, error) {
	var u Unit
	for r, d := range m {
		slot, ok := roleSlot(r)
		if !ok {
			return Unit{}, InvalidInputf(ModuleData, "data: unknown role %q", r)
		}
		u.data[slot] = d
	}
	if err := u.validate(); err != nil {
		return Unit{}, err
	}
	return u, nil
}

// MustUnit 与 NewUnit 相同，出错时 panic，用于测试和静态构造。
func MustUnit(m map[Role]Data) Unit {
	u, err := NewUnit(m)
	if err != nil {
		panic(err)
	}
	return u
}

// Of 构建只包含一个角色的 Unit。
func Of(role Role, d Data) (Unit, error) {
	return NewUnit(map[Role]Data{role: d})
}

func (u Unit) validate() error {
	var first Data
	for _, r := range AllRoles {
		d := u.Get(r)
		if d == nil {
			continue
		}
		if first == nil {
			first = d
			continue
		}
		if KindOf(d) != KindOf(first) {
			return KindMismatchf(ModuleData, "data: unit role %s is %s, want %s", r, KindName(d), KindName(first))
		}
	}
	if first == nil {
		return InvalidInputf(ModuleData, "data: empty units are not allowed")
	}
	return nil
}

// IsZero 判断是否为零值 Unit（未经 NewUnit 构造）。
func (u Unit) IsZero() bool {
	for _, d := range u.data {
		if d != nil {
			return false
		}
	}
	return true
}

// Get 返回角色对应的数据，未设置时返回 nil。
func (u Unit) Get(r Role) Data {
	slot, ok := roleSlot(r)
	if !ok {
		return nil
	}
	return u.data[slot]
}

// Has 判断角色是否存在。
func (u Unit) Has(r Role) bool { return u.Get(r) != nil }

// Roles 按固定顺序返回已设置的角色。
func (u Unit) Roles() []Role {
	roles := make([]Role, 0, len(AllRoles))
	for _, r := range AllRoles {
		if u.Has(r) {
			roles = append(roles, r)
		}
	}
	return roles
}

// Kind 返回 Unit 中数据的具体类型名。
func (u Unit) Kind() string {
	for _, d := range u.data {
		if d != nil {
			return KindName(d)
		}
	}
	return KindName(nil)
}

// With 返回覆盖了指定角色的新 Unit。
func (u Unit) With(r Role, d Data) (Unit, error) {
	slot, ok := roleSlot(r)
	if !ok {
		return Unit{}, InvalidInputf(ModuleData, "data: unknown role %q", r)
	}
	next := u
	next.data[slot] = d
	if err := next.validate(); err != nil {
		return Unit{}, err
	}
	return next, nil
}

// Without 返回去掉指定角色的新 Unit，去掉后为空时返回错误。
func (u Unit) Without(r Role) (Unit, error) {
	return u.With(r, nil)
}

func (u Unit) String() string {
	parts := make([]string, 0, 3)
	for _, r := range u.Roles() {
		parts = append(parts, fmt.Sprintf("%s=%d", r, u.Get(r).Index().Len()))
	}
	return fmt.Sprintf("Unit(%s)", strings.Join(parts, ", "))
}

// mapRoles 对每个已设置角色应用 fn，角色集合保持不变。
func (u Unit) mapRoles(fn func(Role, Data) (Data, error)) (Unit, error) {
	var next Unit
	for i, r := range AllRoles {
		d := u.data[i]
		if d == nil {
			continue
		}
		nd, err := fn(r, d)
		if err != nil {
			return Unit{}, fmt.Errorf("role %s: %w", r, err)
		}
		next.data[i] = nd
	}
	if err := next.validate(); err != nil {
		return Unit{}, err
	}
	return next, nil
}

// Features 对每个角色取特征部分。
func (u Unit) Features() (Unit, error) {
	return u.mapRoles(func(_ Role, d Data) (Data, error) { return d.Features() })
}

// Targets 对每个角色取目标部分。
func (u Unit) Targets() (Unit, error) {
	return u.mapRoles(func(_ Role, d Data) (Data, error) { return d.Targets() })
}

// Index 返回每个角色的 Index。
func (u Unit) Index() IndexUnit {
	out := make(IndexUnit, 3)
	for _, r := range u.Roles() {
		out[r] = u.Get(r).Index()
	}
	return out
}

// SelectByIndex 要求 idx 的角色集合与 Unit 完全一致，然后按角色取子集。
func (u Unit) SelectByIndex(idx IndexUnit) (Unit, error) {
	if err := u.matchRoles(idx); err != nil {
		return Unit{}, err
	}
	return u.mapRoles(func(r Role, d Data) (Data, error) { return d.SelectByIndex(idx[r]) })
}

// Reindex 要求 idx 的角色集合与 Unit 完全一致，然后按角色重排。
func (u Unit) Reindex(idx IndexUnit) (Unit, error) {
	if err := u.matchRoles(idx); err != nil {
		return Unit{}, err
	}
	return u.mapRoles(func(r Role, d Data) (Data, error) { return d.Reindex(idx[r]) })
}

func (u Unit) matchRoles(idx IndexUnit) error {
	if !sameRoles(u.Roles(), idx.Roles()) {
		return ShapeMismatchf(ModuleData, "data: units must match: have %v, index has %v", u.Roles(), idx.Roles())
	}
	return nil
}

// CombineUnits 要求所有 Unit 角色集合一致，按角色分别 Combine。
func CombineUnits(units []Unit) (Unit, error) {
	if len(units) == 0 {
		return Unit{}, InvalidInputf(ModuleData, "data: combine requires at least one unit")
	}
	roles := units[0].Roles()
	for i, u := range units[1:] {
		if !sameRoles(roles, u.Roles()) {
			return Unit{}, ShapeMismatchf(ModuleData, "data: unit %d roles %v differ from %v", i+1, u.Roles(), roles)
		}
	}
	var out Unit
	for _, r := range roles {
		datas := make([]Data, len(units))
		for i, u := range units {
			datas[i] = u.Get(r)
		}
		d, err := Combine(datas)
		if err != nil {
			return Unit{}, fmt.Errorf("role %s: %w", r, err)
		}
		slot, _ := roleSlot(r)
		out.data[slot] = d
	}
	if err := out.validate(); err != nil {
		return Unit{}, err
	}
	return out, nil
}

// IndexUnit 是 Unit.Index 的结果：role -> Index。
type IndexUnit map[Role]Index

// Roles 按固定顺序返回已设置的角色。
func (iu IndexUnit) Roles() []Role {
	roles := make([]Role, 0, len(iu))
	for _, r := range AllRoles {
		if _, ok := iu[r]; ok {
			roles = append(roles, r)
		}
	}
	return roles
}

// Equal 判断两个 IndexUnit 是否逐角色相等。
func (iu IndexUnit) Equal(other IndexUnit) bool {
	if !sameRoles(iu.Roles(), other.Roles()) {
		return false
	}
	for r, idx := range iu {
		if !idx.Equal(other[r]) {
			return false
		}
	}
	return true
}

func sameRoles(a, b []Role) bool {
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
