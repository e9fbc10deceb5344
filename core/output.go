package core

// Output 是 Node 在单个分支上的结果：要么是单个 Unit，要么是子分支集合。
//
// Split 表示该 Node 在内部把一个分支拆成了多个子分支（例如 K 折），
// Layer 在展平时会把子分支依次拼接到下一层。
type Output struct {
	unit     Unit
	branches BranchSet
	split    bool
}

// Single 包装单个 Unit。
func Single(u Unit) Output { return Output{unit: u} }

// Split 包装子分支集合。
func Split(b BranchSet) Output { return Output{branches: b, split: true} }

// IsSplit 判断是否为子分支集合。
func (o Output) IsSplit() bool { return o.split }

// Unit 返回单个 Unit，Split 时返回零值。
func (o Output) Unit() Unit { return o.unit }

// Branches 返回子分支集合，Single 时返回零值。
func (o Output) Branches() BranchSet { return o.branches }

// Fanout 返回展平时占用的分支数：Single 为 0，Split 为子分支数。
func (o Output) Fanout() int {
	if o.split {
		return o.branches.Len()
	}
	return 0
}

// Units 返回展平后的 Unit 列表。
func (o Output) Units() []Unit {
	if o.split {
		return o.branches.Units()
	}
	return []Unit{o.unit}
}

// IsZero 判断是否为零值 Output。
func (o Output) IsZero() bool {
	if o.split {
		return o.branches.Len() == 0
	}
	return o.unit.IsZero()
}

// SingleUnit 要求 Output 为 Single 并返回其 Unit，否则返回 SHAPE_MISMATCH。
func (o Output) SingleUnit(module string) (Unit, error) {
	if o.split {
		return Unit{}, ShapeMismatchf(module, "%s: expected a single unit, got %d sub-branches", module, o.branches.Len())
	}
	if o.unit.IsZero() {
		return Unit{}, InvalidInputf(module, "%s: empty output", module)
	}
	return o.unit, nil
}
