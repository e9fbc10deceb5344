package node

import (
	"context"
	"fmt"

	"github.com/rushteam/potok/core"
	"github.com/rushteam/potok/pipeline"
	"github.com/rushteam/potok/pkg/dsl"
	"github.com/rushteam/potok/tabular"
)

// Derive 用 CEL 表达式为 x 的每个角色派生（或覆盖）一列特征，例如：
//
//	&Derive{Column: "bmi", Expr: `row.weight / (row.height * row.height)`}
//
// 无可训练状态：Fit 与 PredictForward 行为一致，y 不变。
type Derive struct {
	Column string
	Expr   string

	// 编译结果只读，可在副本之间共享
	compiled *dsl.Expr
}

// NewDerive 编译表达式并创建 Node。
func NewDerive(column, expr string) (*Derive, error) {
	n := &Derive{Column: column, Expr: expr}
	if _, err := n.program(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Derive) Name() string { return "derive." + n.Column }

func (n *Derive) Clone() pipeline.Node {
	return &Derive{Column: n.Column, Expr: n.Expr, compiled: n.compiled}
}

func (n *Derive) program() (*dsl.Expr, error) {
	if n.compiled == nil {
		e, err := dsl.Compile(n.Expr)
		if err != nil {
			return nil, core.InvalidInputf(core.ModuleNode, "node: derive %s: %v", n.Column, err)
		}
		n.compiled = e
	}
	return n.compiled, nil
}

func (n *Derive) Fit(ctx context.Context, x, y core.Unit) (core.Output, core.Output, error) {
	xo, err := n.PredictForward(ctx, x)
	if err != nil {
		return core.Output{}, core.Output{}, err
	}
	return xo, core.Single(y), nil
}

func (n *Derive) PredictForward(ctx context.Context, x core.Unit) (core.Output, error) {
	e, err := n.program()
	if err != nil {
		return core.Output{}, err
	}
	u, err := mapFrames(x, func(_ core.Role, f *tabular.Frame) (*tabular.Frame, error) {
		values := make([]float64, f.Len())
		for i := range values {
			v, err := e.Eval(f.RowMap(i))
			if err != nil {
				return nil, fmt.Errorf("row %s: %w", f.Index()[i], err)
			}
			values[i] = v
		}
		return f.WithColumn(n.Column, values)
	})
	if err != nil {
		return core.Output{}, err
	}
	return core.Single(u), nil
}

// PredictBackward 不改变形状。
func (n *Derive) PredictBackward(ctx context.Context, y core.Output) (core.Unit, error) {
	return y.SingleUnit(core.ModuleNode)
}

// Save 无状态可保存。
func (n *Derive) Save(ctx context.Context, st core.Store, prefix string) error { return nil }

// Load 只重新编译表达式。
func (n *Derive) Load(ctx context.Context, st core.Store, prefix string) error {
	_, err := n.program()
	return err
}

var _ pipeline.Node = (*Derive)(nil)
