package node

import (
	"context"
	"slices"

	"github.com/rushteam/potok/core"
	"github.com/rushteam/potok/model"
	"github.com/rushteam/potok/pipeline"
	"github.com/rushteam/potok/tabular"
)

// Scale 在 x.train 上拟合 StandardScaler，并对 x 的每个角色做标准化。
// Columns 为空时使用全部特征列；其余列原样保留。y 不变。
type Scale struct {
	Columns []string

	scaler *model.StandardScaler
}

func NewScale(columns ...string) *Scale {
	return &Scale{Columns: columns}
}

func (n *Scale) Name() string { return "scale" }

func (n *Scale) Clone() pipeline.Node {
	return &Scale{Columns: slices.Clone(n.Columns)}
}

func (n *Scale) Fit(ctx context.Context, x, y core.Unit) (core.Output, core.Output, error) {
	train, err := roleFrame(x, core.RoleTrain)
	if err != nil {
		return core.Output{}, core.Output{}, err
	}
	cols := n.Columns
	if cols == nil {
		cols = train.FeatureColumns()
	}
	X, err := train.Matrix(cols)
	if err != nil {
		return core.Output{}, core.Output{}, err
	}
	scaler := &model.StandardScaler{}
	if err := scaler.Fit(cols, X); err != nil {
		return core.Output{}, core.Output{}, err
	}
	n.scaler = scaler

	xo, err := n.PredictForward(ctx, x)
	if err != nil {
		return core.Output{}, core.Output{}, err
	}
	return xo, core.Single(y), nil
}

func (n *Scale) PredictForward(ctx context.Context, x core.Unit) (core.Output, error) {
	if n.scaler == nil {
		return core.Output{}, core.NewDomainError(core.ModuleNode, core.ErrorCodeNotFitted, "node: fit scaler before or load from store")
	}
	u, err := mapFrames(x, func(_ core.Role, f *tabular.Frame) (*tabular.Frame, error) {
		X, err := f.Matrix(n.scaler.Columns)
		if err != nil {
			return nil, err
		}
		scaled, err := n.scaler.Transform(n.scaler.Columns, X)
		if err != nil {
			return nil, err
		}
		out := f
		for j, c := range n.scaler.Columns {
			col := make([]float64, len(scaled))
			for i := range scaled {
				col[i] = scaled[i][j]
			}
			if out, err = out.WithColumn(c, col); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
	if err != nil {
		return core.Output{}, err
	}
	return core.Single(u), nil
}

// PredictBackward 不改变形状。
func (n *Scale) PredictBackward(ctx context.Context, y core.Output) (core.Unit, error) {
	return y.SingleUnit(core.ModuleNode)
}

func (n *Scale) Save(ctx context.Context, st core.Store, prefix string) error {
	if n.scaler == nil {
		return core.NewDomainError(core.ModuleNode, core.ErrorCodeNotFitted, "node: nothing to save before fit")
	}
	return saveJSON(ctx, st, prefix, n.scaler)
}

func (n *Scale) Load(ctx context.Context, st core.Store, prefix string) error {
	scaler := &model.StandardScaler{}
	if err := loadJSON(ctx, st, prefix, scaler); err != nil {
		return err
	}
	n.scaler = scaler
	return nil
}

var _ pipeline.Node = (*Scale)(nil)
