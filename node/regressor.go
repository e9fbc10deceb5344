package node

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/rushteam/potok/core"
	"github.com/rushteam/potok/model"
	"github.com/rushteam/potok/pipeline"
	"github.com/rushteam/potok/tabular"
)

// Regressor 在 train 角色上训练回归模型，并对每个角色输出预测。
// x 与 y 都带 valid 时，valid 作为验证集传给模型（早停、选最优轮）。
//
// Fit 返回 (x, 预测)：x 原样透传，y 被替换为模型在 x 各角色上的预测，
// 后续 PredictBackward 由上游的拆分 Node 负责合并。
type Regressor struct {
	NodeName string
	Model    model.Regressor
	Features []string // 为空时使用 x.train 的全部特征列
	Target   string   // 为空时使用 y.train 的第一个目标列

	fitted bool
}

// NewRegressor 用给定模型创建回归 Node。
func NewRegressor(m model.Regressor) *Regressor {
	return &Regressor{Model: m}
}

func (n *Regressor) Name() string {
	if n.NodeName != "" {
		return n.NodeName
	}
	return "regressor." + n.Model.Name()
}

func (n *Regressor) Clone() pipeline.Node {
	return &Regressor{
		NodeName: n.NodeName,
		Model:    n.Model.Clone(),
		Features: slices.Clone(n.Features),
		Target:   n.Target,
	}
}

func (n *Regressor) Fit(ctx context.Context, x, y core.Unit) (core.Output, core.Output, error) {
	xTrain, err := roleFrame(x, core.RoleTrain)
	if err != nil {
		return core.Output{}, core.Output{}, err
	}
	yTrain, err := roleFrame(y, core.RoleTrain)
	if err != nil {
		return core.Output{}, core.Output{}, err
	}

	if n.Features == nil {
		n.Features = xTrain.FeatureColumns()
	}
	if n.Target == "" {
		cols := yTrain.TargetColumns()
		if len(cols) == 0 {
			cols = yTrain.Columns()
		}
		if len(cols) == 0 {
			return core.Output{}, core.Output{}, core.InvalidInputf(core.ModuleNode, "node: y.train has no target column")
		}
		n.Target = cols[0]
	}

	X, target, err := n.matrix(xTrain, yTrain)
	if err != nil {
		return core.Output{}, core.Output{}, err
	}
	var eval *model.EvalSet
	if x.Has(core.RoleValid) && y.Has(core.RoleValid) {
		xValid, err := roleFrame(x, core.RoleValid)
		if err != nil {
			return core.Output{}, core.Output{}, err
		}
		yValid, err := roleFrame(y, core.RoleValid)
		if err != nil {
			return core.Output{}, core.Output{}, err
		}
		eval = &model.EvalSet{}
		if eval.X, eval.Y, err = n.matrix(xValid, yValid); err != nil {
			return core.Output{}, core.Output{}, fmt.Errorf("valid: %w", err)
		}
	}
	if err := n.Model.Fit(n.Features, X, target, eval); err != nil {
		return core.Output{}, core.Output{}, err
	}
	n.fitted = true

	pred, err := n.PredictForward(ctx, x)
	if err != nil {
		return core.Output{}, core.Output{}, err
	}
	return core.Single(x), pred, nil
}

// matrix 取特征矩阵，并把目标列按特征的行顺序对齐。
func (n *Regressor) matrix(x, y *tabular.Frame) ([][]float64, []float64, error) {
	aligned, err := y.Reindex(x.Index())
	if err != nil {
		return nil, nil, err
	}
	target, err := aligned.(*tabular.Frame).Column(n.Target)
	if err != nil {
		return nil, nil, err
	}
	X, err := x.Matrix(n.Features)
	if err != nil {
		return nil, nil, err
	}
	return X, target, nil
}

func (n *Regressor) PredictForward(ctx context.Context, x core.Unit) (core.Output, error) {
	if !n.fitted {
		return core.Output{}, core.NewDomainError(core.ModuleNode, core.ErrorCodeNotFitted, "node: fit model before or load from store")
	}
	u, err := mapFrames(x, func(_ core.Role, f *tabular.Frame) (*tabular.Frame, error) {
		X, err := f.Matrix(n.Features)
		if err != nil {
			return nil, err
		}
		pred, err := n.Model.Predict(n.Features, X)
		if err != nil {
			return nil, err
		}
		rows := make([][]float64, len(pred))
		for i, v := range pred {
			rows[i] = []float64{v}
		}
		return tabular.NewFrame(f.Index(), []string{n.Target}, rows, n.Target)
	})
	if err != nil {
		return core.Output{}, err
	}
	return core.Single(u), nil
}

// PredictBackward 不改变形状。
func (n *Regressor) PredictBackward(ctx context.Context, y core.Output) (core.Unit, error) {
	return y.SingleUnit(core.ModuleNode)
}

type regressorState struct {
	Features []string        `json:"features"`
	Target   string          `json:"target"`
	Model    json.RawMessage `json:"model"`
}

func (n *Regressor) Save(ctx context.Context, st core.Store, prefix string) error {
	if !n.fitted {
		return core.NewDomainError(core.ModuleNode, core.ErrorCodeNotFitted, "node: nothing to save before fit")
	}
	raw, err := n.Model.MarshalJSON()
	if err != nil {
		return err
	}
	return saveJSON(ctx, st, prefix, regressorState{Features: n.Features, Target: n.Target, Model: raw})
}

func (n *Regressor) Load(ctx context.Context, st core.Store, prefix string) error {
	var s regressorState
	if err := loadJSON(ctx, st, prefix, &s); err != nil {
		return err
	}
	if err := n.Model.UnmarshalJSON(s.Model); err != nil {
		return err
	}
	n.Features, n.Target, n.fitted = s.Features, s.Target, true
	return nil
}

var _ pipeline.Node = (*Regressor)(nil)
