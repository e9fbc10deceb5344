package model

// Regressor 是回归阶段的最小抽象：按列名输入特征矩阵，输出每行一个预测值。
// 具体实现可以是本地模型（线性/GBDT）或远程 RPC。
//
// Clone 返回未训练的新实例（保留超参数），供每个分支独立训练。
// Fit 的 eval 可为 nil；非 nil 时用于验证集评估（早停）。
type Regressor interface {
	Name() string
	Fit(features []string, X [][]float64, y []float64, eval *EvalSet) error
	Predict(features []string, X [][]float64) ([]float64, error)
	Clone() Regressor

	MarshalJSON() ([]byte, error)
	UnmarshalJSON(data []byte) error
}

// EvalSet 是验证集，列顺序与 Fit 的 features 相同。
type EvalSet struct {
	X [][]float64
	Y []float64
}
