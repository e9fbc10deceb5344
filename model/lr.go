package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
)

// LinearModel 实现了线性回归 / 逻辑回归，用全量梯度下降训练。
//
// 预测原理：
// 1. 线性加权求和: z = Bias + sum(Weight_i * Feature_i)
// 2. Link 为 "logistic" 时做 Sigmoid 变换: P = 1 / (1 + exp(-z))
//
// 训练时跳过目标为 NaN 的行，特征中的 NaN 按 0 处理。
// 给出验证集时每轮计算验证损失，保留最优一轮的参数；
// EarlyStoppingRounds > 0 时连续这么多轮没有改善即停止。
type LinearModel struct {
	Bias    float64            // 偏置项 (Bias / Intercept)
	Weights map[string]float64 // 特征权重 (Weights / Coefficients)

	Link         string  // "identity"（默认）或 "logistic"
	LearningRate float64 // 默认 0.1
	Epochs       int     // 默认 500
	L2           float64 // L2 正则系数

	EarlyStoppingRounds int // 默认 50，<= 0 时不早停
	BestEpoch           int // 验证损失最优的轮数，0 表示初始参数
}

// NewLinearModel 创建带默认超参数的线性模型。
func NewLinearModel(link string) *LinearModel {
	return &LinearModel{Link: link, LearningRate: 0.1, Epochs: 500, EarlyStoppingRounds: 50}
}

// LoadLinearModel 从 JSON 文件加载模型。
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := &LinearModel{}
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *LinearModel) Name() string {
	if m.Link == "logistic" {
		return "lr"
	}
	return "linear"
}

// Clone 返回保留超参数、未训练的新模型。
func (m *LinearModel) Clone() Regressor {
	return &LinearModel{
		Link: m.Link, LearningRate: m.LearningRate, Epochs: m.Epochs, L2: m.L2,
		EarlyStoppingRounds: m.EarlyStoppingRounds,
	}
}

func (m *LinearModel) link(z float64) float64 {
	if m.Link == "logistic" {
		return 1 / (1 + math.Exp(-z))
	}
	return z
}

// Fit 用全量梯度下降最小化平方误差（logistic 时为对数损失）。
func (m *LinearModel) Fit(features []string, X [][]float64, y []float64, eval *EvalSet) error {
	if len(X) != len(y) {
		return fmt.Errorf("linear: %d rows for %d targets", len(X), len(y))
	}
	if eval != nil {
		if len(eval.X) != len(eval.Y) {
			return fmt.Errorf("linear: eval set has %d rows for %d targets", len(eval.X), len(eval.Y))
		}
		for i, row := range eval.X {
			if len(row) != len(features) {
				return fmt.Errorf("linear: eval row %d has %d values, want %d", i, len(row), len(features))
			}
		}
	}
	lr := m.LearningRate
	if lr <= 0 {
		lr = 0.1
	}
	epochs := m.Epochs
	if epochs <= 0 {
		epochs = 500
	}

	rows := make([]int, 0, len(y))
	for i, v := range y {
		if !math.IsNaN(v) {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return errors.New("linear: no rows with a target value")
	}

	w := make([]float64, len(features))
	b := 0.0
	grad := make([]float64, len(features))
	n := float64(len(rows))

	bestW, bestB, bestLoss := slices.Clone(w), b, math.Inf(1)
	m.BestEpoch = 0
	if eval != nil {
		// 验证集没有可用目标时按无验证集训练
		if bestLoss = m.evalLoss(w, b, eval); math.IsInf(bestLoss, 1) {
			eval = nil
		}
	}
	for ep := 0; ep < epochs; ep++ {
		clear(grad)
		gb := 0.0
		for _, i := range rows {
			z := b
			for j := range w {
				z += w[j] * value(X[i][j])
			}
			diff := m.link(z) - y[i]
			for j := range w {
				grad[j] += diff * value(X[i][j])
			}
			gb += diff
		}
		for j := range w {
			w[j] -= lr * (grad[j]/n + m.L2*w[j])
		}
		b -= lr * gb / n

		if eval == nil {
			continue
		}
		if loss := m.evalLoss(w, b, eval); loss < bestLoss {
			bestW, bestB, bestLoss = slices.Clone(w), b, loss
			m.BestEpoch = ep + 1
		} else if m.EarlyStoppingRounds > 0 && ep+1-m.BestEpoch >= m.EarlyStoppingRounds {
			break
		}
	}
	if eval != nil {
		w, b = bestW, bestB
	} else {
		m.BestEpoch = epochs
	}

	m.Bias = b
	m.Weights = make(map[string]float64, len(features))
	for j, f := range features {
		m.Weights[f] = w[j]
	}
	return nil
}

// Predict 对每一行输出预测值，未参与训练的特征被忽略。
func (m *LinearModel) Predict(features []string, X [][]float64) ([]float64, error) {
	if m.Weights == nil {
		return nil, errors.New("linear: fit model before or load from file")
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(features) {
			return nil, fmt.Errorf("linear: row %d has %d values, want %d", i, len(row), len(features))
		}
		z := m.Bias
		for j, f := range features {
			if w, ok := m.Weights[f]; ok {
				z += w * value(row[j])
			}
		}
		out[i] = m.link(z)
	}
	return out, nil
}

// evalLoss 计算验证集上的平均损失，跳过目标为 NaN 的行；没有可用行时返回 +Inf。
func (m *LinearModel) evalLoss(w []float64, b float64, eval *EvalSet) float64 {
	sum, cnt := 0.0, 0
	for i, row := range eval.X {
		if math.IsNaN(eval.Y[i]) {
			continue
		}
		z := b
		for j := range w {
			z += w[j] * value(row[j])
		}
		p, t := m.link(z), eval.Y[i]
		if m.Link == "logistic" {
			p = math.Min(math.Max(p, 1e-12), 1-1e-12)
			sum -= t*math.Log(p) + (1-t)*math.Log(1-p)
		} else {
			sum += (p - t) * (p - t)
		}
		cnt++
	}
	if cnt == 0 {
		return math.Inf(1)
	}
	return sum / float64(cnt)
}

func value(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

type linearJSON struct {
	Bias         float64            `json:"bias"`
	Weights      map[string]float64 `json:"weights"`
	Link         string             `json:"link,omitempty"`
	LearningRate float64            `json:"learning_rate,omitempty"`
	Epochs       int                `json:"epochs,omitempty"`
	L2           float64            `json:"l2,omitempty"`
	EarlyStop    int                `json:"early_stopping_rounds,omitempty"`
	BestEpoch    int                `json:"best_epoch,omitempty"`
}

func (m *LinearModel) MarshalJSON() ([]byte, error) {
	return json.Marshal(linearJSON{
		Bias: m.Bias, Weights: m.Weights, Link: m.Link,
		LearningRate: m.LearningRate, Epochs: m.Epochs, L2: m.L2,
		EarlyStop: m.EarlyStoppingRounds, BestEpoch: m.BestEpoch,
	})
}

func (m *LinearModel) UnmarshalJSON(data []byte) error {
	var raw linearJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = LinearModel{
		Bias: raw.Bias, Weights: raw.Weights, Link: raw.Link,
		LearningRate: raw.LearningRate, Epochs: raw.Epochs, L2: raw.L2,
		EarlyStoppingRounds: raw.EarlyStop, BestEpoch: raw.BestEpoch,
	}
	return nil
}

var _ Regressor = (*LinearModel)(nil)
