package model

import (
	"errors"
	"fmt"
	"math"
)

// StandardScaler 把每列标准化为零均值、单位方差。
// 方差为 0 的列输出 0；NaN 不参与统计，变换后仍为 NaN。
type StandardScaler struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Std     []float64 `json:"std"`
}

// Fit 按列统计均值与标准差。
func (s *StandardScaler) Fit(columns []string, X [][]float64) error {
	mean := make([]float64, len(columns))
	std := make([]float64, len(columns))
	for j := range columns {
		var sum, sq, n float64
		for _, row := range X {
			v := row[j]
			if math.IsNaN(v) {
				continue
			}
			sum += v
			sq += v * v
			n++
		}
		if n == 0 {
			continue
		}
		mean[j] = sum / n
		std[j] = math.Sqrt(math.Max(sq/n-mean[j]*mean[j], 0))
	}
	s.Columns = append([]string(nil), columns...)
	s.Mean = mean
	s.Std = std
	return nil
}

// Transform 按 Fit 时的列顺序变换 X，columns 必须与 Fit 时一致。
func (s *StandardScaler) Transform(columns []string, X [][]float64) ([][]float64, error) {
	if s.Columns == nil {
		return nil, errors.New("scaler: fit scaler before transform")
	}
	if len(columns) != len(s.Columns) {
		return nil, fmt.Errorf("scaler: got %d columns, fitted on %d", len(columns), len(s.Columns))
	}
	for j, c := range columns {
		if c != s.Columns[j] {
			return nil, fmt.Errorf("scaler: column %d is %q, fitted on %q", j, c, s.Columns[j])
		}
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(row))
		for j, v := range row {
			if s.Std[j] != 0 {
				r[j] = (v - s.Mean[j]) / s.Std[j]
			}
			if math.IsNaN(v) {
				r[j] = v
			}
		}
		out[i] = r
	}
	return out, nil
}
