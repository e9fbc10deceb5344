package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		// row 是当前行的 column -> value
		cel.Variable("row", cel.MapType(cel.StringType, cel.DoubleType)),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Expr 是编译好的行表达式，使用 CEL (Common Expression Language) 实现。
// 编译一次，可在多个 goroutine 中重复求值。
//
// 表达式语法（CEL 标准语法）：
//   - 算术：row.price * row.qty / row["unit size"]
//   - 条件：row.age > 60.0 ? 1.0 : 0.0
//   - 存在性："bonus" in row ? row.bonus : 0.0
//   - 布尔：row.score >= 0.5（结果 true/false 转为 1/0）
//
// 注意：CEL 中整数与浮点不会隐式转换，常量请写成 1.0 而不是 1。
type Expr struct {
	source string
	prg    cel.Program
}

// Compile 解析并编译表达式。
func Compile(expr string) (*Expr, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	// 编译表达式
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	// 创建程序
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	return &Expr{source: expr, prg: prg}, nil
}

// Source 返回原始表达式。
func (e *Expr) Source() string { return e.source }

// Eval 对一行求值，结果必须是数值或布尔值。
func (e *Expr) Eval(row map[string]float64) (float64, error) {
	out, _, err := e.prg.Eval(map[string]any{"row": row})
	if err != nil {
		// 访问不存在的 key 会返回错误，应先用 "key" in row 判断
		return 0, fmt.Errorf("eval error: %w", err)
	}

	switch v := out.Value().(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("expression must return a number or boolean, got %T", out.Value())
	}
}
