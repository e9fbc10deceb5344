// Package conv 从 YAML/JSON 解析出的 map[string]any 中按类型读取 Node 参数。
//
// YAML 中的数字可能被解析为 int 或 float64，JSON 中一律是 float64，
// 这里统一兼容；类型不符时返回错误，而不是静默使用默认值。
package conv

import (
	"fmt"
	"math"
)

// ToFloat64 将数值（或 bool）转为 float64。
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func lookup(m map[string]any, key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Float 读取数值参数，缺省时返回 def。
func Float(m map[string]any, key string, def float64) (float64, error) {
	v, ok := lookup(m, key)
	if !ok {
		return def, nil
	}
	if _, isBool := v.(bool); !isBool {
		if f, ok := ToFloat64(v); ok {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%s: want a number, got %T", key, v)
}

// Int 读取整数参数，接受整数值的浮点数（JSON）。
func Int(m map[string]any, key string, def int) (int, error) {
	v, ok := lookup(m, key)
	if !ok {
		return def, nil
	}
	f, err := Float(m, key, 0)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s: want an integer, got %v", key, v)
	}
	return int(f), nil
}

// Bool 读取布尔参数。
func Bool(m map[string]any, key string, def bool) (bool, error) {
	v, ok := lookup(m, key)
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s: want a boolean, got %T", key, v)
	}
	return b, nil
}

// String 读取字符串参数。
func String(m map[string]any, key string, def string) (string, error) {
	v, ok := lookup(m, key)
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: want a string, got %T", key, v)
	}
	return s, nil
}

// Strings 读取字符串列表；单个字符串视为只有一个元素的列表。缺省时返回 nil。
func Strings(m map[string]any, key string) ([]string, error) {
	v, ok := lookup(m, key)
	if !ok {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		return []string{val}, nil
	case []string:
		return append([]string(nil), val...), nil
	case []any:
		out := make([]string, len(val))
		for i, e := range val {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: want a string, got %T", key, i, e)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s: want a list of strings, got %T", key, v)
}
