package core

import (
	"fmt"
	"reflect"
)

// Index 是数据容器的行标识：有序、可哈希的 key 列表。
type Index []string

// Len 返回 key 的数量。
func (idx Index) Len() int { return len(idx) }

// Equal 判断两个 Index 是否逐位相等（顺序敏感）。
func (idx Index) Equal(other Index) bool {
	if len(idx) != len(other) {
		return false
	}
	for i := range idx {
		if idx[i] != other[i] {
			return false
		}
	}
	return true
}

// Set 返回 key 集合，用于成员判断。
func (idx Index) Set() map[string]struct{} {
	set := make(map[string]struct{}, len(idx))
	for _, k := range idx {
		set[k] = struct{}{}
	}
	return set
}

// SameKeys 判断两个 Index 的 key 集合是否相同（顺序无关）。
func (idx Index) SameKeys(other Index) bool {
	a, b := idx.Set(), other.Set()
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// Data 是所有具体数据类型（表格、图像等）必须实现的抽象契约。
//
// 引擎只调用契约，不构造、也不检查具体数据：
//   - SelectByIndex：按 key 取子集，key 不存在时返回 OUT_OF_RANGE
//   - Reindex：输出的 Index 必须严格等于传入的 Index（包括重复与顺序），不引入新 key
//   - Combine：同类数据按 Index 轴拼接（行拼接语义），可在该类型的任意实例上调用
//
// SelectByIndex 与 Reindex 不得改变具体类型。
type Data interface {
	Features() (Data, error)
	Targets() (Data, error)
	Index() Index
	SelectByIndex(idx Index) (Data, error)
	Reindex(idx Index) (Data, error)
	Combine(datas []Data) (Data, error)
}

// Averager 是可选接口：支持对多个同 Index 的数据求均值（例如多折预测融合）。
type Averager interface {
	Mean(datas []Data) (Data, error)
}

// KindOf 返回数据的具体类型，用于同构校验。
func KindOf(d Data) reflect.Type {
	return reflect.TypeOf(d)
}

// KindName 返回具体类型名，用于日志与错误信息。
func KindName(d Data) string {
	if d == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", d)
}

// Combine 校验所有输入为同一具体类型后，委托给该类型的 Combine。
func Combine(datas []Data) (Data, error) {
	if len(datas) == 0 {
		return nil, InvalidInputf(ModuleData, "data: combine requires at least one input")
	}
	kind := KindOf(datas[0])
	for i, d := range datas {
		if d == nil {
			return nil, InvalidInputf(ModuleData, "data: combine input %d is nil", i)
		}
		if KindOf(d) != kind {
			return nil, KindMismatchf(ModuleData, "data: combine input %d is %s, want %s", i, KindName(d), KindName(datas[0]))
		}
	}
	return datas[0].Combine(datas)
}

// Mean 对同类数据求均值，要求该类型实现 Averager。
func Mean(datas []Data) (Data, error) {
	if len(datas) == 0 {
		return nil, InvalidInputf(ModuleData, "data: mean requires at least one input")
	}
	kind := KindOf(datas[0])
	for i, d := range datas {
		if KindOf(d) != kind {
			return nil, KindMismatchf(ModuleData, "data: mean input %d is %s, want %s", i, KindName(d), KindName(datas[0]))
		}
	}
	avg, ok := datas[0].(Averager)
	if !ok {
		return nil, NewDomainError(ModuleData, ErrorCodeNotSupported, fmt.Sprintf("data: %s does not support mean", KindName(datas[0])))
	}
	return avg.Mean(datas)
}
