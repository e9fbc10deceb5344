// Package potok 是一个可分支的 Pipeline 执行引擎。
//
// 设计要点：
// - Pipeline-first: 训练与预测逻辑通过 Node 串联，每个 Node 按当前分支数复制成一个 Layer
// - Branch-aware: Node 可以把一个分支拆成多个子分支（K 折、集成、增强），反向预测时再合并回原始形状
// - Data-agnostic: 引擎只依赖 core.Data 契约，不关心数据是表格、图像还是其他
// - 三种遍历：前向 Fit、前向预测（按原顺序重放）、反向预测（按逆序重放）
package potok

import (
	"github.com/rushteam/potok/core"
	"github.com/rushteam/potok/pipeline"
)

// 轻量 facade：便于用户直接 import "potok" 使用核心抽象。
type (
	Pipeline  = pipeline.Pipeline
	Node      = pipeline.Node
	Layer     = pipeline.Layer
	Data      = core.Data
	Unit      = core.Unit
	BranchSet = core.BranchSet
	Output    = core.Output
	Store     = core.Store
)

// New 创建 Pipeline。
func New(name string, nodes ...Node) *Pipeline { return pipeline.New(name, nodes...) }
