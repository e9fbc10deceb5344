// Package config 维护进程级的 Node 类型注册表，把 pipeline.Config 构建为 Pipeline。
//
// 内置 Node 在 config/builders 的 init 中注册，入口处需要：
//
//	import _ "github.com/rushteam/potok/config/builders"
package config

import (
	"fmt"
	"slices"
	"sync"

	"github.com/rushteam/potok/pipeline"
)

// NodeBuilder 与 pipeline.NodeBuilder 相同。
type NodeBuilder = pipeline.NodeBuilder

var registry = struct {
	sync.RWMutex
	builders map[string]NodeBuilder
}{builders: make(map[string]NodeBuilder)}

// Register 注册一种 Node 类型，同名覆盖。通常在 init 中调用。
func Register(typeName string, builder NodeBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	registry.Lock()
	defer registry.Unlock()
	registry.builders[typeName] = builder
}

// DefaultFactory 返回当前注册表的快照。
func DefaultFactory() *pipeline.NodeFactory {
	registry.RLock()
	defer registry.RUnlock()
	f := pipeline.NewNodeFactory()
	for t, b := range registry.builders {
		f.Register(t, b)
	}
	return f
}

// SupportedTypes 返回已注册的类型（排序）。
func SupportedTypes() []string { return DefaultFactory().Types() }

// Validate 在构建前检查配置：至少一个 Node，且每个 type 都已注册。
func Validate(cfg *pipeline.Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if len(cfg.Pipeline.Nodes) == 0 {
		return fmt.Errorf("pipeline %q has no nodes", cfg.Pipeline.Name)
	}
	types := SupportedTypes()
	for i, nc := range cfg.Pipeline.Nodes {
		if nc.Type == "" {
			return fmt.Errorf("node %d has no type (supported: %v)", i, types)
		}
		if !slices.Contains(types, nc.Type) {
			return fmt.Errorf("node %d: unsupported type %q (supported: %v)", i, nc.Type, types)
		}
	}
	return nil
}

// Build 校验配置并用注册表构建 Pipeline。
func Build(cfg *pipeline.Config) (*pipeline.Pipeline, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg.BuildPipeline(DefaultFactory())
}
