package pipeline

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config 描述一个 Pipeline：名称、分支并发与有序的 Node 列表。
//
//	pipeline:
//	  name: ltv
//	  max_concurrent: 4
//	  nodes:
//	    - type: kfold
//	      config: {k: 5, shuffle: true}
//	    - type: regressor.linear
type Config struct {
	Pipeline struct {
		Name          string       `yaml:"name" json:"name"`
		MaxConcurrent int          `yaml:"max_concurrent" json:"max_concurrent"`
		Nodes         []NodeConfig `yaml:"nodes" json:"nodes"`
	} `yaml:"pipeline" json:"pipeline"`
}

// NodeConfig 是单个 Node 的类型与参数。
type NodeConfig struct {
	Type   string         `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config" json:"config"`
}

// LoadConfig 读取配置文件。YAML 是 JSON 的超集，.json 文件同样适用。
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML 解析配置内容。
func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// BuildPipeline 用 factory 逐个构建 Node。
func (c *Config) BuildPipeline(factory *NodeFactory) (*Pipeline, error) {
	nodes := make([]Node, len(c.Pipeline.Nodes))
	for i, nc := range c.Pipeline.Nodes {
		n, err := factory.Build(nc.Type, nc.Config)
		if err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, nc.Type, err)
		}
		nodes[i] = n
	}
	p := New(c.Pipeline.Name, nodes...)
	p.MaxConcurrent = c.Pipeline.MaxConcurrent
	return p, nil
}

// NodeBuilder 根据参数构建 Node。
type NodeBuilder func(cfg map[string]any) (Node, error)

// NodeFactory 是 type -> NodeBuilder 的映射，不做并发保护。
type NodeFactory struct {
	builders map[string]NodeBuilder
}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{builders: make(map[string]NodeBuilder)}
}

func (f *NodeFactory) Register(nodeType string, builder NodeBuilder) {
	f.builders[nodeType] = builder
}

// Types 返回已注册的类型（排序）。
func (f *NodeFactory) Types() []string {
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (f *NodeFactory) Build(nodeType string, cfg map[string]any) (Node, error) {
	builder, ok := f.builders[nodeType]
	if !ok {
		return nil, fmt.Errorf("unknown node type %q (supported: %v)", nodeType, f.Types())
	}
	return builder(cfg)
}
