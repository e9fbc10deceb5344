// Package builders 注册内置 Node 的配置构建器，import _ 即可生效。
package builders

import (
	"errors"
	"fmt"

	"github.com/rushteam/potok/config"
	"github.com/rushteam/potok/model"
	"github.com/rushteam/potok/node"
	"github.com/rushteam/potok/pipeline"
	"github.com/rushteam/potok/pkg/conv"
)

func init() {
	config.Register("kfold", BuildKFoldNode)
	config.Register("scale", BuildScaleNode)
	config.Register("derive", BuildDeriveNode)
	config.Register("regressor.linear", BuildLinearNode)
	config.Register("regressor.lr", BuildLRNode)
}

// BuildKFoldNode 参数：k（默认 5）、shuffle、seed。
func BuildKFoldNode(cfg map[string]any) (pipeline.Node, error) {
	k, err := conv.Int(cfg, "k", 5)
	if err != nil {
		return nil, err
	}
	if k < 2 {
		return nil, fmt.Errorf("k must be >= 2, got %d", k)
	}
	shuffle, err := conv.Bool(cfg, "shuffle", false)
	if err != nil {
		return nil, err
	}
	seed, err := conv.Int(cfg, "seed", 0)
	if err != nil {
		return nil, err
	}
	return node.NewKFold(k, shuffle, int64(seed)), nil
}

// BuildScaleNode 参数：columns（默认全部特征列）。
func BuildScaleNode(cfg map[string]any) (pipeline.Node, error) {
	cols, err := conv.Strings(cfg, "columns")
	if err != nil {
		return nil, err
	}
	return node.NewScale(cols...), nil
}

// BuildDeriveNode 参数：column、expr（均必填）。
func BuildDeriveNode(cfg map[string]any) (pipeline.Node, error) {
	column, err := conv.String(cfg, "column", "")
	if err != nil {
		return nil, err
	}
	expr, err := conv.String(cfg, "expr", "")
	if err != nil {
		return nil, err
	}
	if column == "" || expr == "" {
		return nil, errors.New("column and expr are required")
	}
	return node.NewDerive(column, expr)
}

func BuildLinearNode(cfg map[string]any) (pipeline.Node, error) {
	return buildRegressor(cfg, "identity")
}

func BuildLRNode(cfg map[string]any) (pipeline.Node, error) {
	return buildRegressor(cfg, "logistic")
}

// buildRegressor 参数：learning_rate、epochs、l2、early_stopping_rounds、name、features、target。
func buildRegressor(cfg map[string]any, link string) (pipeline.Node, error) {
	m := model.NewLinearModel(link)
	var err error
	if m.LearningRate, err = conv.Float(cfg, "learning_rate", m.LearningRate); err != nil {
		return nil, err
	}
	if m.Epochs, err = conv.Int(cfg, "epochs", m.Epochs); err != nil {
		return nil, err
	}
	if m.L2, err = conv.Float(cfg, "l2", 0); err != nil {
		return nil, err
	}
	if m.EarlyStoppingRounds, err = conv.Int(cfg, "early_stopping_rounds", m.EarlyStoppingRounds); err != nil {
		return nil, err
	}
	if m.LearningRate <= 0 || m.Epochs <= 0 || m.L2 < 0 || m.EarlyStoppingRounds < 0 {
		return nil, fmt.Errorf("invalid hyperparameters: learning_rate=%v epochs=%d l2=%v early_stopping_rounds=%d",
			m.LearningRate, m.Epochs, m.L2, m.EarlyStoppingRounds)
	}

	n := node.NewRegressor(m)
	if n.NodeName, err = conv.String(cfg, "name", ""); err != nil {
		return nil, err
	}
	if n.Features, err = conv.Strings(cfg, "features"); err != nil {
		return nil, err
	}
	if n.Target, err = conv.String(cfg, "target", ""); err != nil {
		return nil, err
	}
	return n, nil
}
