// Package node 提供基于 tabular.Frame 的常用 Node：
// K 折拆分、回归模型、标准化、表达式派生列。
package node

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rushteam/potok/core"
	"github.com/rushteam/potok/tabular"
)

const stateKey = "state.json"

func frameOf(d core.Data) (*tabular.Frame, error) {
	f, ok := d.(*tabular.Frame)
	if !ok {
		return nil, core.KindMismatchf(core.ModuleNode, "node: expected *tabular.Frame, got %s", core.KindName(d))
	}
	return f, nil
}

func roleFrame(u core.Unit, r core.Role) (*tabular.Frame, error) {
	d := u.Get(r)
	if d == nil {
		return nil, core.InvalidInputf(core.ModuleNode, "node: unit has no %s role (roles %v)", r, u.Roles())
	}
	return frameOf(d)
}

// mapFrames 对每个角色的 Frame 应用 fn，角色集合不变。
func mapFrames(u core.Unit, fn func(core.Role, *tabular.Frame) (*tabular.Frame, error)) (core.Unit, error) {
	out := make(map[core.Role]core.Data, 3)
	for _, r := range u.Roles() {
		f, err := frameOf(u.Get(r))
		if err != nil {
			return core.Unit{}, err
		}
		nf, err := fn(r, f)
		if err != nil {
			return core.Unit{}, fmt.Errorf("role %s: %w", r, err)
		}
		out[r] = nf
	}
	return core.NewUnit(out)
}

func saveJSON(ctx context.Context, st core.Store, prefix string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return st.Set(ctx, core.JoinKey(prefix, stateKey), data)
}

func loadJSON(ctx context.Context, st core.Store, prefix string, v any) error {
	data, err := st.Get(ctx, core.JoinKey(prefix, stateKey))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
