package store

import "github.com/rushteam/potok/core"

// 注意：此包只包含实现，接口定义在 core 包。
// 使用 core.Store 接口，key 为 "/" 分隔的层级路径。
//
// 示例：
//   var st core.Store = NewMemoryStore()
//   p.Save(ctx, st, "models/ltv")

// ErrNotFound 与 core.ErrStoreNotFound 相同，便于包内直接引用。
var ErrNotFound = core.ErrStoreNotFound
