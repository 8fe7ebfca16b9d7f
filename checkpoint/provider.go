// Package checkpoint 提供工作流检查点的持久化实现：
// GORM（PostgreSQL / SQLite）与 Redis 两种后端，
// 以及延迟建连的 Provider 抽象。
package checkpoint

import (
	"context"

	"github.com/BaSui01/graphchat/workflow"
)

// Provider 检查点存储提供者。
// Acquire 在首次调用时建立连接并完成迁移，之后复用同一存储。
// 智能体在首次构建工作流图时调用，失败与否决定降级行为。
type Provider interface {
	Acquire(ctx context.Context) (workflow.Checkpointer, error)
}

// StaticProvider 包装一个现成的存储实例，测试与内存后端使用。
type StaticProvider struct {
	Store workflow.Checkpointer
}

// Acquire 返回包装的存储。
func (p StaticProvider) Acquire(context.Context) (workflow.Checkpointer, error) {
	return p.Store, nil
}
