package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// DefaultRecursionLimit 单次执行允许的最大节点步数。
// 防止条件边构成的环无限执行。
const DefaultRecursionLimit = 100

// RecursionLimitError 执行步数超过上限。
type RecursionLimitError struct {
	Workflow string
	Limit    int
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("workflow %s: recursion limit %d exceeded", e.Workflow, e.Limit)
}

// RunConfig 单次执行配置。
type RunConfig struct {
	// ThreadID 检查点线程标识，通常为会话 ID。
	// 为空时本次执行不写检查点。
	ThreadID string
	// RecursionLimit 覆盖编译期步数上限，0 表示沿用。
	RecursionLimit int
	// Metadata 附加到日志的执行元数据。
	Metadata map[string]any
}

// Runner 编译后的工作流执行器，可并发调用 Invoke。
type Runner[S any] struct {
	graph          *Graph[S]
	checkpointer   Checkpointer
	recursionLimit int
	logger         *zap.Logger
}

// Name 返回工作流名称。
func (r *Runner[S]) Name() string { return r.graph.name }

// CheckpointingEnabled 返回是否配置了检查点存储。
func (r *Runner[S]) CheckpointingEnabled() bool { return r.checkpointer != nil }

// Invoke 从入口节点开始执行，直到到达 End 或出错。
// 返回最后一次成功节点执行后的状态。
func (r *Runner[S]) Invoke(ctx context.Context, state S, cfg RunConfig) (S, error) {
	limit := r.recursionLimit
	if cfg.RecursionLimit > 0 {
		limit = cfg.RecursionLimit
	}

	node := r.graph.entry
	for step := 0; ; step++ {
		if step >= limit {
			return state, &RecursionLimitError{Workflow: r.graph.name, Limit: limit}
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		default:
		}

		fn, ok := r.graph.nodes[node]
		if !ok {
			return state, fmt.Errorf("workflow %s: transition to unknown node %q", r.graph.name, node)
		}

		r.logger.Debug("executing node", zap.String("node", node), zap.Int("step", step))
		next, err := fn(ctx, state)
		if err != nil {
			return state, fmt.Errorf("workflow %s: node %s: %w", r.graph.name, node, err)
		}
		state = next

		r.saveCheckpoint(ctx, cfg.ThreadID, node, state)

		if edge, ok := r.graph.conditional[node]; ok {
			node = edge(state)
		} else if to, ok := r.graph.edges[node]; ok {
			node = to
		} else {
			node = End
		}
		if node == End {
			return state, nil
		}
	}
}

// saveCheckpoint 序列化状态并写入检查点存储。
// 持久化失败只记录日志，不影响执行。
func (r *Runner[S]) saveCheckpoint(ctx context.Context, threadID, node string, state S) {
	if r.checkpointer == nil || threadID == "" {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		r.logger.Warn("checkpoint marshal failed", zap.String("node", node), zap.Error(err))
		return
	}
	if err := r.checkpointer.Put(ctx, threadID, node, data); err != nil {
		r.logger.Warn("checkpoint save failed",
			zap.String("thread_id", threadID),
			zap.String("node", node),
			zap.Error(err))
	}
}
