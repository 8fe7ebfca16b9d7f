package workflow

import (
	"context"
	"errors"
)

// ErrNoCheckpoint 线程没有任何检查点。
var ErrNoCheckpoint = errors.New("workflow: no checkpoint for thread")

// Checkpointer 状态快照存储。
// 同一线程内快照按序号只增不改，Latest 返回最新快照。
// 实现必须并发安全。
type Checkpointer interface {
	// Put 追加一条快照。state 为 JSON 序列化后的工作流状态。
	Put(ctx context.Context, threadID, node string, state []byte) error

	// Latest 返回线程的最新快照，无快照时返回 ErrNoCheckpoint。
	Latest(ctx context.Context, threadID string) ([]byte, error)

	// DeleteThread 删除线程的全部检查点数据。
	// 删除是尽力而为的清理，实现应容忍部分失败。
	DeleteThread(ctx context.Context, threadID string) error
}
