package workflow

import (
	"context"
	"sync"
)

// snapshot 内存检查点条目
type snapshot struct {
	seq   int
	node  string
	state []byte
}

// MemoryCheckpointer 进程内检查点存储。
// 用于开发环境与测试，进程退出后数据丢失。
type MemoryCheckpointer struct {
	mu      sync.RWMutex
	threads map[string][]snapshot
}

// NewMemoryCheckpointer 创建内存检查点存储。
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{threads: make(map[string][]snapshot)}
}

// Put 追加快照。
func (m *MemoryCheckpointer) Put(_ context.Context, threadID, node string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(state))
	copy(cp, state)
	m.threads[threadID] = append(m.threads[threadID], snapshot{
		seq:   len(m.threads[threadID]) + 1,
		node:  node,
		state: cp,
	})
	return nil
}

// Latest 返回最新快照。
func (m *MemoryCheckpointer) Latest(_ context.Context, threadID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := m.threads[threadID]
	if len(snaps) == 0 {
		return nil, ErrNoCheckpoint
	}
	last := snaps[len(snaps)-1]
	out := make([]byte, len(last.state))
	copy(out, last.state)
	return out, nil
}

// DeleteThread 删除线程全部快照。
func (m *MemoryCheckpointer) DeleteThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
	return nil
}

// Len 返回线程的快照数量，供测试断言。
func (m *MemoryCheckpointer) Len(threadID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.threads[threadID])
}
