package llm

import "context"

// Provider 大模型提供商接口。
// 所有实现必须并发安全。
type Provider interface {
	// Completion 发起一次聊天补全。
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream 发起流式补全，通道在流结束或出错后关闭。
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// Name 返回提供商名称，用于日志与指标标签。
	Name() string
}
