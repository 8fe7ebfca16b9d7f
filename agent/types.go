// Package agent 实现会话智能体：意图路由、注册表工厂、
// 共享生命周期（图构建门、历史裁剪、检查点会话），以及
// 聊天、图查询、文档检索三个内置智能体。
package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/graphchat/llm"
)

// Type 智能体类型
type Type string

const (
	TypeChat       Type = "chat"
	TypeGraphQuery Type = "graphquery"
	TypeRetrieval  Type = "retrieval"
)

// BuiltinTypes 返回内置智能体类型集合。
func BuiltinTypes() []Type {
	return []Type{TypeChat, TypeGraphQuery, TypeRetrieval}
}

// ValidType 判断是否为内置类型。
func ValidType(t Type) bool {
	switch t {
	case TypeChat, TypeGraphQuery, TypeRetrieval:
		return true
	}
	return false
}

// Message 会话消息。ID 为消息的全局唯一标识，
// 合并历史时依据 ID 去重，保证重放幂等。
type Message struct {
	ID       string         `json:"id"`
	Role     llm.Role       `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewMessage 创建带新 ID 的消息。
func NewMessage(role llm.Role, content string) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: content}
}

// ToLLM 转换为提供商消息格式。
func ToLLM(messages []Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// MergeMessages 追加合并消息列表。
// 已存在（按 ID）的消息被跳过，其余按原顺序追加；
// 同一批更新重复应用的结果与应用一次相同。
func MergeMessages(current, update []Message) []Message {
	seen := make(map[string]struct{}, len(current))
	for _, m := range current {
		seen[m.ID] = struct{}{}
	}
	out := current
	for _, m := range update {
		if m.ID != "" {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		out = append(out, m)
	}
	return out
}

// Request 一次智能体调用。
type Request struct {
	Query        string         `json:"query"`
	SessionID    string         `json:"session_id"`
	UserID       string         `json:"user_id,omitempty"`
	History      []Message      `json:"history,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Result 执行结果。
// Error 记录业务层失败（已折叠为面向用户的响应），
// 基础设施失败通过 error 返回值传递。
type Result struct {
	Response  string         `json:"response"`
	Error     string         `json:"error,omitempty"`
	AgentType Type           `json:"agent_type"`
	Duration  time.Duration  `json:"duration"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StreamEventType 流事件类型
type StreamEventType string

const (
	StreamEventToken StreamEventType = "token"
	StreamEventDone  StreamEventType = "done"
	StreamEventError StreamEventType = "error"
)

// StreamEvent 流式执行事件。
// Token 事件携带增量文本；Done 事件携带最终结果并结束流；
// Error 事件表示终止性失败并结束流。
type StreamEvent struct {
	Type   StreamEventType `json:"type"`
	Token  string          `json:"token,omitempty"`
	Result *Result         `json:"result,omitempty"`
	Err    error           `json:"-"`
}
