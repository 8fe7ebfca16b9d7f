package agent

import (
	"github.com/BaSui01/graphchat/graphdb"
	"github.com/BaSui01/graphchat/llm"
	"github.com/BaSui01/graphchat/vectorstore"
)

// BaseState 所有工作流状态的公共部分。
// Error 保存折叠为数据的业务失败；Response 为投影出的最终回复。
type BaseState struct {
	Messages  []Message      `json:"messages"`
	SessionID string         `json:"session_id,omitempty"`
	Response  string         `json:"response,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AppendMessages 按 ID 去重地追加消息。
func (s *BaseState) AppendMessages(msgs ...Message) {
	s.Messages = MergeMessages(s.Messages, msgs)
}

// LatestUserQuery 返回最后一条用户消息的内容。
func (s *BaseState) LatestUserQuery() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// ConversationHistory 过滤出用户与助手消息，用于会话历史投影。
func (s *BaseState) ConversationHistory() []Message {
	out := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.Content == "" {
			continue
		}
		if m.Role == llm.RoleUser || m.Role == llm.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

// ChatState 聊天智能体状态。
type ChatState struct {
	BaseState
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// GraphQueryState 图查询智能体状态。
// Attempt 仅在生成节点递增；SkipRetry 在命中限流时置位，
// 使评估节点放弃重试。
type GraphQueryState struct {
	BaseState
	Query          string              `json:"query"`
	Schema         *graphdb.Schema     `json:"schema,omitempty"`
	Analysis       string              `json:"analysis,omitempty"`
	Cypher         string              `json:"cypher,omitempty"`
	Validation     *graphdb.Validation `json:"validation,omitempty"`
	Results        []graphdb.Record    `json:"results,omitempty"`
	ExecutionError string              `json:"execution_error,omitempty"`
	Evaluation     string              `json:"evaluation,omitempty"`
	ShouldRetry    bool                `json:"should_retry"`
	SkipRetry      bool                `json:"skip_retry"`
	Attempt        int                 `json:"attempt"`
}

// RetrievalState 文档检索智能体状态。
type RetrievalState struct {
	BaseState
	Query     string                       `json:"query"`
	Filters   map[string]any               `json:"filters,omitempty"`
	Thinking  string                       `json:"thinking,omitempty"`
	Plan      []string                     `json:"plan,omitempty"`
	Retrieved []vectorstore.ScoredDocument `json:"retrieved,omitempty"`
	Reranked  []vectorstore.ScoredDocument `json:"reranked,omitempty"`
	Answer    string                       `json:"answer,omitempty"`
}
