package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/graphchat/llm"
	"github.com/BaSui01/graphchat/workflow"
)

// chatFallbackResponse 模型调用失败时的兜底回复。
const chatFallbackResponse = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// ChatAgent 通用聊天智能体。
// 工作流只有一个节点：调用模型并把回复写回状态。
// 模型失败折叠为兜底回复与状态 Error，不向调用方抛错。
type ChatAgent struct {
	*Base
	provider llm.Provider
	runner   *workflow.Runner[ChatState]
}

// NewChatAgent 创建聊天智能体。
func NewChatAgent(deps Deps, cfg Config) (*ChatAgent, error) {
	if deps.Provider == nil {
		return nil, fmt.Errorf("chat agent: llm provider is required")
	}
	return &ChatAgent{
		Base:     NewBase(TypeChat, cfg, deps),
		provider: deps.Provider,
	}, nil
}

// ensureReady 懒构建单节点工作流。
func (a *ChatAgent) ensureReady(ctx context.Context) error {
	return a.EnsureReady(ctx, func(cp workflow.Checkpointer) error {
		g := workflow.NewGraph[ChatState]("chat").
			AddNode("chat", a.chatNode).
			SetEntry("chat").
			AddEdge("chat", workflow.End)
		runner, err := g.Compile(
			workflow.WithCheckpointer[ChatState](cp),
			workflow.WithRecursionLimit[ChatState](a.cfg.RecursionLimit),
			workflow.WithLogger[ChatState](a.logger),
		)
		if err != nil {
			return err
		}
		a.runner = runner
		return nil
	})
}

// chatNode 调用模型生成回复。
// context 中带有 token 回调时走流式路径。
func (a *ChatAgent) chatNode(ctx context.Context, s ChatState) (ChatState, error) {
	req := &llm.ChatRequest{
		Model:       a.cfg.Model,
		Messages:    ToLLM(s.Messages),
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	}

	var content string
	var err error
	if emit, ok := workflow.TokenEmitterFromContext(ctx); ok {
		content, err = a.streamCompletion(ctx, req, emit)
	} else {
		var resp *llm.ChatResponse
		resp, err = a.provider.Completion(ctx, req)
		if err == nil {
			content = resp.Content
		}
	}

	if err != nil {
		a.logger.Error("chat completion failed", zap.Error(err))
		s.Error = err.Error()
		s.Response = chatFallbackResponse
		s.AppendMessages(NewMessage(llm.RoleAssistant, s.Response))
		return s, nil
	}

	s.Response = content
	s.AppendMessages(NewMessage(llm.RoleAssistant, content))
	return s, nil
}

// streamCompletion 流式调用模型，逐 token 回调并拼出完整回复。
// 单个分片错误终止流并返回已累积内容之外的错误。
func (a *ChatAgent) streamCompletion(ctx context.Context, req *llm.ChatRequest, emit workflow.TokenEmitter) (string, error) {
	stream, err := a.provider.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		if chunk.Delta != "" {
			emit(chunk.Delta)
			b.WriteString(chunk.Delta)
		}
	}
	return b.String(), nil
}

// Execute 执行一次聊天。
func (a *ChatAgent) Execute(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if err := a.ensureReady(ctx); err != nil {
		return nil, err
	}
	return a.observe(ctx, req, func(ctx context.Context) (*Result, error) {
		systemPrompt := req.SystemPrompt
		if systemPrompt == "" {
			systemPrompt = chatSystemPrompt
		}
		state := ChatState{
			BaseState:    BaseState{SessionID: req.SessionID, Metadata: req.Metadata},
			SystemPrompt: systemPrompt,
		}
		state.AppendMessages(NewMessage(llm.RoleSystem, systemPrompt))
		state.AppendMessages(a.TruncateHistory(req.History, false)...)
		state.AppendMessages(NewMessage(llm.RoleUser, req.Query))

		final, err := a.runner.Invoke(ctx, state, a.RunConfig(req))
		if err != nil {
			return nil, err
		}
		return &Result{Response: final.Response, Error: final.Error}, nil
	})
}

// ExecuteStream 流式执行。
func (a *ChatAgent) ExecuteStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if err := a.ensureReady(ctx); err != nil {
		return nil, err
	}
	return a.stream(ctx, req, func(ctx context.Context) (*Result, error) {
		return a.Execute(ctx, req)
	})
}
