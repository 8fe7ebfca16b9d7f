// Package testutil 提供测试用的能力替身：
// 脚本化的模型提供商、图数据库客户端与向量存储。
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/BaSui01/graphchat/graphdb"
	"github.com/BaSui01/graphchat/llm"
	"github.com/BaSui01/graphchat/vectorstore"
	"github.com/BaSui01/graphchat/workflow"
)

// ScriptedProvider 按脚本应答的模型提供商。
// Responses 依调用次序逐个返回，用尽后重复最后一个；
// Errs 中对应位置非 nil 时该次调用返回错误。
type ScriptedProvider struct {
	ProviderName string
	Responses    []string
	Errs         []error

	mu    sync.Mutex
	calls []llm.ChatRequest
}

// Name 返回提供商名称。
func (p *ScriptedProvider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "scripted"
}

// Completion 返回脚本中的下一个应答。
func (p *ScriptedProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := len(p.calls)
	p.calls = append(p.calls, *req)

	if idx < len(p.Errs) && p.Errs[idx] != nil {
		return nil, p.Errs[idx]
	}
	content := ""
	if len(p.Responses) > 0 {
		if idx >= len(p.Responses) {
			idx = len(p.Responses) - 1
		}
		content = p.Responses[idx]
	}
	return &llm.ChatResponse{Content: content, Model: req.Model}, nil
}

// Stream 将下一个应答按空白切分为 token 流。
func (p *ScriptedProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.Completion(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		words := strings.SplitAfter(resp.Content, " ")
		for _, w := range words {
			select {
			case <-ctx.Done():
				return
			case ch <- llm.StreamChunk{Delta: w}:
			}
		}
		select {
		case <-ctx.Done():
		case ch <- llm.StreamChunk{FinishReason: "stop"}:
		}
	}()
	return ch, nil
}

// Calls 返回记录的全部请求。
func (p *ScriptedProvider) Calls() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.ChatRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount 返回调用次数。
func (p *ScriptedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// MockGraphClient 脚本化图数据库客户端。
// Validations 依校验次序逐个返回，用尽后返回通过。
type MockGraphClient struct {
	Schema      *graphdb.Schema
	SchemaErr   error
	Validations []*graphdb.Validation
	ValidateErr error
	Results     []graphdb.Record
	ExecErr     error

	mu            sync.Mutex
	validateCalls int
	execCalls     []string
}

// GetSchema 返回预置模式。
func (c *MockGraphClient) GetSchema(context.Context) (*graphdb.Schema, error) {
	if c.SchemaErr != nil {
		return nil, c.SchemaErr
	}
	if c.Schema != nil {
		return c.Schema, nil
	}
	return &graphdb.Schema{
		Labels:            []string{"Person", "Company"},
		RelationshipTypes: []string{"WORKS_AT", "KNOWS"},
	}, nil
}

// ValidateQuery 返回脚本中的下一个校验结果。
func (c *MockGraphClient) ValidateQuery(_ context.Context, query string) (*graphdb.Validation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ValidateErr != nil {
		return nil, c.ValidateErr
	}
	idx := c.validateCalls
	c.validateCalls++
	if idx < len(c.Validations) {
		return c.Validations[idx], nil
	}
	// 朴素的结构检查，模拟真实校验器的基本行为
	upper := strings.ToUpper(query)
	if !strings.Contains(upper, "MATCH") && !strings.Contains(upper, "CREATE") {
		return &graphdb.Validation{Valid: false, Errors: []string{"query must contain MATCH or CREATE"}}, nil
	}
	if strings.Count(query, "(") != strings.Count(query, ")") {
		return &graphdb.Validation{Valid: false, Errors: []string{"unbalanced parentheses"}}, nil
	}
	return &graphdb.Validation{Valid: true}, nil
}

// ExecuteQuery 返回预置结果。
func (c *MockGraphClient) ExecuteQuery(_ context.Context, query string) ([]graphdb.Record, error) {
	c.mu.Lock()
	c.execCalls = append(c.execCalls, query)
	c.mu.Unlock()
	if c.ExecErr != nil {
		return nil, c.ExecErr
	}
	return c.Results, nil
}

// Close 空实现。
func (c *MockGraphClient) Close(context.Context) error { return nil }

// ValidateCalls 返回校验调用次数。
func (c *MockGraphClient) ValidateCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateCalls
}

// ExecCalls 返回执行过的查询。
func (c *MockGraphClient) ExecCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.execCalls))
	copy(out, c.execCalls)
	return out
}

// MockVectorStore 预置文档的向量存储。
type MockVectorStore struct {
	Docs      []vectorstore.ScoredDocument
	SearchErr error

	mu    sync.Mutex
	calls int
}

// AddDocuments 追加文档，分数为 1。
func (s *MockVectorStore) AddDocuments(_ context.Context, docs []vectorstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.Docs = append(s.Docs, vectorstore.ScoredDocument{Document: d, Score: 1})
	}
	return nil
}

// SearchWithScore 返回预置文档的前 k 条。
func (s *MockVectorStore) SearchWithScore(_ context.Context, _ string, k int, _ map[string]any) ([]vectorstore.ScoredDocument, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	if len(s.Docs) > k {
		return s.Docs[:k], nil
	}
	return s.Docs, nil
}

// SearchCalls 返回检索调用次数。
func (s *MockVectorStore) SearchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// FailingCheckpointProvider 获取存储必然失败的提供者，
// 用于验证降级与报错路径。
type FailingCheckpointProvider struct {
	Err error
}

// Acquire 返回预置错误。
func (p FailingCheckpointProvider) Acquire(context.Context) (workflow.Checkpointer, error) {
	return nil, p.Err
}
