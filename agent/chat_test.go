package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BaSui01/graphchat/agent"
	"github.com/BaSui01/graphchat/llm"
	"github.com/BaSui01/graphchat/testutil"
)

func newChatAgent(t *testing.T, provider *testutil.ScriptedProvider) *agent.ChatAgent {
	t.Helper()
	a, err := agent.NewChatAgent(agent.Deps{Provider: provider}, agent.DefaultConfig())
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	return a
}

// TestChatExecute 普通执行返回模型回复。
func TestChatExecute(t *testing.T) {
	provider := &testutil.ScriptedProvider{Responses: []string{"Hello! How can I help?"}}
	a := newChatAgent(t, provider)

	res, err := a.Execute(context.Background(), agent.Request{Query: "hi", SessionID: "s1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Response != "Hello! How can I help?" {
		t.Errorf("response = %q", res.Response)
	}
	if res.AgentType != agent.TypeChat {
		t.Errorf("agent type = %s, want chat", res.AgentType)
	}

	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(calls))
	}
	msgs := calls[0].Messages
	if msgs[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %s, want system", msgs[0].Role)
	}
	if msgs[len(msgs)-1].Content != "hi" {
		t.Errorf("last message = %q, want user query", msgs[len(msgs)-1].Content)
	}
}

// TestChatProviderFailureFoldsToFallback 模型失败折叠为兜底回复，
// 调用方拿到正常结果与状态错误。
func TestChatProviderFailureFoldsToFallback(t *testing.T) {
	provider := &testutil.ScriptedProvider{Errs: []error{errors.New("upstream timeout")}}
	a := newChatAgent(t, provider)

	res, err := a.Execute(context.Background(), agent.Request{Query: "hi", SessionID: "s1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(res.Response, "having trouble responding") {
		t.Errorf("response = %q, want fallback text", res.Response)
	}
	if !strings.Contains(res.Error, "upstream timeout") {
		t.Errorf("error = %q, want folded provider error", res.Error)
	}
}

// TestChatHistoryIncluded 请求带历史时按序进入消息序列。
func TestChatHistoryIncluded(t *testing.T) {
	provider := &testutil.ScriptedProvider{Responses: []string{"nice to meet you too"}}
	a := newChatAgent(t, provider)

	history := []agent.Message{
		agent.NewMessage(llm.RoleUser, "my name is Sam"),
		agent.NewMessage(llm.RoleAssistant, "hi Sam"),
	}
	_, err := a.Execute(context.Background(), agent.Request{Query: "nice to meet you", SessionID: "s1", History: history})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	msgs := provider.Calls()[0].Messages
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want system + 2 history + query", len(msgs))
	}
	if msgs[1].Content != "my name is Sam" || msgs[2].Content != "hi Sam" {
		t.Errorf("history not preserved: %+v", msgs)
	}
}

// TestChatExecuteStream 流式执行产出 token 事件并以 Done 收尾。
func TestChatExecuteStream(t *testing.T) {
	provider := &testutil.ScriptedProvider{Responses: []string{"hello streaming world"}}
	a := newChatAgent(t, provider)

	events, err := a.ExecuteStream(context.Background(), agent.Request{Query: "hi", SessionID: "s1"})
	if err != nil {
		t.Fatalf("execute stream: %v", err)
	}

	var tokens strings.Builder
	var done *agent.Result
	for ev := range events {
		switch ev.Type {
		case agent.StreamEventToken:
			tokens.WriteString(ev.Token)
		case agent.StreamEventDone:
			done = ev.Result
		case agent.StreamEventError:
			t.Fatalf("stream error: %v", ev.Err)
		}
	}
	if done == nil {
		t.Fatal("stream ended without Done event")
	}
	if tokens.String() != "hello streaming world" {
		t.Errorf("streamed tokens = %q", tokens.String())
	}
	if done.Response != "hello streaming world" {
		t.Errorf("final response = %q", done.Response)
	}
}

// TestChatStreamErrorEvent 流式路径上模型失败折叠为兜底回复，
// 事件流仍以 Done 正常收尾。
func TestChatStreamErrorEvent(t *testing.T) {
	provider := &testutil.ScriptedProvider{Errs: []error{errors.New("stream refused")}}
	a := newChatAgent(t, provider)

	events, err := a.ExecuteStream(context.Background(), agent.Request{Query: "hi", SessionID: "s1"})
	if err != nil {
		t.Fatalf("execute stream: %v", err)
	}

	var done *agent.Result
	for ev := range events {
		if ev.Type == agent.StreamEventDone {
			done = ev.Result
		}
	}
	if done == nil {
		t.Fatal("stream ended without Done event")
	}
	if !strings.Contains(done.Response, "having trouble responding") {
		t.Errorf("response = %q, want fallback text", done.Response)
	}
}
