package agent_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/BaSui01/graphchat/agent"
	"github.com/BaSui01/graphchat/checkpoint"
	"github.com/BaSui01/graphchat/config"
	"github.com/BaSui01/graphchat/testutil"
	"github.com/BaSui01/graphchat/workflow"
)

// TestDegradedCompileInProduction 生产环境下检查点存储不可用时
// 降级为无持久化继续服务，会话历史接口报 ErrCheckpointDisabled。
func TestDegradedCompileInProduction(t *testing.T) {
	cfg := agent.DefaultConfig()
	cfg.Environment = config.EnvProduction
	provider := &testutil.ScriptedProvider{Responses: []string{"degraded but alive"}}
	a, err := agent.NewChatAgent(agent.Deps{
		Provider:    provider,
		Checkpoints: testutil.FailingCheckpointProvider{Err: errors.New("postgres unreachable")},
	}, cfg)
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	res, err := a.Execute(context.Background(), agent.Request{Query: "hi", SessionID: "s1"})
	if err != nil {
		t.Fatalf("execute in degraded mode: %v", err)
	}
	if res.Response != "degraded but alive" {
		t.Errorf("response = %q", res.Response)
	}
	if a.Phase() != agent.PhaseReady {
		t.Errorf("phase = %s, want ready", a.Phase())
	}

	if _, err := a.SessionHistory(context.Background(), "s1"); !errors.Is(err, agent.ErrCheckpointDisabled) {
		t.Errorf("session history err = %v, want ErrCheckpointDisabled", err)
	}
}

// TestCheckpointFailureInDevelopment 开发环境下获取失败直接报错，
// 阶段回到未构建，允许后续重试。
func TestCheckpointFailureInDevelopment(t *testing.T) {
	cfg := agent.DefaultConfig()
	cfg.Environment = config.EnvDevelopment
	provider := &testutil.ScriptedProvider{Responses: []string{"unused"}}
	a, err := agent.NewChatAgent(agent.Deps{
		Provider:    provider,
		Checkpoints: testutil.FailingCheckpointProvider{Err: errors.New("postgres unreachable")},
	}, cfg)
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	_, err = a.Execute(context.Background(), agent.Request{Query: "hi", SessionID: "s1"})
	if err == nil {
		t.Fatal("expected error in development mode")
	}
	if !strings.Contains(err.Error(), "postgres unreachable") {
		t.Errorf("err = %v, want acquire failure", err)
	}
	if a.Phase() != agent.PhaseUnbuilt {
		t.Errorf("phase = %s, want unbuilt for retry", a.Phase())
	}
	if provider.CallCount() != 0 {
		t.Errorf("provider called %d times before build, want 0", provider.CallCount())
	}
}

// TestSessionHistoryRoundTrip 执行后能从检查点投影出会话历史，
// 清除后回到空。
func TestSessionHistoryRoundTrip(t *testing.T) {
	store := workflow.NewMemoryCheckpointer()
	provider := &testutil.ScriptedProvider{Responses: []string{"the answer is 42"}}
	a, err := agent.NewChatAgent(agent.Deps{
		Provider:    provider,
		Checkpoints: checkpoint.StaticProvider{Store: store},
	}, agent.DefaultConfig())
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	if _, err := a.Execute(context.Background(), agent.Request{Query: "what is the answer", SessionID: "s1"}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	history, err := a.SessionHistory(context.Background(), "s1")
	if err != nil {
		t.Fatalf("session history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d messages, want user + assistant", len(history))
	}
	if history[0].Content != "what is the answer" || history[1].Content != "the answer is 42" {
		t.Errorf("unexpected history: %+v", history)
	}

	if err := a.ClearSessionHistory(context.Background(), "s1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	history, err = a.SessionHistory(context.Background(), "s1")
	if err != nil {
		t.Fatalf("session history after clear: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history after clear = %d messages, want 0", len(history))
	}
}

// TestSessionHistoryUnknownSession 未知会话返回空历史而非错误。
func TestSessionHistoryUnknownSession(t *testing.T) {
	a, err := agent.NewChatAgent(agent.Deps{
		Provider:    &testutil.ScriptedProvider{},
		Checkpoints: checkpoint.StaticProvider{Store: workflow.NewMemoryCheckpointer()},
	}, agent.DefaultConfig())
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	history, err := a.SessionHistory(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("session history: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history = %d messages, want 0", len(history))
	}
}

// TestEnsureReadyConcurrent 并发首次执行只构建一次，且全部成功。
func TestEnsureReadyConcurrent(t *testing.T) {
	provider := &testutil.ScriptedProvider{Responses: []string{"ok"}}
	a, err := agent.NewChatAgent(agent.Deps{Provider: provider}, agent.DefaultConfig())
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = a.Execute(context.Background(), agent.Request{Query: "hi", SessionID: "s"})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("goroutine %d: %v", i, err)
		}
	}
	if a.Phase() != agent.PhaseReady {
		t.Errorf("phase = %s, want ready", a.Phase())
	}
}
