package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type testState struct {
	Visited []string `json:"visited"`
	Count   int      `json:"count"`
}

func visit(name string) NodeFunc[testState] {
	return func(_ context.Context, s testState) (testState, error) {
		s.Visited = append(s.Visited, name)
		return s, nil
	}
}

// TestInvokeFollowsFixedEdges 固定边按注册顺序推进到 End。
func TestInvokeFollowsFixedEdges(t *testing.T) {
	g := NewGraph[testState]("linear").
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		AddNode("c", visit("c")).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", "c").
		AddEdge("c", End)

	r, err := g.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := r.Invoke(context.Background(), testState{}, RunConfig{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got := strings.Join(out.Visited, ","); got != "a,b,c" {
		t.Errorf("visited = %q, want a,b,c", got)
	}
}

// TestConditionalEdgeRouting 条件边根据状态选择分支。
func TestConditionalEdgeRouting(t *testing.T) {
	g := NewGraph[testState]("cond").
		AddNode("start", func(_ context.Context, s testState) (testState, error) {
			s.Count++
			return s, nil
		}).
		AddNode("loop", visit("loop")).
		AddNode("done", visit("done")).
		SetEntry("start").
		AddConditionalEdge("start", func(s testState) string {
			if s.Count < 3 {
				return "loop"
			}
			return "done"
		}).
		AddEdge("loop", "start").
		AddEdge("done", End)

	r, err := g.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := r.Invoke(context.Background(), testState{}, RunConfig{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out.Count != 3 {
		t.Errorf("count = %d, want 3", out.Count)
	}
	if out.Visited[len(out.Visited)-1] != "done" {
		t.Errorf("last visited = %q, want done", out.Visited[len(out.Visited)-1])
	}
}

// TestRecursionLimit 无终止条件的环在步数上限处报错。
func TestRecursionLimit(t *testing.T) {
	g := NewGraph[testState]("infinite").
		AddNode("spin", visit("spin")).
		SetEntry("spin").
		AddEdge("spin", "spin")

	r, err := g.Compile(WithRecursionLimit[testState](10))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	_, err = r.Invoke(context.Background(), testState{}, RunConfig{})
	var limitErr *RecursionLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("err = %v, want RecursionLimitError", err)
	}
	if limitErr.Limit != 10 {
		t.Errorf("limit = %d, want 10", limitErr.Limit)
	}
}

// TestNodeErrorAborts 节点返回 error 时执行中止并包装节点名。
func TestNodeErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	g := NewGraph[testState]("failing").
		AddNode("a", visit("a")).
		AddNode("b", func(_ context.Context, s testState) (testState, error) {
			return s, boom
		}).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", End)

	r, err := g.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	_, err = r.Invoke(context.Background(), testState{}, RunConfig{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if !strings.Contains(err.Error(), "node b") {
		t.Errorf("err = %q, want node name in message", err)
	}
}

// TestCompileValidation 非法图结构在编译期报错。
func TestCompileValidation(t *testing.T) {
	if _, err := NewGraph[testState]("no-entry").AddNode("a", visit("a")).Compile(); err == nil {
		t.Error("expected error for missing entry")
	}

	if _, err := NewGraph[testState]("bad-edge").
		AddNode("a", visit("a")).
		SetEntry("a").
		AddEdge("a", "ghost").
		Compile(); err == nil {
		t.Error("expected error for edge to unknown node")
	}

	if _, err := NewGraph[testState]("dup-edge").
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		SetEntry("a").
		AddEdge("a", "b").
		AddConditionalEdge("a", func(testState) string { return End }).
		AddEdge("b", End).
		Compile(); err == nil {
		t.Error("expected error for node with both edge kinds")
	}
}

// TestCheckpointPerNode 每个节点执行后写一条检查点。
func TestCheckpointPerNode(t *testing.T) {
	cp := NewMemoryCheckpointer()
	g := NewGraph[testState]("ckpt").
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", End)

	r, err := g.Compile(WithCheckpointer[testState](cp))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := r.Invoke(context.Background(), testState{}, RunConfig{ThreadID: "t1"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if n := cp.Len("t1"); n != 2 {
		t.Errorf("checkpoints = %d, want 2", n)
	}

	latest, err := cp.Latest(context.Background(), "t1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !strings.Contains(string(latest), `"a"`) || !strings.Contains(string(latest), `"b"`) {
		t.Errorf("latest checkpoint missing visited nodes: %s", latest)
	}
}

// TestCheckpointSkippedWithoutThreadID 未提供线程 ID 时不写检查点。
func TestCheckpointSkippedWithoutThreadID(t *testing.T) {
	cp := NewMemoryCheckpointer()
	g := NewGraph[testState]("no-thread").
		AddNode("a", visit("a")).
		SetEntry("a").
		AddEdge("a", End)

	r, _ := g.Compile(WithCheckpointer[testState](cp))
	if _, err := r.Invoke(context.Background(), testState{}, RunConfig{}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if n := cp.Len(""); n != 0 {
		t.Errorf("checkpoints = %d, want 0", n)
	}
}

// TestContextCancellation 取消 context 时执行尽快停止。
func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGraph[testState]("cancel").
		AddNode("spin", func(_ context.Context, s testState) (testState, error) {
			s.Count++
			if s.Count == 2 {
				cancel()
			}
			return s, nil
		}).
		SetEntry("spin").
		AddEdge("spin", "spin")

	r, _ := g.Compile()
	_, err := r.Invoke(ctx, testState{}, RunConfig{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
