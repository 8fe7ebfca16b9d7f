// Package workflow 提供泛型有向图工作流执行器。
// 节点是状态变换函数，边分为固定边与条件边；
// 编译后的 Runner 按边推进状态，每个节点执行后
// 通过 Checkpointer 持久化状态快照。
package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// End 终止哨兵。条件边返回 End 时执行结束。
const End = "__end__"

// NodeFunc 图节点。接收当前状态，返回更新后的状态。
// 业务失败应写入状态而非返回 error；返回 error 表示
// 不可恢复的基础设施故障，将中止整次执行。
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// EdgeFunc 条件边。根据状态返回下一个节点名或 End。
// 必须是纯函数：不做 I/O，不修改状态。
type EdgeFunc[S any] func(state S) string

// Graph 工作流图定义。构建完成后调用 Compile 得到可执行的 Runner。
type Graph[S any] struct {
	name        string
	nodes       map[string]NodeFunc[S]
	edges       map[string]string
	conditional map[string]EdgeFunc[S]
	entry       string
}

// NewGraph 创建命名工作流图。
func NewGraph[S any](name string) *Graph[S] {
	return &Graph[S]{
		name:        name,
		nodes:       make(map[string]NodeFunc[S]),
		edges:       make(map[string]string),
		conditional: make(map[string]EdgeFunc[S]),
	}
}

// AddNode 注册节点。重名节点会被覆盖。
func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) *Graph[S] {
	g.nodes[name] = fn
	return g
}

// AddEdge 添加固定边 from → to。to 可为 End。
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.edges[from] = to
	return g
}

// AddConditionalEdge 添加条件边。from 节点执行后由 fn 决定去向。
func (g *Graph[S]) AddConditionalEdge(from string, fn EdgeFunc[S]) *Graph[S] {
	g.conditional[from] = fn
	return g
}

// SetEntry 设置入口节点。
func (g *Graph[S]) SetEntry(name string) *Graph[S] {
	g.entry = name
	return g
}

// Compile 校验图结构并返回 Runner。
// 入口缺失、边指向未注册节点、或同一节点同时有
// 固定边与条件边时返回错误。
func (g *Graph[S]) Compile(opts ...CompileOption[S]) (*Runner[S], error) {
	if g.entry == "" {
		return nil, fmt.Errorf("workflow %s: entry node not set", g.name)
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("workflow %s: entry node %q not registered", g.name, g.entry)
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("workflow %s: edge from unknown node %q", g.name, from)
		}
		if to != End {
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("workflow %s: edge %s → unknown node %q", g.name, from, to)
			}
		}
		if _, dup := g.conditional[from]; dup {
			return nil, fmt.Errorf("workflow %s: node %q has both fixed and conditional edges", g.name, from)
		}
	}
	for from := range g.conditional {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("workflow %s: conditional edge from unknown node %q", g.name, from)
		}
	}

	r := &Runner[S]{
		graph:          g,
		recursionLimit: DefaultRecursionLimit,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// CompileOption Runner 编译选项。
type CompileOption[S any] func(*Runner[S])

// WithCheckpointer 启用按节点的状态持久化。cp 为 nil 时不持久化。
func WithCheckpointer[S any](cp Checkpointer) CompileOption[S] {
	return func(r *Runner[S]) { r.checkpointer = cp }
}

// WithRecursionLimit 覆盖默认步数上限。
func WithRecursionLimit[S any](limit int) CompileOption[S] {
	return func(r *Runner[S]) {
		if limit > 0 {
			r.recursionLimit = limit
		}
	}
}

// WithLogger 设置执行日志器。
func WithLogger[S any](logger *zap.Logger) CompileOption[S] {
	return func(r *Runner[S]) {
		if logger != nil {
			r.logger = logger.With(zap.String("component", "workflow"), zap.String("workflow", r.graph.name))
		}
	}
}
