package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/graphchat/checkpoint"
	"github.com/BaSui01/graphchat/config"
	"github.com/BaSui01/graphchat/internal/ctxkeys"
	"github.com/BaSui01/graphchat/internal/metrics"
	"github.com/BaSui01/graphchat/llm"
	"github.com/BaSui01/graphchat/llm/tokenizer"
	"github.com/BaSui01/graphchat/workflow"
)

// Agent 会话智能体接口。
type Agent interface {
	// Type 返回智能体类型。
	Type() Type

	// Execute 执行一次请求，返回最终结果。
	Execute(ctx context.Context, req Request) (*Result, error)

	// ExecuteStream 流式执行，事件通道在 Done 或 Error 事件后关闭。
	ExecuteStream(ctx context.Context, req Request) (<-chan StreamEvent, error)

	// SessionHistory 从最新检查点投影出会话历史。
	SessionHistory(ctx context.Context, sessionID string) ([]Message, error)

	// ClearSessionHistory 删除会话的全部检查点数据。
	ClearSessionHistory(ctx context.Context, sessionID string) error
}

// Phase 工作流图构建阶段。
// 只会单向推进 PhaseUnbuilt → PhaseBuilding → PhaseReady，
// 构建失败回到 PhaseUnbuilt 允许重试。
type Phase int32

const (
	PhaseUnbuilt Phase = iota
	PhaseBuilding
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseBuilding:
		return "building"
	case PhaseReady:
		return "ready"
	default:
		return "unbuilt"
	}
}

// Base 智能体公共生命周期。
// 各智能体内嵌 Base，提供图构建门、历史裁剪、
// 检查点会话操作与统一的执行观测。
type Base struct {
	typ     Type
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector
	tok     tokenizer.Tokenizer
	tracer  trace.Tracer
	ckpt    checkpoint.Provider

	sf singleflight.Group

	mu           sync.RWMutex
	phase        Phase
	checkpointer workflow.Checkpointer
}

// NewBase 创建公共生命周期。
func NewBase(typ Type, cfg Config, deps Deps) *Base {
	tok := deps.Tokenizer
	if tok == nil {
		tok = tokenizer.NewEstimator()
	}
	return &Base{
		typ:     typ,
		cfg:     cfg,
		logger:  deps.logger().With(zap.String("component", "agent"), zap.String("agent_type", string(typ))),
		metrics: deps.Metrics,
		tok:     tok,
		tracer:  otel.Tracer("graphchat/agent"),
		ckpt:    deps.Checkpoints,
	}
}

// Type 返回智能体类型。
func (b *Base) Type() Type { return b.typ }

// Logger 返回绑定了智能体字段的日志器。
func (b *Base) Logger() *zap.Logger { return b.logger }

// Phase 返回当前构建阶段。
func (b *Base) Phase() Phase {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.phase
}

// Checkpointer 返回构建时取得的检查点存储，降级模式下为 nil。
func (b *Base) Checkpointer() workflow.Checkpointer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.checkpointer
}

func (b *Base) setPhase(p Phase) {
	b.mu.Lock()
	b.phase = p
	b.mu.Unlock()
}

// EnsureReady 懒构建工作流图。
// 并发调用通过 singleflight 合并为一次构建，其余调用等待结果。
// 检查点存储获取失败时：生产环境降级为无检查点编译并告警，
// 开发环境直接失败以尽早暴露配置问题。构建成功后阶段不再回退。
func (b *Base) EnsureReady(ctx context.Context, compile func(cp workflow.Checkpointer) error) error {
	if b.Phase() == PhaseReady {
		return nil
	}
	_, err, _ := b.sf.Do("build", func() (any, error) {
		if b.Phase() == PhaseReady {
			return nil, nil
		}
		b.setPhase(PhaseBuilding)

		var cp workflow.Checkpointer
		if b.ckpt != nil {
			acquired, err := b.ckpt.Acquire(ctx)
			switch {
			case err == nil:
				cp = acquired
			case b.cfg.Environment == config.EnvProduction:
				b.logger.Warn("checkpoint store unavailable, compiling without persistence", zap.Error(err))
			default:
				b.setPhase(PhaseUnbuilt)
				return nil, fmt.Errorf("acquire checkpoint store: %w", err)
			}
		}

		if err := compile(cp); err != nil {
			b.setPhase(PhaseUnbuilt)
			return nil, fmt.Errorf("compile workflow graph: %w", err)
		}

		b.mu.Lock()
		b.checkpointer = cp
		b.phase = PhaseReady
		b.mu.Unlock()
		b.logger.Info("workflow graph compiled", zap.Bool("checkpointing", cp != nil))
		return nil, nil
	})
	return err
}

// RunConfig 构造一次工作流执行的配置。
// 线程 ID 取会话 ID，保证同一会话的检查点连成一条线。
func (b *Base) RunConfig(req Request) workflow.RunConfig {
	return workflow.RunConfig{
		ThreadID:       req.SessionID,
		RecursionLimit: b.cfg.RecursionLimit,
		Metadata: map[string]any{
			"agent_type":  string(b.typ),
			"environment": string(b.cfg.Environment),
			"session_id":  req.SessionID,
			"user_id":     req.UserID,
		},
	}
}

// AssembleMessages 组装本次执行的消息序列：
// 系统提示词（如有）+ 裁剪后的历史 + 当前用户消息。
func (b *Base) AssembleMessages(req Request) []Message {
	var out []Message
	if req.SystemPrompt != "" {
		out = append(out, NewMessage(llm.RoleSystem, req.SystemPrompt))
	}
	out = append(out, b.TruncateHistory(req.History, false)...)
	out = append(out, NewMessage(llm.RoleUser, req.Query))
	return out
}

// TruncateHistory 按 token 预算从最新往旧保留历史消息。
// 先施加 maxHistory*2 的硬性条数上限，再逐条累计 token，
// 超出预算即停。includeSystem 为 true 时首条系统消息
// 单独保留并优先计入预算。计数器失败时退回按条数裁剪。
func (b *Base) TruncateHistory(history []Message, includeSystem bool) []Message {
	if len(history) == 0 {
		return nil
	}

	var system *Message
	rest := history
	if includeSystem && history[0].Role == llm.RoleSystem {
		system = &history[0]
		rest = history[1:]
	}

	maxMessages := b.cfg.MaxHistory * 2
	if len(rest) > maxMessages {
		rest = rest[len(rest)-maxMessages:]
	}

	budget := b.cfg.MaxContextTokens
	used := 0
	if system != nil {
		n, err := b.tok.CountTokens(system.Content)
		if err != nil {
			return b.fallbackTruncate(history, includeSystem)
		}
		used += n
	}

	kept := 0
	for i := len(rest) - 1; i >= 0; i-- {
		n, err := b.tok.CountTokens(rest[i].Content)
		if err != nil {
			return b.fallbackTruncate(history, includeSystem)
		}
		if used+n > budget {
			break
		}
		used += n
		kept++
	}

	out := make([]Message, 0, kept+1)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, rest[len(rest)-kept:]...)
	if len(out) < len(history) {
		b.logger.Debug("history truncated",
			zap.Int("original", len(history)),
			zap.Int("kept", len(out)),
			zap.Int("tokens", used))
	}
	return out
}

// fallbackTruncate 按条数裁剪，永不失败。
// 保留首条系统消息（如要求）与最近 maxHistory*2 条消息。
func (b *Base) fallbackTruncate(history []Message, includeSystem bool) []Message {
	var system *Message
	rest := history
	if includeSystem && len(history) > 0 && history[0].Role == llm.RoleSystem {
		system = &history[0]
		rest = history[1:]
	}
	maxMessages := b.cfg.MaxHistory * 2
	if len(rest) > maxMessages {
		rest = rest[len(rest)-maxMessages:]
	}
	if system == nil {
		return rest
	}
	out := make([]Message, 0, len(rest)+1)
	out = append(out, *system)
	return append(out, rest...)
}

// sessionStore 返回可用的检查点存储。
// 图尚未构建时直接向提供者取用，降级模式返回 ErrCheckpointDisabled。
func (b *Base) sessionStore(ctx context.Context) (workflow.Checkpointer, error) {
	if cp := b.Checkpointer(); cp != nil {
		return cp, nil
	}
	if b.Phase() != PhaseReady && b.ckpt != nil {
		cp, err := b.ckpt.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire checkpoint store: %w", err)
		}
		return cp, nil
	}
	return nil, ErrCheckpointDisabled
}

// SessionHistory 读取最新检查点并投影为会话历史。
// 降级模式（无检查点存储）返回 ErrCheckpointDisabled。
func (b *Base) SessionHistory(ctx context.Context, sessionID string) ([]Message, error) {
	cp, err := b.sessionStore(ctx)
	if err != nil {
		return nil, err
	}
	data, err := cp.Latest(ctx, sessionID)
	if errors.Is(err, workflow.ErrNoCheckpoint) {
		return nil, nil
	}
	if err != nil {
		b.metrics.RecordCheckpointOp("load", err)
		return nil, fmt.Errorf("load session checkpoint: %w", err)
	}
	b.metrics.RecordCheckpointOp("load", nil)

	var state BaseState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode session checkpoint: %w", err)
	}
	return state.ConversationHistory(), nil
}

// ClearSessionHistory 删除会话的检查点数据，尽力而为。
func (b *Base) ClearSessionHistory(ctx context.Context, sessionID string) error {
	cp, err := b.sessionStore(ctx)
	if err != nil {
		return err
	}
	err = cp.DeleteThread(ctx, sessionID)
	b.metrics.RecordCheckpointOp("delete", err)
	if err != nil {
		return fmt.Errorf("clear session checkpoints: %w", err)
	}
	b.logger.Info("session history cleared", zap.String("session_id", sessionID))
	return nil
}

// observe 统一的执行观测：span、起止日志、时长与指标。
func (b *Base) observe(ctx context.Context, req Request, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	ctx, span := b.tracer.Start(ctx, "agent.execute",
		trace.WithAttributes(
			attribute.String("agent.type", string(b.typ)),
			attribute.String("session.id", req.SessionID),
			attribute.Int("query.length", len(req.Query)),
		))
	defer span.End()
	if uid, ok := ctxkeys.UserID(ctx); ok {
		span.SetAttributes(attribute.String("user.id", uid))
	}
	ctx = ctxkeys.WithTraceID(ctx, span.SpanContext().TraceID().String())

	b.logger.Info("agent execution started",
		zap.String("session_id", req.SessionID),
		zap.Int("query_length", len(req.Query)),
		zap.Int("history_length", len(req.History)))

	start := time.Now()
	result, err := fn(ctx)
	duration := time.Since(start)
	b.metrics.RecordAgentExecution(string(b.typ), duration, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Error("agent execution failed",
			zap.String("session_id", req.SessionID),
			zap.Duration("duration", duration),
			zap.Error(err))
		return nil, err
	}

	result.AgentType = b.typ
	result.Duration = duration
	b.logger.Info("agent execution completed",
		zap.String("session_id", req.SessionID),
		zap.Duration("duration", duration),
		zap.Int("response_length", len(result.Response)))
	return result, nil
}

// stream 将一次执行包装为事件流。
// token 通过 workflow.TokenEmitter 从节点内部流出；
// 发送失败（接收方过慢）只丢弃该 token 并记录，不中断流。
// 若整次执行没有产生任何 token，完成时将完整响应作为单个
// token 事件补发，保证消费方总能看到内容。
func (b *Base) stream(ctx context.Context, req Request, invoke func(ctx context.Context) (*Result, error)) (<-chan StreamEvent, error) {
	events := make(chan StreamEvent, 64)
	go func() {
		defer close(events)
		emitted := 0
		ctx := workflow.WithTokenEmitter(ctx, func(token string) {
			select {
			case events <- StreamEvent{Type: StreamEventToken, Token: token}:
				emitted++
			default:
				b.logger.Warn("stream consumer too slow, token dropped")
			}
		})

		result, err := invoke(ctx)
		if err != nil {
			events <- StreamEvent{Type: StreamEventError, Err: err}
			return
		}
		if emitted == 0 && result.Response != "" {
			events <- StreamEvent{Type: StreamEventToken, Token: result.Response}
		}
		events <- StreamEvent{Type: StreamEventDone, Result: result}
	}()
	return events, nil
}
