package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/graphchat/guardrail"
	"github.com/BaSui01/graphchat/internal/ctxkeys"
	"github.com/BaSui01/graphchat/llm"
)

// 检测失败与低置信场景下的置信度常量。
const (
	confidenceKeyword = 0.5 // 仅靠关键词命中
	confidenceDefault = 0.3 // 无任何信号，回落聊天
	confidenceFailure = 0.0 // 分类器不可用
	confidenceForced  = 1.0 // 调用方强制指定类型
)

// RouteRequest 路由请求。
// ForcedType 非空时跳过意图检测直达指定智能体。
type RouteRequest struct {
	Query        string         `json:"query"`
	SessionID    string         `json:"session_id"`
	UserID       string         `json:"user_id,omitempty"`
	History      []Message      `json:"history,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ForcedType   Type           `json:"forced_type,omitempty"`
}

// RouteResult 路由执行结果。
// Confidence 始终保留检测得到的原始置信度，即便因低于
// 阈值而回落到聊天智能体；AutoRouted 标记是否按检测结果路由。
type RouteResult struct {
	Result
	Confidence float64 `json:"confidence"`
	AutoRouted bool    `json:"auto_routed"`
}

// Router 意图路由器。
// 用轻量分类模型检测意图，置信度达到阈值时分发到对应
// 智能体，否则回落聊天。智能体实例按类型惰性创建并复用。
type Router struct {
	registry  *Registry
	deps      Deps
	cfg       Config
	guard     *guardrail.Evaluator
	logger    *zap.Logger
	threshold float64

	mu     sync.Mutex
	agents map[Type]Agent
}

// NewRouter 创建路由器。guard 为 nil 时不做内容校验。
func NewRouter(registry *Registry, deps Deps, cfg Config, guard *guardrail.Evaluator) *Router {
	return &Router{
		registry:  registry,
		deps:      deps,
		cfg:       cfg,
		guard:     guard,
		logger:    deps.logger().With(zap.String("component", "agent_router")),
		threshold: cfg.ConfidenceThreshold,
		agents:    make(map[Type]Agent),
	}
}

// DetectIntent 检测查询意图，永不返回错误。
// 解析策略：取分类器输出的前两个词为类型与置信度；
// 解析失败则在全文扫描类型关键词，命中给 0.5；
// 仍无信号回落 (chat, 0.3)；分类器调用失败回落 (chat, 0.0)。
func (r *Router) DetectIntent(ctx context.Context, query string) (Type, float64) {
	resp, err := r.deps.classifier().Completion(ctx, &llm.ChatRequest{
		Model:       r.cfg.ClassifierModel,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: intentPrompt(query)}},
		Temperature: 0,
		MaxTokens:   16,
	})
	if err != nil {
		r.logger.Warn("intent detection failed, defaulting to chat", zap.Error(err))
		return TypeChat, confidenceFailure
	}
	return parseIntent(resp.Content)
}

// parseIntent 按解析策略从分类器输出提取 (类型, 置信度)。
func parseIntent(text string) (Type, float64) {
	fields := strings.Fields(text)
	if len(fields) >= 2 {
		t := Type(strings.Trim(strings.ToLower(fields[0]), ".,:;!?\"'`"))
		conf, err := strconv.ParseFloat(strings.Trim(fields[1], ".,:;!?"), 64)
		if ValidType(t) && err == nil {
			return t, clamp01(conf)
		}
	}
	lower := strings.ToLower(text)
	for _, t := range BuiltinTypes() {
		if strings.Contains(lower, string(t)) {
			return t, confidenceKeyword
		}
	}
	return TypeChat, confidenceDefault
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Route 路由并执行一次请求。
func (r *Router) Route(ctx context.Context, req RouteRequest) (*RouteResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if r.guard != nil {
		if res := r.guard.ValidateInput(req.Query); !res.Allowed {
			return nil, &guardrail.BlockedError{Direction: "input", Result: res}
		}
	}

	ctx = ctxkeys.WithSessionID(ctx, req.SessionID)
	if req.UserID != "" {
		ctx = ctxkeys.WithUserID(ctx, req.UserID)
	}

	target, confidence, autoRouted, mode := r.resolve(ctx, req)
	r.deps.Metrics.RecordRouterDecision(string(target), mode)
	r.logger.Info("request routed",
		zap.String("agent_type", string(target)),
		zap.Float64("confidence", confidence),
		zap.Bool("auto_routed", autoRouted),
		zap.String("session_id", req.SessionID))

	ag, err := r.agent(target)
	if err != nil {
		return nil, err
	}
	result, err := ag.Execute(ctx, Request{
		Query:        req.Query,
		SessionID:    req.SessionID,
		UserID:       req.UserID,
		History:      req.History,
		SystemPrompt: req.SystemPrompt,
		Metadata:     req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return &RouteResult{Result: *result, Confidence: confidence, AutoRouted: autoRouted}, nil
}

// resolve 决定目标智能体。返回 (类型, 置信度, 是否自动路由, 决策模式)。
func (r *Router) resolve(ctx context.Context, req RouteRequest) (Type, float64, bool, string) {
	if req.ForcedType != "" {
		return req.ForcedType, confidenceForced, false, "forced"
	}
	detected, confidence := r.DetectIntent(ctx, req.Query)
	if confidence < r.threshold {
		r.logger.Info("confidence below threshold, falling back to chat",
			zap.String("detected", string(detected)),
			zap.Float64("confidence", confidence),
			zap.Float64("threshold", r.threshold))
		return TypeChat, confidence, false, "fallback"
	}
	return detected, confidence, true, "auto"
}

// agent 惰性创建并缓存智能体实例。
func (r *Router) agent(t Type) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ag, ok := r.agents[t]; ok {
		return ag, nil
	}
	ag, err := r.registry.Create(t, r.deps, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	r.agents[t] = ag
	return ag, nil
}

// SessionHistory 读取会话历史。历史由各智能体共享同一检查点
// 线程（线程 ID 即会话 ID），用聊天智能体投影即可。
func (r *Router) SessionHistory(ctx context.Context, sessionID string) ([]Message, error) {
	ag, err := r.agent(TypeChat)
	if err != nil {
		return nil, err
	}
	return ag.SessionHistory(ctx, sessionID)
}

// ClearSessionHistory 删除会话检查点数据。
func (r *Router) ClearSessionHistory(ctx context.Context, sessionID string) error {
	ag, err := r.agent(TypeChat)
	if err != nil {
		return err
	}
	return ag.ClearSessionHistory(ctx, sessionID)
}
