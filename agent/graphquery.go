package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/graphchat/graphdb"
	"github.com/BaSui01/graphchat/llm"
	"github.com/BaSui01/graphchat/workflow"
)

// rateLimitNotice 命中提供商限流时写入状态的错误文案。
const rateLimitNotice = "API rate limit exceeded, retry skipped"

// GraphQueryAgent 图查询智能体。
// 工作流：get_schema → analyze → generate → validate →
// (execute | generate) → execute → evaluate → (generate | respond)。
// 生成尝试次数只在 generate 节点递增，上限为 MaxRetries；
// 命中限流时置 SkipRetry 短路整个重试环。
type GraphQueryAgent struct {
	*Base
	provider llm.Provider
	client   graphdb.Client
	think    *ThinkTool
	runner   *workflow.Runner[GraphQueryState]
}

// NewGraphQueryAgent 创建图查询智能体。
func NewGraphQueryAgent(deps Deps, cfg Config) (*GraphQueryAgent, error) {
	if deps.Provider == nil {
		return nil, fmt.Errorf("graphquery agent: llm provider is required")
	}
	if deps.GraphClient == nil {
		return nil, fmt.Errorf("graphquery agent: graph client is required")
	}
	return &GraphQueryAgent{
		Base:     NewBase(TypeGraphQuery, cfg, deps),
		provider: deps.Provider,
		client:   deps.GraphClient,
		think:    NewThinkTool(deps.Provider, cfg.Model, deps.Logger),
	}, nil
}

func (a *GraphQueryAgent) ensureReady(ctx context.Context) error {
	return a.EnsureReady(ctx, func(cp workflow.Checkpointer) error {
		g := workflow.NewGraph[GraphQueryState]("graphquery").
			AddNode("get_schema", a.getSchemaNode).
			AddNode("analyze", a.analyzeNode).
			AddNode("generate", a.generateNode).
			AddNode("validate", a.validateNode).
			AddNode("execute", a.executeNode).
			AddNode("evaluate", a.evaluateNode).
			AddNode("respond", a.respondNode).
			SetEntry("get_schema").
			AddEdge("get_schema", "analyze").
			AddEdge("analyze", "generate").
			AddEdge("generate", "validate").
			AddConditionalEdge("validate", a.afterValidate).
			AddEdge("execute", "evaluate").
			AddConditionalEdge("evaluate", a.afterEvaluate).
			AddEdge("respond", workflow.End)
		runner, err := g.Compile(
			workflow.WithCheckpointer[GraphQueryState](cp),
			workflow.WithRecursionLimit[GraphQueryState](a.cfg.RecursionLimit),
			workflow.WithLogger[GraphQueryState](a.logger),
		)
		if err != nil {
			return err
		}
		a.runner = runner
		return nil
	})
}

// getSchemaNode 内省图模式。失败折叠为状态错误，流程继续到
// respond 给出可读的失败说明。
func (a *GraphQueryAgent) getSchemaNode(ctx context.Context, s GraphQueryState) (GraphQueryState, error) {
	schema, err := a.client.GetSchema(ctx)
	if err != nil {
		a.logger.Error("schema introspection failed", zap.Error(err))
		s.Error = fmt.Sprintf("failed to read graph schema: %v", err)
		return s, nil
	}
	s.Schema = schema
	return s, nil
}

// analyzeNode 分析问题与模式的关联。分析失败不致命，
// 生成节点在没有分析的情况下依然可以工作。
func (a *GraphQueryAgent) analyzeNode(ctx context.Context, s GraphQueryState) (GraphQueryState, error) {
	if s.Error != "" {
		return s, nil
	}
	resp, err := a.provider.Completion(ctx, &llm.ChatRequest{
		Model:       a.cfg.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: analysisPrompt(s.Query, s.Schema.String())}},
		Temperature: 0.2,
	})
	if err != nil {
		if llm.IsRateLimit(err) {
			s.SkipRetry = true
			s.Error = rateLimitNotice
			return s, nil
		}
		a.logger.Warn("query analysis failed, continuing without it", zap.Error(err))
		return s, nil
	}
	s.Analysis = strings.TrimSpace(resp.Content)
	return s, nil
}

// generateNode 生成 Cypher。每次进入该节点尝试次数加一，
// 这是整个重试环里唯一递增计数的地方。重试时附带上一次的
// 校验错误做纠偏。
func (a *GraphQueryAgent) generateNode(ctx context.Context, s GraphQueryState) (GraphQueryState, error) {
	s.Attempt++
	if s.Error != "" {
		return s, nil
	}

	var priorErrors []string
	if s.Attempt > 1 && s.Validation != nil {
		priorErrors = s.Validation.Errors
	}
	prompt := cypherPrompt(s.Query, s.Analysis, s.Schema.String(), s.Cypher, priorErrors)

	resp, err := a.provider.Completion(ctx, &llm.ChatRequest{
		Model:       a.cfg.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: 0.1,
	})
	if err != nil {
		if llm.IsRateLimit(err) {
			a.logger.Warn("cypher generation rate limited", zap.Int("attempt", s.Attempt))
			s.SkipRetry = true
			s.Error = rateLimitNotice
			s.Cypher = ""
			return s, nil
		}
		a.logger.Error("cypher generation failed", zap.Int("attempt", s.Attempt), zap.Error(err))
		s.Error = fmt.Sprintf("query generation failed: %v", err)
		s.Cypher = ""
		return s, nil
	}

	s.Cypher = stripCodeFence(resp.Content)
	a.logger.Debug("cypher generated", zap.Int("attempt", s.Attempt), zap.String("cypher", s.Cypher))
	return s, nil
}

// validateNode 校验生成的查询。
// 校验器本身不可用时放行并附告警，宁可执行失败也不卡死流程。
func (a *GraphQueryAgent) validateNode(ctx context.Context, s GraphQueryState) (GraphQueryState, error) {
	if s.Error != "" || s.Cypher == "" {
		s.Validation = &graphdb.Validation{Valid: false, Errors: []string{"no query to validate"}}
		return s, nil
	}
	v, err := a.client.ValidateQuery(ctx, s.Cypher)
	if err != nil {
		a.logger.Warn("validator unavailable, failing open", zap.Error(err))
		s.Validation = &graphdb.Validation{
			Valid:    true,
			Warnings: []string{fmt.Sprintf("validation check unavailable: %v", err)},
		}
		return s, nil
	}
	s.Validation = v
	return s, nil
}

// afterValidate 决定重试还是继续执行。
// 终态错误或短路时直接进入执行链收尾，不再烧重试额度；
// 校验通过或额度用尽同样进入执行，否则回到生成节点重试。
func (a *GraphQueryAgent) afterValidate(s GraphQueryState) string {
	if s.SkipRetry || s.Error != "" {
		return "execute"
	}
	if s.Validation != nil && s.Validation.Valid {
		return "execute"
	}
	if s.Attempt >= a.cfg.MaxRetries {
		return "execute"
	}
	return "generate"
}

// executeNode 执行查询。执行错误捕获为数据，供评估与回复使用。
func (a *GraphQueryAgent) executeNode(ctx context.Context, s GraphQueryState) (GraphQueryState, error) {
	if s.Error != "" || s.Cypher == "" || (s.Validation != nil && !s.Validation.Valid) {
		s.Results = nil
		return s, nil
	}
	records, err := a.client.ExecuteQuery(ctx, s.Cypher)
	if err != nil {
		a.logger.Warn("query execution failed", zap.Int("attempt", s.Attempt), zap.Error(err))
		s.ExecutionError = err.Error()
		s.Results = nil
		return s, nil
	}
	s.ExecutionError = ""
	s.Results = records
	return s, nil
}

// evaluateNode 评估结果是否回答了问题。
// 短路或终态错误不再评估；校验失败直接强制重试；执行错误
// 连同结果一并交给评估器裁决。评估器自身失败按成功处理，
// 避免因评估不可用而烧掉重试额度。
func (a *GraphQueryAgent) evaluateNode(ctx context.Context, s GraphQueryState) (GraphQueryState, error) {
	if s.SkipRetry || s.Error != "" {
		s.ShouldRetry = false
		s.Evaluation = "SKIP: terminal error present"
		return s, nil
	}
	if s.Validation != nil && !s.Validation.Valid {
		s.ShouldRetry = s.Attempt < a.cfg.MaxRetries
		s.Evaluation = "RETRY: query failed validation"
		return s, nil
	}

	verdict, err := a.think.Execute(ctx, evaluationPrompt(s.Query, s.Cypher, summarizeRecords(s.Results), s.ExecutionError))
	if err != nil {
		a.logger.Warn("evaluation unavailable, accepting results", zap.Error(err))
		s.ShouldRetry = false
		s.Evaluation = "SUCCESS"
		return s, nil
	}
	s.Evaluation = verdict
	wantsRetry := strings.HasPrefix(strings.ToUpper(strings.TrimSpace(verdict)), "RETRY")
	s.ShouldRetry = wantsRetry && s.Attempt < a.cfg.MaxRetries
	return s, nil
}

// afterEvaluate 决定重试还是回复。
func (a *GraphQueryAgent) afterEvaluate(s GraphQueryState) string {
	if s.ShouldRetry {
		return "generate"
	}
	return "respond"
}

// respondNode 渲染最终回复，分三种结局：
// 成功、执行或生成失败、重试额度内未能产出合法查询。
func (a *GraphQueryAgent) respondNode(_ context.Context, s GraphQueryState) (GraphQueryState, error) {
	switch {
	case s.Error != "":
		s.Response = fmt.Sprintf("I couldn't complete the graph query: %s.", s.Error)
	case s.ExecutionError != "":
		s.Response = fmt.Sprintf(
			"Query execution failed after %d attempt(s).\n\nLast query:\n```cypher\n%s\n```\nError: %s",
			s.Attempt, s.Cypher, s.ExecutionError)
	case s.Validation != nil && !s.Validation.Valid:
		s.Response = fmt.Sprintf(
			"I couldn't produce a valid query after %d attempt(s). Validation errors:\n%s",
			s.Attempt, bulletList(s.Validation.Errors))
	default:
		s.Response = fmt.Sprintf(
			"Query executed successfully (attempt %d/%d).\n\n```cypher\n%s\n```\n\nResults (%d record(s)):\n%s",
			s.Attempt, a.cfg.MaxRetries, s.Cypher, len(s.Results), summarizeRecords(s.Results))
	}
	s.AppendMessages(NewMessage(llm.RoleAssistant, s.Response))
	return s, nil
}

// summarizeRecords 将结果行渲染为 JSON 摘要，最多 10 行。
func summarizeRecords(records []graphdb.Record) string {
	if len(records) == 0 {
		return "(no rows)"
	}
	shown := records
	if len(shown) > 10 {
		shown = shown[:10]
	}
	data, err := json.MarshalIndent(shown, "", "  ")
	if err != nil {
		return fmt.Sprintf("(%d rows, unrenderable)", len(records))
	}
	if len(records) > 10 {
		return fmt.Sprintf("%s\n... and %d more rows", data, len(records)-10)
	}
	return string(data)
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteByte('\n')
	}
	return b.String()
}

// Execute 执行一次图查询问答。
func (a *GraphQueryAgent) Execute(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if err := a.ensureReady(ctx); err != nil {
		return nil, err
	}
	return a.observe(ctx, req, func(ctx context.Context) (*Result, error) {
		state := GraphQueryState{
			BaseState: BaseState{SessionID: req.SessionID, Metadata: req.Metadata},
			Query:     req.Query,
		}
		state.AppendMessages(a.TruncateHistory(req.History, false)...)
		state.AppendMessages(NewMessage(llm.RoleUser, req.Query))

		final, err := a.runner.Invoke(ctx, state, a.RunConfig(req))
		if err != nil {
			return nil, err
		}
		succeeded := final.Error == "" && final.ExecutionError == "" && (final.Validation == nil || final.Validation.Valid)
		a.metrics.RecordQueryAttempts(final.Attempt, succeeded)
		return &Result{
			Response: final.Response,
			Error:    final.Error,
			Metadata: map[string]any{
				"attempts":   final.Attempt,
				"cypher":     final.Cypher,
				"row_count":  len(final.Results),
				"evaluation": final.Evaluation,
			},
		}, nil
	})
}

// ExecuteStream 流式执行。图查询节点本身不产生 token，
// 最终回复由流包装层作为单个分片补发。
func (a *GraphQueryAgent) ExecuteStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
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
