package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/graphchat/llm"
	"github.com/BaSui01/graphchat/vectorstore"
	"github.com/BaSui01/graphchat/workflow"
)

// maxContextDocs 进入生成提示词的文档数上限。
const maxContextDocs = 3

// RetrievalAgent 文档检索智能体。
// 工作流：think → plan → retrieve → rerank → generate → respond。
// 节点失败折叠为状态错误并流转到 respond 统一渲染；
// 回复末尾固定追加来源注脚。
type RetrievalAgent struct {
	*Base
	provider llm.Provider
	store    vectorstore.Store
	think    *ThinkTool
	plan     *PlanTool
	runner   *workflow.Runner[RetrievalState]
}

// NewRetrievalAgent 创建检索智能体。
func NewRetrievalAgent(deps Deps, cfg Config) (*RetrievalAgent, error) {
	if deps.Provider == nil {
		return nil, fmt.Errorf("retrieval agent: llm provider is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("retrieval agent: vector store is required")
	}
	return &RetrievalAgent{
		Base:     NewBase(TypeRetrieval, cfg, deps),
		provider: deps.Provider,
		store:    deps.Store,
		think:    NewThinkTool(deps.Provider, cfg.Model, deps.Logger),
		plan:     NewPlanTool(deps.Provider, cfg.Model, deps.Logger),
	}, nil
}

func (a *RetrievalAgent) ensureReady(ctx context.Context) error {
	return a.EnsureReady(ctx, func(cp workflow.Checkpointer) error {
		g := workflow.NewGraph[RetrievalState]("retrieval").
			AddNode("think", a.thinkNode).
			AddNode("plan", a.planNode).
			AddNode("retrieve", a.retrieveNode).
			AddNode("rerank", a.rerankNode).
			AddNode("generate", a.generateNode).
			AddNode("respond", a.respondNode).
			SetEntry("think").
			AddEdge("think", "plan").
			AddEdge("plan", "retrieve").
			AddEdge("retrieve", "rerank").
			AddEdge("rerank", "generate").
			AddEdge("generate", "respond").
			AddEdge("respond", workflow.End)
		runner, err := g.Compile(
			workflow.WithCheckpointer[RetrievalState](cp),
			workflow.WithRecursionLimit[RetrievalState](a.cfg.RecursionLimit),
			workflow.WithLogger[RetrievalState](a.logger),
		)
		if err != nil {
			return err
		}
		a.runner = runner
		return nil
	})
}

// thinkNode 检索前思考。思考失败不致命。
func (a *RetrievalAgent) thinkNode(ctx context.Context, s RetrievalState) (RetrievalState, error) {
	thought, err := a.think.Execute(ctx, thinkingPrompt(s.Query))
	if err != nil {
		a.logger.Warn("pre-retrieval thinking failed, continuing", zap.Error(err))
		return s, nil
	}
	s.Thinking = thought
	return s, nil
}

// planNode 生成检索计划。失败不致命。
func (a *RetrievalAgent) planNode(ctx context.Context, s RetrievalState) (RetrievalState, error) {
	steps, _, err := a.plan.Execute(ctx, planningPrompt(s.Query, s.Thinking))
	if err != nil {
		a.logger.Warn("retrieval planning failed, continuing", zap.Error(err))
		return s, nil
	}
	s.Plan = steps
	return s, nil
}

// retrieveNode 向量召回。失败折叠为状态错误。
func (a *RetrievalAgent) retrieveNode(ctx context.Context, s RetrievalState) (RetrievalState, error) {
	docs, err := a.store.SearchWithScore(ctx, s.Query, a.cfg.RetrievalTopK, s.Filters)
	if err != nil {
		a.logger.Error("retrieval failed", zap.Error(err))
		s.Error = fmt.Sprintf("document retrieval failed: %v", err)
		return s, nil
	}
	s.Retrieved = docs
	return s, nil
}

// rerankNode 按分数阈值剪枝。
func (a *RetrievalAgent) rerankNode(_ context.Context, s RetrievalState) (RetrievalState, error) {
	if s.Error != "" {
		return s, nil
	}
	kept := make([]vectorstore.ScoredDocument, 0, len(s.Retrieved))
	for _, doc := range s.Retrieved {
		if doc.Score >= a.cfg.ScoreThreshold {
			kept = append(kept, doc)
		}
	}
	s.Reranked = kept
	a.logger.Debug("documents reranked",
		zap.Int("retrieved", len(s.Retrieved)),
		zap.Int("kept", len(kept)),
		zap.Float64("threshold", a.cfg.ScoreThreshold))
	return s, nil
}

// generateNode 用前三篇文档作为上下文生成回答。
func (a *RetrievalAgent) generateNode(ctx context.Context, s RetrievalState) (RetrievalState, error) {
	if s.Error != "" {
		return s, nil
	}
	if len(s.Reranked) == 0 {
		return s, nil
	}

	top := s.Reranked
	if len(top) > maxContextDocs {
		top = top[:maxContextDocs]
	}
	contexts := make([]string, 0, len(top))
	for _, doc := range top {
		contexts = append(contexts, doc.Content)
	}

	resp, err := a.provider.Completion(ctx, &llm.ChatRequest{
		Model:       a.cfg.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: answerPrompt(s.Query, contexts)}},
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		a.logger.Error("answer generation failed", zap.Error(err))
		s.Error = fmt.Sprintf("answer generation failed: %v", err)
		return s, nil
	}
	s.Answer = strings.TrimSpace(resp.Content)
	return s, nil
}

// respondNode 渲染最终回复并追加来源注脚。
func (a *RetrievalAgent) respondNode(_ context.Context, s RetrievalState) (RetrievalState, error) {
	used := len(s.Reranked)
	if used > maxContextDocs {
		used = maxContextDocs
	}
	switch {
	case s.Error != "":
		s.Response = fmt.Sprintf("I'm sorry, I couldn't search the knowledge base: %s.", s.Error)
	case len(s.Reranked) == 0:
		s.Response = fmt.Sprintf(
			"I couldn't find any sufficiently relevant documents for this question.\n\n_Based on 0 relevant document(s) (retrieved %d total)_",
			len(s.Retrieved))
	default:
		s.Response = fmt.Sprintf("%s\n\n_Based on %d relevant document(s) (retrieved %d total)_",
			s.Answer, used, len(s.Retrieved))
	}
	s.AppendMessages(NewMessage(llm.RoleAssistant, s.Response))
	return s, nil
}

// Execute 执行一次检索问答。
func (a *RetrievalAgent) Execute(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if err := a.ensureReady(ctx); err != nil {
		return nil, err
	}
	return a.observe(ctx, req, func(ctx context.Context) (*Result, error) {
		state := RetrievalState{
			BaseState: BaseState{SessionID: req.SessionID, Metadata: req.Metadata},
			Query:     req.Query,
			Filters:   extractFilters(req.Metadata),
		}
		state.AppendMessages(a.TruncateHistory(req.History, false)...)
		state.AppendMessages(NewMessage(llm.RoleUser, req.Query))

		final, err := a.runner.Invoke(ctx, state, a.RunConfig(req))
		if err != nil {
			return nil, err
		}
		a.metrics.RecordRetrieval(len(final.Retrieved), len(final.Reranked))
		return &Result{
			Response: final.Response,
			Error:    final.Error,
			Metadata: map[string]any{
				"retrieved": len(final.Retrieved),
				"reranked":  len(final.Reranked),
				"plan":      final.Plan,
			},
		}, nil
	})
}

// ExecuteStream 流式执行。
func (a *RetrievalAgent) ExecuteStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
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

// extractFilters 从请求元数据里取出检索过滤条件。
func extractFilters(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	if f, ok := metadata["filters"].(map[string]any); ok {
		return f
	}
	return nil
}
