package guardrail

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/graphchat/llm"
)

// guardedProvider 在 llm.Provider 外层套一道护栏：
// 校验请求中最后一条用户消息与响应正文。
type guardedProvider struct {
	inner     llm.Provider
	evaluator *Evaluator
	logger    *zap.Logger
}

// Wrap 为提供商叠加内容护栏。evaluator 为 nil 时原样返回。
func Wrap(inner llm.Provider, evaluator *Evaluator, logger *zap.Logger) llm.Provider {
	if evaluator == nil || !evaluator.Enabled() {
		return inner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &guardedProvider{
		inner:     inner,
		evaluator: evaluator,
		logger:    logger.With(zap.String("component", "guarded_provider")),
	}
}

func (g *guardedProvider) Name() string { return g.inner.Name() }

func (g *guardedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := g.checkRequest(req); err != nil {
		return nil, err
	}
	resp, err := g.inner.Completion(ctx, req)
	if err != nil {
		return nil, err
	}
	if r := g.evaluator.ValidateOutput(resp.Content); !r.Allowed {
		return nil, &BlockedError{Direction: "output", Result: r}
	}
	return resp, nil
}

func (g *guardedProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if err := g.checkRequest(req); err != nil {
		return nil, err
	}
	// 流式输出不做逐分片校验，避免截断合法内容
	return g.inner.Stream(ctx, req)
}

func (g *guardedProvider) checkRequest(req *llm.ChatRequest) error {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != llm.RoleUser {
			continue
		}
		if r := g.evaluator.ValidateInput(req.Messages[i].Content); !r.Allowed {
			return &BlockedError{Direction: "input", Result: r}
		}
		break
	}
	return nil
}
