package metrics

import (
	"context"

	"github.com/BaSui01/graphchat/llm"
)

// instrumentedProvider 在 llm.Provider 外层记录调用与 token 用量。
type instrumentedProvider struct {
	inner     llm.Provider
	collector *Collector
}

// InstrumentProvider 为提供商叠加指标采集。collector 为 nil 时原样返回。
func InstrumentProvider(inner llm.Provider, collector *Collector) llm.Provider {
	if collector == nil {
		return inner
	}
	return &instrumentedProvider{inner: inner, collector: collector}
}

func (p *instrumentedProvider) Name() string { return p.inner.Name() }

func (p *instrumentedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.inner.Completion(ctx, req)
	if err != nil {
		p.collector.RecordLLMRequest(p.inner.Name(), 0, 0, err)
		return nil, err
	}
	p.collector.RecordLLMRequest(p.inner.Name(), resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil)
	return resp, nil
}

// Stream 只记录调用结果，流内 token 用量由上游在关闭时汇总，
// SSE 响应不携带 usage 字段时记为零。
func (p *instrumentedProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	ch, err := p.inner.Stream(ctx, req)
	p.collector.RecordLLMRequest(p.inner.Name(), 0, 0, err)
	return ch, err
}
