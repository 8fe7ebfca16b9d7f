package llm

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryConfig 重试策略配置
type RetryConfig struct {
	MaxAttempts    int           // 含首次调用的总尝试次数
	InitialBackoff time.Duration // 首次退避
	MaxBackoff     time.Duration // 退避上限
	Multiplier     float64       // 退避倍率
	Jitter         float64       // 抖动比例 [0,1]
}

// DefaultRetryConfig 返回默认重试策略。
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
	}
}

// ResilientProvider 弹性提供商包装器。
// 在内层 Provider 之上叠加客户端限流与指数退避重试，
// 仅对可重试错误（限流、超时、上游故障）重试。
type ResilientProvider struct {
	inner   Provider
	retry   RetryConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewResilientProvider 包装一个提供商。
// requestsPerSec <= 0 表示不做客户端限流。
func NewResilientProvider(inner Provider, retry RetryConfig, requestsPerSec float64, logger *zap.Logger) *ResilientProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if requestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSec), 1)
	}
	return &ResilientProvider{
		inner:   inner,
		retry:   retry,
		limiter: limiter,
		logger:  logger.With(zap.String("component", "llm_resilient"), zap.String("provider", inner.Name())),
	}
}

// Name 返回内层提供商名称。
func (p *ResilientProvider) Name() string { return p.inner.Name() }

// Completion 带限流与重试的补全调用。
func (p *ResilientProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var lastErr error
	backoff := p.retry.InitialBackoff
	for attempt := 1; attempt <= p.retry.MaxAttempts; attempt++ {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		resp, err := p.inner.Completion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == p.retry.MaxAttempts {
			break
		}
		sleep := p.withJitter(backoff)
		p.logger.Warn("completion failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", sleep),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
		backoff = time.Duration(float64(backoff) * p.retry.Multiplier)
		if backoff > p.retry.MaxBackoff {
			backoff = p.retry.MaxBackoff
		}
	}
	return nil, lastErr
}

// Stream 带限流的流式调用。流建立后不再重试，分片错误由调用方处理。
func (p *ResilientProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Stream(ctx, req)
}

func (p *ResilientProvider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

func (p *ResilientProvider) withJitter(d time.Duration) time.Duration {
	if p.retry.Jitter <= 0 {
		return d
	}
	delta := p.retry.Jitter * float64(d)
	return time.Duration(float64(d) - delta + rand.Float64()*2*delta)
}
