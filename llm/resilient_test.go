package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// flakyProvider 前 failures 次调用失败，之后成功。
type flakyProvider struct {
	failures int
	err      error

	mu    sync.Mutex
	calls int
}

func (p *flakyProvider) Name() string { return "flaky" }

func (p *flakyProvider) Completion(context.Context, *ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return nil, p.err
	}
	return &ChatResponse{Content: "recovered"}, nil
}

func (p *flakyProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	if _, err := p.Completion(ctx, req); err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Delta: "recovered", FinishReason: "stop"}
	close(ch)
	return ch, nil
}

func (p *flakyProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

// TestResilientRetriesRetryableError 可重试错误在退避后重试直到成功。
func TestResilientRetriesRetryableError(t *testing.T) {
	inner := &flakyProvider{failures: 2, err: NewError(ErrCodeRateLimited, "slow down")}
	p := NewResilientProvider(inner, fastRetry(), 0, nil)

	resp, err := p.Completion(context.Background(), &ChatRequest{})
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("content = %q", resp.Content)
	}
	if inner.callCount() != 3 {
		t.Errorf("calls = %d, want 3", inner.callCount())
	}
}

// TestResilientStopsOnNonRetryable 不可重试错误直接返回，不再调用。
func TestResilientStopsOnNonRetryable(t *testing.T) {
	badReq := NewError(ErrCodeInvalidRequest, "missing model")
	inner := &flakyProvider{failures: 10, err: badReq}
	p := NewResilientProvider(inner, fastRetry(), 0, nil)

	_, err := p.Completion(context.Background(), &ChatRequest{})
	var le *Error
	if !errors.As(err, &le) || le.Code != ErrCodeInvalidRequest {
		t.Fatalf("err = %v, want invalid request", err)
	}
	if inner.callCount() != 1 {
		t.Errorf("calls = %d, want 1", inner.callCount())
	}
}

// TestResilientExhaustsAttempts 持续失败时返回最后一次错误。
func TestResilientExhaustsAttempts(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: NewError(ErrCodeUpstream, "bad gateway")}
	p := NewResilientProvider(inner, fastRetry(), 0, nil)

	_, err := p.Completion(context.Background(), &ChatRequest{})
	var le *Error
	if !errors.As(err, &le) || le.Code != ErrCodeUpstream {
		t.Fatalf("err = %v, want upstream error", err)
	}
	if inner.callCount() != 3 {
		t.Errorf("calls = %d, want MaxAttempts", inner.callCount())
	}
}

// TestResilientContextCancelDuringBackoff 退避期间取消立即返回。
func TestResilientContextCancelDuringBackoff(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: NewError(ErrCodeRateLimited, "slow down")}
	retry := fastRetry()
	retry.InitialBackoff = time.Second
	p := NewResilientProvider(inner, retry, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := p.Completion(ctx, &ChatRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if inner.callCount() != 1 {
		t.Errorf("calls = %d, want 1", inner.callCount())
	}
}

// TestResilientStreamNoRetry 流式调用建立失败不重试。
func TestResilientStreamNoRetry(t *testing.T) {
	inner := &flakyProvider{failures: 1, err: NewError(ErrCodeRateLimited, "slow down")}
	p := NewResilientProvider(inner, fastRetry(), 0, nil)

	if _, err := p.Stream(context.Background(), &ChatRequest{}); err == nil {
		t.Fatal("expected stream error")
	}
	if inner.callCount() != 1 {
		t.Errorf("calls = %d, want 1", inner.callCount())
	}
}

// TestIsRateLimitTextMatch 未类型化的限流错误靠文本识别。
func TestIsRateLimitTextMatch(t *testing.T) {
	if !IsRateLimit(errors.New("upstream returned 429")) {
		t.Error("429 text not recognized")
	}
	if !IsRateLimit(NewError(ErrCodeRateLimited, "typed")) {
		t.Error("typed rate limit not recognized")
	}
	if IsRateLimit(NewError(ErrCodeUpstream, "rate limit mention in typed error")) {
		t.Error("typed non-rate-limit error misclassified")
	}
	if IsRateLimit(nil) {
		t.Error("nil misclassified")
	}
}
