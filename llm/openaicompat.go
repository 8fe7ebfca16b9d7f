package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OpenAICompatConfig OpenAI 兼容提供商配置。
// 兼容所有实现 /chat/completions 协议的服务。
type OpenAICompatConfig struct {
	Name         string        // 提供商名称，用于日志与错误
	BaseURL      string        // 如 https://api.openai.com/v1
	APIKey       string
	DefaultModel string        // 请求未指定模型时使用
	Timeout      time.Duration // HTTP 客户端超时，0 表示 60s
}

// OpenAICompatProvider 基于 OpenAI 兼容 HTTP 协议的提供商实现。
type OpenAICompatProvider struct {
	cfg    OpenAICompatConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAICompatProvider 创建 OpenAI 兼容提供商。
func NewOpenAICompatProvider(cfg OpenAICompatConfig, logger *zap.Logger) *OpenAICompatProvider {
	if cfg.Name == "" {
		cfg.Name = "openai-compat"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAICompatProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "llm_provider"), zap.String("provider", cfg.Name)),
	}
}

// Name 返回提供商名称。
func (p *OpenAICompatProvider) Name() string { return p.cfg.Name }

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      wireMessage  `json:"message"`
		Delta        *wireMessage `json:"delta,omitempty"`
		FinishReason string       `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *OpenAICompatProvider) buildBody(req *ChatRequest, stream bool) wireRequest {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}
	msgs := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	return wireRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Stream:      stream,
	}
}

func (p *OpenAICompatProvider) do(ctx context.Context, req *ChatRequest, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(p.buildBody(req, stream))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Code: ErrCodeUpstream, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}
	return resp, nil
}

// Completion 非流式聊天补全。
func (p *OpenAICompatProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := p.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, &Error{Code: ErrCodeUpstream, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true}
	}
	if len(wr.Choices) == 0 {
		return nil, &Error{Code: ErrCodeUpstream, Message: "empty choices in response", Retryable: true}
	}
	return &ChatResponse{
		Content:      wr.Choices[0].Message.Content,
		Model:        wr.Model,
		FinishReason: wr.Choices[0].FinishReason,
		Usage: Usage{
			PromptTokens:     wr.Usage.PromptTokens,
			CompletionTokens: wr.Usage.CompletionTokens,
			TotalTokens:      wr.Usage.TotalTokens,
		},
	}, nil
}

// Stream 通过 SSE 进行流式补全。
func (p *OpenAICompatProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	resp, err := p.do(ctx, req, true)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					emit(ctx, ch, StreamChunk{Err: &Error{Code: ErrCodeUpstream, Message: err.Error(), Retryable: true}})
				}
				return
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var wr wireResponse
			if err := json.Unmarshal([]byte(data), &wr); err != nil {
				emit(ctx, ch, StreamChunk{Err: &Error{Code: ErrCodeUpstream, Message: err.Error(), Retryable: true}})
				return
			}
			for _, choice := range wr.Choices {
				chunk := StreamChunk{FinishReason: choice.FinishReason}
				if choice.Delta != nil {
					chunk.Delta = choice.Delta.Content
				}
				if !emit(ctx, ch, chunk) {
					return
				}
			}
		}
	}()
	return ch, nil
}

func emit(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- chunk:
		return true
	}
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return "unreadable error body"
	}
	var wr wireResponse
	if json.Unmarshal(data, &wr) == nil && wr.Error != nil {
		return wr.Error.Message
	}
	return strings.TrimSpace(string(data))
}

func mapHTTPError(status int, msg string) *Error {
	e := &Error{Message: msg, HTTPStatus: status}
	switch {
	case status == http.StatusTooManyRequests:
		e.Code = ErrCodeRateLimited
		e.Retryable = true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e.Code = ErrCodeTimeout
		e.Retryable = true
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Code = ErrCodeInvalidRequest
	case status == http.StatusForbidden:
		e.Code = ErrCodeContentFiltered
	case status >= 500:
		e.Code = ErrCodeUpstream
		e.Retryable = true
	default:
		e.Code = ErrCodeUpstream
	}
	return e
}
