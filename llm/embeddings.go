package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Embedder 文本向量化接口。
type Embedder interface {
	// Embed 将文本编码为向量。
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions 返回向量维度。
	Dimensions() int
}

// OpenAIEmbedder OpenAI 兼容的 /embeddings 客户端。
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	logger     *zap.Logger
}

// NewOpenAIEmbedder 创建向量化客户端。
func NewOpenAIEmbedder(baseURL, apiKey, model string, dimensions int, logger *zap.Logger) *OpenAIEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With(zap.String("component", "embedder")),
	}
}

// Dimensions 返回向量维度。
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// Embed 请求文本向量。
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body := map[string]any{"model": e.model, "input": text}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("embedder: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embedder: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &Error{Code: ErrCodeUpstream, Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Code: ErrCodeUpstream, Message: err.Error(), Retryable: true}
	}
	if len(out.Data) == 0 {
		return nil, &Error{Code: ErrCodeUpstream, Message: "empty embedding response"}
	}
	return out.Data[0].Embedding, nil
}
