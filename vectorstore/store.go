// Package vectorstore 定义文档检索能力。
// 生产实现基于 PostgreSQL 的 pgvector 扩展做余弦相似检索。
package vectorstore

import "context"

// Document 检索文档。
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ScoredDocument 带相似度分数的文档，分数区间 [0,1]，越大越相关。
type ScoredDocument struct {
	Document
	Score float64 `json:"score"`
}

// Store 向量存储接口。实现必须并发安全。
type Store interface {
	// AddDocuments 写入文档及其向量。
	AddDocuments(ctx context.Context, docs []Document) error

	// SearchWithScore 相似检索，返回按分数降序的前 k 条。
	// filters 对文档 metadata 做包含匹配，nil 表示不过滤。
	SearchWithScore(ctx context.Context, query string, k int, filters map[string]any) ([]ScoredDocument, error)
}
