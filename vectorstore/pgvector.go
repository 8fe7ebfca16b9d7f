package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/graphchat/llm"
)

// PgVectorStore 基于 pgvector 的向量存储。
// 表结构：id uuid, content text, metadata jsonb, embedding vector(N)。
type PgVectorStore struct {
	db       *gorm.DB
	embedder llm.Embedder
	table    string
	logger   *zap.Logger
}

// NewPgVectorStore 创建存储并确保表与扩展存在。
func NewPgVectorStore(db *gorm.DB, embedder llm.Embedder, table string, logger *zap.Logger) (*PgVectorStore, error) {
	if table == "" {
		table = "document_embeddings"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PgVectorStore{
		db:       db,
		embedder: embedder,
		table:    table,
		logger:   logger.With(zap.String("component", "vectorstore")),
	}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PgVectorStore) migrate() error {
	if err := s.db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("vectorstore: create extension: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id uuid PRIMARY KEY,
		content text NOT NULL,
		metadata jsonb NOT NULL DEFAULT '{}',
		embedding vector(%d) NOT NULL
	)`, s.table, s.embedder.Dimensions())
	if err := s.db.Exec(ddl).Error; err != nil {
		return fmt.Errorf("vectorstore: create table: %w", err)
	}
	return nil
}

// AddDocuments 逐条向量化并写入。
func (s *PgVectorStore) AddDocuments(ctx context.Context, docs []Document) error {
	for _, doc := range docs {
		vec, err := s.embedder.Embed(ctx, doc.Content)
		if err != nil {
			return fmt.Errorf("vectorstore: embed document: %w", err)
		}
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("vectorstore: marshal metadata: %w", err)
		}
		sql := fmt.Sprintf(`INSERT INTO %s (id, content, metadata, embedding) VALUES (?, ?, ?::jsonb, ?::vector)
			ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`, s.table)
		if err := s.db.WithContext(ctx).Exec(sql, id, doc.Content, string(meta), vectorLiteral(vec)).Error; err != nil {
			return fmt.Errorf("vectorstore: insert document: %w", err)
		}
	}
	s.logger.Debug("documents added", zap.Int("count", len(docs)))
	return nil
}

// SearchWithScore 余弦相似检索。
// 分数定义为 1 - 余弦距离，按降序返回前 k 条。
func (s *PgVectorStore) SearchWithScore(ctx context.Context, query string, k int, filters map[string]any) ([]ScoredDocument, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}
	lit := vectorLiteral(vec)

	sql := fmt.Sprintf(`SELECT id, content, metadata, 1 - (embedding <=> ?::vector) AS score FROM %s`, s.table)
	args := []any{lit}
	if len(filters) > 0 {
		filterJSON, err := json.Marshal(filters)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: marshal filters: %w", err)
		}
		sql += " WHERE metadata @> ?::jsonb"
		args = append(args, string(filterJSON))
	}
	sql += " ORDER BY embedding <=> ?::vector LIMIT ?"
	args = append(args, lit, k)

	rows, err := s.db.WithContext(ctx).Raw(sql, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	defer rows.Close()

	var out []ScoredDocument
	for rows.Next() {
		var (
			id, content string
			metaRaw     []byte
			score       float64
		)
		if err := rows.Scan(&id, &content, &metaRaw, &score); err != nil {
			return nil, fmt.Errorf("vectorstore: scan row: %w", err)
		}
		doc := ScoredDocument{
			Document: Document{ID: id, Content: content},
			Score:    score,
		}
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &doc.Metadata); err != nil {
				s.logger.Warn("corrupt document metadata", zap.String("id", id), zap.Error(err))
			}
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore: iterate rows: %w", err)
	}
	s.logger.Debug("search completed", zap.Int("hits", len(out)), zap.Int("k", k))
	return out, nil
}

// vectorLiteral 渲染 pgvector 文本字面量 [x1,x2,...]。
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
