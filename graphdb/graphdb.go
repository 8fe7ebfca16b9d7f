// Package graphdb 定义结构化查询能力：图模式内省、
// 查询校验与执行。生产实现基于 Neo4j Bolt 驱动。
package graphdb

import (
	"context"
	"strings"
)

// Schema 图数据库模式。
type Schema struct {
	Labels            []string            `json:"labels"`
	RelationshipTypes []string            `json:"relationship_types"`
	Properties        map[string][]string `json:"properties,omitempty"` // label → property keys
}

// String 渲染为提示词可用的紧凑文本。
func (s Schema) String() string {
	var b strings.Builder
	b.WriteString("Node labels: ")
	b.WriteString(strings.Join(s.Labels, ", "))
	b.WriteString("\nRelationship types: ")
	b.WriteString(strings.Join(s.RelationshipTypes, ", "))
	if len(s.Properties) > 0 {
		b.WriteString("\nProperties:")
		for label, keys := range s.Properties {
			b.WriteString("\n  ")
			b.WriteString(label)
			b.WriteString(": ")
			b.WriteString(strings.Join(keys, ", "))
		}
	}
	return b.String()
}

// Record 查询结果行，列名到值的映射。
type Record map[string]any

// Validation 查询校验结果。
type Validation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Client 图数据库客户端接口。实现必须并发安全。
type Client interface {
	// GetSchema 内省图模式。
	GetSchema(ctx context.Context) (*Schema, error)

	// ValidateQuery 在不执行的前提下校验查询语法。
	ValidateQuery(ctx context.Context, query string) (*Validation, error)

	// ExecuteQuery 执行只读查询并返回结果行。
	ExecuteQuery(ctx context.Context, query string) ([]Record, error)

	// Close 释放连接资源。
	Close(ctx context.Context) error
}
