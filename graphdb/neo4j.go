package graphdb

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/BaSui01/graphchat/config"
)

// Neo4jClient 基于 Bolt 驱动的图数据库客户端。
type Neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewNeo4jClient 创建客户端并验证连通性。
func NewNeo4jClient(ctx context.Context, cfg config.Neo4jConfig, logger *zap.Logger) (*Neo4jClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""), func(c *neo4j.Config) {
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("graphdb: init driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graphdb: verify connectivity: %w", err)
	}

	return &Neo4jClient{
		driver:   driver,
		database: cfg.Database,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "graphdb")),
	}, nil
}

func (c *Neo4jClient) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   mode,
	})
}

// GetSchema 通过 db.labels / db.relationshipTypes /
// db.schema.nodeTypeProperties 内省图模式。
func (c *Neo4jClient) GetSchema(ctx context.Context) (*Schema, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	labels, err := c.collectStrings(ctx, session, "CALL db.labels() YIELD label RETURN label", "label")
	if err != nil {
		return nil, fmt.Errorf("graphdb: list labels: %w", err)
	}
	relTypes, err := c.collectStrings(ctx, session, "CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType", "relationshipType")
	if err != nil {
		return nil, fmt.Errorf("graphdb: list relationship types: %w", err)
	}

	schema := &Schema{
		Labels:            labels,
		RelationshipTypes: relTypes,
		Properties:        make(map[string][]string),
	}

	// 属性内省失败不致命，模式的标签部分已足够生成查询
	result, err := session.Run(ctx,
		"CALL db.schema.nodeTypeProperties() YIELD nodeLabels, propertyName RETURN nodeLabels, propertyName", nil)
	if err != nil {
		c.logger.Warn("property introspection unavailable", zap.Error(err))
		return schema, nil
	}
	for result.Next(ctx) {
		rec := result.Record().AsMap()
		rawLabels, _ := rec["nodeLabels"].([]any)
		prop, _ := rec["propertyName"].(string)
		if prop == "" {
			continue
		}
		for _, rl := range rawLabels {
			if label, ok := rl.(string); ok {
				schema.Properties[label] = append(schema.Properties[label], prop)
			}
		}
	}
	if err := result.Err(); err != nil {
		c.logger.Warn("property introspection aborted", zap.Error(err))
	}
	return schema, nil
}

func (c *Neo4jClient) collectStrings(ctx context.Context, session neo4j.SessionWithContext, query, field string) ([]string, error) {
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	var out []string
	for result.Next(ctx) {
		if v, ok := result.Record().AsMap()[field].(string); ok {
			out = append(out, v)
		}
	}
	return out, result.Err()
}

// ValidateQuery 以 EXPLAIN 前缀提交查询做语法校验，不执行。
// 语法错误转换为校验失败而非 error。
func (c *Neo4jClient) ValidateQuery(ctx context.Context, query string) (*Validation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, "EXPLAIN "+query, nil)
	if err == nil {
		_, err = result.Consume(ctx)
	}
	if err != nil {
		if neo4j.IsNeo4jError(err) {
			return &Validation{Valid: false, Errors: []string{err.Error()}}, nil
		}
		return nil, fmt.Errorf("graphdb: validate query: %w", err)
	}
	return &Validation{Valid: true}, nil
}

// ExecuteQuery 执行查询并返回结果行。
func (c *Neo4jClient) ExecuteQuery(ctx context.Context, query string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	rows, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]Record, error) {
		result, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		var records []Record
		for result.Next(ctx) {
			records = append(records, Record(result.Record().AsMap()))
		}
		return records, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graphdb: execute query: %w", err)
	}
	c.logger.Debug("query executed", zap.Int("rows", len(rows)))
	return rows, nil
}

// Close 关闭驱动。
func (c *Neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}
