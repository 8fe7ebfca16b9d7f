// Package config 提供 GraphChat 的配置加载与默认值。
// 配置来源优先级：环境变量 > YAML 配置文件 > 内置默认值。
package config

import (
	"fmt"
	"time"
)

// Environment 运行环境
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Config GraphChat 顶层配置
type Config struct {
	Environment Environment     `yaml:"environment" env:"GRAPHCHAT_ENV"`
	Log         LogConfig       `yaml:"log"`
	LLM         LLMConfig       `yaml:"llm"`
	Database    DatabaseConfig  `yaml:"database"`
	Redis       RedisConfig     `yaml:"redis"`
	Neo4j       Neo4jConfig     `yaml:"neo4j"`
	Vector      VectorConfig    `yaml:"vector"`
	Agent       AgentConfig     `yaml:"agent"`
	Guardrail   GuardrailConfig `yaml:"guardrail"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Metrics     MetricsConfig   `yaml:"metrics"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" env:"GRAPHCHAT_LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"GRAPHCHAT_LOG_FORMAT"` // json, console
}

// LLMConfig 大模型提供商配置
type LLMConfig struct {
	BaseURL         string        `yaml:"base_url" env:"GRAPHCHAT_LLM_BASE_URL"`
	APIKey          string        `yaml:"api_key" env:"GRAPHCHAT_LLM_API_KEY"`
	Model           string        `yaml:"model" env:"GRAPHCHAT_LLM_MODEL"`
	ClassifierModel string        `yaml:"classifier_model" env:"GRAPHCHAT_LLM_CLASSIFIER_MODEL"`
	Temperature     float64       `yaml:"temperature"`
	MaxTokens       int           `yaml:"max_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RequestsPerSec  float64       `yaml:"requests_per_sec"` // 客户端限流，0 表示不限
}

// DatabaseConfig PostgreSQL 连接配置（检查点存储与向量存储共用）
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"GRAPHCHAT_DB_HOST"`
	Port     int    `yaml:"port" env:"GRAPHCHAT_DB_PORT"`
	User     string `yaml:"user" env:"GRAPHCHAT_DB_USER"`
	Password string `yaml:"password" env:"GRAPHCHAT_DB_PASSWORD"`
	Database string `yaml:"database" env:"GRAPHCHAT_DB_NAME"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN 返回 PostgreSQL 连接串。
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis 检查点存储配置
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"GRAPHCHAT_REDIS_ADDR"`
	Password string `yaml:"password" env:"GRAPHCHAT_REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Neo4jConfig 图数据库配置
type Neo4jConfig struct {
	URI      string        `yaml:"uri" env:"GRAPHCHAT_NEO4J_URI"`
	Username string        `yaml:"username" env:"GRAPHCHAT_NEO4J_USERNAME"`
	Password string        `yaml:"password" env:"GRAPHCHAT_NEO4J_PASSWORD"`
	Database string        `yaml:"database" env:"GRAPHCHAT_NEO4J_DATABASE"`
	Timeout  time.Duration `yaml:"timeout"`
}

// VectorConfig pgvector 向量存储配置
type VectorConfig struct {
	Table      string `yaml:"table"`
	Dimensions int    `yaml:"dimensions"`
	EmbedModel string `yaml:"embed_model" env:"GRAPHCHAT_EMBED_MODEL"`
}

// AgentConfig 智能体运行参数
type AgentConfig struct {
	MaxHistory          int     `yaml:"max_history"`           // 保留的历史消息对数
	MaxContextTokens    int     `yaml:"max_context_tokens"`    // 历史裁剪的 token 预算
	MaxRetries          int     `yaml:"max_retries"`           // 图查询生成重试上限
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`  // 意图路由置信度阈值
	RecursionLimit      int     `yaml:"recursion_limit"`       // 工作流单次执行的节点步数上限
	RetrievalTopK       int     `yaml:"retrieval_top_k"`       // 向量检索召回数
	ScoreThreshold      float64 `yaml:"score_threshold"`       // 重排序分数阈值
	CheckpointBackend   string  `yaml:"checkpoint_backend"`    // postgres, redis, none
}

// GuardrailConfig 内容护栏配置
type GuardrailConfig struct {
	Enabled   bool `yaml:"enabled"`
	MaxLength int  `yaml:"max_length"`
	MinLength int  `yaml:"min_length"`
}

// TelemetryConfig OpenTelemetry 配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"GRAPHCHAT_OTLP_ENDPOINT"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Addr      string `yaml:"addr"` // /metrics 监听地址
}

// IsProduction 返回是否运行在生产环境。
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// CapabilityTimeout 返回外部能力调用（图数据库、向量检索）的超时。
// 开发环境使用较短超时以便快速失败，生产环境容忍更长的查询。
func (c *Config) CapabilityTimeout() time.Duration {
	if c.IsProduction() {
		return 120 * time.Second
	}
	return 30 * time.Second
}

// Validate 校验配置的基本约束。
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("config: unknown environment %q", c.Environment)
	}
	if c.Agent.MaxHistory <= 0 {
		return fmt.Errorf("config: agent.max_history must be positive, got %d", c.Agent.MaxHistory)
	}
	if c.Agent.MaxContextTokens <= 0 {
		return fmt.Errorf("config: agent.max_context_tokens must be positive, got %d", c.Agent.MaxContextTokens)
	}
	if c.Agent.ConfidenceThreshold < 0 || c.Agent.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: agent.confidence_threshold must be in [0,1], got %v", c.Agent.ConfidenceThreshold)
	}
	if c.Agent.ScoreThreshold < 0 || c.Agent.ScoreThreshold > 1 {
		return fmt.Errorf("config: agent.score_threshold must be in [0,1], got %v", c.Agent.ScoreThreshold)
	}
	return nil
}
