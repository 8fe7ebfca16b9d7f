package config

import "time"

// Default 返回带有完整默认值的配置。
// 池大小等与环境相关的默认值按开发环境给出，
// 加载器在 environment=production 时调用 applyProductionDefaults 调整。
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		LLM: LLMConfig{
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4o",
			ClassifierModel: "gpt-4o-mini",
			Temperature:     0.7,
			MaxTokens:       2048,
			Timeout:         60 * time.Second,
			MaxRetries:      3,
			RequestsPerSec:  0,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "graphchat",
			Database:        "graphchat",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "graphchat",
		},
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
			Timeout:  30 * time.Second,
		},
		Vector: VectorConfig{
			Table:      "document_embeddings",
			Dimensions: 1536,
			EmbedModel: "text-embedding-3-small",
		},
		Agent: AgentConfig{
			MaxHistory:          10,
			MaxContextTokens:    4000,
			MaxRetries:          3,
			ConfidenceThreshold: 0.6,
			RecursionLimit:      100,
			RetrievalTopK:       5,
			ScoreThreshold:      0.7,
			CheckpointBackend:   "postgres",
		},
		Guardrail: GuardrailConfig{
			Enabled:   true,
			MaxLength: 10000,
			MinLength: 1,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "graphchat",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "graphchat",
			Addr:      ":9090",
		},
	}
}

// applyProductionDefaults 在生产环境放大连接池。
// 仅覆盖仍处于开发默认值的字段，用户显式配置的值不动。
func applyProductionDefaults(c *Config) {
	if c.Database.MaxOpenConns == 5 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 2 {
		c.Database.MaxIdleConns = 10
	}
	if c.Log.Format == "console" {
		c.Log.Format = "json"
	}
}
