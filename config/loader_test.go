package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestLoadDefaults 无文件无环境变量时得到内置默认值。
func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.Equal(t, EnvDevelopment, cfg.Environment)
	require.Equal(t, "gpt-4o", cfg.LLM.Model)
	require.Equal(t, 10, cfg.Agent.MaxHistory)
	require.Equal(t, 0.6, cfg.Agent.ConfidenceThreshold)
	require.Equal(t, "console", cfg.Log.Format)
	require.Equal(t, 5, cfg.Database.MaxOpenConns)
}

// TestLoadYAMLFile YAML 文件覆盖默认值，未出现的字段保持默认。
func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
log:
  level: debug
llm:
  model: gpt-4o-mini
  timeout: 30s
agent:
  max_retries: 5
  checkpoint_backend: redis
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	require.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	require.Equal(t, 5, cfg.Agent.MaxRetries)
	require.Equal(t, "redis", cfg.Agent.CheckpointBackend)
	// 未配置的字段保持默认
	require.Equal(t, 10, cfg.Agent.MaxHistory)
}

// TestLoadEnvOverridesFile 环境变量优先于文件。
func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: from-file\n"), 0o600))

	t.Setenv("GRAPHCHAT_LLM_MODEL", "from-env")
	t.Setenv("GRAPHCHAT_DB_PORT", "15432")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.LLM.Model)
	require.Equal(t, 15432, cfg.Database.Port)
}

// TestLoadProductionDefaults 生产环境放大连接池并切换 JSON 日志，
// 用户显式给出的值不被覆盖。
func TestLoadProductionDefaults(t *testing.T) {
	t.Setenv("GRAPHCHAT_ENV", string(EnvProduction))

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.Equal(t, 25, cfg.Database.MaxOpenConns)
	require.Equal(t, 10, cfg.Database.MaxIdleConns)
	require.Equal(t, "json", cfg.Log.Format)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  max_open_conns: 50\n"), 0o600))
	cfg, err = NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Database.MaxOpenConns)
}

// TestLoadMissingFile 指定的文件不存在时报错。
func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.Error(t, err)
}

// TestLoadRejectsInvalidValues 校验拒绝非法取值。
func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  confidence_threshold: 1.5\n"), 0o600))
	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)

	t.Setenv("GRAPHCHAT_ENV", "staging")
	_, err = NewLoader().Load()
	require.Error(t, err)
}

// TestDSN 连接串包含全部字段。
func TestDSN(t *testing.T) {
	dsn := DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable",
	}.DSN()
	require.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", dsn)
}

// TestCapabilityTimeout 开发与生产环境使用不同的能力超时。
func TestCapabilityTimeout(t *testing.T) {
	dev := &Config{Environment: EnvDevelopment}
	require.Equal(t, 30*time.Second, dev.CapabilityTimeout())
	prod := &Config{Environment: EnvProduction}
	require.Equal(t, 120*time.Second, prod.CapabilityTimeout())
}
