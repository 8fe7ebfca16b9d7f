// GraphChat 会话后端的组装入口。
// 加载配置，装配模型提供商、图数据库、向量存储与检查点后端，
// 启动一个从标准输入读取问题的交互循环。
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/graphchat/agent"
	"github.com/BaSui01/graphchat/checkpoint"
	"github.com/BaSui01/graphchat/config"
	"github.com/BaSui01/graphchat/graphdb"
	"github.com/BaSui01/graphchat/guardrail"
	"github.com/BaSui01/graphchat/internal/logging"
	"github.com/BaSui01/graphchat/internal/metrics"
	"github.com/BaSui01/graphchat/internal/telemetry"
	"github.com/BaSui01/graphchat/llm"
	"github.com/BaSui01/graphchat/llm/tokenizer"
	"github.com/BaSui01/graphchat/vectorstore"
	"github.com/BaSui01/graphchat/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("graphchat exited with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer providers.Shutdown(context.Background()) //nolint:errcheck

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	// 模型提供商：OpenAI 兼容 HTTP + 重试限流 + 内容护栏
	base := llm.NewOpenAICompatProvider(llm.OpenAICompatConfig{
		Name:         "openai",
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		DefaultModel: cfg.LLM.Model,
		Timeout:      cfg.LLM.Timeout,
	}, logger)
	retry := llm.DefaultRetryConfig()
	retry.MaxAttempts = cfg.LLM.MaxRetries
	resilient := metrics.InstrumentProvider(
		llm.NewResilientProvider(base, retry, cfg.LLM.RequestsPerSec, logger), collector)
	guard := guardrail.NewEvaluator(cfg.Guardrail, logger)
	provider := guardrail.Wrap(resilient, guard, logger)

	deps := agent.Deps{
		Provider:   provider,
		Classifier: resilient, // 分类走轻量模型，护栏在路由入口已做
		Tokenizer:  tokenizer.NewTiktoken(cfg.LLM.Model),
		Metrics:    collector,
		Logger:     logger,
	}

	// 图数据库，连不上只告警，图查询智能体在使用时报错
	if client, err := graphdb.NewNeo4jClient(ctx, cfg.Neo4j, logger); err != nil {
		logger.Warn("graph database unavailable", zap.Error(err))
	} else {
		deps.GraphClient = client
		defer client.Close(context.Background()) //nolint:errcheck
	}

	// 向量存储（pgvector）
	if store, err := openVectorStore(cfg, logger); err != nil {
		logger.Warn("vector store unavailable", zap.Error(err))
	} else {
		deps.Store = store
	}

	deps.Checkpoints = checkpointProvider(cfg, logger)

	registry := agent.NewRegistry(logger)
	router := agent.NewRouter(registry, deps, agent.ConfigFrom(cfg), guard)

	logger.Info("graphchat ready",
		zap.String("environment", string(cfg.Environment)),
		zap.String("model", cfg.LLM.Model),
		zap.String("checkpoint_backend", cfg.Agent.CheckpointBackend))

	return repl(ctx, router, logger)
}

// checkpointProvider 按配置选择检查点后端。
func checkpointProvider(cfg *config.Config, logger *zap.Logger) checkpoint.Provider {
	switch cfg.Agent.CheckpointBackend {
	case "redis":
		return checkpoint.NewRedisProvider(cfg.Redis, logger)
	case "none":
		return checkpoint.StaticProvider{Store: workflow.NewMemoryCheckpointer()}
	default:
		return checkpoint.NewGormProvider(cfg.Database, logger)
	}
}

func openVectorStore(cfg *config.Config, logger *zap.Logger) (vectorstore.Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	embedder := llm.NewOpenAIEmbedder(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.Vector.EmbedModel, cfg.Vector.Dimensions, logger)
	return vectorstore.NewPgVectorStore(db, embedder, cfg.Vector.Table, logger)
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics endpoint stopped", zap.Error(err))
	}
}

// repl 简单的交互循环：每行一个问题，流式打印回复。
func repl(ctx context.Context, router *agent.Router, logger *zap.Logger) error {
	sessionID := fmt.Sprintf("cli-%d", os.Getpid())
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Println("graphchat - type a question, 'clear' to reset the session, or ctrl-d to exit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "clear" {
			if err := router.ClearSessionHistory(ctx, sessionID); err != nil {
				fmt.Printf("could not clear session: %v\n", err)
			} else {
				fmt.Println("session cleared")
			}
			continue
		}

		history, err := router.SessionHistory(ctx, sessionID)
		if err != nil && !errors.Is(err, agent.ErrCheckpointDisabled) {
			logger.Warn("could not load session history", zap.Error(err))
		}

		result, err := router.Route(ctx, agent.RouteRequest{
			Query:     line,
			SessionID: sessionID,
			History:   history,
		})
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Printf("[%s conf=%.2f auto=%v] %s\n",
			result.AgentType, result.Confidence, result.AutoRouted, result.Response)
	}
}
