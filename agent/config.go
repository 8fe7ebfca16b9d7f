package agent

import (
	"go.uber.org/zap"

	"github.com/BaSui01/graphchat/checkpoint"
	"github.com/BaSui01/graphchat/config"
	"github.com/BaSui01/graphchat/graphdb"
	"github.com/BaSui01/graphchat/internal/metrics"
	"github.com/BaSui01/graphchat/llm"
	"github.com/BaSui01/graphchat/llm/tokenizer"
	"github.com/BaSui01/graphchat/vectorstore"
)

// Config 智能体运行参数。
type Config struct {
	Model               string
	ClassifierModel     string
	Temperature         float64
	MaxTokens           int
	MaxHistory          int     // 历史消息对数上限
	MaxContextTokens    int     // 历史裁剪 token 预算
	MaxRetries          int     // 图查询生成重试上限
	RecursionLimit      int     // 工作流步数上限
	RetrievalTopK       int     // 向量检索召回数
	ScoreThreshold      float64 // 重排序分数阈值
	ConfidenceThreshold float64 // 路由置信度阈值
	Environment         config.Environment
}

// DefaultConfig 返回默认运行参数。
func DefaultConfig() Config {
	return Config{
		Model:               "gpt-4o",
		ClassifierModel:     "gpt-4o-mini",
		Temperature:         0.7,
		MaxTokens:           2048,
		MaxHistory:          10,
		MaxContextTokens:    4000,
		MaxRetries:          3,
		RecursionLimit:      100,
		RetrievalTopK:       5,
		ScoreThreshold:      0.7,
		ConfidenceThreshold: 0.6,
		Environment:         config.EnvDevelopment,
	}
}

// ConfigFrom 从应用配置映射智能体参数。
func ConfigFrom(app *config.Config) Config {
	return Config{
		Model:               app.LLM.Model,
		ClassifierModel:     app.LLM.ClassifierModel,
		Temperature:         app.LLM.Temperature,
		MaxTokens:           app.LLM.MaxTokens,
		MaxHistory:          app.Agent.MaxHistory,
		MaxContextTokens:    app.Agent.MaxContextTokens,
		MaxRetries:          app.Agent.MaxRetries,
		RecursionLimit:      app.Agent.RecursionLimit,
		RetrievalTopK:       app.Agent.RetrievalTopK,
		ScoreThreshold:      app.Agent.ScoreThreshold,
		ConfidenceThreshold: app.Agent.ConfidenceThreshold,
		Environment:         app.Environment,
	}
}

// Deps 智能体依赖集合。
// Provider 为主对话模型；Classifier 为路由用的轻量模型，
// 为空时回退到 Provider。可选能力为 nil 时，对应智能体
// 在创建阶段报错。
type Deps struct {
	Provider    llm.Provider
	Classifier  llm.Provider
	GraphClient graphdb.Client
	Store       vectorstore.Store
	Checkpoints checkpoint.Provider
	Tokenizer   tokenizer.Tokenizer
	Metrics     *metrics.Collector
	Logger      *zap.Logger
}

// classifier 返回意图分类用的提供商。
func (d Deps) classifier() llm.Provider {
	if d.Classifier != nil {
		return d.Classifier
	}
	return d.Provider
}

// logger 返回非空日志器。
func (d Deps) logger() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}
