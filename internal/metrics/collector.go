// Package metrics 提供 Prometheus 指标采集器。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector 汇聚智能体、模型调用、检查点与检索指标。
// nil Collector 的所有记录方法均为空操作，便于按配置关闭指标。
type Collector struct {
	agentExecutions *prometheus.CounterVec
	agentDuration   *prometheus.HistogramVec

	llmRequests *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec

	routerDecisions *prometheus.CounterVec

	checkpointOps *prometheus.CounterVec

	retrievalDocs *prometheus.HistogramVec

	queryAttempts *prometheus.HistogramVec
}

// NewCollector 创建并注册指标。
// reg 为 nil 时使用默认注册表；测试应传入独立的 Registry。
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = "graphchat"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		agentExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_executions_total",
			Help:      "Agent executions by type and status.",
		}, []string{"agent_type", "status"}),
		agentDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_execution_duration_seconds",
			Help:      "Agent execution latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"agent_type"}),
		llmRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM provider requests by provider and status.",
		}, []string{"provider", "status"}),
		llmTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by direction (prompt/completion).",
		}, []string{"provider", "direction"}),
		routerDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_decisions_total",
			Help:      "Routing decisions by resolved agent type and mode.",
		}, []string{"agent_type", "mode"}),
		checkpointOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_operations_total",
			Help:      "Checkpoint store operations by kind and status.",
		}, []string{"operation", "status"}),
		retrievalDocs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_documents",
			Help:      "Documents per retrieval by stage (retrieved/reranked).",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}, []string{"stage"}),
		queryAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_query_attempts",
			Help:      "Cypher generation attempts per execution.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}, []string{"outcome"}),
	}
}

// RecordAgentExecution 记录一次智能体执行。
func (c *Collector) RecordAgentExecution(agentType string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.agentExecutions.WithLabelValues(agentType, status).Inc()
	c.agentDuration.WithLabelValues(agentType).Observe(duration.Seconds())
}

// RecordLLMRequest 记录一次模型调用及其 token 用量。
func (c *Collector) RecordLLMRequest(provider string, promptTokens, completionTokens int, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.llmRequests.WithLabelValues(provider, status).Inc()
	if promptTokens > 0 {
		c.llmTokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.llmTokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

// RecordRouterDecision 记录一次路由决策。mode 为 auto/forced/fallback。
func (c *Collector) RecordRouterDecision(agentType, mode string) {
	if c == nil {
		return
	}
	c.routerDecisions.WithLabelValues(agentType, mode).Inc()
}

// RecordCheckpointOp 记录一次检查点操作。
func (c *Collector) RecordCheckpointOp(operation string, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.checkpointOps.WithLabelValues(operation, status).Inc()
}

// RecordRetrieval 记录一次检索的召回与重排数量。
func (c *Collector) RecordRetrieval(retrieved, reranked int) {
	if c == nil {
		return
	}
	c.retrievalDocs.WithLabelValues("retrieved").Observe(float64(retrieved))
	c.retrievalDocs.WithLabelValues("reranked").Observe(float64(reranked))
}

// RecordQueryAttempts 记录一次图查询执行消耗的生成次数。
func (c *Collector) RecordQueryAttempts(attempts int, succeeded bool) {
	if c == nil {
		return
	}
	outcome := "success"
	if !succeeded {
		outcome = "failure"
	}
	c.queryAttempts.WithLabelValues(outcome).Observe(float64(attempts))
}
