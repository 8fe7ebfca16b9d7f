package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/graphchat/llm"
)

// ThinkTool 推理工具。让模型在行动前显式思考，
// 输出包裹在 <think> 标签内便于日志检索。
type ThinkTool struct {
	provider llm.Provider
	model    string
	logger   *zap.Logger
}

// NewThinkTool 创建推理工具。
func NewThinkTool(provider llm.Provider, model string, logger *zap.Logger) *ThinkTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThinkTool{
		provider: provider,
		model:    model,
		logger:   logger.With(zap.String("component", "think_tool")),
	}
}

// Execute 执行一轮思考，返回思考文本。
func (t *ThinkTool) Execute(ctx context.Context, prompt string) (string, error) {
	resp, err := t.provider.Completion(ctx, &llm.ChatRequest{
		Model:       t.model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("think: %w", err)
	}
	thought := strings.TrimSpace(resp.Content)
	t.logger.Debug("thought produced", zap.String("thought", "<think>"+thought+"</think>"))
	return thought, nil
}

// PlanTool 规划工具。生成编号步骤并解析为列表。
type PlanTool struct {
	provider llm.Provider
	model    string
	logger   *zap.Logger
}

// NewPlanTool 创建规划工具。
func NewPlanTool(provider llm.Provider, model string, logger *zap.Logger) *PlanTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanTool{
		provider: provider,
		model:    model,
		logger:   logger.With(zap.String("component", "plan_tool")),
	}
}

// Execute 生成计划，返回解析出的步骤与原始文本。
func (t *PlanTool) Execute(ctx context.Context, prompt string) ([]string, string, error) {
	resp, err := t.provider.Completion(ctx, &llm.ChatRequest{
		Model:       t.model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, "", fmt.Errorf("plan: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	steps := parsePlanSteps(text)
	t.logger.Debug("plan produced", zap.Int("steps", len(steps)))
	return steps, text, nil
}

var planStepRe = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s+(.+)$`)

// parsePlanSteps 解析编号或符号列表为步骤。
// 文本中没有可识别的列表时，整段作为单一步骤返回。
func parsePlanSteps(text string) []string {
	var steps []string
	for _, line := range strings.Split(text, "\n") {
		if m := planStepRe.FindStringSubmatch(line); m != nil {
			step := strings.TrimSpace(m[1])
			if step != "" {
				steps = append(steps, step)
			}
		}
	}
	if len(steps) == 0 && text != "" {
		steps = []string{text}
	}
	return steps
}
