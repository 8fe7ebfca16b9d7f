package guardrail

import (
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/graphchat/config"
)

// Result 单次校验结果。
type Result struct {
	Allowed    bool     `json:"allowed"`
	Category   string   `json:"category,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

// allow 返回放行结果。
func allow() Result { return Result{Allowed: true} }

// BlockedError 内容被护栏拦截。
type BlockedError struct {
	Direction string // input, output
	Result    Result
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("guardrail blocked %s: %s (%s)", e.Direction, e.Result.Reason, e.Result.Category)
}

// Evaluator 规则驱动的内容护栏。
// Disabled 状态下所有内容直接放行。
type Evaluator struct {
	enabled     bool
	maxLength   int
	minLength   int
	inputRules  []Rule
	outputRules []Rule
	logger      *zap.Logger
}

// NewEvaluator 根据配置创建护栏。
func NewEvaluator(cfg config.GuardrailConfig, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		enabled:     cfg.Enabled,
		maxLength:   cfg.MaxLength,
		minLength:   cfg.MinLength,
		inputRules:  defaultInputRules(),
		outputRules: defaultOutputRules(),
		logger:      logger.With(zap.String("component", "guardrail")),
	}
}

// Enabled 返回护栏是否启用。
func (e *Evaluator) Enabled() bool { return e.enabled }

// ValidateInput 校验用户输入。
func (e *Evaluator) ValidateInput(text string) Result {
	if !e.enabled {
		return allow()
	}
	if r := e.checkLength(text); !r.Allowed {
		return r
	}
	return e.applyRules(e.inputRules, text, "input")
}

// ValidateOutput 校验模型输出。
func (e *Evaluator) ValidateOutput(text string) Result {
	if !e.enabled {
		return allow()
	}
	return e.applyRules(e.outputRules, text, "output")
}

func (e *Evaluator) checkLength(text string) Result {
	n := utf8.RuneCountInString(text)
	if e.maxLength > 0 && n > e.maxLength {
		return Result{
			Allowed:  false,
			Category: CategoryLength,
			Reason:   fmt.Sprintf("message length %d exceeds limit %d", n, e.maxLength),
		}
	}
	if n < e.minLength {
		return Result{
			Allowed:  false,
			Category: CategoryLength,
			Reason:   "message is empty",
		}
	}
	return allow()
}

func (e *Evaluator) applyRules(rules []Rule, text, direction string) Result {
	for _, rule := range rules {
		var violations []string
		for _, p := range rule.Patterns {
			if m := p.FindString(text); m != "" {
				violations = append(violations, m)
			}
		}
		if len(violations) > 0 {
			e.logger.Warn("content blocked",
				zap.String("direction", direction),
				zap.String("category", rule.Category),
				zap.Int("violations", len(violations)))
			return Result{
				Allowed:    false,
				Category:   rule.Category,
				Reason:     rule.Reason,
				Violations: violations,
			}
		}
	}
	return allow()
}
