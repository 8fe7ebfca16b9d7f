// Package guardrail 提供基于规则的内容护栏。
// 在能力边界处对用户输入与模型输出做校验，
// 拦截有害内容、敏感信息与超长文本。
package guardrail

import "regexp"

// 规则分类
const (
	CategoryHarmful   = "harmful"
	CategoryToxic     = "toxic"
	CategoryPII       = "pii"
	CategoryInjection = "injection"
	CategoryLength    = "length"
)

// Rule 一组同类的内容匹配规则。
type Rule struct {
	Category string
	Reason   string
	Patterns []*regexp.Regexp
}

// defaultInputRules 输入方向的内置规则。
func defaultInputRules() []Rule {
	return []Rule{
		{
			Category: CategoryHarmful,
			Reason:   "request involves harmful or dangerous activity",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bhow\s+to\s+(make|build|create)\s+(a\s+)?(bomb|weapon|explosive)\b`),
				regexp.MustCompile(`(?i)\b(kill|murder|harm)\s+(someone|people|myself)\b`),
				regexp.MustCompile(`(?i)\b(synthesize|manufacture)\s+(drugs|methamphetamine|fentanyl)\b`),
			},
		},
		{
			Category: CategoryToxic,
			Reason:   "message contains abusive language",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\byou\s+(are|'re)\s+(stupid|an?\s+idiot|worthless)\b`),
				regexp.MustCompile(`(?i)\b(hate|despise)\s+you\b`),
			},
		},
		{
			Category: CategoryInjection,
			Reason:   "message attempts to override system instructions",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts)`),
				regexp.MustCompile(`(?i)you\s+are\s+now\s+(DAN|jailbroken)`),
				regexp.MustCompile(`(?i)reveal\s+(your\s+)?(system\s+prompt|instructions)`),
			},
		},
	}
}

// defaultOutputRules 输出方向的内置规则，防止敏感信息外泄。
func defaultOutputRules() []Rule {
	return []Rule{
		{
			Category: CategoryPII,
			Reason:   "response leaks personally identifiable information",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),              // SSN
				regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`),             // card number
				regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			},
		},
	}
}
