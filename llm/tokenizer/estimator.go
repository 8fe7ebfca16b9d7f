package tokenizer

import (
	"unicode/utf8"

	"github.com/BaSui01/graphchat/llm"
)

// charsPerToken 英文文本的经验值，约 4 字符一个 token。
const charsPerToken = 4

// EstimatorTokenizer 基于字符数的粗略估算器。
// 不依赖编码表，永不失败，用作 tiktoken 不可用时的回退。
type EstimatorTokenizer struct{}

// NewEstimator 创建估算计数器。
func NewEstimator() *EstimatorTokenizer { return &EstimatorTokenizer{} }

// CountTokens 按字符数估算 token 数。
func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	return utf8.RuneCountInString(text) / charsPerToken, nil
}

// CountMessages 估算消息正文 token 总数。
func (e *EstimatorTokenizer) CountMessages(messages []llm.Message) (int, error) {
	total := 0
	for _, m := range messages {
		n, _ := e.CountTokens(m.Content)
		total += n
	}
	return total, nil
}

// Name 返回计数器名称。
func (e *EstimatorTokenizer) Name() string { return "estimator" }
