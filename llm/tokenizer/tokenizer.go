// Package tokenizer 提供 token 计数能力，供历史裁剪使用。
// TiktokenTokenizer 做精确计数；EstimatorTokenizer 在编码表
// 不可用时提供粗略估算。
package tokenizer

import "github.com/BaSui01/graphchat/llm"

// Tokenizer token 计数接口
type Tokenizer interface {
	// CountTokens 统计单段文本的 token 数。
	CountTokens(text string) (int, error)
	// CountMessages 统计一组消息正文的 token 总数。
	CountMessages(messages []llm.Message) (int, error)
	// Name 返回计数器名称。
	Name() string
}
