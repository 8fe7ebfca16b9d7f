package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/graphchat/llm"
)

// modelEncodings 模型到编码表的映射。
// 未列出的模型回退到 cl100k_base。
var modelEncodings = map[string]string{
	"gpt-4o":                 "o200k_base",
	"gpt-4o-mini":            "o200k_base",
	"gpt-4":                  "cl100k_base",
	"gpt-4-turbo":            "cl100k_base",
	"gpt-3.5-turbo":          "cl100k_base",
	"text-embedding-3-small": "cl100k_base",
	"text-embedding-3-large": "cl100k_base",
}

// TiktokenTokenizer 基于 tiktoken 的精确计数器。
// 编码表延迟初始化，首次调用时加载。
type TiktokenTokenizer struct {
	model    string
	once     sync.Once
	encoding *tiktoken.Tiktoken
	initErr  error
}

// NewTiktoken 创建指定模型的计数器。
func NewTiktoken(model string) *TiktokenTokenizer {
	return &TiktokenTokenizer{model: model}
}

func (t *TiktokenTokenizer) init() {
	t.once.Do(func() {
		name, ok := modelEncodings[t.model]
		if !ok {
			name = "cl100k_base"
		}
		enc, err := tiktoken.GetEncoding(name)
		if err != nil {
			t.initErr = fmt.Errorf("tokenizer: load encoding %s: %w", name, err)
			return
		}
		t.encoding = enc
	})
}

// CountTokens 统计文本 token 数。
func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	t.init()
	if t.initErr != nil {
		return 0, t.initErr
	}
	return len(t.encoding.Encode(text, nil, nil)), nil
}

// CountMessages 统计消息正文 token 总数。
func (t *TiktokenTokenizer) CountMessages(messages []llm.Message) (int, error) {
	total := 0
	for _, m := range messages {
		n, err := t.CountTokens(m.Content)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Name 返回计数器名称。
func (t *TiktokenTokenizer) Name() string { return "tiktoken/" + t.model }
