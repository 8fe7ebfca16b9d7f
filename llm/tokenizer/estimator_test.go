package tokenizer

import (
	"strings"
	"testing"

	"github.com/BaSui01/graphchat/llm"
)

// TestEstimatorCountTokens 按 4 字符一个 token 估算。
func TestEstimatorCountTokens(t *testing.T) {
	e := NewEstimator()
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"abcd", 1},
		{strings.Repeat("x", 100), 25},
		{"你好世界", 1}, // 按 rune 计数
	}
	for _, tc := range cases {
		got, err := e.CountTokens(tc.text)
		if err != nil {
			t.Fatalf("count(%q): %v", tc.text, err)
		}
		if got != tc.want {
			t.Errorf("count(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

// TestEstimatorCountMessages 消息总数为各正文估算之和。
func TestEstimatorCountMessages(t *testing.T) {
	e := NewEstimator()
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: strings.Repeat("a", 40)},
		{Role: llm.RoleAssistant, Content: strings.Repeat("b", 80)},
	}
	got, err := e.CountMessages(msgs)
	if err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if got != 30 {
		t.Errorf("total = %d, want 30", got)
	}
}
