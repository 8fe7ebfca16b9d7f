package agent

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/BaSui01/graphchat/llm"
)

// TestMergeMessagesDedupes 相同 ID 的消息只保留第一次出现。
func TestMergeMessagesDedupes(t *testing.T) {
	a := NewMessage(llm.RoleUser, "hello")
	b := NewMessage(llm.RoleAssistant, "hi")

	merged := MergeMessages([]Message{a}, []Message{a, b})
	if len(merged) != 2 {
		t.Fatalf("merged = %d messages, want 2", len(merged))
	}
	if merged[0].ID != a.ID || merged[1].ID != b.ID {
		t.Error("merge changed message order")
	}
}

// TestMergeMessagesIdempotent 同一批更新重复应用与应用一次等价。
func TestMergeMessagesIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 10).Draw(rt, "current")
		m := rapid.IntRange(0, 10).Draw(rt, "update")

		current := make([]Message, 0, n)
		for i := 0; i < n; i++ {
			current = append(current, NewMessage(llm.RoleUser, fmt.Sprintf("c%d", i)))
		}
		update := make([]Message, 0, m)
		for i := 0; i < m; i++ {
			update = append(update, NewMessage(llm.RoleAssistant, fmt.Sprintf("u%d", i)))
		}

		once := MergeMessages(current, update)
		twice := MergeMessages(once, update)

		if len(once) != len(twice) {
			rt.Fatalf("len(once)=%d len(twice)=%d", len(once), len(twice))
		}
		for i := range once {
			if once[i].ID != twice[i].ID {
				rt.Fatalf("message %d differs after reapplying update", i)
			}
		}
	})
}

// TestAppendMessagesProjectsHistory 会话历史投影过滤系统与空消息。
func TestAppendMessagesProjectsHistory(t *testing.T) {
	var s BaseState
	s.AppendMessages(
		NewMessage(llm.RoleSystem, "system prompt"),
		NewMessage(llm.RoleUser, "question"),
		NewMessage(llm.RoleAssistant, ""),
		NewMessage(llm.RoleAssistant, "answer"),
	)
	history := s.ConversationHistory()
	if len(history) != 2 {
		t.Fatalf("history = %d messages, want 2", len(history))
	}
	if history[0].Content != "question" || history[1].Content != "answer" {
		t.Errorf("unexpected history contents: %+v", history)
	}
}
