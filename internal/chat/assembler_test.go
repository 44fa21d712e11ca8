package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/faqchat/internal/model"
)

func TestAssemble_OrdersFAQAndHistory(t *testing.T) {
	a := NewAssembler("be helpful", 10, 1000, 350, 0.7)
	matches := []model.Match{
		{Entry: model.KnowledgeEntry{ID: 1, Question: "wifi not connecting", Answer: "reset router"}, Score: 0.9},
		{Entry: model.KnowledgeEntry{ID: 0, Question: "printer not printing", Answer: "check cable"}, Score: 0.4},
	}
	history := []model.ChatMessage{
		{Role: model.RoleUser, Content: "hello"},
		{Role: model.RoleAssistant, Content: "hi there"},
	}
	req := a.Assemble(matches, history, "my wifi is down")

	require.True(t, strings.HasPrefix(req.System, "be helpful\n\nFAQ Information:\n"))
	wifi := strings.Index(req.System, "Q: wifi not connecting\nA: reset router")
	printer := strings.Index(req.System, "Q: printer not printing\nA: check cable")
	require.Greater(t, wifi, 0)
	require.Greater(t, printer, wifi)

	require.Len(t, req.Messages, 3)
	require.Equal(t, "hello", req.Messages[0].Content)
	require.Equal(t, model.RoleAssistant, req.Messages[1].Role)
	require.Equal(t, "my wifi is down", req.Messages[2].Content)
	require.Equal(t, 350, req.MaxTokens)
}

func TestAssemble_NoMatches(t *testing.T) {
	req := NewAssembler("x", 0, 0, 0, 0).Assemble(nil, []model.ChatMessage{{Role: model.RoleUser, Content: "old"}}, "q")
	require.Contains(t, req.System, noFAQContext)
	require.Len(t, req.Messages, 1)
}

func TestTrimHistory_Budgets(t *testing.T) {
	history := []model.ChatMessage{
		{Content: "aaaaaaaaaa"},
		{Content: "bbbbb"},
		{Content: "ccccc"},
		{Content: "ddddd"},
	}
	byCount := NewAssembler("", 2, 0, 0, 0).trimHistory(history)
	require.Equal(t, []model.ChatMessage{{Content: "ccccc"}, {Content: "ddddd"}}, byCount)

	byChars := NewAssembler("", 10, 12, 0, 0).trimHistory(history)
	require.Equal(t, []model.ChatMessage{{Content: "ccccc"}, {Content: "ddddd"}}, byChars)

	tooLarge := NewAssembler("", 10, 3, 0, 0).trimHistory(history)
	require.Empty(t, tooLarge)
}
