package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/faqchat/internal/ai"
	"github.com/xxxsen/faqchat/internal/model"
)

const noFAQContext = "No relevant FAQ entries were found."

// Assembler composes the request for the generative backend: instructions
// with the matched FAQ entries, the recent history within budget, then the
// new user message.
type Assembler struct {
	instructions    string
	historyMessages int
	historyChars    int
	maxTokens       int
	temperature     float64
}

func NewAssembler(instructions string, historyMessages, historyChars, maxTokens int, temperature float64) *Assembler {
	return &Assembler{
		instructions:    strings.TrimSpace(instructions),
		historyMessages: historyMessages,
		historyChars:    historyChars,
		maxTokens:       maxTokens,
		temperature:     temperature,
	}
}

// Assemble expects matches in descending score order and history in
// chronological order.
func (a *Assembler) Assemble(matches []model.Match, history []model.ChatMessage, userText string) *ai.GenerateRequest {
	var sb strings.Builder
	sb.WriteString(a.instructions)
	sb.WriteString("\n\nFAQ Information:\n")
	sb.WriteString(formatFAQ(matches))

	kept := a.trimHistory(history)
	msgs := make([]ai.Message, 0, len(kept)+1)
	for _, m := range kept {
		msgs = append(msgs, ai.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, ai.Message{Role: model.RoleUser, Content: userText})
	return &ai.GenerateRequest{
		System:      sb.String(),
		Messages:    msgs,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	}
}

func formatFAQ(matches []model.Match) string {
	if len(matches) == 0 {
		return noFAQContext
	}
	pairs := make([]string, 0, len(matches))
	for _, m := range matches {
		pairs = append(pairs, "Q: "+m.Entry.Question+"\nA: "+m.Entry.Answer)
	}
	return strings.Join(pairs, "\n\n")
}

// trimHistory keeps the newest messages that fit both budgets and returns
// them oldest first.
func (a *Assembler) trimHistory(history []model.ChatMessage) []model.ChatMessage {
	if a.historyMessages <= 0 || len(history) == 0 {
		return nil
	}
	start := len(history)
	used := 0
	for i := len(history) - 1; i >= 0 && len(history)-i <= a.historyMessages; i-- {
		size := utf8.RuneCountInString(history[i].Content)
		if a.historyChars > 0 && used+size > a.historyChars {
			break
		}
		used += size
		start = i
	}
	return history[start:]
}
