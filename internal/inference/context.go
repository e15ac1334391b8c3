package inference

import (
	"strings"

	"github.com/foyerlabs/foyer/pkg/provider/llm"
)

// memoryContextHeader introduces the recalled-memory block appended to
// the system prompt. The runtime sees memories as context, not as turns.
const memoryContextHeader = "Relevant context from memory:"

// WithMemoryContext appends the recalled memories to the system prompt:
//
//	<system prompt>
//
//	Relevant context from memory:
//	- <memory 1>
//	- <memory 2>
//
// With no memories the prompt is returned unchanged.
func WithMemoryContext(systemPrompt string, memories []string) string {
	if len(memories) == 0 {
		return systemPrompt
	}

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n")
	sb.WriteString(memoryContextHeader)
	for _, m := range memories {
		sb.WriteString("\n- ")
		sb.WriteString(m)
	}
	return sb.String()
}

// AssembleMessages builds the runtime message list as
// [system, ...history, user]. History is forwarded oldest-first and
// filtered to user and assistant turns; anything else (stray system
// prompts, tool output) is dropped.
func AssembleMessages(systemPrompt string, history []llm.Message, userMessage string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})

	for _, turn := range history {
		if turn.Role == llm.RoleUser || turn.Role == llm.RoleAssistant {
			messages = append(messages, turn)
		}
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
}
