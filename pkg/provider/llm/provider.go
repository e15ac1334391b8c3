// Package llm defines the completion provider abstraction shared by the
// assistant sidecars. The inference engine completes chat turns against a
// local Ollama runtime, while the learning pipeline's external fact-check
// gate talks to a hosted model through the same interface.
//
// Implementations live in subpackages:
//
//   - ollama: local Ollama runtime (the default for all family traffic)
//   - openai: OpenAI or any OpenAI-compatible endpoint
//   - anyllm: universal multi-provider backend via any-llm-go
//   - mock: scriptable test double
package llm

import "context"

// Message roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message. The JSON field names follow the
// OpenAI-style wire format that Ollama's /api/chat also speaks, so the
// struct doubles as the wire type for local runtime calls.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes one completion call.
type CompletionRequest struct {
	// Model overrides the provider's default model when non-empty. The
	// inference engine uses this to switch between the fast and full
	// models on a per-message basis.
	Model string
	// Messages is the full conversation, system prompt included.
	Messages []Message
	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int
	// Temperature controls sampling. Zero means provider default.
	Temperature float64
}

// Usage reports token consumption for a completion, when the backend
// provides it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the result of a completion call.
type CompletionResponse struct {
	// Content is the assistant's reply text.
	Content string
	// Model is the model that produced the reply, as reported by the
	// backend. Empty if the backend does not echo it.
	Model string
	// Usage is token accounting. Zero values if the backend omits it.
	Usage Usage
}

// Provider is a synchronous completion backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Complete runs one completion and returns the reply. It blocks until
	// the backend responds, ctx is cancelled, or the request fails.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// ListModels returns the models the backend can serve. Backends that
	// cannot enumerate return their configured model only.
	ListModels(ctx context.Context) ([]string, error)

	// ModelID returns the default model used when CompletionRequest.Model
	// is empty.
	ModelID() string
}
