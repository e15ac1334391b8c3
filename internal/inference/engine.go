// Package inference runs the chat pipeline of the LLM sidecar: classify
// the message, recall memories, assemble the prompt and call the local
// model runtime.
//
// The [Engine] composes a [classifier.Classifier], a [memory.Store], the
// family registry and an [llm.Provider] pointed at the runtime. Runtime
// calls go through a circuit breaker; runtime failures are wrapped in
// [RuntimeError] so the HTTP layer can answer 503 with the runtime's own
// status instead of a generic 500.
package inference

import (
	"context"
	"fmt"

	"github.com/foyerlabs/foyer/internal/classifier"
	"github.com/foyerlabs/foyer/internal/config"
	"github.com/foyerlabs/foyer/internal/family"
	"github.com/foyerlabs/foyer/internal/resilience"
	"github.com/foyerlabs/foyer/pkg/memory"
	"github.com/foyerlabs/foyer/pkg/provider/llm"
)

// DefaultSystemPrompt is the system prompt of last resort, used when
// neither the user profile nor the configuration provides one.
const DefaultSystemPrompt = "You are a helpful assistant."

const defaultChatTopK = 5

// RuntimeError wraps a failed chat-runtime call. The HTTP layer maps it
// to 503 Service Unavailable.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return "chat runtime: " + e.Err.Error()
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// ChatRequest is one turn of conversation to complete.
type ChatRequest struct {
	// UserID attributes the turn to a family profile.
	UserID string

	// Message is the user's current message.
	Message string

	// History is the prior conversation, oldest first. Only user and
	// assistant turns are forwarded to the runtime.
	History []llm.Message
}

// ChatResult is the completed turn.
type ChatResult struct {
	Response     string   `json:"response"`
	ModelUsed    string   `json:"model_used"`
	MemoriesUsed []string `json:"memories_used"`
	UserID       string   `json:"user_id"`
}

// Engine is the chat pipeline. It is safe for concurrent use.
type Engine struct {
	classifier classifier.Classifier
	memory     memory.Store
	runtime    llm.Provider
	registry   *family.Registry
	models     config.ModelsConfig

	topK          int
	defaultPrompt string
	breaker       *resilience.CircuitBreaker
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithChatTopK sets how many memories each chat turn recalls. Default: 5.
func WithChatTopK(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.topK = n
		}
	}
}

// WithDefaultSystemPrompt overrides the configured default system prompt
// used for profiles that do not carry their own.
func WithDefaultSystemPrompt(prompt string) Option {
	return func(e *Engine) {
		if prompt != "" {
			e.defaultPrompt = prompt
		}
	}
}

// WithCircuitBreaker replaces the breaker guarding runtime calls. Useful
// for sharing one breaker across components or tuning its thresholds.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(e *Engine) {
		if cb != nil {
			e.breaker = cb
		}
	}
}

// New constructs an Engine. classifier, store, runtime and registry are
// required; models names the fast/full pair the classifier routes
// between.
func New(
	clf classifier.Classifier,
	store memory.Store,
	runtime llm.Provider,
	registry *family.Registry,
	models config.ModelsConfig,
	opts ...Option,
) *Engine {
	e := &Engine{
		classifier:    clf,
		memory:        store,
		runtime:       runtime,
		registry:      registry,
		models:        models,
		topK:          defaultChatTopK,
		defaultPrompt: DefaultSystemPrompt,
		breaker:       resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Chat runs the full pipeline: classify, recall memories, assemble the
// prompt and complete against the runtime.
//
// Unknown users surface [memory.ErrUnknownUser]; runtime failures
// (including an open circuit breaker) surface as [RuntimeError].
func (e *Engine) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	decision := e.classifier.Classify(ctx, req.UserID, req.Message)
	model := e.models.ModelFor(decision.ModelKey)

	recalled, err := e.memory.Search(ctx, req.UserID, req.Message, e.topK)
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}
	memories := make([]string, 0, len(recalled))
	for _, r := range recalled {
		memories = append(memories, r.Content)
	}

	system := WithMemoryContext(e.systemPromptFor(req.UserID), memories)
	messages := AssembleMessages(system, req.History, req.Message)

	resp, err := resilience.Do(e.breaker, func() (*llm.CompletionResponse, error) {
		return e.runtime.Complete(ctx, llm.CompletionRequest{
			Model:    model,
			Messages: messages,
		})
	})
	if err != nil {
		return nil, &RuntimeError{Err: err}
	}

	return &ChatResult{
		Response:     resp.Content,
		ModelUsed:    model,
		MemoriesUsed: memories,
		UserID:       req.UserID,
	}, nil
}

// Explain reports which model a message would route to and why, without
// touching the runtime or memory.
func (e *Engine) Explain(ctx context.Context, userID, message string) (modelSelected, reason string) {
	d := e.classifier.Classify(ctx, userID, message)
	return e.models.ModelFor(d.ModelKey), d.Reason
}

// RuntimeHealth probes the model runtime. Status is "reachable",
// "unreachable" or "error"; models lists what the runtime can serve, or
// the configured fast/full pair when the runtime cannot be asked, so
// health output always names usable models.
func (e *Engine) RuntimeHealth(ctx context.Context) (status string, models []string) {
	configured := []string{e.models.Fast, e.models.Full}
	if e.runtime == nil {
		return "error", configured
	}
	available, err := e.runtime.ListModels(ctx)
	if err != nil {
		return "unreachable", configured
	}
	return "reachable", available
}

// systemPromptFor resolves the system prompt: profile override first,
// then the configured default, then [DefaultSystemPrompt].
func (e *Engine) systemPromptFor(userID string) string {
	if p, ok := e.registry.Get(userID); ok && p.SystemPrompt != "" {
		return p.SystemPrompt
	}
	if e.defaultPrompt != "" {
		return e.defaultPrompt
	}
	return DefaultSystemPrompt
}
