package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foyerlabs/foyer/pkg/provider/llm"
)

const (
	verdictTemperature = 0.1
	verdictMaxTokens   = 128
)

// verdictSystemPrompt instructs the routing model. The response contract
// mirrors [Decision] so the verdict can be used directly.
const verdictSystemPrompt = `You are a query router for a family voice assistant that runs two local models.

Decide which model should answer the user's message:
- "fast": greetings, small talk, acknowledgements, short factual questions.
- "full": explanations, comparisons, analysis, multi-step reasoning, long or open-ended questions.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"model_key": "fast", "reason": "<one short sentence>"}

model_key must be exactly "fast" or "full".`

// llmVerdict is the JSON structure the routing model must return.
type llmVerdict struct {
	ModelKey string `json:"model_key"`
	Reason   string `json:"reason"`
}

// LLM is the model-backed [Classifier]. It asks the routing model (the
// fast model, so routing stays cheap) for a verdict on each message and
// falls back to the rule engine when the call fails, the response is
// unparseable, or the verdict names an unknown model key.
//
// Profile-forced preferences and the minor override are checked before
// the model is consulted; a verdict can never override them.
type LLM struct {
	provider llm.Provider
	model    string
	fallback *Rules
}

var _ Classifier = (*LLM)(nil)

// NewLLM returns a model-backed classifier. model selects the routing
// model; when empty, the provider's default is used. fallback handles the
// policy rules and every degradation path, and must be non-nil.
func NewLLM(provider llm.Provider, model string, fallback *Rules) *LLM {
	return &LLM{
		provider: provider,
		model:    model,
		fallback: fallback,
	}
}

// Classify asks the routing model for a verdict. Degradation is silent
// from the caller's perspective: any failure logs a warning and yields
// the rule engine's decision instead.
func (l *LLM) Classify(ctx context.Context, userID, message string) Decision {
	if d, ok := l.fallback.policyOverride(userID); ok {
		return d
	}

	resp, err := l.provider.Complete(ctx, llm.CompletionRequest{
		Model:       l.model,
		MaxTokens:   verdictMaxTokens,
		Temperature: verdictTemperature,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: verdictSystemPrompt},
			{Role: llm.RoleUser, Content: message},
		},
	})
	if err != nil {
		slog.Warn("classifier: routing model unavailable, using rules", "user_id", userID, "err", err)
		return l.fallback.Classify(ctx, userID, message)
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		slog.Warn("classifier: unusable routing verdict, using rules", "user_id", userID, "err", err)
		return l.fallback.Classify(ctx, userID, message)
	}

	return verdict
}

// parseVerdict extracts a [Decision] from the model output. It tolerates
// markdown code fences and prose around the JSON object.
func parseVerdict(content string) (Decision, error) {
	cleaned := stripFences(content)
	if start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}

	var v llmVerdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return Decision{}, fmt.Errorf("parse verdict: %w", err)
	}

	if v.ModelKey != KeyFast && v.ModelKey != KeyFull {
		return Decision{}, fmt.Errorf("parse verdict: unknown model key %q", v.ModelKey)
	}
	if v.Reason == "" {
		v.Reason = "llm verdict → " + v.ModelKey
	}

	return Decision{ModelKey: v.ModelKey, Reason: v.Reason}, nil
}

// stripFences removes optional markdown code fences (```json ... ```)
// that some models wrap around JSON output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
