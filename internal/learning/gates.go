package learning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foyerlabs/foyer/internal/resilience"
	"github.com/foyerlabs/foyer/pkg/provider/llm"
)

// gate1Prompt asks the local runtime for a coherence and safety verdict.
const gate1Prompt = `You are a safety and coherence validator for user corrections to a personal assistant.

Evaluate the following correction and respond ONLY with JSON in this exact format:
{"verdict": "pass", "reason": "explanation"}
OR
{"verdict": "reject", "reason": "explanation"}

Evaluate for:
1. Internal coherence - does the correction make logical sense?
2. Safety - is it free of harmful, abusive, or dangerous content?

Correction to evaluate: %s

Remember: Respond ONLY with valid JSON, no additional text.`

// gate2aPrompt asks the local runtime for a fact-check with a confidence.
const gate2aPrompt = `You are a fact-checking assistant for user corrections.

Evaluate the factual accuracy of the following statement and respond ONLY with JSON in this exact format:
{"verdict": "pass", "confidence": 0.85, "reason": "explanation"}
OR
{"verdict": "reject", "confidence": 0.90, "reason": "explanation"}

Guidelines:
- "pass" if the statement is factually plausible or likely true
- "reject" if the statement is clearly false or implausible
- confidence: 0.0 to 1.0, how certain you are of your verdict
- Be generous with uncertainty - use lower confidence when unsure

Statement to evaluate: %s

Remember: Respond ONLY with valid JSON, no additional text.`

// gate2bPrompt is the minimal external fact-check prompt. The statement it
// carries has already been screened for personal information.
const gate2bPrompt = `Is the following statement factually accurate? Answer only with JSON: {"verdict": "pass"|"reject", "reason": "..."}

Statement: %s`

// Gates runs the automated validation gates. Gate 1 (sanity) and gate 2a
// (local fact-check) call the LLM sidecar; gate 2b escalates to a hosted
// model and is deliberately fail-open, since an external outage must never
// freeze the household's corrections.
type Gates struct {
	sidecar          LLMClient
	gateUser         string
	personalKeywords []string

	external          llm.Provider
	externalTimeout   time.Duration
	externalMaxTokens int
	breaker           *resilience.CircuitBreaker
}

// GatesOption is a functional option for Gates.
type GatesOption func(*Gates)

// WithGateUser sets the profile the gate prompts run under. Defaults to
// "dad" so gate chats route like ordinary admin traffic.
func WithGateUser(userID string) GatesOption {
	return func(g *Gates) {
		if userID != "" {
			g.gateUser = userID
		}
	}
}

// WithExternalChecker enables gate 2b against a hosted model. Without it
// every escalation short-circuits to an unavailable pass.
func WithExternalChecker(p llm.Provider) GatesOption {
	return func(g *Gates) {
		g.external = p
	}
}

// WithExternalTimeout bounds one external fact-check call. Defaults to 15 s.
func WithExternalTimeout(d time.Duration) GatesOption {
	return func(g *Gates) {
		if d > 0 {
			g.externalTimeout = d
		}
	}
}

// WithExternalMaxTokens caps the external verdict length. Defaults to 256.
func WithExternalMaxTokens(n int) GatesOption {
	return func(g *Gates) {
		if n > 0 {
			g.externalMaxTokens = n
		}
	}
}

// WithCircuitBreaker replaces the breaker guarding external calls.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) GatesOption {
	return func(g *Gates) {
		if cb != nil {
			g.breaker = cb
		}
	}
}

// NewGates wires the gate runners. personalKeywords drives the gate 2a
// personal-information bypass (case-insensitive substring match).
func NewGates(sidecar LLMClient, personalKeywords []string, opts ...GatesOption) *Gates {
	g := &Gates{
		sidecar:           sidecar,
		gateUser:          "dad",
		personalKeywords:  personalKeywords,
		externalTimeout:   15 * time.Second,
		externalMaxTokens: 256,
		breaker:           resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{}),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// ExternalConfigured reports whether gate 2b has a hosted model to call.
func (g *Gates) ExternalConfigured() bool {
	return g.external != nil
}

// Sanity runs gate 1 and returns (status, reason). Transport and parse
// failures report GateError, which terminates the correction's pipeline.
func (g *Gates) Sanity(ctx context.Context, content string) (string, string) {
	reply, err := g.sidecar.Chat(ctx, g.gateUser, fmt.Sprintf(gate1Prompt, content))
	if err != nil {
		slog.Error("gates: sanity check call failed", "err", err)
		return GateError, "LLM sidecar unreachable: " + err.Error()
	}

	v, err := parseVerdict(reply)
	if err != nil {
		slog.Error("gates: sanity reply is not valid JSON", "reply", reply, "err", err)
		return GateError, "LLM response parsing error: " + err.Error()
	}
	if v.Verdict != GatePass && v.Verdict != GateReject {
		slog.Warn("gates: invalid sanity verdict, defaulting to reject", "verdict", v.Verdict)
		return GateReject, "Invalid LLM response: " + v.Reason
	}
	slog.Info("gates: sanity result", "verdict", v.Verdict, "reason", v.Reason)
	return v.Verdict, v.Reason
}

// IsPersonalInfo reports whether any configured personal-information
// keyword appears in content.
func (g *Gates) IsPersonalInfo(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range g.personalKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// LocalFactCheck runs gate 2a and returns (status, confidence, reason,
// personal). Personal information auto-passes at full confidence without
// touching the runtime.
func (g *Gates) LocalFactCheck(ctx context.Context, content string) (string, float64, string, bool) {
	if g.IsPersonalInfo(content) {
		slog.Info("gates: personal info detected, auto-passing fact-check")
		return GatePass, 1.0, "Personal information - auto-approved", true
	}

	reply, err := g.sidecar.Chat(ctx, g.gateUser, fmt.Sprintf(gate2aPrompt, content))
	if err != nil {
		slog.Error("gates: local fact-check call failed", "err", err)
		return GateError, 0, "LLM sidecar unreachable: " + err.Error(), false
	}

	v, err := parseVerdict(reply)
	if err != nil {
		slog.Error("gates: fact-check reply is not valid JSON", "reply", reply, "err", err)
		return GateError, 0, "LLM response parsing error: " + err.Error(), false
	}

	confidence := 0.5
	if v.Confidence != nil {
		confidence = clamp01(*v.Confidence)
	}
	if v.Verdict != GatePass && v.Verdict != GateReject {
		slog.Warn("gates: invalid fact-check verdict, defaulting to reject", "verdict", v.Verdict)
		return GateReject, confidence, "Invalid LLM response: " + v.Reason, false
	}
	slog.Info("gates: local fact-check result",
		"verdict", v.Verdict, "confidence", confidence, "reason", v.Reason)
	return v.Verdict, confidence, v.Reason, false
}

// ExternalFactCheck runs gate 2b and returns (status, reason). A missing
// provider, an open breaker, a transport failure, or an unparseable reply
// all coerce to a pass tagged gate2b_unavailable — the external check is
// an extra opinion, not a blocker.
func (g *Gates) ExternalFactCheck(ctx context.Context, content string) (string, string) {
	if g.external == nil {
		slog.Warn("gates: external checker not configured, auto-passing")
		return GatePass, "gate2b_unavailable - API key not configured"
	}

	ctx, cancel := context.WithTimeout(ctx, g.externalTimeout)
	defer cancel()

	resp, err := resilience.Do(g.breaker, func() (*llm.CompletionResponse, error) {
		return g.external.Complete(ctx, llm.CompletionRequest{
			Messages:  []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(gate2bPrompt, content)}},
			MaxTokens: g.externalMaxTokens,
		})
	})
	if err != nil {
		slog.Warn("gates: external fact-check failed, auto-passing", "err", err)
		return GatePass, "gate2b_unavailable - " + err.Error()
	}

	v, err := parseVerdict(resp.Content)
	if err != nil {
		slog.Warn("gates: external reply is not valid JSON, auto-passing",
			"reply", resp.Content, "err", err)
		return GatePass, "gate2b_unavailable - " + err.Error()
	}
	if v.Verdict != GatePass && v.Verdict != GateReject {
		slog.Warn("gates: invalid external verdict, defaulting to reject", "verdict", v.Verdict)
		return GateReject, "Invalid external response: " + v.Reason
	}
	slog.Info("gates: external fact-check result", "verdict", v.Verdict, "reason", v.Reason)
	return v.Verdict, v.Reason
}
