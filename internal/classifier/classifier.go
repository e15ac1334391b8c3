// Package classifier decides which chat model serves a message.
//
// The assistant runs two local models: a small low-latency one for casual
// exchanges ("fast") and a larger one for questions that need depth
// ("full"). Every chat turn passes through a [Classifier] before
// inference; the returned [Decision] carries the chosen model key plus a
// human-readable reason that the /classifier/explain endpoint exposes
// verbatim.
//
// Two implementations exist:
//
//   - [Rules]: deterministic priority rules over the user profile, keyword
//     lists and message length. The default.
//   - [LLM]: asks the fast model itself for a verdict and degrades to the
//     rule engine whenever the model is unreachable or returns something
//     unusable.
package classifier

import "context"

// Model keys a [Decision] can select. The models config resolves them to
// concrete model names.
const (
	KeyFast = "fast"
	KeyFull = "full"
)

// Decision is the outcome of classifying one message.
type Decision struct {
	// ModelKey is [KeyFast] or [KeyFull].
	ModelKey string

	// Reason explains the decision in one line, e.g.
	// "conversational keyword 'merci' detected → fast".
	Reason string
}

// Classifier routes a message to a model key.
//
// Classify never fails: unknown users are still classified (the
// profile-based rules simply do not apply to them), and the LLM-backed
// implementation falls back to the rule engine on any error.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, userID, message string) Decision
}
