package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/foyerlabs/foyer/internal/config"
	"github.com/foyerlabs/foyer/internal/family"
)

// keyword is one configured phrase with its compiled whole-word matcher.
// The original spelling is kept for the decision reason.
type keyword struct {
	text string
	re   *regexp.Regexp
}

// compileKeyword builds a matcher for kw as a whole word or phrase inside
// lowercased text. The boundaries are spelled out instead of \b because
// RE2's \b is ASCII-only: with \b, accented letters in keywords like
// "débat" would count as word edges and "quoi" would match inside a word
// ending in a non-ASCII letter.
func compileKeyword(kw string) keyword {
	quoted := regexp.QuoteMeta(strings.ToLower(kw))
	return keyword{
		text: kw,
		re:   regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])` + quoted + `(?:[^\p{L}\p{N}_]|$)`),
	}
}

func compileKeywords(kws []string) []keyword {
	out := make([]keyword, 0, len(kws))
	for _, kw := range kws {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		out = append(out, compileKeyword(kw))
	}
	return out
}

// Rules is the deterministic rule-engine [Classifier]. Priority order,
// first match wins:
//
//  1. Profile-forced model preference.
//  2. The child and teen profiles always get the fast model, even for
//     long or complex messages.
//  3. Conversational keyword in the message → fast.
//  4. Complexity keyword in the message → full.
//  5. Fewer words than the fast threshold → fast.
//  6. More words than the full threshold → full.
//  7. Default → fast.
//
// Keywords match as whole words or phrases against the lowercased
// message, so "quoi" never fires inside "pourquoi". Rules is safe for
// concurrent use; all state is immutable after construction.
type Rules struct {
	registry      *family.Registry
	fast          []keyword
	full          []keyword
	fastThreshold int
	fullThreshold int
}

var _ Classifier = (*Rules)(nil)

// NewRules builds the rule engine from the family registry and the
// classifier config. Keyword patterns are compiled once here; empty
// entries in the configured lists are skipped.
func NewRules(registry *family.Registry, cfg config.ClassifierConfig) *Rules {
	return &Rules{
		registry:      registry,
		fast:          compileKeywords(cfg.FastKeywords),
		full:          compileKeywords(cfg.FullKeywords),
		fastThreshold: cfg.FastThresholdWords,
		fullThreshold: cfg.FullThresholdWords,
	}
}

// policyOverride applies the two profile rules that outrank everything
// else: a forced model preference and the minor override. The LLM-backed
// classifier checks these too, so a model verdict can never route a child
// to the full model.
func (r *Rules) policyOverride(userID string) (Decision, bool) {
	if profile, ok := r.registry.Get(userID); ok && profile.ModelPreference != family.PreferNone {
		key := string(profile.ModelPreference)
		return Decision{
			ModelKey: key,
			Reason:   fmt.Sprintf("user_profile=%s forces model_preference=%s", userID, key),
		}, true
	}

	if userID == "child" || userID == "teen" {
		return Decision{
			ModelKey: KeyFast,
			Reason:   fmt.Sprintf("user_profile=%s overrides all other rules → fast", userID),
		}, true
	}

	return Decision{}, false
}

// Classify applies the priority rules. ctx is unused; the rule engine
// does no I/O.
func (r *Rules) Classify(_ context.Context, userID, message string) Decision {
	if d, ok := r.policyOverride(userID); ok {
		return d
	}

	wordCount := len(strings.Fields(message))
	messageLower := strings.ToLower(message)

	for _, kw := range r.fast {
		if kw.re.MatchString(messageLower) {
			return Decision{
				ModelKey: KeyFast,
				Reason:   fmt.Sprintf("conversational keyword '%s' detected → fast", kw.text),
			}
		}
	}

	for _, kw := range r.full {
		if kw.re.MatchString(messageLower) {
			return Decision{
				ModelKey: KeyFull,
				Reason:   fmt.Sprintf("complexity keyword '%s' detected → full", kw.text),
			}
		}
	}

	if wordCount < r.fastThreshold {
		return Decision{
			ModelKey: KeyFast,
			Reason:   fmt.Sprintf("message length (%d words) < threshold (%d) → fast", wordCount, r.fastThreshold),
		}
	}

	if wordCount > r.fullThreshold {
		return Decision{
			ModelKey: KeyFull,
			Reason:   fmt.Sprintf("message length (%d words) > threshold (%d) → full", wordCount, r.fullThreshold),
		}
	}

	return Decision{
		ModelKey: KeyFast,
		Reason:   "no specific rule matched → default fast",
	}
}
