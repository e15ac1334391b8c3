// Package transcript fixes misheard family vocabulary in voice transcripts.
//
// Whisper output is rarely perfect for household proper nouns — display
// names, nicknames, and pet names are frequently transcribed as similar
// common words ("Léo" becomes "l'eau", "Mamou" becomes "ma moue"). The
// [Corrector] aligns transcript n-grams against a fixed vocabulary using
// Double Metaphone phonetic codes for candidate filtering and Jaro-Winkler
// similarity for ranking. A secondary pure-similarity pass with a stricter
// threshold catches spelling-level misses that share no phonetic code.
//
// The vocabulary is supplied at construction (typically
// [family.Registry.Vocabulary] plus configured extra terms) and phonetic
// codes are precomputed once, so Correct is allocation-light and safe for
// concurrent use.
package transcript

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// Windows shorter than this never match: French function words
	// ("ma", "le", "et") must not be rewritten into names.
	minWindowRunes = 3
)

// Correction records a single substitution applied to a transcript.
type Correction struct {
	// Original is the transcript span as produced by the STT provider,
	// without surrounding punctuation.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the Jaro-Winkler similarity of the substitution (0.0–1.0).
	Confidence float64

	// Method is "phonetic" when the span shared a Double Metaphone code with
	// the term, "fuzzy" when only string similarity matched.
	Method string
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when a term
// shares no phonetic code with the span. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// term is a vocabulary entry with its phonetic codes precomputed.
type term struct {
	display string
	lower   string
	tokens  []string
	codes   map[string]struct{}
}

// Corrector rewrites transcript spans into known family vocabulary.
// It is read-only after construction and safe for concurrent use.
type Corrector struct {
	terms             []term
	maxWords          int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New builds a Corrector over the given vocabulary. Blank entries are
// skipped; an empty vocabulary yields a Corrector whose Correct is a no-op.
func New(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}

	for _, v := range vocabulary {
		display := strings.TrimSpace(v)
		if display == "" {
			continue
		}
		lower := strings.ToLower(display)
		tokens := strings.Fields(lower)
		c.terms = append(c.terms, term{
			display: display,
			lower:   lower,
			tokens:  tokens,
			codes:   phoneticCodes(tokens),
		})
		if len(tokens) > c.maxWords {
			c.maxWords = len(tokens)
		}
	}
	return c
}

// Correct rewrites spans of text that phonetically or fuzzily match a
// vocabulary term and returns the corrected text with the substitutions
// applied. Spans already equal to a term (ignoring case) are left alone.
//
// At each token position, n-gram windows are tried longest-first so that
// multi-word terms ("La Rochelle") win over partial single-word matches.
func (c *Corrector) Correct(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || c.maxWords == 0 {
		return text, nil
	}

	var (
		output      []string
		corrections []Correction
	)

	i := 0
	for i < len(tokens) {
		maxN := c.maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			prefix, core, suffix := trimEdges(window)
			if core == "" {
				continue
			}

			t, conf, method, ok := c.match(core)
			if !ok {
				continue
			}

			output = append(output, strings.Fields(prefix+t.display+suffix)...)
			corrections = append(corrections, Correction{
				Original:   core,
				Corrected:  t.display,
				Confidence: conf,
				Method:     method,
			})
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// match finds the best vocabulary term for the span. Phonetic candidates
// always beat fuzzy-only candidates; within each group the highest
// Jaro-Winkler score wins.
func (c *Corrector) match(span string) (term, float64, string, bool) {
	spanLower := strings.ToLower(span)
	if len([]rune(spanLower)) < minWindowRunes {
		return term{}, 0, "", false
	}
	spanTokens := strings.Fields(spanLower)
	spanCodes := phoneticCodes(spanTokens)

	var (
		best         term
		bestScore    float64
		bestPhonetic bool
		found        bool
	)

	for _, t := range c.terms {
		if t.lower == spanLower {
			// Already spelled right — nothing to fix.
			return term{}, 0, "", false
		}
		// An n-gram may only replace a term of the same word count;
		// otherwise "salut papo" would collapse into "Papa".
		if len(spanTokens) > 1 && len(t.tokens) != len(spanTokens) {
			continue
		}

		score := bestSimilarity(spanTokens, t.tokens, spanLower, t.lower)
		phonetic := codesOverlap(spanCodes, t.codes)

		// Multi-word spans are held to the strict threshold: shared
		// function words ("la", "le") make phonetic overlap too cheap.
		threshold := c.fuzzyThreshold
		if phonetic && len(spanTokens) == 1 {
			threshold = c.phoneticThreshold
		}
		if score < threshold {
			continue
		}

		switch {
		case phonetic:
			if !found || !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic, found = t, score, true, true
			}
		default:
			if !found || (!bestPhonetic && score > bestScore) {
				best, bestScore, found = t, score, true
			}
		}
	}

	if !found {
		return term{}, 0, "", false
	}
	method := "fuzzy"
	if bestPhonetic {
		method = "phonetic"
	}
	return best, bestScore, method, true
}

// trimEdges splits surrounding punctuation off a window so "papa," matches
// the term and the comma survives the substitution. Interior punctuation
// ("l'eau", "Jean-Luc") is untouched.
func trimEdges(window string) (prefix, core, suffix string) {
	notWord := func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}
	trimmedLeft := strings.TrimLeftFunc(window, notWord)
	prefix = window[:len(window)-len(trimmedLeft)]
	core = strings.TrimRightFunc(trimmedLeft, notWord)
	suffix = trimmedLeft[len(core):]
	return prefix, core, suffix
}

// phoneticCodes returns the union of Double Metaphone codes over the tokens.
// Empty codes (very short or vowel-only tokens) are excluded.
func phoneticCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity is the highest Jaro-Winkler score across three comparisons:
// the full strings, the space-stripped strings ("la rochel" vs
// "larochelle"), and — for single-token spans only — the best score against
// any individual term token ("rochel" alone still finds "La Rochelle").
func bestSimilarity(spanTokens, termTokens []string, spanFull, termFull string) float64 {
	score := matchr.JaroWinkler(spanFull, termFull, false)

	if len(spanTokens) > 1 || len(termTokens) > 1 {
		joined1 := strings.Join(spanTokens, "")
		joined2 := strings.Join(termTokens, "")
		if s := matchr.JaroWinkler(joined1, joined2, false); s > score {
			score = s
		}
	}

	if len(spanTokens) == 1 {
		for _, tt := range termTokens {
			// Function-word term tokens ("la") are not anchors.
			if len([]rune(tt)) < minWindowRunes {
				continue
			}
			if s := matchr.JaroWinkler(spanTokens[0], tt, false); s > score {
				score = s
			}
		}
	}

	return score
}
