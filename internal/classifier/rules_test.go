package classifier_test

import (
	"context"
	"strings"
	"testing"

	"github.com/foyerlabs/foyer/internal/classifier"
	"github.com/foyerlabs/foyer/internal/config"
	"github.com/foyerlabs/foyer/internal/family"
)

func testConfig() config.ClassifierConfig {
	return config.ClassifierConfig{
		Mode:               config.ClassifierRules,
		FastKeywords:       config.DefaultFastKeywords,
		FullKeywords:       config.DefaultFullKeywords,
		FastThresholdWords: 15,
		FullThresholdWords: 30,
	}
}

// testRegistry extends the default household with a profile that forces
// the full model, so the forced-preference rule is exercisable.
func testRegistry(t *testing.T) *family.Registry {
	t.Helper()
	reg, err := family.New([]family.Profile{
		{ID: "dad", Role: family.RoleAdmin},
		{ID: "mom", Role: family.RoleAdmin},
		{ID: "teen", Role: family.RoleUser},
		{ID: "child", Role: family.RoleUser},
		{ID: "gran", Role: family.RoleUser, ModelPreference: family.PreferFull},
	}, []string{"child", "teen", "mom", "dad"})
	if err != nil {
		t.Fatalf("family.New: %v", err)
	}
	return reg
}

func TestRules_PriorityOrder(t *testing.T) {
	t.Parallel()

	rules := classifier.NewRules(testRegistry(t), testConfig())

	longNoKeywords := strings.TrimSpace(strings.Repeat("mot ", 32))
	mediumNoKeywords := strings.TrimSpace(strings.Repeat("mot ", 20))

	tests := []struct {
		name       string
		userID     string
		message    string
		wantKey    string
		wantReason string
	}{
		{
			name:       "forced preference wins over complexity keyword",
			userID:     "gran",
			message:    "Explique-moi comment fonctionne la photosynthèse",
			wantKey:    classifier.KeyFull,
			wantReason: "user_profile=gran forces model_preference=full",
		},
		{
			name:       "teen overrides long complex message",
			userID:     "teen",
			message:    "Peux-tu m'expliquer en détail comment fonctionne un moteur à combustion interne et quelles sont les différences avec les moteurs électriques modernes ?",
			wantKey:    classifier.KeyFast,
			wantReason: "user_profile=teen overrides all other rules → fast",
		},
		{
			name:       "child overrides everything",
			userID:     "child",
			message:    "Explique-moi les pros and cons des énergies renouvelables",
			wantKey:    classifier.KeyFast,
			wantReason: "user_profile=child overrides all other rules → fast",
		},
		{
			name:       "conversational keyword",
			userID:     "mom",
			message:    "merci beaucoup pour ton aide",
			wantKey:    classifier.KeyFast,
			wantReason: "conversational keyword 'merci' detected → fast",
		},
		{
			name:       "complexity keyword",
			userID:     "mom",
			message:    "Analyse les avantages et inconvénients de ce choix",
			wantKey:    classifier.KeyFull,
			wantReason: "complexity keyword 'analyse' detected → full",
		},
		{
			name:       "short message length rule",
			userID:     "dad",
			message:    "Quelle heure est-il aujourd'hui ?",
			wantKey:    classifier.KeyFast,
			wantReason: "message length (5 words) < threshold (15) → fast",
		},
		{
			name:       "long message length rule",
			userID:     "dad",
			message:    longNoKeywords,
			wantKey:    classifier.KeyFull,
			wantReason: "message length (32 words) > threshold (30) → full",
		},
		{
			name:       "medium message default",
			userID:     "dad",
			message:    mediumNoKeywords,
			wantKey:    classifier.KeyFast,
			wantReason: "no specific rule matched → default fast",
		},
		{
			name:       "unknown user still classified",
			userID:     "visitor",
			message:    "bonjour tout le monde",
			wantKey:    classifier.KeyFast,
			wantReason: "conversational keyword 'bonjour' detected → fast",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rules.Classify(context.Background(), tt.userID, tt.message)
			if got.ModelKey != tt.wantKey {
				t.Errorf("ModelKey = %q, want %q (reason: %s)", got.ModelKey, tt.wantKey, got.Reason)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestRules_WordBoundaries(t *testing.T) {
	t.Parallel()

	rules := classifier.NewRules(testRegistry(t), testConfig())

	tests := []struct {
		name       string
		message    string
		wantKey    string
		wantReason string
	}{
		{
			name:       "quoi does not match inside pourquoi",
			message:    "Pourquoi la mer est salée",
			wantKey:    classifier.KeyFull,
			wantReason: "complexity keyword 'pourquoi' detected → full",
		},
		{
			name:       "accented letter blocks the trailing boundary",
			message:    "pourquoié",
			wantKey:    classifier.KeyFast,
			wantReason: "message length (1 words) < threshold (15) → fast",
		},
		{
			name:       "bare quoi wins over the phrase by list order",
			message:    "C'est quoi la gravité exactement dis",
			wantKey:    classifier.KeyFast,
			wantReason: "conversational keyword 'quoi' detected → fast",
		},
		{
			name:       "multi-word phrase matches",
			message:    "Dis comment fonctionne un moteur diesel",
			wantKey:    classifier.KeyFull,
			wantReason: "complexity keyword 'comment fonctionne' detected → full",
		},
		{
			name:       "matching is case-insensitive",
			message:    "MERCI BEAUCOUP",
			wantKey:    classifier.KeyFast,
			wantReason: "conversational keyword 'merci' detected → fast",
		},
		{
			name:       "punctuation is a boundary",
			message:    "Bonjour!",
			wantKey:    classifier.KeyFast,
			wantReason: "conversational keyword 'bonjour' detected → fast",
		},
		{
			name:       "hyphen is a boundary",
			message:    "Explique-moi la blockchain",
			wantKey:    classifier.KeyFull,
			wantReason: "complexity keyword 'explique' detected → full",
		},
		{
			name:       "accented keyword matches whole word",
			message:    "Lançons un débat animé là-dessus",
			wantKey:    classifier.KeyFull,
			wantReason: "complexity keyword 'débat' detected → full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rules.Classify(context.Background(), "dad", tt.message)
			if got.ModelKey != tt.wantKey {
				t.Errorf("ModelKey = %q, want %q (reason: %s)", got.ModelKey, tt.wantKey, got.Reason)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestRules_RepeatedCallsAgree(t *testing.T) {
	t.Parallel()

	rules := classifier.NewRules(testRegistry(t), testConfig())

	messages := []string{
		"merci beaucoup",
		"Analyse les avantages et inconvénients de ce choix",
		strings.TrimSpace(strings.Repeat("mot ", 32)),
	}
	for _, userID := range []string{"dad", "teen", "gran"} {
		for _, msg := range messages {
			first := rules.Classify(context.Background(), userID, msg)
			second := rules.Classify(context.Background(), userID, msg)
			if first != second {
				t.Errorf("Classify(%s, %q) not stable: %+v then %+v", userID, msg, first, second)
			}
		}
	}
}

func TestRules_SkipsEmptyKeywords(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.FastKeywords = []string{"", "   ", "merci"}
	cfg.FullKeywords = []string{""}
	rules := classifier.NewRules(testRegistry(t), cfg)

	// An empty keyword would match every message; a blank-list message must
	// fall through to the length rules instead.
	got := rules.Classify(context.Background(), "dad", "zut alors")
	if want := "message length (2 words) < threshold (15) → fast"; got.Reason != want {
		t.Errorf("Reason = %q, want %q", got.Reason, want)
	}

	got = rules.Classify(context.Background(), "dad", "merci bien")
	if want := "conversational keyword 'merci' detected → fast"; got.Reason != want {
		t.Errorf("Reason = %q, want %q", got.Reason, want)
	}
}

func TestRules_EveryDefaultKeyword(t *testing.T) {
	t.Parallel()

	rules := classifier.NewRules(testRegistry(t), testConfig())

	for _, kw := range config.DefaultFastKeywords {
		got := rules.Classify(context.Background(), "dad", "Dis-moi "+kw+" maintenant")
		if got.ModelKey != classifier.KeyFast {
			t.Errorf("fast keyword %q: ModelKey = %q, want fast (reason: %s)", kw, got.ModelKey, got.Reason)
		}
	}
	for _, kw := range config.DefaultFullKeywords {
		got := rules.Classify(context.Background(), "dad", "Peux-tu "+kw+" ce sujet précis")
		if got.ModelKey != classifier.KeyFull {
			t.Errorf("full keyword %q: ModelKey = %q, want full (reason: %s)", kw, got.ModelKey, got.Reason)
		}
	}
}
