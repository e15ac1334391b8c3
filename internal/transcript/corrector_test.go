package transcript_test

import (
	"testing"

	"github.com/foyerlabs/foyer/internal/transcript"
)

func testVocabulary() []string {
	return []string{"Papa", "Maman", "Mamou", "Garfield", "La Rochelle"}
}

func TestCorrect_PhoneticMatch(t *testing.T) {
	t.Parallel()

	c := transcript.New(testVocabulary())

	got, corrections := c.Correct("bonjour papo")
	if got != "bonjour Papa" {
		t.Fatalf("Correct() = %q, want %q", got, "bonjour Papa")
	}
	if len(corrections) != 1 {
		t.Fatalf("corrections = %v, want exactly one", corrections)
	}
	corr := corrections[0]
	if corr.Original != "papo" || corr.Corrected != "Papa" {
		t.Errorf("correction = %+v", corr)
	}
	if corr.Method != "phonetic" {
		t.Errorf("method = %q, want phonetic", corr.Method)
	}
	if corr.Confidence < 0.70 || corr.Confidence >= 1.0 {
		t.Errorf("confidence = %v, want within [0.70, 1.0)", corr.Confidence)
	}
}

func TestCorrect_ExactSpellingUntouched(t *testing.T) {
	t.Parallel()

	c := transcript.New(testVocabulary())

	// Correct spelling is left alone even when the case differs from the
	// canonical term.
	got, corrections := c.Correct("merci mamou")
	if got != "merci mamou" {
		t.Errorf("Correct() = %q, want input unchanged", got)
	}
	if len(corrections) != 0 {
		t.Errorf("corrections = %v, want none", corrections)
	}
}

func TestCorrect_PunctuationSurvives(t *testing.T) {
	t.Parallel()

	c := transcript.New(testVocabulary())

	tests := []struct {
		in   string
		want string
	}{
		{"salut papo,", "salut Papa,"},
		{"«papo»", "«Papa»"},
		{"papo ?", "Papa ?"},
	}
	for _, tt := range tests {
		if got, _ := c.Correct(tt.in); got != tt.want {
			t.Errorf("Correct(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCorrect_MultiWordTerm(t *testing.T) {
	t.Parallel()

	c := transcript.New(testVocabulary())

	got, corrections := c.Correct("on va à la rochel demain")
	if got != "on va à La Rochelle demain" {
		t.Fatalf("Correct() = %q", got)
	}
	if len(corrections) != 1 || corrections[0].Original != "la rochel" {
		t.Fatalf("corrections = %v", corrections)
	}
}

func TestCorrect_FuzzyFallback(t *testing.T) {
	t.Parallel()

	c := transcript.New(testVocabulary())

	// "smaman" shares no Double Metaphone code with "Maman" (SMMN vs MMN)
	// but clears the strict similarity bar.
	got, corrections := c.Correct("smaman arrive")
	if got != "Maman arrive" {
		t.Fatalf("Correct() = %q", got)
	}
	if len(corrections) != 1 || corrections[0].Method != "fuzzy" {
		t.Fatalf("corrections = %v, want one fuzzy correction", corrections)
	}
}

func TestCorrect_NoFalsePositives(t *testing.T) {
	t.Parallel()

	c := transcript.New(testVocabulary())

	tests := []string{
		"bonjour tout le monde",
		"ma maison est grande",
		"on mange demain midi",
		"le chat dort",
	}
	for _, in := range tests {
		got, corrections := c.Correct(in)
		if got != in {
			t.Errorf("Correct(%q) = %q, want unchanged", in, got)
		}
		if len(corrections) != 0 {
			t.Errorf("Correct(%q) corrections = %v, want none", in, corrections)
		}
	}
}

func TestCorrect_ShortWordsNeverRewritten(t *testing.T) {
	t.Parallel()

	// "ma" and "la" sit close to several terms by similarity alone; the
	// window length floor keeps them out.
	c := transcript.New(testVocabulary())

	got, corrections := c.Correct("ma la et on")
	if got != "ma la et on" || len(corrections) != 0 {
		t.Errorf("Correct() = %q (%v), want unchanged", got, corrections)
	}
}

func TestCorrect_EmptyInputs(t *testing.T) {
	t.Parallel()

	c := transcript.New(testVocabulary())
	if got, corrections := c.Correct(""); got != "" || corrections != nil {
		t.Errorf("empty text: got %q, %v", got, corrections)
	}

	noop := transcript.New(nil)
	if got, corrections := noop.Correct("salut papo"); got != "salut papo" || corrections != nil {
		t.Errorf("empty vocabulary: got %q, %v", got, corrections)
	}
}

func TestCorrect_ThresholdOptions(t *testing.T) {
	t.Parallel()

	// With the phonetic threshold raised past the "papo"→"Papa" score
	// (~0.88), the match is dropped.
	strict := transcript.New(testVocabulary(), transcript.WithPhoneticThreshold(0.95))
	if got, _ := strict.Correct("bonjour papo"); got != "bonjour papo" {
		t.Errorf("strict Correct() = %q, want unchanged", got)
	}

	// "smamonne" scores ~0.77 against "Maman": refused at the default 0.85,
	// admitted once the fuzzy threshold drops.
	c := transcript.New(testVocabulary())
	if got, _ := c.Correct("smamonne"); got != "smamonne" {
		t.Errorf("default Correct() = %q, want unchanged", got)
	}
	loose := transcript.New(testVocabulary(), transcript.WithFuzzyThreshold(0.60))
	if got, _ := loose.Correct("smamonne"); got == "smamonne" {
		t.Errorf("loose Correct() left %q unchanged", got)
	}
}
