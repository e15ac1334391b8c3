package deepgram

import (
	"encoding/json"
	"net/url"
	"testing"
)

func TestBuildURLDefaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(16000)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "fr", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "false", q.Get("interim_results"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURLCustom(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(48000)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("want error for empty apiKey, got nil")
	}
}

func TestWireResponseParsing(t *testing.T) {
	raw := `{
		"type": "Results",
		"is_final": true,
		"channel": {
			"alternatives": [
				{"transcript": "où est mon cartable", "confidence": 0.93}
			]
		}
	}`

	var resp wireResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Type != "Results" {
		t.Errorf("want type Results, got %q", resp.Type)
	}
	if !resp.IsFinal {
		t.Error("want is_final true")
	}
	if len(resp.Channel.Alternatives) != 1 {
		t.Fatalf("want 1 alternative, got %d", len(resp.Channel.Alternatives))
	}
	if got := resp.Channel.Alternatives[0].Transcript; got != "où est mon cartable" {
		t.Errorf("want transcript preserved, got %q", got)
	}
	if got := resp.Channel.Alternatives[0].Confidence; got != 0.93 {
		t.Errorf("want confidence 0.93, got %v", got)
	}
}

func assertEqual(t *testing.T, name, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", name, want, got)
	}
}
