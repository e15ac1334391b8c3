package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/foyerlabs/foyer/internal/config"
	"github.com/foyerlabs/foyer/internal/family"
)

const sampleYAML = `
logging:
  level: debug
  format: json

family:
  users:
    - id: dad
      role: admin
      display_name: Marc
      aliases: [Papa]
    - id: mom
      role: admin
    - id: teen
      role: user
      model_preference: fast
    - id: child
      role: user
      system_prompt: "Answer simply, you are talking to a seven year old."
  fallback_hierarchy: [child, teen, mom, dad]

llm:
  port: 10002
  runtime:
    base_url: "http://localhost:11434"
    timeout: 90s
  models:
    fast: "llama3.2:3b-instruct-q4_0"
    full: "llama3.1:8b-instruct-q4_0"
  embeddings:
    provider: ollama
    model: all-minilm
  memory:
    backend: chromem
    path: /tmp/foyer-memory
    chat_top_k: 3

voice:
  port: 10001
  confidence_high: 0.8
  confidence_low: 0.65
  transcriber:
    provider: whisper
    base_url: "http://localhost:8001"

learning:
  port: 10003
  gate2a_confidence_threshold: 0.75
  notify:
    mode: desktop

gateway:
  port: 8080
  sidecar_timeout: 45s
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Logging.Level != config.LogDebug {
		t.Errorf("logging.level: got %q, want %q", cfg.Logging.Level, config.LogDebug)
	}
	if cfg.Logging.Format != config.LogJSON {
		t.Errorf("logging.format: got %q, want %q", cfg.Logging.Format, config.LogJSON)
	}
	if got := cfg.LLM.Runtime.Timeout.Std(); got != 90*time.Second {
		t.Errorf("llm.runtime.timeout: got %v, want 90s", got)
	}
	if cfg.LLM.Memory.ChatTopK != 3 {
		t.Errorf("llm.memory.chat_top_k: got %d, want 3", cfg.LLM.Memory.ChatTopK)
	}
	if cfg.Voice.ConfidenceHigh != 0.8 {
		t.Errorf("voice.confidence_high: got %v, want 0.8", cfg.Voice.ConfidenceHigh)
	}
	if cfg.Learning.Notify.Mode != config.NotifyDesktop {
		t.Errorf("learning.notify.mode: got %q, want desktop", cfg.Learning.Notify.Mode)
	}
	if got := cfg.Gateway.SidecarTimeout.Std(); got != 45*time.Second {
		t.Errorf("gateway.sidecar_timeout: got %v, want 45s", got)
	}

	reg, err := cfg.Family.Registry()
	if err != nil {
		t.Fatalf("family registry: unexpected error: %v", err)
	}
	teen, ok := reg.Get("teen")
	if !ok {
		t.Fatal("registry missing teen")
	}
	if teen.ModelPreference != family.PreferFast {
		t.Errorf("teen model preference: got %q, want fast", teen.ModelPreference)
	}
}

func TestLoadFromReader_UnknownKeyRejected(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("llm:\n  portt: 10002\n"))
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LLM.Port != 10002 {
		t.Errorf("llm.port default: got %d, want 10002", cfg.LLM.Port)
	}
	if cfg.Voice.Port != 10001 {
		t.Errorf("voice.port default: got %d, want 10001", cfg.Voice.Port)
	}
	if cfg.Learning.Port != 10003 {
		t.Errorf("learning.port default: got %d, want 10003", cfg.Learning.Port)
	}
	if cfg.Gateway.Port != 8080 {
		t.Errorf("gateway.port default: got %d, want 8080", cfg.Gateway.Port)
	}
	if cfg.Voice.ConfidenceHigh != 0.75 || cfg.Voice.ConfidenceLow != 0.60 {
		t.Errorf("confidence defaults: got %v/%v, want 0.75/0.60",
			cfg.Voice.ConfidenceHigh, cfg.Voice.ConfidenceLow)
	}
	if len(cfg.LLM.Classifier.FastKeywords) == 0 || len(cfg.LLM.Classifier.FullKeywords) == 0 {
		t.Error("classifier keyword defaults not applied")
	}
	if cfg.LLM.Classifier.FastThresholdWords != 15 || cfg.LLM.Classifier.FullThresholdWords != 30 {
		t.Errorf("classifier thresholds: got %d/%d, want 15/30",
			cfg.LLM.Classifier.FastThresholdWords, cfg.LLM.Classifier.FullThresholdWords)
	}

	reg, err := cfg.Family.Registry()
	if err != nil {
		t.Fatalf("default registry: unexpected error: %v", err)
	}
	if got := len(reg.UserIDs()); got != 4 {
		t.Errorf("default registry size: got %d, want 4", got)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "verbose"
	cfg.Voice.ConfidenceHigh = 0.5
	cfg.Voice.ConfidenceLow = 0.7
	cfg.LLM.Memory.Backend = config.MemoryPostgres // dsn missing
	cfg.Learning.Notify.Mode = config.NotifyDiscord

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}

	msg := err.Error()
	for _, want := range []string{
		"logging.level",
		"confidence_high",
		"llm.memory.dsn",
		"learning.notify.discord.token",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("validation error does not mention %q:\n%s", want, msg)
		}
	}
}

func TestValidate_DeepgramRequiresKey(t *testing.T) {
	cfg := config.Default()
	cfg.Voice.Transcriber.Provider = config.TranscriberDeepgram

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "voice.transcriber.api_key") {
		t.Errorf("expected deepgram api key error, got %v", err)
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    time.Duration
		wantErr bool
	}{
		{name: "seconds", yaml: "llm: {runtime: {timeout: 15s}}", want: 15 * time.Second},
		{name: "compound", yaml: "llm: {runtime: {timeout: 1m30s}}", want: 90 * time.Second},
		{name: "integer nanoseconds", yaml: "llm: {runtime: {timeout: 1000000000}}", want: time.Second},
		{name: "garbage", yaml: "llm: {runtime: {timeout: soon}}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v, wantErr=%v", err, tt.wantErr)
			}
			if err == nil && cfg.LLM.Runtime.Timeout.Std() != tt.want {
				t.Errorf("timeout: got %v, want %v", cfg.LLM.Runtime.Timeout.Std(), tt.want)
			}
		})
	}
}
