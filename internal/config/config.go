// Package config provides the configuration schema and loader shared by all
// Foyer binaries.
//
// All services read one YAML file (default "foyer.yaml"); each binary uses
// its own section plus the shared logging and family sections. Unknown keys
// are errors, defaults are applied after decode, and validation reports
// every problem it finds rather than stopping at the first.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/foyerlabs/foyer/internal/family"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a slog.Level. Unrecognised values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// ClassifierMode selects the model-routing strategy of the LLM sidecar.
type ClassifierMode string

const (
	// ClassifierRules is the deterministic rule engine.
	ClassifierRules ClassifierMode = "rules"

	// ClassifierLLM asks the fast model for a routing verdict and falls
	// back to the rule engine on any error.
	ClassifierLLM ClassifierMode = "llm"
)

// IsValid reports whether m is a recognised classifier mode.
func (m ClassifierMode) IsValid() bool {
	return m == ClassifierRules || m == ClassifierLLM
}

// MemoryBackend selects the vector store implementation.
type MemoryBackend string

const (
	// MemoryChromem is the embedded persistent store.
	MemoryChromem MemoryBackend = "chromem"

	// MemoryPostgres is PostgreSQL with the pgvector extension.
	MemoryPostgres MemoryBackend = "postgres"
)

// IsValid reports whether b is a recognised memory backend.
func (b MemoryBackend) IsValid() bool {
	return b == MemoryChromem || b == MemoryPostgres
}

// EmbeddingsProvider selects the text-embedding backend.
type EmbeddingsProvider string

const (
	EmbeddingsOllama EmbeddingsProvider = "ollama"
	EmbeddingsOpenAI EmbeddingsProvider = "openai"
)

// IsValid reports whether p is a recognised embeddings provider.
func (p EmbeddingsProvider) IsValid() bool {
	return p == EmbeddingsOllama || p == EmbeddingsOpenAI
}

// TranscriberProvider selects the speech-to-text backend.
type TranscriberProvider string

const (
	// TranscriberWhisper talks to a whisper-server over HTTP.
	TranscriberWhisper TranscriberProvider = "whisper"

	// TranscriberWhisperNative runs whisper.cpp in-process via CGO.
	// Building needs the whisper.cpp static library on the link path.
	TranscriberWhisperNative TranscriberProvider = "whisper-native"

	// TranscriberDeepgram uses the Deepgram streaming API.
	TranscriberDeepgram TranscriberProvider = "deepgram"

	// TranscriberNone disables transcription; utterances are identified
	// but never transcribed.
	TranscriberNone TranscriberProvider = "none"
)

// IsValid reports whether p is a recognised transcriber provider.
func (p TranscriberProvider) IsValid() bool {
	switch p {
	case TranscriberWhisper, TranscriberWhisperNative, TranscriberDeepgram, TranscriberNone:
		return true
	}
	return false
}

// NotifyMode selects the admin-review notification channel.
type NotifyMode string

const (
	NotifyNone    NotifyMode = "none"
	NotifyDesktop NotifyMode = "desktop"
	NotifyDiscord NotifyMode = "discord"
)

// IsValid reports whether m is a recognised notify mode.
func (m NotifyMode) IsValid() bool {
	switch m {
	case NotifyNone, NotifyDesktop, NotifyDiscord:
		return true
	}
	return false
}

// Duration wraps time.Duration for YAML decoding of values like "15s" or
// "2m30s". Plain integers are taken as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		var ns int64
		if err := unmarshal(&ns); err != nil {
			return fmt.Errorf("duration must be a string like \"15s\" or an integer nanosecond count")
		}
		*d = Duration(ns)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration structure shared by all Foyer binaries.
// Load it with [Load] or [LoadFromReader].
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Family   FamilyConfig   `yaml:"family"`
	LLM      LLMConfig      `yaml:"llm"`
	Voice    VoiceConfig    `yaml:"voice"`
	Learning LearningConfig `yaml:"learning"`
	Gateway  GatewayConfig  `yaml:"gateway"`
}

// LoggingConfig controls the slog handler every binary installs.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// NewLogger builds the process logger described by l, writing to stderr.
func (l LoggingConfig) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.Level.Level()}
	if l.Format == LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// FamilyConfig declares the household roster. An empty Users list selects
// the reference household (dad, mom, teen, child).
type FamilyConfig struct {
	Users             []UserConfig `yaml:"users"`
	FallbackHierarchy []string     `yaml:"fallback_hierarchy"`
}

// UserConfig declares one household profile.
type UserConfig struct {
	ID              string                 `yaml:"id"`
	Role            family.Role            `yaml:"role"`
	DisplayName     string                 `yaml:"display_name"`
	Aliases         []string               `yaml:"aliases"`
	ModelPreference family.ModelPreference `yaml:"model_preference"`
	SystemPrompt    string                 `yaml:"system_prompt"`
}

// Registry builds the family.Registry described by f.
func (f FamilyConfig) Registry() (*family.Registry, error) {
	if len(f.Users) == 0 && len(f.FallbackHierarchy) == 0 {
		return family.Default(), nil
	}

	profiles := make([]family.Profile, 0, len(f.Users))
	for _, u := range f.Users {
		profiles = append(profiles, family.Profile{
			ID:              u.ID,
			Role:            u.Role,
			DisplayName:     u.DisplayName,
			Aliases:         u.Aliases,
			ModelPreference: u.ModelPreference,
			SystemPrompt:    u.SystemPrompt,
		})
	}
	if len(profiles) == 0 {
		profiles = family.Default().Profiles()
	}
	return family.New(profiles, f.FallbackHierarchy)
}

// LLMConfig configures the LLM sidecar (foyer-llm).
type LLMConfig struct {
	Port                int              `yaml:"port"`
	Runtime             RuntimeConfig    `yaml:"runtime"`
	Models              ModelsConfig     `yaml:"models"`
	Embeddings          EmbeddingsConfig `yaml:"embeddings"`
	Memory              MemoryConfig     `yaml:"memory"`
	Classifier          ClassifierConfig `yaml:"classifier"`
	DefaultSystemPrompt string           `yaml:"default_system_prompt"`
}

// RuntimeConfig points at the local model runtime (Ollama-compatible API).
type RuntimeConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// ModelsConfig names the two model tiers the classifier routes between.
type ModelsConfig struct {
	Fast string `yaml:"fast"`
	Full string `yaml:"full"`
}

// ModelFor resolves a classifier model key ("fast"/"full") to the
// configured model name. Unknown keys resolve to the fast model.
func (m ModelsConfig) ModelFor(key string) string {
	if key == "full" {
		return m.Full
	}
	return m.Fast
}

// EmbeddingsConfig configures the text-embedding provider for memory.
type EmbeddingsConfig struct {
	Provider EmbeddingsProvider `yaml:"provider"`
	BaseURL  string             `yaml:"base_url"`
	Model    string             `yaml:"model"`
	APIKey   string             `yaml:"api_key"`
}

// MemoryConfig configures the per-user vector memory.
type MemoryConfig struct {
	Backend  MemoryBackend `yaml:"backend"`
	Path     string        `yaml:"path"`
	DSN      string        `yaml:"dsn"`
	ChatTopK int           `yaml:"chat_top_k"`
}

// ClassifierConfig tunes the model-routing classifier.
type ClassifierConfig struct {
	Mode               ClassifierMode `yaml:"mode"`
	FastKeywords       []string       `yaml:"fast_keywords"`
	FullKeywords       []string       `yaml:"full_keywords"`
	FastThresholdWords int            `yaml:"fast_threshold_words"`
	FullThresholdWords int            `yaml:"full_threshold_words"`
}

// VoiceConfig configures the voice sidecar (foyer-voice).
type VoiceConfig struct {
	Port               int               `yaml:"port"`
	EmbeddingsDir      string            `yaml:"embeddings_dir"`
	AuditLog           string            `yaml:"audit_log"`
	ConfidenceHigh     float64           `yaml:"confidence_high"`
	ConfidenceLow      float64           `yaml:"confidence_low"`
	VAD                VADConfig         `yaml:"vad"`
	Transcriber        TranscriberConfig `yaml:"transcriber"`
	Voiceprint         VoiceprintConfig  `yaml:"voiceprint"`
	CorrectTranscripts bool              `yaml:"correct_transcripts"`
	ExtraVocabulary    []string          `yaml:"extra_vocabulary"`
	WatchFingerprints  bool              `yaml:"watch_fingerprints"`
}

// VADConfig tunes the energy voice-activity detector.
type VADConfig struct {
	EnergyThreshold float64 `yaml:"energy_threshold"`
	MinSpeechRatio  float64 `yaml:"min_speech_ratio"`
}

// TranscriberConfig selects and configures the speech-to-text backend.
type TranscriberConfig struct {
	Provider TranscriberProvider `yaml:"provider"`
	BaseURL  string              `yaml:"base_url"`
	Model    string              `yaml:"model"`
	Language string              `yaml:"language"`
	APIKey   string              `yaml:"api_key"`
}

// VoiceprintConfig points at the speaker-embedding encoder service.
type VoiceprintConfig struct {
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
}

// LearningConfig configures the learning sidecar (foyer-learning).
type LearningConfig struct {
	Port                      int                 `yaml:"port"`
	StorageDir                string              `yaml:"storage_dir"`
	LLMSidecarURL             string              `yaml:"llm_sidecar_url"`
	GateTimeout               Duration            `yaml:"gate_timeout"`
	Gate2AConfidenceThreshold float64             `yaml:"gate2a_confidence_threshold"`
	PersonalInfoKeywords      []string            `yaml:"personal_info_keywords"`
	External                  ExternalCheckConfig `yaml:"external"`
	Notify                    NotifyConfig        `yaml:"notify"`
}

// ExternalCheckConfig configures the external fact-check vendor (gate 2b).
type ExternalCheckConfig struct {
	Provider  string   `yaml:"provider"`
	Model     string   `yaml:"model"`
	APIKey    string   `yaml:"api_key"`
	APIKeyEnv string   `yaml:"api_key_env"`
	MaxTokens int      `yaml:"max_tokens"`
	Timeout   Duration `yaml:"timeout"`
}

// ResolveAPIKey returns the configured API key, falling back to the
// environment variable named by APIKeyEnv. Empty means not configured.
func (e ExternalCheckConfig) ResolveAPIKey() string {
	if e.APIKey != "" {
		return e.APIKey
	}
	if e.APIKeyEnv != "" {
		return os.Getenv(e.APIKeyEnv)
	}
	return ""
}

// NotifyConfig selects the admin-review notification channel.
type NotifyConfig struct {
	Mode    NotifyMode          `yaml:"mode"`
	Discord DiscordNotifyConfig `yaml:"discord"`
}

// DiscordNotifyConfig configures the Discord notification channel.
type DiscordNotifyConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// GatewayConfig configures the orchestrator (foyer-gateway).
type GatewayConfig struct {
	Port           int      `yaml:"port"`
	VoiceURL       string   `yaml:"voice_url"`
	LLMURL         string   `yaml:"llm_url"`
	LearningURL    string   `yaml:"learning_url"`
	SidecarTimeout Duration `yaml:"sidecar_timeout"`
}
