package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default keyword lists for the rule classifier. Short conversational
// messages route to the fast model, analytical prompts to the full one.
var (
	DefaultFastKeywords = []string{
		"bonjour", "merci", "salut", "hello", "thanks",
		"ok", "oui", "non", "quoi", "c'est quoi", "c'est qui",
	}
	DefaultFullKeywords = []string{
		"explique", "analyse", "compare", "pourquoi", "comment fonctionne",
		"quelle est la différence", "pros and cons", "débat",
	}
)

// DefaultPersonalInfoKeywords flags corrections that describe the household
// itself; such corrections never leave the machine for external fact-check.
var DefaultPersonalInfoKeywords = []string{
	"ma femme", "mon mari", "ma fille", "mon fils",
	"ma mère", "mon père", "ma sœur", "mon frère",
	"notre famille", "mon anniversaire", "notre maison",
	"my wife", "my husband", "my daughter", "my son",
	"my birthday", "our family", "our house",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration a missing file would produce: every
// field at its documented default.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field of cfg with its documented default.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogText
	}

	// LLM sidecar
	if cfg.LLM.Port == 0 {
		cfg.LLM.Port = 10002
	}
	if cfg.LLM.Runtime.BaseURL == "" {
		cfg.LLM.Runtime.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Runtime.Timeout == 0 {
		cfg.LLM.Runtime.Timeout = Duration(60 * time.Second)
	}
	if cfg.LLM.Models.Fast == "" {
		cfg.LLM.Models.Fast = "llama3.2:3b-instruct-q4_0"
	}
	if cfg.LLM.Models.Full == "" {
		cfg.LLM.Models.Full = "llama3.1:8b-instruct-q4_0"
	}
	if cfg.LLM.Embeddings.Provider == "" {
		cfg.LLM.Embeddings.Provider = EmbeddingsOllama
	}
	// The base URL default is Ollama's; the OpenAI provider knows its own
	// endpoint and only honours an explicit override.
	if cfg.LLM.Embeddings.BaseURL == "" && cfg.LLM.Embeddings.Provider == EmbeddingsOllama {
		cfg.LLM.Embeddings.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Embeddings.Model == "" {
		cfg.LLM.Embeddings.Model = "all-minilm"
	}
	if cfg.LLM.Memory.Backend == "" {
		cfg.LLM.Memory.Backend = MemoryChromem
	}
	if cfg.LLM.Memory.Path == "" {
		cfg.LLM.Memory.Path = "data/llm/memory"
	}
	if cfg.LLM.Memory.ChatTopK == 0 {
		cfg.LLM.Memory.ChatTopK = 5
	}
	if cfg.LLM.Classifier.Mode == "" {
		cfg.LLM.Classifier.Mode = ClassifierRules
	}
	if cfg.LLM.Classifier.FastKeywords == nil {
		cfg.LLM.Classifier.FastKeywords = DefaultFastKeywords
	}
	if cfg.LLM.Classifier.FullKeywords == nil {
		cfg.LLM.Classifier.FullKeywords = DefaultFullKeywords
	}
	if cfg.LLM.Classifier.FastThresholdWords == 0 {
		cfg.LLM.Classifier.FastThresholdWords = 15
	}
	if cfg.LLM.Classifier.FullThresholdWords == 0 {
		cfg.LLM.Classifier.FullThresholdWords = 30
	}

	// Voice sidecar
	if cfg.Voice.Port == 0 {
		cfg.Voice.Port = 10001
	}
	if cfg.Voice.EmbeddingsDir == "" {
		cfg.Voice.EmbeddingsDir = "data/voice/embeddings"
	}
	if cfg.Voice.AuditLog == "" {
		cfg.Voice.AuditLog = "data/voice/access.jsonl"
	}
	if cfg.Voice.ConfidenceHigh == 0 {
		cfg.Voice.ConfidenceHigh = 0.75
	}
	if cfg.Voice.ConfidenceLow == 0 {
		cfg.Voice.ConfidenceLow = 0.60
	}
	if cfg.Voice.VAD.EnergyThreshold == 0 {
		cfg.Voice.VAD.EnergyThreshold = 0.012
	}
	if cfg.Voice.VAD.MinSpeechRatio == 0 {
		cfg.Voice.VAD.MinSpeechRatio = 0.1
	}
	if cfg.Voice.Transcriber.Provider == "" {
		cfg.Voice.Transcriber.Provider = TranscriberWhisper
	}
	if cfg.Voice.Transcriber.BaseURL == "" {
		cfg.Voice.Transcriber.BaseURL = "http://localhost:8001"
	}
	if cfg.Voice.Transcriber.Model == "" {
		cfg.Voice.Transcriber.Model = "base"
	}
	if cfg.Voice.Voiceprint.BaseURL == "" {
		cfg.Voice.Voiceprint.BaseURL = "http://localhost:8002"
	}
	if cfg.Voice.Voiceprint.Dimensions == 0 {
		cfg.Voice.Voiceprint.Dimensions = 256
	}

	// Learning sidecar
	if cfg.Learning.Port == 0 {
		cfg.Learning.Port = 10003
	}
	if cfg.Learning.StorageDir == "" {
		cfg.Learning.StorageDir = "data/learning"
	}
	if cfg.Learning.LLMSidecarURL == "" {
		cfg.Learning.LLMSidecarURL = "http://localhost:10002"
	}
	if cfg.Learning.GateTimeout == 0 {
		cfg.Learning.GateTimeout = Duration(30 * time.Second)
	}
	if cfg.Learning.Gate2AConfidenceThreshold == 0 {
		cfg.Learning.Gate2AConfidenceThreshold = 0.80
	}
	if cfg.Learning.PersonalInfoKeywords == nil {
		cfg.Learning.PersonalInfoKeywords = DefaultPersonalInfoKeywords
	}
	if cfg.Learning.External.Provider == "" {
		cfg.Learning.External.Provider = "anthropic"
	}
	if cfg.Learning.External.Model == "" {
		cfg.Learning.External.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Learning.External.APIKeyEnv == "" {
		cfg.Learning.External.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if cfg.Learning.External.MaxTokens == 0 {
		cfg.Learning.External.MaxTokens = 256
	}
	if cfg.Learning.External.Timeout == 0 {
		cfg.Learning.External.Timeout = Duration(15 * time.Second)
	}
	if cfg.Learning.Notify.Mode == "" {
		cfg.Learning.Notify.Mode = NotifyNone
	}

	// Gateway
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 8080
	}
	if cfg.Gateway.VoiceURL == "" {
		cfg.Gateway.VoiceURL = "http://localhost:10001"
	}
	if cfg.Gateway.LLMURL == "" {
		cfg.Gateway.LLMURL = "http://localhost:10002"
	}
	if cfg.Gateway.LearningURL == "" {
		cfg.Gateway.LearningURL = "http://localhost:10003"
	}
	if cfg.Gateway.SidecarTimeout == 0 {
		cfg.Gateway.SidecarTimeout = Duration(120 * time.Second)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}
	if !cfg.Logging.Format.IsValid() {
		errs = append(errs, fmt.Errorf("logging.format %q is invalid; valid values: text, json", cfg.Logging.Format))
	}

	if _, err := cfg.Family.Registry(); err != nil {
		errs = append(errs, err)
	}

	// LLM sidecar
	validatePort(&errs, "llm.port", cfg.LLM.Port)
	validateURL(&errs, "llm.runtime.base_url", cfg.LLM.Runtime.BaseURL)
	if !cfg.LLM.Embeddings.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("llm.embeddings.provider %q is invalid; valid values: ollama, openai", cfg.LLM.Embeddings.Provider))
	}
	if cfg.LLM.Embeddings.Provider == EmbeddingsOpenAI && cfg.LLM.Embeddings.APIKey == "" {
		slog.Warn("llm.embeddings.provider is openai but no api_key is set; the provider will rely on its environment")
	}
	if !cfg.LLM.Memory.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("llm.memory.backend %q is invalid; valid values: chromem, postgres", cfg.LLM.Memory.Backend))
	}
	if cfg.LLM.Memory.Backend == MemoryPostgres && cfg.LLM.Memory.DSN == "" {
		errs = append(errs, fmt.Errorf("llm.memory.dsn is required when llm.memory.backend is postgres"))
	}
	if cfg.LLM.Memory.ChatTopK < 0 {
		errs = append(errs, fmt.Errorf("llm.memory.chat_top_k %d must not be negative", cfg.LLM.Memory.ChatTopK))
	}
	if !cfg.LLM.Classifier.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("llm.classifier.mode %q is invalid; valid values: rules, llm", cfg.LLM.Classifier.Mode))
	}
	if cfg.LLM.Classifier.FastThresholdWords > cfg.LLM.Classifier.FullThresholdWords {
		errs = append(errs, fmt.Errorf("llm.classifier.fast_threshold_words %d must not exceed full_threshold_words %d",
			cfg.LLM.Classifier.FastThresholdWords, cfg.LLM.Classifier.FullThresholdWords))
	}

	// Voice sidecar
	validatePort(&errs, "voice.port", cfg.Voice.Port)
	if cfg.Voice.ConfidenceHigh < cfg.Voice.ConfidenceLow {
		errs = append(errs, fmt.Errorf("voice.confidence_high %.2f must not be below voice.confidence_low %.2f",
			cfg.Voice.ConfidenceHigh, cfg.Voice.ConfidenceLow))
	}
	for name, v := range map[string]float64{
		"voice.confidence_high":      cfg.Voice.ConfidenceHigh,
		"voice.confidence_low":       cfg.Voice.ConfidenceLow,
		"voice.vad.min_speech_ratio": cfg.Voice.VAD.MinSpeechRatio,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", name, v))
		}
	}
	if !cfg.Voice.Transcriber.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("voice.transcriber.provider %q is invalid; valid values: whisper, whisper-native, deepgram, none", cfg.Voice.Transcriber.Provider))
	}
	if cfg.Voice.Transcriber.Provider == TranscriberDeepgram && cfg.Voice.Transcriber.APIKey == "" {
		errs = append(errs, fmt.Errorf("voice.transcriber.api_key is required when voice.transcriber.provider is deepgram"))
	}
	if cfg.Voice.Voiceprint.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("voice.voiceprint.dimensions %d must be positive", cfg.Voice.Voiceprint.Dimensions))
	}

	// Learning sidecar
	validatePort(&errs, "learning.port", cfg.Learning.Port)
	validateURL(&errs, "learning.llm_sidecar_url", cfg.Learning.LLMSidecarURL)
	if t := cfg.Learning.Gate2AConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("learning.gate2a_confidence_threshold %.2f is out of range [0, 1]", t))
	}
	if !cfg.Learning.Notify.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("learning.notify.mode %q is invalid; valid values: none, desktop, discord", cfg.Learning.Notify.Mode))
	}
	if cfg.Learning.Notify.Mode == NotifyDiscord {
		if cfg.Learning.Notify.Discord.Token == "" {
			errs = append(errs, fmt.Errorf("learning.notify.discord.token is required when learning.notify.mode is discord"))
		}
		if cfg.Learning.Notify.Discord.ChannelID == "" {
			errs = append(errs, fmt.Errorf("learning.notify.discord.channel_id is required when learning.notify.mode is discord"))
		}
	}
	if cfg.Learning.External.ResolveAPIKey() == "" {
		slog.Warn("learning external fact-check has no API key; gate 2b will auto-pass",
			"provider", cfg.Learning.External.Provider,
			"env", cfg.Learning.External.APIKeyEnv,
		)
	}

	// Gateway
	validatePort(&errs, "gateway.port", cfg.Gateway.Port)
	validateURL(&errs, "gateway.voice_url", cfg.Gateway.VoiceURL)
	validateURL(&errs, "gateway.llm_url", cfg.Gateway.LLMURL)
	validateURL(&errs, "gateway.learning_url", cfg.Gateway.LearningURL)

	return errors.Join(errs...)
}

func validatePort(errs *[]error, name string, port int) {
	if port <= 0 || port > 65535 {
		*errs = append(*errs, fmt.Errorf("%s %d is out of range [1, 65535]", name, port))
	}
}

func validateURL(errs *[]error, name, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		*errs = append(*errs, fmt.Errorf("%s %q is not an absolute URL", name, raw))
	}
}
