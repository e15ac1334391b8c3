// Command foyer-voice is the voice sidecar: speaker identification,
// transcription and the audit trail for household voice requests.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foyerlabs/foyer/internal/app"
	"github.com/foyerlabs/foyer/internal/config"
	"github.com/foyerlabs/foyer/internal/observe"
	"github.com/foyerlabs/foyer/internal/transcript"
	"github.com/foyerlabs/foyer/internal/voicepipe"
	"github.com/foyerlabs/foyer/pkg/provider/stt"
	"github.com/foyerlabs/foyer/pkg/provider/stt/deepgram"
	"github.com/foyerlabs/foyer/pkg/provider/stt/whisper"
	"github.com/foyerlabs/foyer/pkg/provider/vad/energy"
	"github.com/foyerlabs/foyer/pkg/provider/voiceprint/httpenc"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "foyer.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "foyer-voice: config file %q not found — copy foyer.example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "foyer-voice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(cfg.Logging.NewLogger())
	slog.Info("foyer-voice starting",
		"config", *configPath,
		"port", cfg.Voice.Port,
		"embeddings_dir", cfg.Voice.EmbeddingsDir,
		"transcriber", cfg.Voice.Transcriber.Provider,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "foyer-voice"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Household registry ────────────────────────────────────────────────────
	registry, err := cfg.Family.Registry()
	if err != nil {
		slog.Error("invalid family configuration", "err", err)
		return 1
	}

	// ── Fingerprint table ─────────────────────────────────────────────────────
	// The directory may be empty until the first enrollment; the service
	// starts anyway and /readyz reports not-ready until a table loads.
	if err := os.MkdirAll(cfg.Voice.EmbeddingsDir, 0o755); err != nil {
		slog.Error("failed to create embeddings directory", "dir", cfg.Voice.EmbeddingsDir, "err", err)
		return 1
	}
	prints := voicepipe.NewFingerprints(cfg.Voice.EmbeddingsDir, registry.UserIDs(), cfg.Voice.Voiceprint.Dimensions)
	loaded, missing := prints.Reload()
	if len(loaded) == 0 {
		slog.Warn("no voice fingerprints found — enroll users with foyer-enroll", "dir", cfg.Voice.EmbeddingsDir)
	} else {
		slog.Info("fingerprints loaded", "loaded", loaded, "missing", missing)
	}
	if cfg.Voice.WatchFingerprints {
		if err := prints.Watch(ctx); err != nil {
			slog.Error("failed to watch embeddings directory", "err", err)
			return 1
		}
	}

	// ── Speaker identification ────────────────────────────────────────────────
	encoder, err := httpenc.New(cfg.Voice.Voiceprint.BaseURL,
		httpenc.WithDimensions(cfg.Voice.Voiceprint.Dimensions))
	if err != nil {
		slog.Error("failed to build voiceprint encoder", "err", err)
		return 1
	}
	speaker := voicepipe.NewSpeakerIdentifier(encoder, prints,
		cfg.Voice.ConfidenceHigh, cfg.Voice.ConfidenceLow, registry.FallbackHierarchy())

	// ── Audit log ─────────────────────────────────────────────────────────────
	audit, err := voicepipe.NewAuditLog(cfg.Voice.AuditLog)
	if err != nil {
		slog.Error("failed to open audit log", "err", err)
		return 1
	}

	// ── Pipeline stages ───────────────────────────────────────────────────────
	opts := []voicepipe.PipelineOption{
		voicepipe.WithVAD(energy.New(
			energy.WithEnergyThreshold(cfg.Voice.VAD.EnergyThreshold),
			energy.WithMinSpeechRatio(cfg.Voice.VAD.MinSpeechRatio),
		)),
	}

	transcriber, err := buildTranscriber(cfg.Voice.Transcriber)
	if err != nil {
		slog.Error("failed to build transcriber", "err", err)
		return 1
	}
	if transcriber != nil {
		opts = append(opts, voicepipe.WithTranscriber(transcriber))
	}

	if cfg.Voice.CorrectTranscripts {
		vocab := registry.Vocabulary(cfg.Voice.ExtraVocabulary...)
		opts = append(opts, voicepipe.WithCorrector(transcript.New(vocab)))
		slog.Info("transcript correction enabled", "vocabulary_terms", len(vocab))
	}

	pipeline := voicepipe.NewPipeline(speaker, audit, opts...)

	// ── HTTP surface ──────────────────────────────────────────────────────────
	server := voicepipe.NewServer(pipeline, prints, nil)
	handler := observe.Middleware(observe.DefaultMetrics())(server.Handler())

	service := app.New("foyer-voice", fmt.Sprintf(":%d", cfg.Voice.Port), handler)
	service.OnClose("audit log", audit.Close)

	if err := service.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildTranscriber constructs the configured speech-to-text provider.
// Provider "none" returns nil: utterances are identified but not
// transcribed.
func buildTranscriber(cfg config.TranscriberConfig) (stt.Provider, error) {
	switch cfg.Provider {
	case config.TranscriberNone:
		return nil, nil
	case config.TranscriberDeepgram:
		var opts []deepgram.Option
		if cfg.Model != "" {
			opts = append(opts, deepgram.WithModel(cfg.Model))
		}
		if cfg.Language != "" {
			opts = append(opts, deepgram.WithLanguage(cfg.Language))
		}
		return deepgram.New(cfg.APIKey, opts...)
	case config.TranscriberWhisperNative:
		var opts []whisper.NativeOption
		if cfg.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(cfg.Language))
		}
		return whisper.NewNative(cfg.Model, opts...)
	default:
		var opts []whisper.Option
		if cfg.Model != "" {
			opts = append(opts, whisper.WithModel(cfg.Model))
		}
		if cfg.Language != "" {
			opts = append(opts, whisper.WithLanguage(cfg.Language))
		}
		return whisper.New(cfg.BaseURL, opts...)
	}
}
