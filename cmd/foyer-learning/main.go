// Command foyer-learning is the learning sidecar: it accepts corrections
// from the household, runs them through the validation gates and holds
// them for admin review before anything reaches memory.
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
	"github.com/foyerlabs/foyer/internal/learning"
	"github.com/foyerlabs/foyer/internal/notify"
	"github.com/foyerlabs/foyer/internal/observe"
	"github.com/foyerlabs/foyer/pkg/provider/llm/anyllm"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
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
			fmt.Fprintf(os.Stderr, "foyer-learning: config file %q not found — copy foyer.example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "foyer-learning: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(cfg.Logging.NewLogger())
	slog.Info("foyer-learning starting",
		"config", *configPath,
		"port", cfg.Learning.Port,
		"storage_dir", cfg.Learning.StorageDir,
		"llm_sidecar", cfg.Learning.LLMSidecarURL,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "foyer-learning"})
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

	// ── Correction store ──────────────────────────────────────────────────────
	store, err := learning.NewStore(cfg.Learning.StorageDir)
	if err != nil {
		slog.Error("failed to open correction store", "err", err)
		return 1
	}

	// ── LLM sidecar client + gates ────────────────────────────────────────────
	sidecar, err := learning.NewSidecarClient(cfg.Learning.LLMSidecarURL,
		learning.WithTimeout(cfg.Learning.GateTimeout.Std()))
	if err != nil {
		slog.Error("failed to build llm sidecar client", "err", err)
		return 1
	}

	gatesOpts := []learning.GatesOption{
		learning.WithExternalTimeout(cfg.Learning.External.Timeout.Std()),
		learning.WithExternalMaxTokens(cfg.Learning.External.MaxTokens),
	}
	if key := cfg.Learning.External.ResolveAPIKey(); key != "" {
		checker, err := anyllm.New(cfg.Learning.External.Provider, cfg.Learning.External.Model,
			anyllmlib.WithAPIKey(key))
		if err != nil {
			slog.Error("failed to build external fact-check provider", "err", err)
			return 1
		}
		gatesOpts = append(gatesOpts, learning.WithExternalChecker(checker))
		slog.Info("external fact-check enabled",
			"provider", cfg.Learning.External.Provider,
			"model", cfg.Learning.External.Model,
		)
	} else {
		slog.Info("external fact-check not configured — gate 2b will auto-pass")
	}
	gates := learning.NewGates(sidecar, cfg.Learning.PersonalInfoKeywords, gatesOpts...)

	// ── Review notifications ──────────────────────────────────────────────────
	pipeOpts := []learning.PipelineOption{
		learning.WithConfidenceThreshold(cfg.Learning.Gate2AConfidenceThreshold),
	}
	notifier, err := buildNotifier(cfg.Learning.Notify)
	if err != nil {
		slog.Error("failed to build notifier", "err", err)
		return 1
	}
	if notifier != nil {
		pipeOpts = append(pipeOpts, learning.WithNotifier(notifier))
		slog.Info("review notifications enabled", "mode", cfg.Learning.Notify.Mode)
	}

	// ── Pipeline + HTTP surface ───────────────────────────────────────────────
	pipeline := learning.NewPipeline(store, gates, pipeOpts...)
	server := learning.NewServer(store, pipeline, gates, sidecar, registry, nil)
	handler := observe.Middleware(observe.DefaultMetrics())(server.Handler())

	service := app.New("foyer-learning", fmt.Sprintf(":%d", cfg.Learning.Port), handler)

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

// buildNotifier constructs the configured review-notification channel.
// Mode "none" returns nil.
func buildNotifier(cfg config.NotifyConfig) (notify.Notifier, error) {
	switch cfg.Mode {
	case config.NotifyDesktop:
		return notify.NewDesktop(), nil
	case config.NotifyDiscord:
		return notify.NewDiscord(cfg.Discord.Token, cfg.Discord.ChannelID)
	default:
		return nil, nil
	}
}
