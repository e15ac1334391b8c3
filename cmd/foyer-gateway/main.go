// Command foyer-gateway is the household-facing edge: it validates
// requests, fronts the three sidecars and merges the voice → chat chain
// into a single reply.
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
	"github.com/foyerlabs/foyer/internal/gateway"
	"github.com/foyerlabs/foyer/internal/observe"
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
			fmt.Fprintf(os.Stderr, "foyer-gateway: config file %q not found — copy foyer.example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "foyer-gateway: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(cfg.Logging.NewLogger())
	slog.Info("foyer-gateway starting",
		"config", *configPath,
		"port", cfg.Gateway.Port,
		"voice", cfg.Gateway.VoiceURL,
		"llm", cfg.Gateway.LLMURL,
		"learning", cfg.Gateway.LearningURL,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "foyer-gateway"})
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

	// ── Sidecar clients ───────────────────────────────────────────────────────
	timeout := gateway.WithTimeout(cfg.Gateway.SidecarTimeout.Std())
	voice, err := gateway.NewVoiceClient(cfg.Gateway.VoiceURL, timeout)
	if err != nil {
		slog.Error("failed to build voice client", "err", err)
		return 1
	}
	chat, err := gateway.NewLLMClient(cfg.Gateway.LLMURL, timeout)
	if err != nil {
		slog.Error("failed to build llm client", "err", err)
		return 1
	}
	learn, err := gateway.NewLearningClient(cfg.Gateway.LearningURL, timeout)
	if err != nil {
		slog.Error("failed to build learning client", "err", err)
		return 1
	}

	// ── HTTP surface ──────────────────────────────────────────────────────────
	server := gateway.NewServer(voice, chat, learn, registry)
	handler := observe.Middleware(observe.DefaultMetrics())(server.Handler())

	service := app.New("foyer-gateway", fmt.Sprintf(":%d", cfg.Gateway.Port), handler)

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
