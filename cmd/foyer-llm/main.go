// Command foyer-llm is the LLM sidecar: per-user chat with memory recall,
// model routing and the memory CRUD surface of the household assistant.
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
	"github.com/foyerlabs/foyer/internal/classifier"
	"github.com/foyerlabs/foyer/internal/config"
	"github.com/foyerlabs/foyer/internal/inference"
	"github.com/foyerlabs/foyer/internal/observe"
	"github.com/foyerlabs/foyer/pkg/memory"
	"github.com/foyerlabs/foyer/pkg/memory/chromem"
	pgstore "github.com/foyerlabs/foyer/pkg/memory/postgres"
	"github.com/foyerlabs/foyer/pkg/provider/embeddings"
	ollamaembed "github.com/foyerlabs/foyer/pkg/provider/embeddings/ollama"
	oaembed "github.com/foyerlabs/foyer/pkg/provider/embeddings/openai"
	ollamallm "github.com/foyerlabs/foyer/pkg/provider/llm/ollama"
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
			fmt.Fprintf(os.Stderr, "foyer-llm: config file %q not found — copy foyer.example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "foyer-llm: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(cfg.Logging.NewLogger())
	slog.Info("foyer-llm starting",
		"config", *configPath,
		"port", cfg.LLM.Port,
		"runtime", cfg.LLM.Runtime.BaseURL,
		"models", cfg.LLM.Models.Fast+" / "+cfg.LLM.Models.Full,
		"memory_backend", cfg.LLM.Memory.Backend,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	// Must run before any component grabs observe.DefaultMetrics, so the
	// instruments bind to the Prometheus-backed provider.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "foyer-llm"})
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

	// ── Embeddings + memory store ─────────────────────────────────────────────
	embedder, err := buildEmbedder(cfg.LLM.Embeddings)
	if err != nil {
		slog.Error("failed to build embeddings provider", "err", err)
		return 1
	}

	store, err := buildStore(ctx, cfg.LLM.Memory, registry.UserIDs(), embedder)
	if err != nil {
		slog.Error("failed to open memory store", "err", err)
		return 1
	}
	slog.Info("memory store ready", "backend", cfg.LLM.Memory.Backend, "users", len(registry.UserIDs()))

	// ── Model runtime + classifier ────────────────────────────────────────────
	runtime, err := ollamallm.New(cfg.LLM.Runtime.BaseURL, cfg.LLM.Models.Fast,
		ollamallm.WithTimeout(cfg.LLM.Runtime.Timeout.Std()))
	if err != nil {
		slog.Error("failed to build model runtime", "err", err)
		return 1
	}

	rules := classifier.NewRules(registry, cfg.LLM.Classifier)
	var clf classifier.Classifier = rules
	if cfg.LLM.Classifier.Mode == config.ClassifierLLM {
		clf = classifier.NewLLM(runtime, cfg.LLM.Models.Fast, rules)
	}

	// ── Engine + HTTP surface ─────────────────────────────────────────────────
	engine := inference.New(clf, store, runtime, registry, cfg.LLM.Models,
		inference.WithChatTopK(cfg.LLM.Memory.ChatTopK),
		inference.WithDefaultSystemPrompt(cfg.LLM.DefaultSystemPrompt),
	)
	server := inference.NewServer(engine, store, registry, nil)
	handler := observe.Middleware(observe.DefaultMetrics())(server.Handler())

	service := app.New("foyer-llm", fmt.Sprintf(":%d", cfg.LLM.Port), handler)
	service.OnClose("memory store", store.Close)

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

// buildEmbedder constructs the text-embedding provider for memory.
func buildEmbedder(cfg config.EmbeddingsConfig) (embeddings.Provider, error) {
	switch cfg.Provider {
	case config.EmbeddingsOpenAI:
		var opts []oaembed.Option
		if cfg.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(cfg.BaseURL))
		}
		return oaembed.New(cfg.APIKey, cfg.Model, opts...)
	default:
		return ollamaembed.New(cfg.BaseURL, cfg.Model)
	}
}

// buildStore opens the configured vector memory backend with one private
// collection per family member plus the shared one.
func buildStore(ctx context.Context, cfg config.MemoryConfig, users []string, embedder embeddings.Provider) (memory.Store, error) {
	switch cfg.Backend {
	case config.MemoryPostgres:
		return pgstore.New(ctx, cfg.DSN, users, embedder)
	default:
		return chromem.New(cfg.Path, users, embedder)
	}
}
