// Command foyer-mcp exposes household memory and chat as Model Context
// Protocol tools over stdio, backed by the LLM sidecar.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/foyerlabs/foyer/internal/config"
	"github.com/foyerlabs/foyer/internal/mcp"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	llmURL := flag.String("llm-url", "http://localhost:10002", "base URL of the LLM sidecar")
	logLevel := flag.String("log-level", "info", "log verbosity: debug, info, warn or error")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	// stdout carries the MCP transport; everything else goes to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.LogLevel(*logLevel).Level(),
	})))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Sidecar client ────────────────────────────────────────────────────────
	client, err := mcp.NewSidecarClient(*llmURL)
	if err != nil {
		slog.Error("failed to build sidecar client", "err", err)
		return 1
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := client.Health(probeCtx); err != nil {
		slog.Warn("llm sidecar unreachable — tool calls will fail until it returns",
			"url", *llmURL, "err", err)
	}
	cancel()

	// ── Serve ─────────────────────────────────────────────────────────────────
	server := mcp.NewServer(client)
	slog.Info("foyer-mcp serving tools over stdio", "llm_sidecar", *llmURL)

	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("mcp server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}
