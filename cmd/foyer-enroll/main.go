// Command foyer-enroll creates or replaces a family member's voice
// fingerprint from a handful of WAV samples. Each sample is downmixed,
// resampled and embedded by the voiceprint encoder; the averaged,
// L2-normalized embedding lands as <user>.npy in the embeddings
// directory, where the voice sidecar picks it up.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/foyerlabs/foyer/internal/config"
	"github.com/foyerlabs/foyer/pkg/audio"
	"github.com/foyerlabs/foyer/pkg/npy"
	"github.com/foyerlabs/foyer/pkg/provider/voiceprint"
	"github.com/foyerlabs/foyer/pkg/provider/voiceprint/httpenc"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "foyer.yaml", "path to the YAML configuration file")
	user := flag.String("user", "", "family member id to enroll (required)")
	out := flag.String("out", "", "embeddings directory (default: voice.embeddings_dir from config)")
	encoderURL := flag.String("encoder-url", "", "voiceprint encoder base URL (default: voice.voiceprint.base_url from config)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	// Enrollment usually runs before any service, so a missing config file
	// falls back to the documented defaults instead of failing.
	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "foyer-enroll: %v\n", err)
		return 1
	}

	slog.SetDefault(cfg.Logging.NewLogger())

	if *out == "" {
		*out = cfg.Voice.EmbeddingsDir
	}
	if *encoderURL == "" {
		*encoderURL = cfg.Voice.Voiceprint.BaseURL
	}

	// ── Validate arguments ────────────────────────────────────────────────────
	registry, err := cfg.Family.Registry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "foyer-enroll: invalid family configuration: %v\n", err)
		return 1
	}

	if *user == "" {
		fmt.Fprintln(os.Stderr, "foyer-enroll: -user is required")
		flag.Usage()
		return 2
	}
	if _, ok := registry.Get(*user); !ok {
		if suggestion, ok := registry.Closest(*user); ok {
			fmt.Fprintf(os.Stderr, "foyer-enroll: unknown user %q — did you mean %q?\n", *user, suggestion)
		} else {
			fmt.Fprintf(os.Stderr, "foyer-enroll: unknown user %q; known users: %s\n",
				*user, strings.Join(registry.UserIDs(), ", "))
		}
		return 2
	}

	samples := flag.Args()
	if len(samples) == 0 {
		fmt.Fprintln(os.Stderr, "foyer-enroll: at least one WAV sample is required")
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Encode samples ────────────────────────────────────────────────────────
	encoder, err := httpenc.New(*encoderURL, httpenc.WithDimensions(cfg.Voice.Voiceprint.Dimensions))
	if err != nil {
		fmt.Fprintf(os.Stderr, "foyer-enroll: %v\n", err)
		return 1
	}

	slog.Info("enrolling user", "user", *user, "samples", len(samples), "encoder", *encoderURL)

	fingerprint, err := averageEmbeddings(ctx, encoder, samples)
	if err != nil {
		fmt.Fprintf(os.Stderr, "foyer-enroll: %v\n", err)
		return 1
	}

	// ── Write fingerprint ─────────────────────────────────────────────────────
	if err := os.MkdirAll(*out, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "foyer-enroll: create %s: %v\n", *out, err)
		return 1
	}
	path := filepath.Join(*out, *user+".npy")
	if err := writeFingerprint(path, fingerprint); err != nil {
		fmt.Fprintf(os.Stderr, "foyer-enroll: %v\n", err)
		return 1
	}

	slog.Info("fingerprint written",
		"user", *user,
		"file", path,
		"samples", len(samples),
		"dimensions", len(fingerprint),
	)
	return 0
}

// averageEmbeddings embeds every sample and returns the L2-normalized mean
// embedding. The mean of per-utterance embeddings is the standard enrollment
// fingerprint: it smooths over per-clip noise while staying comparable under
// cosine similarity.
func averageEmbeddings(ctx context.Context, encoder voiceprint.Encoder, paths []string) ([]float32, error) {
	var sum []float64
	for i, path := range paths {
		slog.Info("processing sample", "n", i+1, "of", len(paths), "file", filepath.Base(path))

		embedding, err := embedSample(ctx, encoder, path)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", path, err)
		}
		if sum == nil {
			sum = make([]float64, len(embedding))
		}
		if len(embedding) != len(sum) {
			return nil, fmt.Errorf("sample %s: embedding has %d dimensions, previous samples had %d",
				path, len(embedding), len(sum))
		}
		for j, v := range embedding {
			sum[j] += float64(v)
		}
	}

	n := float64(len(paths))
	var norm float64
	for j := range sum {
		sum[j] /= n
		norm += sum[j] * sum[j]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, fmt.Errorf("averaged embedding is the zero vector")
	}

	fingerprint := make([]float32, len(sum))
	for j, v := range sum {
		fingerprint[j] = float32(v / norm)
	}
	return fingerprint, nil
}

// embedSample decodes one WAV file, converts it to mono 16 kHz and runs it
// through the encoder.
func embedSample(ctx context.Context, encoder voiceprint.Encoder, path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	frame, err := audio.DecodeWAV(f)
	if err != nil {
		return nil, err
	}
	frame = audio.ToMono16k(frame)

	return encoder.Encode(ctx, audio.Float32Samples(frame.Data), frame.SampleRate)
}

// writeFingerprint saves vec as a NumPy vector file.
func writeFingerprint(path string, vec []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := npy.WriteVector(f, vec); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
