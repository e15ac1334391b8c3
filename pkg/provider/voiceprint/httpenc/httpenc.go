// Package httpenc provides a voiceprint.Encoder backed by an embedding
// service over HTTP.
//
// The service contract is minimal: POST {base}/embed with a 16-bit PCM WAV
// body returns {"embedding": [..]}. A thin wrapper around a speaker-encoder
// model (for example a resemblyzer microservice) satisfies it.
package httpenc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/foyerlabs/foyer/pkg/audio"
	"github.com/foyerlabs/foyer/pkg/provider/voiceprint"
)

// DefaultDimensions is the embedding size produced by the reference encoder.
const DefaultDimensions = 256

var _ voiceprint.Encoder = (*Encoder)(nil)

// Encoder implements voiceprint.Encoder against an HTTP embedding service.
// It is safe for concurrent use.
type Encoder struct {
	baseURL    string
	dimensions int
	httpClient *http.Client
}

// Option is a functional option for Encoder.
type Option func(*Encoder)

// WithTimeout sets a per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(e *Encoder) {
		if d > 0 {
			e.httpClient.Timeout = d
		}
	}
}

// WithDimensions sets the expected embedding dimensionality. Responses with
// any other length are rejected. Defaults to DefaultDimensions.
func WithDimensions(n int) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.dimensions = n
		}
	}
}

// New constructs an Encoder for the service at baseURL.
func New(baseURL string, opts ...Option) (*Encoder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("httpenc: base URL must not be empty")
	}

	e := &Encoder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		dimensions: DefaultDimensions,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Encode implements voiceprint.Encoder. The samples are WAV-encoded and sent
// as the request body.
func (e *Encoder) Encode(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("httpenc: empty utterance")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("httpenc: invalid sample rate %d", sampleRate)
	}

	var body bytes.Buffer
	frame := audio.Frame{
		Data:       audio.FromFloat32(samples),
		SampleRate: sampleRate,
		Channels:   1,
	}
	if err := audio.EncodeWAV(&body, frame); err != nil {
		return nil, fmt.Errorf("httpenc: encode wav: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", &body)
	if err != nil {
		return nil, fmt.Errorf("httpenc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpenc: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("httpenc: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("httpenc: decode response: %w", err)
	}
	if len(result.Embedding) != e.dimensions {
		return nil, fmt.Errorf("httpenc: embedding has %d dimensions, want %d", len(result.Embedding), e.dimensions)
	}

	return result.Embedding, nil
}

// Dimensions implements voiceprint.Encoder.
func (e *Encoder) Dimensions() int {
	return e.dimensions
}
