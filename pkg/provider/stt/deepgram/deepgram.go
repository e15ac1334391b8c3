// Package deepgram provides an stt.Provider backed by the Deepgram streaming
// WebSocket API. Deployments that want hosted transcription instead of a
// local whisper.cpp server can select it in the voice sidecar config.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/foyerlabs/foyer/pkg/audio"
	"github.com/foyerlabs/foyer/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "fr"

	// writeChunkBytes is the size of each binary frame sent to Deepgram.
	// 8 KiB keeps messages comfortably under the API's frame limits.
	writeChunkBytes = 8 * 1024
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g. "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithLanguage sets the BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		if language != "" {
			p.language = language
		}
	}
}

// WithEndpoint overrides the Deepgram WebSocket endpoint. Intended for
// tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		if endpoint != "" {
			p.endpoint = endpoint
		}
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
// Each Transcribe call opens one short-lived WebSocket session, streams the
// utterance, and collects the final results.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, frame audio.Frame) (stt.Transcript, error) {
	mono := audio.ToMono16k(frame)

	wsURL, err := p.buildURL(mono.SampleRate)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Stream the PCM in chunks, then tell Deepgram the utterance is over.
	data := mono.Data
	for len(data) > 0 {
		n := min(len(data), writeChunkBytes)
		if err := conn.Write(ctx, websocket.MessageBinary, data[:n]); err != nil {
			return stt.Transcript{}, fmt.Errorf("deepgram: send audio: %w", err)
		}
		data = data[n:]
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: close stream: %w", err)
	}

	// Collect final results until the server signals the end of the
	// request with a Metadata message or closes the connection.
	var (
		parts      []string
		confidence float64
		finals     int
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusNormalClosure {
				break
			}
			if finals > 0 {
				break
			}
			return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", err)
		}

		var resp wireResponse
		if jsonErr := json.Unmarshal(msg, &resp); jsonErr != nil {
			continue
		}
		if resp.Type == "Metadata" {
			break
		}
		if resp.Type != "Results" || !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
			continue
		}

		alt := resp.Channel.Alternatives[0]
		if text := strings.TrimSpace(alt.Transcript); text != "" {
			parts = append(parts, text)
			confidence += alt.Confidence
			finals++
		}
	}

	t := stt.Transcript{
		Text:     strings.Join(parts, " "),
		Language: p.language,
	}
	if finals > 0 {
		t.Confidence = confidence / float64(finals)
	}
	return t, nil
}

// ModelID implements stt.Provider.
func (p *Provider) ModelID() string {
	return p.model
}

// buildURL constructs the streaming endpoint URL for one utterance upload.
func (p *Provider) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// wireResponse is the JSON structure Deepgram sends for Results events.
type wireResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}
