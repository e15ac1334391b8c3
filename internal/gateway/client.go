// Package gateway is the household-facing edge of Foyer. It owns no
// domain logic: it validates callers, relays requests to the voice, LLM
// and learning sidecars, and chains the voice pipeline's transcript into
// a chat turn.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/foyerlabs/foyer/internal/observe"
	"github.com/foyerlabs/foyer/internal/resilience"
	"github.com/foyerlabs/foyer/pkg/provider/llm"
)

// defaultClientTimeout bounds one sidecar exchange. Voice and chat both
// sit on top of model inference, so this is generous.
const defaultClientTimeout = 60 * time.Second

// maxReplyBytes caps how much of a sidecar reply is buffered.
const maxReplyBytes = 1 << 20

// StatusError is a sidecar reply with a non-2xx status. The body is kept
// verbatim so client-caused failures (4xx) can be relayed unchanged.
type StatusError struct {
	Service string
	Status  int
	Body    []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s sidecar returned status %d: %s", e.Service, e.Status, snippet(e.Body))
}

// ClientCaused reports whether the sidecar blamed the request (4xx).
func (e *StatusError) ClientCaused() bool {
	return e.Status >= 400 && e.Status < 500
}

func snippet(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// sidecarClient is the shared transport under the three typed clients:
// one HTTP client, one circuit breaker, uniform error shaping. The
// breaker counts transport failures and sidecar 5xx; a 4xx is the
// caller's problem and passes through without tripping it.
type sidecarClient struct {
	service    string
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	metrics    *observe.Metrics
}

// ClientOption is a functional option shared by the typed clients.
type ClientOption func(*sidecarClient)

// WithTimeout overrides the per-exchange timeout. Defaults to 60 s.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *sidecarClient) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithBreaker replaces the client's circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) ClientOption {
	return func(c *sidecarClient) {
		if cb != nil {
			c.breaker = cb
		}
	}
}

// WithClientMetrics sets the metrics sink. Defaults to observe.DefaultMetrics.
func WithClientMetrics(m *observe.Metrics) ClientOption {
	return func(c *sidecarClient) {
		if m != nil {
			c.metrics = m
		}
	}
}

func newSidecarClient(service, baseURL string, opts ...ClientOption) (*sidecarClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("gateway: %s sidecar base URL is required", service)
	}
	c := &sidecarClient{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultClientTimeout},
		breaker:    resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: service}),
		metrics:    observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type wireReply struct {
	status int
	body   []byte
}

// exchange performs one request through the breaker. Transport failures
// and 5xx replies count against the breaker; 2xx/4xx do not.
func (c *sidecarClient) exchange(req *http.Request) ([]byte, error) {
	reply, err := resilience.Do(c.breaker, func() (wireReply, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return wireReply{}, fmt.Errorf("gateway: %s sidecar request failed: %w", c.service, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
		if err != nil {
			return wireReply{}, fmt.Errorf("gateway: read %s sidecar reply: %w", c.service, err)
		}
		if resp.StatusCode >= 500 {
			return wireReply{}, &StatusError{Service: c.service, Status: resp.StatusCode, Body: body}
		}
		return wireReply{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		c.metrics.RecordProviderRequest(req.Context(), c.service, "error")
		return nil, err
	}
	if reply.status >= 400 {
		c.metrics.RecordProviderRequest(req.Context(), c.service, "error")
		return nil, &StatusError{Service: c.service, Status: reply.status, Body: reply.body}
	}
	c.metrics.RecordProviderRequest(req.Context(), c.service, "ok")
	return reply.body, nil
}

func (c *sidecarClient) postJSON(ctx context.Context, path string, payload, result any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gateway: marshal %s request: %w", c.service, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("gateway: build %s request: %w", c.service, err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.exchange(req)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("gateway: decode %s reply: %w", c.service, err)
	}
	return nil
}

// health probes GET /health and reports the round-trip time. The latency
// is returned even on failure so a slow-but-broken sidecar is visible.
func (c *sidecarClient) health(ctx context.Context) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return 0, fmt.Errorf("gateway: build %s health request: %w", c.service, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return latency, fmt.Errorf("gateway: %s sidecar health check failed: %w", c.service, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplyBytes))

	if resp.StatusCode != http.StatusOK {
		return latency, fmt.Errorf("gateway: %s sidecar unhealthy: status %d", c.service, resp.StatusCode)
	}
	return latency, nil
}

// ChatRequest is the LLM sidecar's chat contract as the gateway relays it.
type ChatRequest struct {
	UserID  string        `json:"user_id"`
	Message string        `json:"message"`
	History []llm.Message `json:"conversation_history,omitempty"`
}

// ChatReply is the LLM sidecar's chat response.
type ChatReply struct {
	Response     string   `json:"response"`
	ModelUsed    string   `json:"model_used"`
	MemoriesUsed []string `json:"memories_used,omitempty"`
	UserID       string   `json:"user_id"`
}

// LLMClient talks to the LLM sidecar.
type LLMClient struct {
	*sidecarClient
}

// NewLLMClient builds a client for the LLM sidecar at baseURL.
func NewLLMClient(baseURL string, opts ...ClientOption) (*LLMClient, error) {
	c, err := newSidecarClient("llm", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &LLMClient{sidecarClient: c}, nil
}

// Chat relays one chat turn.
func (c *LLMClient) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	var reply ChatReply
	if err := c.postJSON(ctx, "/chat", req, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Health probes the sidecar.
func (c *LLMClient) Health(ctx context.Context) (time.Duration, error) {
	return c.health(ctx)
}

// Voice pipeline outcome statuses as the voice sidecar reports them.
const (
	StatusIdentified = "identified"
	StatusFallback   = "fallback"
	StatusRejected   = "rejected"
	StatusNoSpeech   = "no_speech"
)

// VoiceResult is the subset of the voice sidecar's response the gateway
// consumes.
type VoiceResult struct {
	Status     string  `json:"status"`
	UserID     string  `json:"user_id,omitempty"`
	Confidence float64 `json:"confidence"`
	Fallback   bool    `json:"fallback"`
	Transcript string  `json:"transcript"`
}

// VoiceClient talks to the voice sidecar.
type VoiceClient struct {
	*sidecarClient
}

// NewVoiceClient builds a client for the voice sidecar at baseURL.
func NewVoiceClient(baseURL string, opts ...ClientOption) (*VoiceClient, error) {
	c, err := newSidecarClient("voice", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &VoiceClient{sidecarClient: c}, nil
}

// Process submits one WAV clip to /voice/process. The upload keeps the
// caller's filename since the sidecar validates the .wav extension.
func (c *VoiceClient) Process(ctx context.Context, filename string, wav []byte) (*VoiceResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("gateway: build voice upload: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, fmt.Errorf("gateway: build voice upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("gateway: build voice upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/voice/process", &buf)
	if err != nil {
		return nil, fmt.Errorf("gateway: build voice request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.exchange(req)
	if err != nil {
		return nil, err
	}
	var result VoiceResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("gateway: decode voice reply: %w", err)
	}
	return &result, nil
}

// Health probes the sidecar.
func (c *VoiceClient) Health(ctx context.Context) (time.Duration, error) {
	return c.health(ctx)
}

type learnSubmitRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// SubmitReply is the learning sidecar's submission acknowledgement.
type SubmitReply struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// LearningClient talks to the learning sidecar.
type LearningClient struct {
	*sidecarClient
}

// NewLearningClient builds a client for the learning sidecar at baseURL.
func NewLearningClient(baseURL string, opts ...ClientOption) (*LearningClient, error) {
	c, err := newSidecarClient("learning", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &LearningClient{sidecarClient: c}, nil
}

// Submit relays one correction submission.
func (c *LearningClient) Submit(ctx context.Context, userID, content, source string) (*SubmitReply, error) {
	var reply SubmitReply
	err := c.postJSON(ctx, "/learning/submit",
		learnSubmitRequest{UserID: userID, Content: content, Source: source}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// Health probes the sidecar.
func (c *LearningClient) Health(ctx context.Context) (time.Duration, error) {
	return c.health(ctx)
}
