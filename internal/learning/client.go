package learning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LLMClient is the slice of the LLM sidecar the learning service uses:
// chat completions for the automated gates, memory-add for committing an
// approved correction, and health for the service document.
type LLMClient interface {
	Chat(ctx context.Context, userID, message string) (string, error)
	AddMemory(ctx context.Context, userID, content, source string, metadata map[string]any) (string, error)
	Health(ctx context.Context) error
}

var _ LLMClient = (*SidecarClient)(nil)

// SidecarClient implements LLMClient against the sidecar's HTTP API. It is
// safe for concurrent use.
type SidecarClient struct {
	baseURL    string
	httpClient *http.Client
}

// SidecarOption is a functional option for SidecarClient.
type SidecarOption func(*SidecarClient)

// WithTimeout sets a per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) SidecarOption {
	return func(c *SidecarClient) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewSidecarClient constructs a client for the LLM sidecar at baseURL.
func NewSidecarClient(baseURL string, opts ...SidecarOption) (*SidecarClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("learning: sidecar base URL must not be empty")
	}
	c := &SidecarClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Chat implements LLMClient.
func (c *SidecarClient) Chat(ctx context.Context, userID, message string) (string, error) {
	var result chatResponse
	err := c.postJSON(ctx, "/chat", chatRequest{UserID: userID, Message: message}, &result)
	if err != nil {
		return "", err
	}
	return result.Response, nil
}

type memoryAddRequest struct {
	UserID   string         `json:"user_id"`
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type memoryAddResponse struct {
	ID string `json:"id"`
}

// AddMemory implements LLMClient.
func (c *SidecarClient) AddMemory(ctx context.Context, userID, content, source string, metadata map[string]any) (string, error) {
	var result memoryAddResponse
	err := c.postJSON(ctx, "/memory/add", memoryAddRequest{
		UserID:   userID,
		Content:  content,
		Source:   source,
		Metadata: metadata,
	}, &result)
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("learning: sidecar memory-add returned no id")
	}
	return result.ID, nil
}

// Health implements LLMClient. Any 200 from the sidecar's /health counts
// as reachable.
func (c *SidecarClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("learning: build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("learning: sidecar health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("learning: sidecar health returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *SidecarClient) postJSON(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("learning: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("learning: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("learning: sidecar %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("learning: sidecar %s returned status %d: %s",
			path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("learning: decode %s response: %w", path, err)
	}
	return nil
}
