package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sidecar is the slice of the LLM sidecar the MCP tools delegate to.
type Sidecar interface {
	Chat(ctx context.Context, userID, message string) (*ChatReply, error)
	AddMemory(ctx context.Context, userID, content, source string) (string, error)
	SearchMemory(ctx context.Context, userID, query string, topK int) ([]MemoryHit, error)
	DeleteMemory(ctx context.Context, callerID, userID, memoryID string) error
}

// ChatReply is the sidecar's answer to one chat turn.
type ChatReply struct {
	Response     string   `json:"response"`
	ModelUsed    string   `json:"model_used"`
	MemoriesUsed []string `json:"memories_used"`
}

// MemoryHit is one semantic search match.
type MemoryHit struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	Source    string  `json:"source"`
	Timestamp string  `json:"timestamp"`
	UserID    string  `json:"user_id"`
}

var _ Sidecar = (*SidecarClient)(nil)

// SidecarClient implements Sidecar against the sidecar's HTTP API. It is
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
		return nil, fmt.Errorf("mcp: sidecar base URL must not be empty")
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

// Chat implements Sidecar.
func (c *SidecarClient) Chat(ctx context.Context, userID, message string) (*ChatReply, error) {
	var reply ChatReply
	if err := c.postJSON(ctx, "/chat", chatRequest{UserID: userID, Message: message}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

type memoryAddRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

type memoryAddResponse struct {
	ID string `json:"id"`
}

// AddMemory implements Sidecar.
func (c *SidecarClient) AddMemory(ctx context.Context, userID, content, source string) (string, error) {
	var result memoryAddResponse
	err := c.postJSON(ctx, "/memory/add", memoryAddRequest{
		UserID:  userID,
		Content: content,
		Source:  source,
	}, &result)
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("mcp: sidecar memory-add returned no id")
	}
	return result.ID, nil
}

type memorySearchRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	TopK   int    `json:"top_k,omitempty"`
}

type memorySearchResponse struct {
	Results []MemoryHit `json:"results"`
}

// SearchMemory implements Sidecar. topK ≤ 0 leaves the recall depth to
// the sidecar's default.
func (c *SidecarClient) SearchMemory(ctx context.Context, userID, query string, topK int) ([]MemoryHit, error) {
	var result memorySearchResponse
	err := c.postJSON(ctx, "/memory/search", memorySearchRequest{
		UserID: userID,
		Query:  query,
		TopK:   topK,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Results, nil
}

type memoryDeleteRequest struct {
	CallerID string `json:"caller_id"`
}

// DeleteMemory implements Sidecar.
func (c *SidecarClient) DeleteMemory(ctx context.Context, callerID, userID, memoryID string) error {
	body, err := json.Marshal(memoryDeleteRequest{CallerID: callerID})
	if err != nil {
		return fmt.Errorf("mcp: marshal request: %w", err)
	}

	path := "/memory/" + url.PathEscape(userID) + "/" + url.PathEscape(memoryID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mcp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mcp: sidecar %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mcp: sidecar %s returned status %d: %s",
			path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Health reports whether the sidecar answers its /health endpoint. Used
// as a startup probe; tool calls do not depend on it.
func (c *SidecarClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("mcp: build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mcp: sidecar health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mcp: sidecar health returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *SidecarClient) postJSON(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mcp: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mcp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mcp: sidecar %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mcp: sidecar %s returned status %d: %s",
			path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("mcp: decode %s response: %w", path, err)
	}
	return nil
}
