package voicepipe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEntry is one line of the access log. Every pipeline invocation
// produces exactly one entry, whatever its outcome.
type AuditEntry struct {
	Timestamp            time.Time `json:"timestamp"`
	Event                string    `json:"event"`
	UserID               string    `json:"user_id,omitempty"`
	Confidence           float64   `json:"confidence,omitempty"`
	FallbackReason       string    `json:"fallback_reason,omitempty"`
	AudioDurationSeconds float64   `json:"audio_duration_seconds"`
}

// AuditLog appends identification events to a JSONL file. Writes are
// serialized so concurrent pipeline invocations never interleave lines.
type AuditLog struct {
	mu sync.Mutex
	f  *os.File
}

// NewAuditLog opens (creating as needed) the append-only log at path.
func NewAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit log: create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit log: open %s: %w", path, err)
	}
	return &AuditLog{f: f}, nil
}

// Record appends one entry. A zero Timestamp is stamped with the current
// UTC time.
func (a *AuditLog) Record(e AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit log: marshal entry: %w", err)
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.f.Write(line); err != nil {
		return fmt.Errorf("audit log: write: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (a *AuditLog) Close() error {
	return a.f.Close()
}
