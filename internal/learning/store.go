package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when no bucket holds the requested correction.
var ErrNotFound = errors.New("learning: correction not found")

// buckets are the storage directories, one per lifecycle stage.
var buckets = []string{"pending", "approved", "rejected", "applied"}

// Store persists corrections as JSON documents under four sibling bucket
// directories. A correction lives in exactly one bucket at a time,
// determined by its final status; Save moves the document when the status
// crosses buckets. Saves of distinct ids may run concurrently; callers
// serialize writes to the same id.
type Store struct {
	base string
}

// NewStore opens (creating as needed) the bucket directories under dir.
func NewStore(dir string) (*Store, error) {
	s := &Store{base: dir}
	if err := s.ensureBuckets(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBuckets() error {
	for _, b := range buckets {
		if err := os.MkdirAll(filepath.Join(s.base, b), 0o755); err != nil {
			return fmt.Errorf("learning: create bucket %s: %w", b, err)
		}
	}
	return nil
}

// dirFor maps a final status to its bucket. Everything in flight
// (processing, gate1_error) stays in pending so nothing is ever lost.
func dirFor(finalStatus string) string {
	switch {
	case strings.HasPrefix(finalStatus, "rejected"):
		return "rejected"
	case finalStatus == StatusApproved:
		return "approved"
	case finalStatus == StatusApplied:
		return "applied"
	default:
		return "pending"
	}
}

// Save writes the correction into the bucket its final status selects and
// removes any stale copy left in another bucket. The write is atomic: a
// temp file in the target directory renamed over the destination.
func (s *Store) Save(c *Correction) error {
	if !validID(c.ID) {
		return fmt.Errorf("learning: invalid correction id %q", c.ID)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("learning: marshal correction %s: %w", c.ID, err)
	}

	dir := filepath.Join(s.base, dirFor(c.FinalStatus))
	tmp, err := os.CreateTemp(dir, c.ID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("learning: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("learning: write correction %s: %w", c.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("learning: close temp file: %w", err)
	}

	target := filepath.Join(dir, c.ID+".json")
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("learning: rename correction %s: %w", c.ID, err)
	}

	for _, b := range buckets {
		stale := filepath.Join(s.base, b, c.ID+".json")
		if stale == target {
			continue
		}
		if err := os.Remove(stale); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("learning: remove stale correction copy failed",
				"correction_id", c.ID, "path", stale, "err", err)
		}
	}
	return nil
}

// Get loads a correction by id, scanning every bucket.
func (s *Store) Get(id string) (*Correction, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	for _, b := range buckets {
		data, err := os.ReadFile(filepath.Join(s.base, b, id+".json"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("learning: read correction %s: %w", id, err)
		}
		var c Correction
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("learning: decode correction %s: %w", id, err)
		}
		return &c, nil
	}
	return nil, ErrNotFound
}

// ListPending returns the corrections awaiting review, oldest first.
// Unreadable documents are skipped with a warning so one corrupt file
// cannot take the review queue down.
func (s *Store) ListPending() ([]*Correction, error) {
	dir := filepath.Join(s.base, "pending")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("learning: read pending bucket: %w", err)
	}

	var pending []*Correction
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			slog.Warn("learning: read pending correction failed", "file", e.Name(), "err", err)
			continue
		}
		var c Correction
		if err := json.Unmarshal(data, &c); err != nil {
			slog.Warn("learning: decode pending correction failed", "file", e.Name(), "err", err)
			continue
		}
		pending = append(pending, &c)
	}

	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].SubmittedAt.Equal(pending[j].SubmittedAt) {
			return pending[i].SubmittedAt.Before(pending[j].SubmittedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	return pending, nil
}

// PendingCount returns the number of corrections awaiting review.
func (s *Store) PendingCount() (int, error) {
	pending, err := s.ListPending()
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// Healthy reports whether the bucket directories are usable. It satisfies
// the readiness checker signature.
func (s *Store) Healthy(ctx context.Context) error {
	return s.ensureBuckets()
}

// validID rejects ids that could escape the bucket directories.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".." &&
		filepath.Base(id) == id
}
