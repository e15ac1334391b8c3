// Package memory defines the per-user vector memory used by the Foyer
// assistant.
//
// Every family member owns a private collection named memory_<uid>; one
// additional collection, memory_shared, holds facts readable by everyone.
// Entries are written once (with a pre-computed embedding), retrieved by
// semantic similarity, and destroyed by delete — never mutated.
//
// The [Store] interface is public so that services can swap storage backends
// (embedded chromem, PostgreSQL/pgvector, in-memory mocks) without depending
// on a concrete implementation.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"errors"
	"math"
	"sort"
)

// SharedUser is the pseudo-identity naming the cross-user collection. It is
// a valid target for Add and Delete but never for Search: searches always run
// as a real family member and transparently include the shared collection.
const SharedUser = "shared"

// ErrUnknownUser is returned when an operation names a user id that is not
// part of the configured family (and, where disallowed, [SharedUser]).
var ErrUnknownUser = errors.New("unknown user id")

// CollectionName maps a user id (or [SharedUser]) to its collection name.
func CollectionName(userID string) string {
	return "memory_" + userID
}

// SearchResult is one retrieved memory entry with its relevance score.
type SearchResult struct {
	// ID is the entry's UUID.
	ID string `json:"id"`

	// Content is the remembered text.
	Content string `json:"content"`

	// Score is the similarity to the query in [0, 1], rounded to 4 decimals
	// (1 = identical meaning). Backend distances are converted to this range
	// before results leave the store.
	Score float64 `json:"score"`

	// Source records how the entry was created (e.g. "conversation",
	// "learning_correction"). "unknown" when the stored entry carries none.
	Source string `json:"source"`

	// Timestamp is the entry's creation time in RFC 3339 UTC, or empty when
	// the stored entry carries none.
	Timestamp string `json:"timestamp"`

	// UserID is the owning collection's user ([SharedUser] for shared hits).
	UserID string `json:"user_id"`
}

// Store is the abstraction over any vector memory backend.
//
// All five per-family collections exist from construction onwards; operations
// never create collections on the fly.
type Store interface {
	// Add embeds content and writes a new entry to the user's private
	// collection (or memory_shared when userID is [SharedUser]). The entry's
	// metadata merges the supplied map over {user_id, timestamp, source}.
	// Returns the generated entry UUID. Unknown user ids are rejected with
	// [ErrUnknownUser].
	Add(ctx context.Context, userID, content, source string, metadata map[string]string) (string, error)

	// Search embeds query once and retrieves the topK most similar entries
	// from the user's own collection and memory_shared combined. Results are
	// sorted by descending score. A query by one user never returns entries
	// from another user's private collection. [SharedUser] is not a valid
	// userID here.
	Search(ctx context.Context, userID, query string, topK int) ([]SearchResult, error)

	// Delete removes the entry with memoryID from the user's private
	// collection, or failing that from memory_shared. Returns true iff an
	// entry was removed. Deletion is permanent.
	Delete(ctx context.Context, userID, memoryID string) (bool, error)

	// Count reports how many entries the user's private collection (or
	// memory_shared for [SharedUser]) currently holds.
	Count(ctx context.Context, userID string) (int, error)

	// Healthy probes the backend. A nil return means the store can serve
	// requests right now.
	Healthy(ctx context.Context) error

	// Close releases backend resources. The Store must not be used after
	// Close returns.
	Close() error
}

// Merge flattens per-collection hit batches into the final result list:
// scores are rounded to 4 decimals, the combined list is stable-sorted by
// descending score, and the first topK entries are returned. Backends call
// this after querying the private and shared collections so every Store
// ranks identically.
func Merge(topK int, batches ...[]SearchResult) []SearchResult {
	var merged []SearchResult
	for _, b := range batches {
		merged = append(merged, b...)
	}
	for i := range merged {
		merged[i].Score = math.Round(merged[i].Score*10000) / 10000
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if topK >= 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}
