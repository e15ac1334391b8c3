// Package chromem provides the default embedded [memory.Store] backend built
// on chromem-go. Collections persist as gob files under a single directory;
// no external database process is required.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	chromemgo "github.com/philippgille/chromem-go"
	"golang.org/x/sync/errgroup"

	"github.com/foyerlabs/foyer/pkg/memory"
	"github.com/foyerlabs/foyer/pkg/provider/embeddings"
)

// Compile-time interface check.
var _ memory.Store = (*Store)(nil)

// Store is a chromem-go backed [memory.Store]. One collection per family
// member plus memory_shared, all created in [New].
//
// All methods are safe for concurrent use.
type Store struct {
	db       *chromemgo.DB
	embedder embeddings.Provider
	users    map[string]bool

	// collections maps collection name to its handle. Fixed after New.
	collections map[string]*chromemgo.Collection
}

// errEmbedderInvoked is returned by the collection embedding function, which
// must never run: every document and query arrives with a pre-computed vector.
var errEmbedderInvoked = errors.New("chromem: embedding function invoked; vectors are pre-computed")

// New opens (or creates) the persistent database under dir and ensures one
// collection per user id plus memory_shared. users must be the configured
// family member ids; unknown ids are rejected by every operation afterwards.
func New(dir string, users []string, embedder embeddings.Provider) (*Store, error) {
	db, err := chromemgo.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("chromem: open %s: %w", dir, err)
	}

	identity := func(_ context.Context, _ string) ([]float32, error) {
		return nil, errEmbedderInvoked
	}

	s := &Store{
		db:          db,
		embedder:    embedder,
		users:       make(map[string]bool, len(users)),
		collections: make(map[string]*chromemgo.Collection, len(users)+1),
	}
	for _, uid := range users {
		s.users[uid] = true
	}

	names := make([]string, 0, len(users)+1)
	for _, uid := range users {
		names = append(names, memory.CollectionName(uid))
	}
	names = append(names, memory.CollectionName(memory.SharedUser))

	for _, name := range names {
		col, err := db.GetOrCreateCollection(name, nil, identity)
		if err != nil {
			return nil, fmt.Errorf("chromem: create collection %s: %w", name, err)
		}
		s.collections[name] = col
	}
	return s, nil
}

// collection resolves a user id to its collection handle. allowShared governs
// whether [memory.SharedUser] is accepted.
func (s *Store) collection(userID string, allowShared bool) (*chromemgo.Collection, error) {
	if userID == memory.SharedUser {
		if !allowShared {
			return nil, fmt.Errorf("%w: %q", memory.ErrUnknownUser, userID)
		}
	} else if !s.users[userID] {
		return nil, fmt.Errorf("%w: %q", memory.ErrUnknownUser, userID)
	}
	return s.collections[memory.CollectionName(userID)], nil
}

// Add implements [memory.Store].
func (s *Store) Add(ctx context.Context, userID, content, source string, metadata map[string]string) (string, error) {
	col, err := s.collection(userID, true)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	meta := map[string]string{
		"user_id":   userID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"source":    source,
	}
	for k, v := range metadata {
		meta[k] = v
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("chromem: embed content: %w", err)
	}

	doc := chromemgo.Document{
		ID:        id,
		Content:   content,
		Metadata:  meta,
		Embedding: vec,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("chromem: add document: %w", err)
	}
	return id, nil
}

// Search implements [memory.Store]. The query is embedded once; the private
// and shared collections are then queried concurrently.
func (s *Store) Search(ctx context.Context, userID, query string, topK int) ([]memory.SearchResult, error) {
	own, err := s.collection(userID, false)
	if err != nil {
		return nil, err
	}
	shared := s.collections[memory.CollectionName(memory.SharedUser)]

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chromem: embed query: %w", err)
	}

	var ownHits, sharedHits []memory.SearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ownHits, err = queryCollection(gctx, own, vec, topK)
		return err
	})
	g.Go(func() error {
		var err error
		sharedHits, err = queryCollection(gctx, shared, vec, topK)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return memory.Merge(topK, ownHits, sharedHits), nil
}

// queryCollection fetches up to topK nearest neighbours from one collection.
// chromem rejects queries asking for more results than the collection holds,
// so the requested count is capped at the current document count.
func queryCollection(ctx context.Context, col *chromemgo.Collection, vec []float32, topK int) ([]memory.SearchResult, error) {
	n := col.Count()
	if topK < n {
		n = topK
	}
	if n <= 0 {
		return nil, nil
	}

	hits, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	results := make([]memory.SearchResult, 0, len(hits))
	for _, h := range hits {
		// chromem reports cosine similarity; negative values (opposed
		// vectors) clamp to the bottom of the score range.
		score := float64(h.Similarity)
		if score < 0 {
			score = 0
		}

		source := h.Metadata["source"]
		if source == "" {
			source = "unknown"
		}
		results = append(results, memory.SearchResult{
			ID:        h.ID,
			Content:   h.Content,
			Score:     score,
			Source:    source,
			Timestamp: h.Metadata["timestamp"],
			UserID:    h.Metadata["user_id"],
		})
	}
	return results, nil
}

// Delete implements [memory.Store]. The private collection is tried first,
// then memory_shared.
func (s *Store) Delete(ctx context.Context, userID, memoryID string) (bool, error) {
	own, err := s.collection(userID, true)
	if err != nil {
		return false, err
	}
	shared := s.collections[memory.CollectionName(memory.SharedUser)]

	cols := []*chromemgo.Collection{own}
	if shared != own {
		cols = append(cols, shared)
	}
	for _, col := range cols {
		if _, err := col.GetByID(ctx, memoryID); err != nil {
			continue
		}
		if err := col.Delete(ctx, nil, nil, memoryID); err != nil {
			return false, fmt.Errorf("chromem: delete: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// Count implements [memory.Store].
func (s *Store) Count(_ context.Context, userID string) (int, error) {
	col, err := s.collection(userID, true)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// Healthy implements [memory.Store]. The store is healthy when every
// configured collection is still present in the database.
func (s *Store) Healthy(_ context.Context) error {
	for name := range s.collections {
		if s.db.GetCollection(name, nil) == nil {
			return fmt.Errorf("chromem: collection %s missing", name)
		}
	}
	return nil
}

// Close implements [memory.Store]. chromem persists on every write, so there
// is nothing to flush.
func (s *Store) Close() error { return nil }
