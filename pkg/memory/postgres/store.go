// Package postgres provides a PostgreSQL/pgvector-backed implementation of
// [memory.Store] for deployments that outgrow the embedded backend.
//
// All collections share a single memory_entries table partitioned logically
// by a collection column; nearest-neighbour search runs over an HNSW cosine
// index. The pgvector extension must be available in the target database;
// [Migrate] installs it automatically via CREATE EXTENSION IF NOT EXISTS.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"golang.org/x/sync/errgroup"

	"github.com/foyerlabs/foyer/pkg/memory"
	"github.com/foyerlabs/foyer/pkg/provider/embeddings"
)

// Compile-time interface check.
var _ memory.Store = (*Store)(nil)

// Store is a PostgreSQL-backed [memory.Store]. It holds a single
// [pgxpool.Pool] with pgvector types registered on every connection.
//
// All operations are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
	users    map[string]bool
}

// ddl returns the schema with the embedding dimension substituted. The vector
// dimension is baked into the column type at schema creation time.
func ddl(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_entries (
    id          TEXT         PRIMARY KEY,
    collection  TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    source      TEXT         NOT NULL DEFAULT '',
    user_id     TEXT         NOT NULL,
    metadata    JSONB        NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    embedding   vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_memory_entries_collection
    ON memory_entries (collection);

CREATE INDEX IF NOT EXISTS idx_memory_entries_embedding
    ON memory_entries USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the memory_entries table, its indexes, and the
// pgvector extension. It is idempotent and safe to call on every service
// start.
//
// embeddingDimensions must match the embedding model configured for the
// deployment (e.g. 384 for all-minilm). Changing it after the first migration
// requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddl(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// New creates a Store, establishes a connection pool to the database at dsn,
// registers pgvector types on every connection, and runs [Migrate] with the
// embedder's dimension. users must be the configured family member ids.
func New(ctx context.Context, dsn string, users []string, embedder embeddings.Provider) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embedder.Dimensions()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}

	s := &Store{
		pool:     pool,
		embedder: embedder,
		users:    make(map[string]bool, len(users)),
	}
	for _, uid := range users {
		s.users[uid] = true
	}
	return s, nil
}

// validate checks userID against the configured family. allowShared governs
// whether [memory.SharedUser] is accepted.
func (s *Store) validate(userID string, allowShared bool) error {
	if userID == memory.SharedUser {
		if !allowShared {
			return fmt.Errorf("%w: %q", memory.ErrUnknownUser, userID)
		}
		return nil
	}
	if !s.users[userID] {
		return fmt.Errorf("%w: %q", memory.ErrUnknownUser, userID)
	}
	return nil
}

// Add implements [memory.Store].
func (s *Store) Add(ctx context.Context, userID, content, source string, metadata map[string]string) (string, error) {
	if err := s.validate(userID, true); err != nil {
		return "", err
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("postgres store: embed content: %w", err)
	}

	id := uuid.NewString()
	if metadata == nil {
		metadata = map[string]string{}
	}

	const q = `
		INSERT INTO memory_entries
		    (id, collection, content, source, user_id, metadata, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.pool.Exec(ctx, q,
		id,
		memory.CollectionName(userID),
		content,
		source,
		userID,
		metadata,
		time.Now().UTC(),
		pgvector.NewVector(vec),
	)
	if err != nil {
		return "", fmt.Errorf("postgres store: add: %w", err)
	}
	return id, nil
}

// Search implements [memory.Store]. The query is embedded once; the private
// and shared collections are then queried concurrently.
func (s *Store) Search(ctx context.Context, userID, query string, topK int) ([]memory.SearchResult, error) {
	if err := s.validate(userID, false); err != nil {
		return nil, err
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres store: embed query: %w", err)
	}
	queryVec := pgvector.NewVector(vec)

	var ownHits, sharedHits []memory.SearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ownHits, err = s.queryCollection(gctx, memory.CollectionName(userID), queryVec, topK)
		return err
	})
	g.Go(func() error {
		var err error
		sharedHits, err = s.queryCollection(gctx, memory.CollectionName(memory.SharedUser), queryVec, topK)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return memory.Merge(topK, ownHits, sharedHits), nil
}

// queryCollection fetches up to topK nearest neighbours from one collection,
// mapping cosine distance d ∈ [0,2] to the score max(0, 1 − d/2).
func (s *Store) queryCollection(ctx context.Context, collection string, queryVec pgvector.Vector, topK int) ([]memory.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	const q = `
		SELECT id, content, source, user_id, created_at,
		       embedding <=> $1 AS distance
		FROM   memory_entries
		WHERE  collection = $2
		ORDER  BY distance
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, queryVec, collection, topK)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.SearchResult, error) {
		var (
			r         memory.SearchResult
			createdAt time.Time
			distance  float64
		)
		if err := row.Scan(&r.ID, &r.Content, &r.Source, &r.UserID, &createdAt, &distance); err != nil {
			return memory.SearchResult{}, err
		}
		r.Score = 1 - distance/2
		if r.Score < 0 {
			r.Score = 0
		}
		if r.Source == "" {
			r.Source = "unknown"
		}
		r.Timestamp = createdAt.UTC().Format(time.RFC3339)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	return results, nil
}

// Delete implements [memory.Store]. The private collection is tried first,
// then memory_shared.
func (s *Store) Delete(ctx context.Context, userID, memoryID string) (bool, error) {
	if err := s.validate(userID, true); err != nil {
		return false, err
	}

	collections := []string{memory.CollectionName(userID)}
	if shared := memory.CollectionName(memory.SharedUser); shared != collections[0] {
		collections = append(collections, shared)
	}

	const q = `DELETE FROM memory_entries WHERE collection = $1 AND id = $2`
	for _, collection := range collections {
		tag, err := s.pool.Exec(ctx, q, collection, memoryID)
		if err != nil {
			return false, fmt.Errorf("postgres store: delete: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Count implements [memory.Store].
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	if err := s.validate(userID, true); err != nil {
		return 0, err
	}

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM memory_entries WHERE collection = $1`,
		memory.CollectionName(userID),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres store: count: %w", err)
	}
	return n, nil
}

// Healthy implements [memory.Store].
func (s *Store) Healthy(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [memory.Store]. It releases all connections held by the
// underlying pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
