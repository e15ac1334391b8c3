package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/foyerlabs/foyer/pkg/memory"
	"github.com/foyerlabs/foyer/pkg/memory/postgres"
	embmock "github.com/foyerlabs/foyer/pkg/provider/embeddings/mock"
)

var testUsers = []string{"dad", "mom", "teen", "child"}

// testDSN returns the test database DSN from the environment, or skips the
// test if FOYER_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("FOYER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FOYER_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// testEmbedder returns deterministic unit vectors so similarity scores in
// tests are predictable.
func testEmbedder() *embmock.Provider {
	vectors := map[string][]float32{
		"the cat sat":   {1, 0, 0, 0},
		"cats and pets": {0.96, 0.28, 0, 0},
		"tax paperwork": {0, 1, 0, 0},
	}
	return &embmock.Provider{
		DimensionsValue: 4,
		EmbedFunc: func(text string) ([]float32, error) {
			if v, ok := vectors[text]; ok {
				return v, nil
			}
			return []float32{0, 0, 0, 1}, nil
		},
	}
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	if _, err := cleanPool.Exec(ctx, "DROP TABLE IF EXISTS memory_entries CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	store, err := postgres.New(ctx, dsn, testUsers, testEmbedder())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// mustPool opens a pgxpool with pgvector types registered.
func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// best-effort: pgvector may not be installed yet on a fresh DB
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return pool
}

func TestAddAndSearch_MergesOwnAndShared(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, "dad", "cats and pets", "conversation", nil); err != nil {
		t.Fatalf("Add own: %v", err)
	}
	if _, err := s.Add(ctx, memory.SharedUser, "the cat sat", "learning_correction", nil); err != nil {
		t.Fatalf("Add shared: %v", err)
	}

	got, err := s.Search(ctx, "dad", "the cat sat", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Content != "the cat sat" || got[0].UserID != memory.SharedUser {
		t.Errorf("result[0] = %q by %q, want shared exact match first", got[0].Content, got[0].UserID)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("results not sorted: %v then %v", got[0].Score, got[1].Score)
	}
	// Cosine distance 0 for identical unit vectors maps to score 1.
	if got[0].Score != 1.0 {
		t.Errorf("result[0].Score = %v, want 1.0", got[0].Score)
	}
	if got[0].Timestamp == "" {
		t.Error("result missing timestamp")
	}
	if got[0].Source != "learning_correction" {
		t.Errorf("result[0].Source = %q, want learning_correction", got[0].Source)
	}
}

func TestSearch_NoCrossUserLeakage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, "mom", "the cat sat", "conversation", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := s.Search(ctx, "dad", "the cat sat", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("dad's search returned %d results from mom's collection", len(got))
	}
}

func TestUnknownUserRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, "stranger", "hi", "conversation", nil); !errors.Is(err, memory.ErrUnknownUser) {
		t.Errorf("Add err = %v, want ErrUnknownUser", err)
	}
	if _, err := s.Search(ctx, memory.SharedUser, "hi", 5); !errors.Is(err, memory.ErrUnknownUser) {
		t.Errorf("Search shared err = %v, want ErrUnknownUser", err)
	}
}

func TestDelete_OwnFirstThenShared(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ownID, err := s.Add(ctx, "teen", "the cat sat", "conversation", nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	sharedID, err := s.Add(ctx, memory.SharedUser, "tax paperwork", "conversation", nil)
	if err != nil {
		t.Fatalf("Add shared: %v", err)
	}

	ok, err := s.Delete(ctx, "teen", ownID)
	if err != nil || !ok {
		t.Fatalf("Delete own = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = s.Delete(ctx, "teen", sharedID)
	if err != nil || !ok {
		t.Fatalf("Delete shared = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = s.Delete(ctx, "teen", "no-such-id")
	if err != nil || ok {
		t.Fatalf("Delete missing = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestCountAndHealthy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.Add(ctx, "child", "the cat sat", "conversation", nil); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	n, err := s.Count(ctx, "child")
	if err != nil || n != 2 {
		t.Errorf("Count = (%d, %v), want (2, nil)", n, err)
	}
	if err := s.Healthy(ctx); err != nil {
		t.Errorf("Healthy = %v, want nil", err)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()

	pool := mustPool(t, ctx, dsn)
	t.Cleanup(pool.Close)

	for i := 0; i < 2; i++ {
		if err := postgres.Migrate(ctx, pool, 4); err != nil {
			t.Fatalf("Migrate run %d: %v", i+1, err)
		}
	}
}
