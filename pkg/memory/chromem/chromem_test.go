package chromem_test

import (
	"context"
	"errors"
	"testing"

	"github.com/foyerlabs/foyer/pkg/memory"
	"github.com/foyerlabs/foyer/pkg/memory/chromem"
	embmock "github.com/foyerlabs/foyer/pkg/provider/embeddings/mock"
)

var testUsers = []string{"dad", "mom", "teen", "child"}

// testEmbedder returns deterministic unit vectors so similarity scores in
// tests are predictable. Unmapped texts land on an axis no mapped text uses.
func testEmbedder() *embmock.Provider {
	vectors := map[string][]float32{
		"the cat sat":   {1, 0, 0, 0},
		"cats and pets": {0.96, 0.28, 0, 0},
		"tax paperwork": {0, 1, 0, 0},
		"anti cat":      {-1, 0, 0, 0},
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

func newTestStore(t *testing.T) *chromem.Store {
	t.Helper()
	s, err := chromem.New(t.TempDir(), testUsers, testEmbedder())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
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

	// Exact match from the shared collection ranks first.
	if got[0].Content != "the cat sat" || got[0].UserID != memory.SharedUser {
		t.Errorf("result[0] = %q by %q, want shared exact match", got[0].Content, got[0].UserID)
	}
	if got[0].Score != 1.0 {
		t.Errorf("result[0].Score = %v, want 1.0", got[0].Score)
	}
	if got[1].Content != "cats and pets" || got[1].UserID != "dad" {
		t.Errorf("result[1] = %q by %q, want dad's entry", got[1].Content, got[1].UserID)
	}
	if got[1].Score != 0.96 {
		t.Errorf("result[1].Score = %v, want 0.96", got[1].Score)
	}
	if got[0].Source != "learning_correction" || got[1].Source != "conversation" {
		t.Errorf("sources = %q, %q", got[0].Source, got[1].Source)
	}
	if got[0].Timestamp == "" || got[1].Timestamp == "" {
		t.Error("results missing timestamps")
	}
	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Errorf("ids not unique: %q, %q", got[0].ID, got[1].ID)
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

func TestSearch_CapsAtTopK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"the cat sat", "cats and pets", "tax paperwork"} {
		if _, err := s.Add(ctx, "teen", content, "conversation", nil); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	got, err := s.Search(ctx, "teen", "the cat sat", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Score < got[1].Score {
		t.Errorf("results not sorted: %v then %v", got[0].Score, got[1].Score)
	}
}

func TestSearch_ClampsNegativeSimilarity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, "dad", "anti cat", "conversation", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := s.Search(ctx, "dad", "the cat sat", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Score != 0 {
		t.Errorf("Score = %v, want 0 for opposed vectors", got[0].Score)
	}
}

func TestUnknownUserRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, "stranger", "hi", "conversation", nil); !errors.Is(err, memory.ErrUnknownUser) {
		t.Errorf("Add err = %v, want ErrUnknownUser", err)
	}
	if _, err := s.Search(ctx, "stranger", "hi", 5); !errors.Is(err, memory.ErrUnknownUser) {
		t.Errorf("Search err = %v, want ErrUnknownUser", err)
	}
	// The shared pseudo-user is writable but not searchable.
	if _, err := s.Search(ctx, memory.SharedUser, "hi", 5); !errors.Is(err, memory.ErrUnknownUser) {
		t.Errorf("Search shared err = %v, want ErrUnknownUser", err)
	}
	if _, err := s.Delete(ctx, "stranger", "some-id"); !errors.Is(err, memory.ErrUnknownUser) {
		t.Errorf("Delete err = %v, want ErrUnknownUser", err)
	}
}

func TestDelete_OwnFirstThenShared(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ownID, err := s.Add(ctx, "dad", "the cat sat", "conversation", nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	sharedID, err := s.Add(ctx, memory.SharedUser, "tax paperwork", "conversation", nil)
	if err != nil {
		t.Fatalf("Add shared: %v", err)
	}

	ok, err := s.Delete(ctx, "dad", ownID)
	if err != nil || !ok {
		t.Fatalf("Delete own = (%v, %v), want (true, nil)", ok, err)
	}
	got, err := s.Search(ctx, "dad", "the cat sat", 5)
	if err != nil {
		t.Fatalf("Search after delete: %v", err)
	}
	for _, r := range got {
		if r.ID == ownID {
			t.Errorf("deleted entry %s still returned by search", ownID)
		}
	}
	// A shared entry is deletable through any user.
	ok, err = s.Delete(ctx, "dad", sharedID)
	if err != nil || !ok {
		t.Fatalf("Delete shared = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = s.Delete(ctx, "dad", "no-such-id")
	if err != nil || ok {
		t.Fatalf("Delete missing = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Add(ctx, "child", "the cat sat", "conversation", nil); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if _, err := s.Add(ctx, memory.SharedUser, "tax paperwork", "conversation", nil); err != nil {
		t.Fatalf("Add shared: %v", err)
	}

	n, err := s.Count(ctx, "child")
	if err != nil || n != 3 {
		t.Errorf("Count(child) = (%d, %v), want (3, nil)", n, err)
	}
	n, err = s.Count(ctx, memory.SharedUser)
	if err != nil || n != 1 {
		t.Errorf("Count(shared) = (%d, %v), want (1, nil)", n, err)
	}
	if _, err := s.Count(ctx, "stranger"); !errors.Is(err, memory.ErrUnknownUser) {
		t.Errorf("Count err = %v, want ErrUnknownUser", err)
	}
}

func TestHealthy(t *testing.T) {
	s := newTestStore(t)
	if err := s.Healthy(context.Background()); err != nil {
		t.Errorf("Healthy = %v, want nil", err)
	}
}

func TestReopen_KeepsEntries(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := chromem.New(dir, testUsers, testEmbedder())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s1.Add(ctx, "mom", "the cat sat", "conversation", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := chromem.New(dir, testUsers, testEmbedder())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.Search(ctx, "mom", "the cat sat", 5)
	if err != nil {
		t.Fatalf("Search after reopen: %v", err)
	}
	if len(got) != 1 || got[0].Content != "the cat sat" {
		t.Errorf("reopened store lost the entry, got %v", got)
	}
}

func TestMetadataMergedOverDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, "dad", "the cat sat", "conversation", map[string]string{
		"correction_id": "c-42",
		"source":        "learning_correction", // caller-supplied wins
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == "" {
		t.Fatal("Add returned empty id")
	}

	got, err := s.Search(ctx, "dad", "the cat sat", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Source != "learning_correction" {
		t.Errorf("Source = %q, want caller-supplied metadata to override", got[0].Source)
	}
}
