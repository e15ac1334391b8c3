package voicepipe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/foyerlabs/foyer/pkg/npy"
)

// watchDebounce coalesces the burst of filesystem events one enrollment
// write produces into a single reload.
const watchDebounce = 200 * time.Millisecond

// Fingerprints is the in-memory table of enrolled speaker embeddings, one
// `<user>.npy` file per family user. Reload builds a fresh table and swaps
// it in atomically, so lookups never observe a half-loaded state.
type Fingerprints struct {
	dir   string
	users []string
	dims  int

	mu      sync.RWMutex
	table   map[string][]float32
	missing []string
}

// NewFingerprints builds the table for the given users and performs the
// initial load from dir. Users whose file is absent, unreadable, or of the
// wrong dimensionality are listed as missing; that is never fatal.
func NewFingerprints(dir string, users []string, dims int) *Fingerprints {
	f := &Fingerprints{
		dir:   dir,
		users: slices.Clone(users),
		dims:  dims,
		table: map[string][]float32{},
	}
	f.Reload()
	return f
}

// Reload re-reads every expected fingerprint file from disk and swaps the
// table. It returns the sorted lists of loaded and missing user ids.
func (f *Fingerprints) Reload() (loaded, missing []string) {
	table := make(map[string][]float32, len(f.users))
	loaded = []string{}
	missing = []string{}

	for _, user := range f.users {
		vec, err := f.readFingerprint(user)
		if err != nil {
			slog.Warn("fingerprints: load failed", "user_id", user, "err", err)
			missing = append(missing, user)
			continue
		}
		table[user] = vec
		loaded = append(loaded, user)
	}
	slices.Sort(loaded)
	slices.Sort(missing)

	if len(loaded) == 0 {
		slog.Warn("fingerprints: none loaded, speaker identification is disabled")
	}

	f.mu.Lock()
	f.table = table
	f.missing = missing
	f.mu.Unlock()

	return loaded, missing
}

func (f *Fingerprints) readFingerprint(user string) ([]float32, error) {
	file, err := os.Open(filepath.Join(f.dir, user+".npy"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	vec, err := npy.ReadVector(file)
	if err != nil {
		return nil, err
	}
	if len(vec) != f.dims {
		return nil, fmt.Errorf("fingerprint has %d dimensions, want %d", len(vec), f.dims)
	}
	return vec, nil
}

// Table returns the current fingerprint table. The returned map is replaced
// wholesale on reload and must not be mutated.
func (f *Fingerprints) Table() map[string][]float32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.table
}

// Loaded returns the sorted user ids with a fingerprint in the table.
func (f *Fingerprints) Loaded() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	users := make([]string, 0, len(f.table))
	for user := range f.table {
		users = append(users, user)
	}
	slices.Sort(users)
	return users
}

// Missing returns the sorted user ids whose fingerprint failed to load.
func (f *Fingerprints) Missing() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.missing)
}

// Ready reports whether at least one fingerprint is loaded. It satisfies
// the readiness checker signature; with an empty table every utterance
// would be rejected, so the sidecar should not receive traffic.
func (f *Fingerprints) Ready(ctx context.Context) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.table) == 0 {
		return fmt.Errorf("no fingerprints loaded from %s", f.dir)
	}
	return nil
}

// Watch reloads the table whenever a .npy file in the directory changes,
// so a fresh enrollment takes effect without a restart or an explicit
// reload call. The watcher runs until ctx is cancelled.
func (f *Fingerprints) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fingerprints: create watcher: %w", err)
	}
	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("fingerprints: watch %s: %w", f.dir, err)
	}

	go func() {
		defer watcher.Close()
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Ext(event.Name) != ".npy" {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				debounce = time.After(watchDebounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("fingerprints: watcher error", "err", err)
			case <-debounce:
				debounce = nil
				loaded, missing := f.Reload()
				slog.Info("fingerprints: reloaded after change",
					"loaded", loaded, "missing", missing)
			}
		}
	}()
	return nil
}
