// Package index maintains the mapping from normalized position keys to the
// archives whose payloads contain games through those positions. The mapping
// is many-to-many: one archive covers millions of positions and one position
// appears in many archives.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/gofrs/flock"
)

// Index maps normalized position keys to archive IDs. Archive IDs are
// interned so the persisted form stores each ID once and refers to it by
// ordinal. Safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	archives []string       // ordinal -> archive ID
	ordinals map[string]int // archive ID -> ordinal
	keys     map[string][]int
}

// New creates an empty index.
func New() *Index {
	return &Index{
		ordinals: make(map[string]int),
		keys:     make(map[string][]int),
	}
}

// Register records that archive archiveID contains games through key.
// Registering the same pair twice is a no-op.
func (ix *Index) Register(key, archiveID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ord, ok := ix.ordinals[archiveID]
	if !ok {
		ord = len(ix.archives)
		ix.archives = append(ix.archives, archiveID)
		ix.ordinals[archiveID] = ord
	}

	for _, existing := range ix.keys[key] {
		if existing == ord {
			return
		}
	}
	ix.keys[key] = append(ix.keys[key], ord)
}

// Lookup returns the IDs of all archives registered for key, in registration
// order. The returned slice is a copy.
func (ix *Index) Lookup(key string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ords := ix.keys[key]
	if len(ords) == 0 {
		return nil
	}
	ids := make([]string, len(ords))
	for i, ord := range ords {
		ids[i] = ix.archives[ord]
	}
	return ids
}

// Len returns the number of indexed position keys.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.keys)
}

// Archives returns all known archive IDs, sorted.
func (ix *Index) Archives() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ids := make([]string, len(ix.archives))
	copy(ids, ix.archives)
	sort.Strings(ids)
	return ids
}

// Rebuild clears the index and repopulates it by invoking walk, which must
// call emit once per (key, archiveID) pair. Used to reconstruct the index
// from the raw record tier after corruption.
func (ix *Index) Rebuild(walk func(emit func(key, archiveID string)) error) error {
	fresh := New()
	if err := walk(fresh.Register); err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.archives = fresh.archives
	ix.ordinals = fresh.ordinals
	ix.keys = fresh.keys
	return nil
}

// persisted is the on-disk JSON form.
type persisted struct {
	Archives []string         `json:"archives"`
	Keys     map[string][]int `json:"keys"`
}

// Save writes the index to path atomically, holding a file lock so two
// processes sharing a cache directory cannot interleave saves.
func (ix *Index) Save(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking index file: %w", err)
	}
	defer lock.Unlock()

	ix.mu.RLock()
	p := persisted{
		Archives: ix.archives,
		Keys:     ix.keys,
	}
	data, err := json.Marshal(p)
	ix.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing index: %w", err)
	}
	return nil
}

// Load reads the index from path, replacing current contents. A missing
// file leaves the index empty and returns nil.
func (ix *Index) Load(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("locking index file: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading index: %w", err)
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decoding index: %w", err)
	}

	ordinals := make(map[string]int, len(p.Archives))
	for ord, id := range p.Archives {
		ordinals[id] = ord
	}
	for key, ords := range p.Keys {
		for _, ord := range ords {
			if ord < 0 || ord >= len(p.Archives) {
				return fmt.Errorf("decoding index: key %q references unknown archive ordinal %d", key, ord)
			}
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.archives = p.Archives
	ix.ordinals = ordinals
	if p.Keys == nil {
		p.Keys = make(map[string][]int)
	}
	ix.keys = p.Keys
	return nil
}
