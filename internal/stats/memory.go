package stats

import (
	"encoding/json"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/physical-mcp/engine/internal/core"
)

// memoryCapacity bounds the KV store, the same way every other buffer
// in this system is bounded (spec §9).
const memoryCapacity = 2000

// MemoryStore is a small, bounded key/value store used for the MCP
// client's long-lived memory (spec §1: "only rules and long-lived
// memory persist" across restarts). Grounded on
// _examples/SudharshanMutalik46-ts-vms-v1.0's internal/nvr/event_dedup.go,
// which wraps hashicorp/golang-lru the same way (a typed Cache plus a
// thin domain-specific API); here the wrapped value type is a string
// and persistence is a periodic JSON snapshot rather than a TTL check.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, string]
	path  string
}

// NewMemoryStore creates a MemoryStore, loading any existing snapshot
// at path (if non-empty). A missing file is not an error.
func NewMemoryStore(path string) (*MemoryStore, error) {
	cache, err := lru.New[string, string](memoryCapacity)
	if err != nil {
		return nil, core.Wrap(core.KindConfigInvalid, "creating memory store cache", err)
	}
	m := &MemoryStore{cache: cache, path: path}
	if path == "" {
		return m, nil
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MemoryStore) load() error {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return core.Wrap(core.KindConfigInvalid, "reading memory snapshot", err)
	}
	var entries map[string]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return core.Wrap(core.KindConfigInvalid, "parsing memory snapshot", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range entries {
		m.cache.Add(k, v)
	}
	return nil
}

// Get returns the value stored under key, if any.
func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Get(key)
}

// Set stores value under key, evicting the least-recently-used entry if
// the store is at capacity.
func (m *MemoryStore) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Add(key, value)
}

// Delete removes key, if present.
func (m *MemoryStore) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(key)
}

// Keys lists every key currently held, most recently used last.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Keys()
}

// Snapshot writes the full KV contents to the store's configured path
// as JSON. A no-op if no path was configured. Intended to be called
// periodically and on shutdown (spec §5's flush-on-shutdown step).
func (m *MemoryStore) Snapshot() error {
	if m.path == "" {
		return nil
	}
	m.mu.Lock()
	entries := make(map[string]string, m.cache.Len())
	for _, k := range m.cache.Keys() {
		if v, ok := m.cache.Peek(k); ok {
			entries[k] = v
		}
	}
	m.mu.Unlock()

	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return core.Wrap(core.KindConfigInvalid, "encoding memory snapshot", err)
	}
	if err := os.WriteFile(m.path, raw, 0o644); err != nil {
		return core.Wrap(core.KindConfigInvalid, "writing memory snapshot", err)
	}
	return nil
}
