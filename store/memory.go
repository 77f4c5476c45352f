package store

import (
	"context"
	"sync"

	ignition "github.com/wolfeidau/stat-ignition"
)

// DefaultNamespace is the key stat caches are saved under.
const DefaultNamespace = "ignition.stat"

// shared is the process-wide memory every Memory store reads and writes, so
// separate Memory values with the same namespace see each other's saves.
var shared = struct {
	mu     sync.RWMutex
	caches map[string]ignition.StatCache
}{caches: map[string]ignition.StatCache{}}

// Memory is a store held in process memory and shared by namespace.
type Memory struct {
	namespace string
	supported bool
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithNamespace sets the key the cache is saved under.
func WithNamespace(namespace string) MemoryOption {
	return func(m *Memory) {
		m.namespace = namespace
	}
}

// WithSupported overrides what IsSupported reports.
func WithSupported(supported bool) MemoryOption {
	return func(m *Memory) {
		m.supported = supported
	}
}

// NewMemory creates a memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{namespace: DefaultNamespace, supported: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsSupported implements Store.
func (m *Memory) IsSupported(context.Context) bool {
	return m.supported
}

// FetchStatCache implements Store.
func (m *Memory) FetchStatCache(context.Context) (ignition.StatCache, error) {
	shared.mu.RLock()
	defer shared.mu.RUnlock()

	cache, ok := shared.caches[m.namespace]
	if !ok {
		return nil, ErrNotFound
	}
	return cache.Clone(), nil
}

// SaveStatCache implements Store.
func (m *Memory) SaveStatCache(_ context.Context, cache ignition.StatCache) error {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	shared.caches[m.namespace] = cache.Clone()
	return nil
}

// ClearStatCache implements Clearer.
func (m *Memory) ClearStatCache(context.Context) error {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	delete(shared.caches, m.namespace)
	return nil
}

var (
	_ Store   = (*Memory)(nil)
	_ Clearer = (*Memory)(nil)
)
