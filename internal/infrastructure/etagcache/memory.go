package etagcache

import (
	"context"
	"strings"
	"sync"

	"PaperTriage/internal/ports"
)

// Memory keeps ETags for the life of the process.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]ports.ETagEntry
}

var _ ports.ETagCache = (*Memory)(nil)

// NewMemory builds an empty cache.
func NewMemory() *Memory {
	return &Memory{entries: map[string]ports.ETagEntry{}}
}

// Get returns the entry for signature.
func (m *Memory) Get(_ context.Context, signature string) (ports.ETagEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[signature]
	return entry, ok, nil
}

// Put records an entry, replacing any previous one.
func (m *Memory) Put(_ context.Context, signature string, entry ports.ETagEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[signature] = entry
	return nil
}

// InvalidatePrefix removes every signature starting with prefix.
func (m *Memory) InvalidatePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for sig := range m.entries {
		if strings.HasPrefix(sig, prefix) {
			delete(m.entries, sig)
			removed++
		}
	}
	return removed, nil
}
