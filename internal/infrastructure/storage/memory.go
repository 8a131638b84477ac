package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/ingest"
	"PaperTriage/internal/ports"
)

// MemoryRepository keeps records in process. Used when no database is
// configured and in tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	records     map[string]domain.CatalogRecord
	checkpoints map[string]string
}

var (
	_ ports.RecordStore     = (*MemoryRepository)(nil)
	_ ports.CheckpointStore = (*MemoryRepository)(nil)
)

// NewMemoryRepository returns an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records:     make(map[string]domain.CatalogRecord),
		checkpoints: make(map[string]string),
	}
}

func (m *MemoryRepository) Upsert(_ context.Context, record domain.CatalogRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var existing *domain.CatalogRecord
	if stored, ok := m.records[record.CatalogID]; ok {
		existing = &stored
	}
	merged, applied := ingest.Merge(existing, record)
	if applied {
		m.records[record.CatalogID] = clone(merged)
	}
	return applied, nil
}

func (m *MemoryRepository) Get(_ context.Context, catalogID string) (domain.CatalogRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[catalogID]
	if !ok {
		return domain.CatalogRecord{}, notFound(catalogID)
	}
	return clone(rec), nil
}

// GetCandidates mirrors the Postgres ordering: newest first, then id.
func (m *MemoryRepository) GetCandidates(_ context.Context, filter ports.CandidateFilter) ([]domain.CatalogRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.CatalogRecord, 0, len(m.records))
	for _, rec := range m.records {
		if matches(rec, filter) {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].CatalogID < out[j].CatalogID
	})
	return out, nil
}

func (m *MemoryRepository) SaveSignals(_ context.Context, catalogID string, signals domain.Signals) error {
	return m.modify(catalogID, func(rec *domain.CatalogRecord) {
		rec.Signals = cloneSignals(signals)
	})
}

func (m *MemoryRepository) SetState(_ context.Context, catalogID string, state domain.TriageState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid state %q", state)
	}
	return m.modify(catalogID, func(rec *domain.CatalogRecord) {
		rec.State = state
	})
}

func (m *MemoryRepository) SetTags(_ context.Context, catalogID string, tags []string) error {
	return m.modify(catalogID, func(rec *domain.CatalogRecord) {
		rec.Tags = append([]string{}, tags...)
	})
}

func (m *MemoryRepository) modify(catalogID string, fn func(*domain.CatalogRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[catalogID]
	if !ok {
		return notFound(catalogID)
	}
	fn(&rec)
	m.records[catalogID] = rec
	return nil
}

func (m *MemoryRepository) Checkpoint(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.checkpoints[key]
	return value, ok, nil
}

func (m *MemoryRepository) SetCheckpoint(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[key] = value
	return nil
}

func clone(rec domain.CatalogRecord) domain.CatalogRecord {
	rec.Authors = append([]string{}, rec.Authors...)
	rec.Categories = append([]string{}, rec.Categories...)
	rec.Tags = append([]string{}, rec.Tags...)
	rec.Signals = cloneSignals(rec.Signals)
	return rec
}

func cloneSignals(s domain.Signals) domain.Signals {
	if s.Rubric != nil {
		r := *s.Rubric
		s.Rubric = &r
	}
	if s.SuggestedTags != nil {
		s.SuggestedTags = append([]string{}, s.SuggestedTags...)
	}
	return s
}
