package ports

import (
	"context"
	"errors"
	"time"

	"PaperTriage/internal/domain"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// CandidateFilter narrows the record set handed to ranking and batches.
// Empty fields do not filter.
type CandidateFilter struct {
	States     []domain.TriageState
	Categories []string
	Query      string
}

// RecordStore persists catalog records and their signals.
type RecordStore interface {
	Upsert(ctx context.Context, record domain.CatalogRecord) (bool, error)
	Get(ctx context.Context, catalogID string) (domain.CatalogRecord, error)
	GetCandidates(ctx context.Context, filter CandidateFilter) ([]domain.CatalogRecord, error)
	SaveSignals(ctx context.Context, catalogID string, signals domain.Signals) error
	SetState(ctx context.Context, catalogID string, state domain.TriageState) error
	SetTags(ctx context.Context, catalogID string, tags []string) error
}

// CheckpointStore remembers harvest progress per category.
type CheckpointStore interface {
	Checkpoint(ctx context.Context, key string) (string, bool, error)
	SetCheckpoint(ctx context.Context, key, value string) error
}

// ETagEntry is the conditional-fetch token for one query signature.
type ETagEntry struct {
	ETag      string    `json:"etag"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ETagCache maps query signatures to ETags. Entries never expire on their own.
type ETagCache interface {
	Get(ctx context.Context, signature string) (ETagEntry, bool, error)
	Put(ctx context.Context, signature string, entry ETagEntry) error
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
}

// LanguageModel is one vendor's completion capability.
type LanguageModel interface {
	Name() string
	Available() bool
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelResolver selects a language model by provider name. An empty name
// selects the configured default; unknown names resolve to an unavailable model.
type ModelResolver interface {
	Resolve(name string) LanguageModel
}

// Notifier streams run summaries to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
