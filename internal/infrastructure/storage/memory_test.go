package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/ports"
)

func TestMemoryUpsertFollowsVersionRules(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepository()

	applied, err := repo.Upsert(ctx, sampleRecord(1))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.Upsert(ctx, sampleRecord(1))
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, repo.SetState(ctx, "2501.01234", domain.StateShortlist))
	require.NoError(t, repo.SetTags(ctx, "2501.01234", []string{"geometry"}))

	newer := sampleRecord(2)
	newer.Title = "Revised"
	applied, err = repo.Upsert(ctx, newer)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := repo.Get(ctx, "2501.01234")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "Revised", got.Title)
	assert.Equal(t, domain.StateShortlist, got.State)
	assert.Equal(t, []string{"geometry"}, got.Tags)
}

func TestMemoryReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepository()
	_, err := repo.Upsert(ctx, sampleRecord(1))
	require.NoError(t, err)
	require.NoError(t, repo.SaveSignals(ctx, "2501.01234", domain.Signals{
		Rubric: &domain.Rubric{Novelty: 3, Evidence: 3, Clarity: 3, Reusability: 3, Fit: 3},
	}))

	got, err := repo.Get(ctx, "2501.01234")
	require.NoError(t, err)
	got.Authors[0] = "Mallory"
	got.Signals.Rubric.Fit = 1

	again, err := repo.Get(ctx, "2501.01234")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", again.Authors[0])
	assert.Equal(t, 3, again.Signals.Rubric.Fit)
}

func TestMemoryMissingRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.SaveSignals(ctx, "nope", domain.Signals{}), ErrNotFound)
	assert.ErrorIs(t, repo.SetState(ctx, "nope", domain.StateHidden), ErrNotFound)
	assert.ErrorIs(t, repo.SetTags(ctx, "nope", nil), ErrNotFound)
}

func TestMemoryCandidates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepository()

	mk := func(id, title, cat string, day int, state domain.TriageState) {
		rec := sampleRecord(1)
		rec.CatalogID = id
		rec.Title = title
		rec.Abstract = ""
		rec.Categories = []string{cat}
		rec.UpdatedAt = time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC)
		_, err := repo.Upsert(ctx, rec)
		require.NoError(t, err)
		if state != domain.StateTriage {
			require.NoError(t, repo.SetState(ctx, id, state))
		}
	}
	mk("a", "Graph networks", "cs.LG", 1, domain.StateTriage)
	mk("b", "Image segmentation", "cs.CV", 3, domain.StateTriage)
	mk("c", "Graph coloring", "math.CO", 3, domain.StateArchived)

	all, err := repo.GetCandidates(ctx, ports.CandidateFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, catalogIDs(all))

	triage, err := repo.GetCandidates(ctx, ports.CandidateFilter{States: []domain.TriageState{domain.StateTriage}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, catalogIDs(triage))

	graph, err := repo.GetCandidates(ctx, ports.CandidateFilter{Query: "GRAPH theory"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, catalogIDs(graph))

	cv, err := repo.GetCandidates(ctx, ports.CandidateFilter{Categories: []string{"cs.CV", "q-bio.NC"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, catalogIDs(cv))
}

func TestMemoryCheckpoints(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepository()

	_, ok, err := repo.Checkpoint(ctx, "oai_last_cs.CV")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetCheckpoint(ctx, "oai_last_cs.CV", "2025-01-09"))
	value, ok, err := repo.Checkpoint(ctx, "oai_last_cs.CV")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2025-01-09", value)
}

func catalogIDs(recs []domain.CatalogRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.CatalogID
	}
	return out
}
