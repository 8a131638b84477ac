package ranking

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperTriage/internal/domain"
)

func rec(id, title, abstract string, day int) domain.CatalogRecord {
	return domain.CatalogRecord{
		CatalogID: id,
		Title:     title,
		Abstract:  abstract,
		UpdatedAt: time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC),
	}
}

func corpus() []domain.CatalogRecord {
	return []domain.CatalogRecord{
		rec("a", "Graph neural networks", "We study graph networks.", 1),
		rec("b", "Image segmentation", "Convolutional networks for images.", 2),
		rec("c", "Graph theory", "Planar graph coloring.", 3),
	}
}

func ids(scored []Scored) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Record.CatalogID
	}
	return out
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"hello", "world", "3d", "cnns", "über"},
		Tokenize("Hello, World! x 3D-CNNs α Über"))
	assert.Empty(t, Tokenize(" - a . "))
}

func TestRankOrdersByRelevance(t *testing.T) {
	t.Parallel()

	got := NewBM25().Rank(corpus(), "graph")
	require.Len(t, got, 2)
	// Same term frequency, the shorter document wins.
	assert.Equal(t, []string{"c", "a"}, ids(got))
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestRankMultiTermQuery(t *testing.T) {
	t.Parallel()

	got := NewBM25().Rank(corpus(), "graph networks")
	assert.Equal(t, []string{"a", "c", "b"}, ids(got))
}

func TestRankScoreMatchesFormula(t *testing.T) {
	t.Parallel()

	records := []domain.CatalogRecord{
		rec("x", "alpha beta", "", 1),
		rec("y", "gamma delta", "", 1),
	}
	got := NewBM25().Rank(records, "alpha")
	require.Len(t, got, 1)

	// N=2, n=1, tf=1, dl=avgdl.
	idf := math.Log((2-1+0.5)/(1+0.5) + 1)
	want := idf * 1 * (DefaultK1 + 1) / (1 + DefaultK1)
	assert.InDelta(t, want, got[0].Score, 1e-9)
}

func TestRankTiesPreferNewer(t *testing.T) {
	t.Parallel()

	records := []domain.CatalogRecord{
		rec("old", "Diffusion models", "Sampling.", 1),
		rec("new", "Diffusion models", "Sampling.", 9),
		rec("mid", "Diffusion models", "Sampling.", 5),
	}
	got := NewBM25().Rank(records, "diffusion")
	assert.Equal(t, []string{"new", "mid", "old"}, ids(got))
}

func TestRankEmptyQueryKeepsOrder(t *testing.T) {
	t.Parallel()

	for _, q := range []string{"", "   ", "a ."} {
		got := NewBM25().Rank(corpus(), q)
		assert.Equal(t, []string{"a", "b", "c"}, ids(got), q)
		for _, s := range got {
			assert.Zero(t, s.Score)
		}
	}
}

func TestRankNoMatchesIsEmpty(t *testing.T) {
	t.Parallel()

	got := NewBM25().Rank(corpus(), "quantum chromodynamics")
	assert.NotNil(t, got)
	assert.Empty(t, got)

	assert.Empty(t, NewBM25().Rank(nil, "graph"))
}

func TestRankIsDeterministic(t *testing.T) {
	t.Parallel()

	records := corpus()
	snapshot := append([]domain.CatalogRecord(nil), records...)
	ranker := NewBM25()

	first := ranker.Rank(records, "graph networks images")
	second := ranker.Rank(records, "graph networks images")
	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, records)
}

func TestRankRepeatedQueryTermsAccumulate(t *testing.T) {
	t.Parallel()

	ranker := NewBM25()
	once := ranker.Rank(corpus(), "graph")
	twice := ranker.Rank(corpus(), "graph Graph")
	require.Equal(t, ids(once), ids(twice))
	for i := range once {
		assert.InDelta(t, 2*once[i].Score, twice[i].Score, 1e-12)
	}
}
