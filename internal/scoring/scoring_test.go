package scoring

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/ports"
)

type fakeModel struct {
	name      string
	available bool
	out       string
	err       error
	prompts   []string
}

func (m *fakeModel) Name() string    { return m.name }
func (m *fakeModel) Available() bool { return m.available }

func (m *fakeModel) Complete(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.out, m.err
}

type fakeResolver map[string]ports.LanguageModel

func (r fakeResolver) Resolve(name string) ports.LanguageModel {
	if m, ok := r[name]; ok {
		return m
	}
	return &fakeModel{name: "none"}
}

func geometry() domain.CatalogRecord {
	return domain.CatalogRecord{
		CatalogID: "2501.00001",
		Title:     "Line and Plane Geometry",
		Abstract:  "A study of linear spaces",
	}
}

func TestCalibrationBounds(t *testing.T) {
	t.Parallel()

	cal := DefaultCalibration()
	want := map[int]int{1: 2, 2: 2, 3: 3, 4: 4, 5: 4}
	for v := MinAxis; v <= MaxAxis; v++ {
		got := cal.Axis(v)
		assert.Equal(t, want[v], got, "axis %d", v)
		assert.GreaterOrEqual(t, got, MinAxis)
		assert.LessOrEqual(t, got, MaxAxis)

		// Never moves away from the baseline.
		assert.LessOrEqual(t, abs(got-3), abs(v-3), "axis %d", v)
	}

	// Extremes move strictly toward the baseline.
	assert.Less(t, abs(cal.Axis(1)-3), 2)
	assert.Less(t, abs(cal.Axis(5)-3), 2)
}

func TestCalibrationRoundsHalfUpAndClamps(t *testing.T) {
	t.Parallel()

	half := Calibration{Shrink: 0.5, Baseline: 3}
	// 3 + (4-3)*0.5 = 3.5 rounds up, 3 + (2-3)*0.5 = 2.5 rounds up.
	assert.Equal(t, 4, half.Axis(4))
	assert.Equal(t, 3, half.Axis(2))

	wide := Calibration{Shrink: 3, Baseline: 3}
	assert.Equal(t, 5, wide.Axis(5))
	assert.Equal(t, 1, wide.Axis(1))
}

func TestCalibrationRecomputesTotal(t *testing.T) {
	t.Parallel()

	raw := domain.Rubric{Novelty: 5, Evidence: 5, Clarity: 1, Reusability: 1, Fit: 3}
	cal := DefaultCalibration().Apply(raw)
	assert.Equal(t, domain.Rubric{Novelty: 4, Evidence: 4, Clarity: 2, Reusability: 2, Fit: 3}, cal)
	assert.Equal(t, 15, cal.Total())
}

func TestHeuristicWithoutProvider(t *testing.T) {
	t.Parallel()

	scorer := NewScorer(fakeResolver{}, DefaultCalibration(), nil, nil)

	first := scorer.Score(context.Background(), geometry(), "")
	second := scorer.Score(context.Background(), geometry(), "")

	assert.True(t, first.Fallback)
	assert.NotEmpty(t, first.Reason)
	assert.Equal(t, first, second)

	r := first.Rubric
	assert.Equal(t, r.Novelty+r.Evidence+r.Clarity+r.Reusability+r.Fit, r.Total())
	assert.GreaterOrEqual(t, r.Total(), 5)
	assert.LessOrEqual(t, r.Total(), 25)
	assert.Equal(t, domain.Rubric{Novelty: 2, Evidence: 2, Clarity: 2, Reusability: 2, Fit: 3}, r)
}

func TestHeuristicRewardsSignals(t *testing.T) {
	t.Parallel()

	rec := domain.CatalogRecord{
		Title: "A novel diffusion toolkit",
		Abstract: "We propose a new method and release open source code on GitHub. " +
			"Experiments on three benchmark datasets show results that outperform prior work, " +
			"with an ablation over every component of the implementation.",
		Categories: []string{"cs.CV"},
	}
	r := Heuristic(rec, []string{"diffusion", "cs.CV"})
	assert.Equal(t, 5, r.Novelty)
	assert.Equal(t, 5, r.Evidence)
	assert.Equal(t, 4, r.Clarity)
	assert.Equal(t, 5, r.Reusability)
	assert.Equal(t, 5, r.Fit)

	assert.Equal(t, 1, Heuristic(rec, []string{"robotics"}).Fit)
}

func TestScoreWithModel(t *testing.T) {
	t.Parallel()

	model := &fakeModel{
		name:      "openai",
		available: true,
		out:       "```json\n{\"novelty\":5,\"evidence\":4,\"clarity\":3,\"reusability\":2,\"fit\":1}\n```",
	}
	scorer := NewScorer(fakeResolver{"openai": model}, DefaultCalibration(), []string{"geometry"}, nil)

	res := scorer.Score(context.Background(), geometry(), "openai")
	require.False(t, res.Fallback)
	assert.Equal(t, "openai", res.Provider)
	assert.Equal(t, domain.Rubric{Novelty: 5, Evidence: 4, Clarity: 3, Reusability: 2, Fit: 1}, res.Raw)
	assert.Equal(t, domain.Rubric{Novelty: 4, Evidence: 4, Clarity: 3, Reusability: 2, Fit: 2}, res.Rubric)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "Title: Line and Plane Geometry")
	assert.Contains(t, model.prompts[0], "Abstract: A study of linear spaces")
	assert.Contains(t, model.prompts[0], "Reader interests: geometry")
}

func TestScoreFallsBackOnProviderFailure(t *testing.T) {
	t.Parallel()

	heuristic := NewScorer(fakeResolver{}, DefaultCalibration(), nil, nil).Score(context.Background(), geometry(), "")

	cases := map[string]*fakeModel{
		"transport": {name: "openai", available: true, err: errors.New("connection reset")},
		"garbage":   {name: "openai", available: true, out: "I would rate it highly."},
		"partial":   {name: "openai", available: true, out: `{"novelty":4,"evidence":4}`},
		"no key":    {name: "openai", available: false},
	}
	for label, model := range cases {
		scorer := NewScorer(fakeResolver{"openai": model}, DefaultCalibration(), nil, nil)
		res := scorer.Score(context.Background(), geometry(), "openai")

		assert.True(t, res.Fallback, label)
		assert.Equal(t, "openai", res.Provider, label)
		assert.Equal(t, heuristic.Rubric, res.Rubric, label)
	}
}

func TestScoreClampsOutOfRangeModelValues(t *testing.T) {
	t.Parallel()

	model := &fakeModel{name: "deepseek", available: true, out: `{"novelty":9,"evidence":0,"clarity":3.5,"reusability":2,"fit":4}`}
	res := NewScorer(fakeResolver{"deepseek": model}, DefaultCalibration(), nil, nil).
		Score(context.Background(), geometry(), "deepseek")

	require.False(t, res.Fallback)
	assert.Equal(t, domain.Rubric{Novelty: 5, Evidence: 1, Clarity: 4, Reusability: 2, Fit: 4}, res.Raw)
}

func TestRubricPromptIsFixed(t *testing.T) {
	t.Parallel()

	p := RubricPrompt(geometry(), nil)
	assert.True(t, strings.HasPrefix(p, "Score the paper below on five axes."))
	assert.NotContains(t, p, "Reader interests")
	assert.Equal(t, p, RubricPrompt(geometry(), nil))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
