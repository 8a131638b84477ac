// Package scoring produces calibrated five-axis rubrics through a language
// model, falling back to a deterministic text heuristic.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/logging"
	"PaperTriage/internal/metrics"
	"PaperTriage/internal/ports"
	"PaperTriage/pkg/llmjson"
)

// HeuristicProvider names the fallback path in results and metrics.
const HeuristicProvider = "heuristic"

// Result is one scoring call. Rubric is calibrated; Raw is what the model or
// heuristic produced before calibration.
type Result struct {
	Rubric   domain.Rubric `json:"rubric"`
	Raw      domain.Rubric `json:"raw"`
	Provider string        `json:"provider"`
	Fallback bool          `json:"fallback"`
	Reason   string        `json:"reason,omitempty"`
}

// Scorer never fails: provider problems switch to the heuristic.
type Scorer struct {
	models      ports.ModelResolver
	calibration Calibration
	interests   []string
	logger      *slog.Logger
}

// NewScorer wires the model resolver and calibration constants.
func NewScorer(models ports.ModelResolver, calibration Calibration, interests []string, log *slog.Logger) *Scorer {
	return &Scorer{
		models:      models,
		calibration: calibration,
		interests:   interests,
		logger:      logging.OrDiscard(log),
	}
}

// Score rates rec with the named provider, or the default when empty.
func (s *Scorer) Score(ctx context.Context, rec domain.CatalogRecord, provider string) Result {
	raw, name, err := s.fromModel(ctx, rec, provider)
	res := Result{Raw: raw, Provider: name}
	if err != nil {
		res.Raw = Heuristic(rec, s.interests)
		res.Fallback = true
		res.Reason = err.Error()
		s.logger.Debug("rubric fallback", "catalog_id", rec.CatalogID, "provider", name, "reason", err)
	}

	res.Rubric = s.calibration.Apply(res.Raw)
	metrics.RecordScore(name, res.Fallback)
	return res
}

type rubricAnswer struct {
	Novelty     *float64 `json:"novelty"`
	Evidence    *float64 `json:"evidence"`
	Clarity     *float64 `json:"clarity"`
	Reusability *float64 `json:"reusability"`
	Fit         *float64 `json:"fit"`
}

var errIncompleteRubric = errors.New("rubric answer is missing axes")

func (s *Scorer) fromModel(ctx context.Context, rec domain.CatalogRecord, provider string) (domain.Rubric, string, error) {
	if s.models == nil {
		return domain.Rubric{}, HeuristicProvider, fmt.Errorf("no language models configured")
	}
	model := s.models.Resolve(provider)
	if !model.Available() {
		return domain.Rubric{}, model.Name(), fmt.Errorf("provider %s is not available", model.Name())
	}

	out, err := model.Complete(ctx, RubricPrompt(rec, s.interests))
	if err != nil {
		return domain.Rubric{}, model.Name(), err
	}

	answer, err := llmjson.Parse[rubricAnswer](out)
	if err != nil {
		return domain.Rubric{}, model.Name(), err
	}
	rubric, err := answer.rubric()
	if err != nil {
		return domain.Rubric{}, model.Name(), err
	}
	return rubric, model.Name(), nil
}

func (a rubricAnswer) rubric() (domain.Rubric, error) {
	axes := []*float64{a.Novelty, a.Evidence, a.Clarity, a.Reusability, a.Fit}
	values := make([]int, len(axes))
	for i, v := range axes {
		if v == nil || math.IsNaN(*v) {
			return domain.Rubric{}, errIncompleteRubric
		}
		values[i] = Clamp(int(math.Floor(*v + 0.5)))
	}
	return domain.Rubric{
		Novelty:     values[0],
		Evidence:    values[1],
		Clarity:     values[2],
		Reusability: values[3],
		Fit:         values[4],
	}, nil
}
