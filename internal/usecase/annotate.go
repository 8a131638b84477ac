package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"PaperTriage/internal/batch"
	"PaperTriage/internal/domain"
	"PaperTriage/internal/ports"
	"PaperTriage/internal/scoring"
	"PaperTriage/internal/tagging"
)

// BatchRequest selects targets for a score or suggest batch.
type BatchRequest struct {
	Operation   domain.Operation
	Provider    string
	States      []domain.TriageState
	Categories  []string
	Query       string
	Limit       int
	OnlyMissing bool
	Delay       time.Duration
	Progress    batch.ProgressFunc
}

// RunBatch picks candidates (every state unless States is set; ranked by
// relevance when a query is given, newest first otherwise), drops already
// annotated ones when OnlyMissing is set, caps them at Limit and hands them
// to the orchestrator.
func (p *Pipeline) RunBatch(ctx context.Context, req BatchRequest) (domain.BatchSummary, error) {
	if !req.Operation.Valid() {
		return domain.BatchSummary{}, fmt.Errorf("unknown batch operation %q", req.Operation)
	}

	candidates, err := p.store.GetCandidates(ctx, ports.CandidateFilter{
		States:     req.States,
		Categories: req.Categories,
		Query:      req.Query,
	})
	if err != nil {
		return domain.BatchSummary{}, fmt.Errorf("load candidates: %w", err)
	}
	if req.Query != "" {
		ranked := p.ranker.Rank(candidates, req.Query)
		candidates = make([]domain.CatalogRecord, len(ranked))
		for i, s := range ranked {
			candidates[i] = s.Record
		}
	}

	limit := positive(req.Limit, p.defaults.BatchLimit, 0)
	targets := make([]domain.CatalogRecord, 0, len(candidates))
	for _, rec := range candidates {
		if req.OnlyMissing && annotated(rec, req.Operation) {
			continue
		}
		targets = append(targets, rec)
		if limit > 0 && len(targets) == limit {
			break
		}
	}

	summary, err := p.batches.Run(ctx, batch.Request{
		Label:     fmt.Sprintf("%s-batch", req.Operation),
		Operation: req.Operation,
		Provider:  req.Provider,
		Targets:   targets,
		Delay:     req.Delay,
		Progress:  req.Progress,
	})
	if err != nil {
		return summary, err
	}
	p.notify(ctx, formatBatchDigest(summary))
	return summary, nil
}

func annotated(rec domain.CatalogRecord, op domain.Operation) bool {
	if op == domain.OpScore {
		return rec.Signals.Rubric != nil
	}
	return len(rec.Signals.SuggestedTags) > 0
}

// SetRubric stores a reader-provided rubric, clamped to the axis range.
func (p *Pipeline) SetRubric(ctx context.Context, id string, rubric domain.Rubric) (domain.Rubric, error) {
	rec, err := p.store.Get(ctx, id)
	if err != nil {
		return domain.Rubric{}, err
	}
	clamped := scoring.ClampRubric(rubric)
	signals := rec.Signals
	signals.Rubric = &clamped
	if err := p.store.SaveSignals(ctx, id, signals); err != nil {
		return domain.Rubric{}, fmt.Errorf("save rubric %s: %w", id, err)
	}
	return clamped, nil
}

// SetState moves a record between triage queues.
func (p *Pipeline) SetState(ctx context.Context, id string, state domain.TriageState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid triage state %q", state)
	}
	return p.store.SetState(ctx, id, state)
}

// EditTags adds and removes reader tags. The stored tags stay a sorted set
// of normalized values.
func (p *Pipeline) EditTags(ctx context.Context, id string, add, remove []string) ([]string, error) {
	rec, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(rec.Tags)+len(add))
	for _, t := range tagging.Clean(rec.Tags, 0) {
		set[t] = struct{}{}
	}
	for _, t := range tagging.Clean(add, 0) {
		set[t] = struct{}{}
	}
	for _, t := range tagging.Clean(remove, 0) {
		delete(set, t)
	}

	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	if err := p.store.SetTags(ctx, id, tags); err != nil {
		return nil, fmt.Errorf("save tags %s: %w", id, err)
	}
	return tags, nil
}
