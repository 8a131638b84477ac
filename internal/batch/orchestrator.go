// Package batch drives scoring stages over many records, one at a time.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/logging"
	"PaperTriage/internal/metrics"
	"PaperTriage/internal/scoring"
)

// ErrCanceled is recorded on items skipped after a stop signal.
var ErrCanceled = errors.New("batch canceled")

// RubricScorer is the scoring stage.
type RubricScorer interface {
	Score(ctx context.Context, rec domain.CatalogRecord, provider string) scoring.Result
}

// TagSuggester is the tagging stage.
type TagSuggester interface {
	Suggest(ctx context.Context, rec domain.CatalogRecord, provider string) ([]string, error)
}

// SignalWriter persists the signals a stage produced.
type SignalWriter interface {
	SaveSignals(ctx context.Context, catalogID string, signals domain.Signals) error
}

// ProgressFunc is called synchronously after every processed item.
type ProgressFunc func(done, total int)

// Request is one batch run.
type Request struct {
	Label     string
	Operation domain.Operation
	Provider  string
	Targets   []domain.CatalogRecord
	Delay     time.Duration
	Progress  ProgressFunc
}

// Orchestrator runs items strictly sequentially. A stop signal (ctx
// cancellation) is honoured between items; the item in flight completes.
type Orchestrator struct {
	scorer    RubricScorer
	suggester TagSuggester
	store     SignalWriter
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires the stages and the signal store.
func NewOrchestrator(scorer RubricScorer, suggester TagSuggester, store SignalWriter, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		scorer:    scorer,
		suggester: suggester,
		store:     store,
		logger:    logging.OrDiscard(log),
		sleep:     sleepContext,
	}
}

// Run processes req.Targets in order and returns one outcome per target in
// the same order. Item failures never abort the run.
func (o *Orchestrator) Run(ctx context.Context, req Request) (domain.BatchSummary, error) {
	if !req.Operation.Valid() {
		return domain.BatchSummary{}, fmt.Errorf("unknown batch operation %q", req.Operation)
	}

	job := domain.BatchJob{
		ID:    uuid.NewString(),
		Label: req.Label,
		Items: make([]string, len(req.Targets)),
		Total: len(req.Targets),
	}
	for i, rec := range req.Targets {
		job.Items[i] = rec.CatalogID
	}

	log := o.logger.With("job_id", job.ID, "operation", req.Operation)
	log.Info("batch started", "label", job.Label, "total", job.Total, "provider", req.Provider)

	outcomes := make([]domain.Outcome, len(req.Targets))
	stopped := false
	for i, rec := range req.Targets {
		if stopped || ctx.Err() != nil {
			stopped = true
			outcomes[i] = domain.Outcome{TargetID: rec.CatalogID, Skipped: true, Error: ErrCanceled.Error()}
			metrics.RecordBatchItem(string(req.Operation), "skipped")
			continue
		}

		outcomes[i] = o.runItem(context.WithoutCancel(ctx), req, rec)
		if outcomes[i].Success {
			metrics.RecordBatchItem(string(req.Operation), "success")
		} else {
			metrics.RecordBatchItem(string(req.Operation), "failed")
			log.Warn("batch item failed", "catalog_id", rec.CatalogID, "error", outcomes[i].Error)
		}

		job.Done++
		if req.Progress != nil {
			req.Progress(job.Done, job.Total)
		}

		if i < len(req.Targets)-1 && req.Delay > 0 {
			if err := o.sleep(ctx, req.Delay); err != nil {
				stopped = true
			}
		}
	}

	summary := domain.Summarize(job.ID, req.Operation, outcomes)
	log.Info("batch finished", "succeeded", summary.Succeeded, "failed", summary.Failed, "skipped", summary.Skipped)
	return summary, nil
}

func (o *Orchestrator) runItem(ctx context.Context, req Request, rec domain.CatalogRecord) (out domain.Outcome) {
	out.TargetID = rec.CatalogID
	defer func() {
		if r := recover(); r != nil {
			out.Success = false
			out.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	signals := rec.Signals
	switch req.Operation {
	case domain.OpScore:
		res := o.scorer.Score(ctx, rec, req.Provider)
		rubric := res.Rubric
		signals.Rubric = &rubric
		out.Fallback = res.Fallback
	case domain.OpSuggest:
		tags, err := o.suggester.Suggest(ctx, rec, req.Provider)
		if err != nil {
			out.Error = err.Error()
			return out
		}
		signals.SuggestedTags = tags
	}

	if err := o.store.SaveSignals(ctx, rec.CatalogID, signals); err != nil {
		out.Error = err.Error()
		return out
	}
	out.Success = true
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
