package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"PaperTriage/internal/batch"
	"PaperTriage/internal/catalog"
	"PaperTriage/internal/domain"
	"PaperTriage/internal/ingest"
	"PaperTriage/internal/logging"
	"PaperTriage/internal/metrics"
	"PaperTriage/internal/ports"
	"PaperTriage/internal/ranking"
	"PaperTriage/internal/scoring"
)

const (
	harvestSource    = "oai"
	checkpointPrefix = "oai_last_"
)

// SourceResolver looks up catalog strategies by name.
type SourceResolver interface {
	Resolve(name string) (catalog.Source, error)
}

// IDFetcher resolves explicit identifiers.
type IDFetcher interface {
	FetchByIDs(ctx context.Context, ids []string) (catalog.Result, error)
}

// Invalidator drops cached ETags of a query.
type Invalidator interface {
	Invalidate(ctx context.Context, prefix string) (int, error)
}

// BatchRunner executes score/suggest batches.
type BatchRunner interface {
	Run(ctx context.Context, req batch.Request) (domain.BatchSummary, error)
}

// Defaults fill request fields left empty by the caller.
type Defaults struct {
	Source     string
	Categories []string
	WindowDays int
	MaxResults int
	BatchLimit int
}

// PipelineDeps wires all driven adapters into the use cases.
type PipelineDeps struct {
	Sources     SourceResolver
	ByID        IDFetcher
	Invalidator Invalidator
	Normalizer  *ingest.Normalizer
	Store       ports.RecordStore
	Checkpoints ports.CheckpointStore
	Ranker      *ranking.BM25
	Scorer      batch.RubricScorer
	Suggester   batch.TagSuggester
	Batches     BatchRunner
	Notifier    ports.Notifier
	Defaults    Defaults
	Logger      *slog.Logger
	Now         func() time.Time
}

// Pipeline implements ingestion, retrieval and annotation workflows.
type Pipeline struct {
	sources     SourceResolver
	byID        IDFetcher
	invalidator Invalidator
	normalizer  *ingest.Normalizer
	store       ports.RecordStore
	checkpoints ports.CheckpointStore
	ranker      *ranking.BM25
	scorer      batch.RubricScorer
	suggester   batch.TagSuggester
	batches     BatchRunner
	notifier    ports.Notifier
	defaults    Defaults
	logger      *slog.Logger
	now         func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		sources:     deps.Sources,
		byID:        deps.ByID,
		invalidator: deps.Invalidator,
		normalizer:  deps.Normalizer,
		store:       deps.Store,
		checkpoints: deps.Checkpoints,
		ranker:      deps.Ranker,
		scorer:      deps.Scorer,
		suggester:   deps.Suggester,
		batches:     deps.Batches,
		notifier:    deps.Notifier,
		defaults:    deps.Defaults,
		logger:      logging.OrDiscard(deps.Logger),
		now:         deps.Now,
	}
	if p.normalizer == nil {
		p.normalizer = ingest.NewNormalizer(time.UTC)
	}
	if p.ranker == nil {
		p.ranker = ranking.NewBM25()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.defaults.Source == "" {
		p.defaults.Source = "arxiv"
	}
	return p
}

// IngestRequest selects what to fetch. Zero values take the defaults.
type IngestRequest struct {
	Source     string
	Categories []string
	Days       int
	MaxResults int
	Refresh    bool
}

// Ingest fetches the recent window of the given categories and merges every
// entry into the store. Page failures are reported, not returned.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (domain.IngestReport, error) {
	name := req.Source
	if name == "" {
		name = p.defaults.Source
	}
	source, err := p.sources.Resolve(name)
	if err != nil {
		return domain.IngestReport{}, err
	}

	q := catalog.Query{
		Categories: firstNonEmpty(req.Categories, p.defaults.Categories),
		Window:     domain.LastDays(p.now(), positive(req.Days, p.defaults.WindowDays, 1)),
		MaxResults: positive(req.MaxResults, p.defaults.MaxResults, 0),
	}

	if req.Refresh && p.invalidator != nil {
		dropped, err := p.invalidator.Invalidate(ctx, catalog.QueryPrefix(source.Name(), q))
		if err != nil {
			return domain.IngestReport{}, fmt.Errorf("invalidate etags: %w", err)
		}
		p.logger.Info("etag cache invalidated", "source", source.Name(), "entries", dropped)
	}

	result, err := source.Fetch(ctx, q)
	report := domain.IngestReport{Source: source.Name(), Pages: result.Pages}
	if err != nil {
		return report, fmt.Errorf("fetch %s: %w", source.Name(), err)
	}

	if err := p.persist(ctx, result.Entries, &report); err != nil {
		p.forget(ctx, catalog.QueryPrefix(source.Name(), q))
		return report, err
	}
	p.logReport(report)
	p.notify(ctx, formatIngestDigest(report))
	return report, nil
}

// HarvestRequest drives an OAI-PMH harvest.
type HarvestRequest struct {
	Categories    []string
	Days          int
	UseCheckpoint bool
}

// Harvest runs one OAI harvest per category. With UseCheckpoint a category
// resumes from its stored datestamp; a category harvested without page
// failures moves its checkpoint forward.
func (p *Pipeline) Harvest(ctx context.Context, req HarvestRequest) (domain.IngestReport, error) {
	source, err := p.sources.Resolve(harvestSource)
	if err != nil {
		return domain.IngestReport{}, err
	}

	report := domain.IngestReport{Source: source.Name()}
	fallback := domain.LastDays(p.now(), positive(req.Days, p.defaults.WindowDays, 1))

	for _, cat := range firstNonEmpty(req.Categories, p.defaults.Categories) {
		window := fallback
		if req.UseCheckpoint && p.checkpoints != nil {
			if from, ok := p.checkpointFor(ctx, cat); ok {
				window.From = from
			}
		}

		q := catalog.Query{Categories: []string{cat}, Window: window}
		result, err := source.Fetch(ctx, q)
		report.Pages = append(report.Pages, result.Pages...)
		if err != nil {
			return report, fmt.Errorf("harvest %s: %w", cat, err)
		}
		if err := p.persist(ctx, result.Entries, &report); err != nil {
			p.forget(ctx, catalog.QueryPrefix(source.Name(), q))
			return report, err
		}

		if p.checkpoints != nil && !hasFailedPage(result.Pages) {
			last := window.Until.Add(-time.Nanosecond).UTC().Format(time.DateOnly)
			if err := p.checkpoints.SetCheckpoint(ctx, checkpointPrefix+cat, last); err != nil {
				return report, fmt.Errorf("save checkpoint %s: %w", cat, err)
			}
		}
	}

	p.logReport(report)
	p.notify(ctx, formatIngestDigest(report))
	return report, nil
}

func (p *Pipeline) checkpointFor(ctx context.Context, category string) (time.Time, bool) {
	value, ok, err := p.checkpoints.Checkpoint(ctx, checkpointPrefix+category)
	if err != nil {
		p.logger.Warn("checkpoint unreadable", "category", category, "error", err)
		return time.Time{}, false
	}
	if !ok {
		return time.Time{}, false
	}
	from, err := time.Parse(time.DateOnly, value)
	if err != nil {
		p.logger.Warn("checkpoint malformed", "category", category, "value", value)
		return time.Time{}, false
	}
	return from, true
}

// IngestByIDs fetches and merges specific papers.
func (p *Pipeline) IngestByIDs(ctx context.Context, ids []string) (domain.IngestReport, error) {
	if p.byID == nil {
		return domain.IngestReport{}, errors.New("fetch by id is not supported")
	}
	result, err := p.byID.FetchByIDs(ctx, ids)
	report := domain.IngestReport{Source: "arxiv", Pages: result.Pages}
	if err != nil {
		return report, fmt.Errorf("fetch ids: %w", err)
	}
	if err := p.persist(ctx, result.Entries, &report); err != nil {
		p.forget(ctx, catalog.IDsSignature(report.Source, ids))
		return report, err
	}
	p.logReport(report)
	return report, nil
}

// persist normalizes and merges entries, counting each outcome. Rejected
// entries are skipped; a store failure aborts.
func (p *Pipeline) persist(ctx context.Context, entries []domain.RawEntry, report *domain.IngestReport) error {
	report.Fetched += len(entries)
	for _, raw := range entries {
		rec, err := p.normalizer.Normalize(raw)
		if err != nil {
			report.Rejected++
			metrics.RecordUpsert(string(ingest.OutcomeRejected))
			p.logger.Debug("entry rejected", "id", raw.ID, "error", err)
			continue
		}

		existed, err := p.exists(ctx, rec.CatalogID)
		if err != nil {
			return err
		}
		applied, err := p.store.Upsert(ctx, rec)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", rec.CatalogID, err)
		}

		outcome := ingest.Classify(existed, applied)
		metrics.RecordUpsert(string(outcome))
		switch outcome {
		case ingest.OutcomeInserted:
			report.Inserted++
		case ingest.OutcomeUpdated:
			report.Updated++
		default:
			report.Unchanged++
		}
	}
	return nil
}

// forget drops the cached ETags of a query whose entries did not all reach
// the store.
func (p *Pipeline) forget(ctx context.Context, prefix string) {
	if p.invalidator == nil {
		return
	}
	dropped, err := p.invalidator.Invalidate(context.WithoutCancel(ctx), prefix)
	if err != nil {
		p.logger.Warn("etag invalidation failed", "prefix", prefix, "error", err)
		return
	}
	p.logger.Info("etag cache invalidated after store failure", "prefix", prefix, "entries", dropped)
}

func (p *Pipeline) exists(ctx context.Context, id string) (bool, error) {
	_, err := p.store.Get(ctx, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ports.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("lookup %s: %w", id, err)
}

func (p *Pipeline) logReport(r domain.IngestReport) {
	p.logger.Info("ingest finished",
		"source", r.Source,
		"fetched", r.Fetched,
		"inserted", r.Inserted,
		"updated", r.Updated,
		"unchanged", r.Unchanged,
		"rejected", r.Rejected,
		"failed_pages", len(r.FailedPages()),
	)
}

func (p *Pipeline) notify(ctx context.Context, digest string) {
	if p.notifier == nil || digest == "" {
		return
	}
	if err := p.notifier.PublishDigest(ctx, digest); err != nil {
		p.logger.Warn("digest not delivered", "error", err)
	}
}

// ScoreOne scores a single record and stores the rubric.
func (p *Pipeline) ScoreOne(ctx context.Context, id, provider string) (scoring.Result, error) {
	rec, err := p.store.Get(ctx, id)
	if err != nil {
		return scoring.Result{}, err
	}
	res := p.scorer.Score(ctx, rec, provider)

	signals := rec.Signals
	rubric := res.Rubric
	signals.Rubric = &rubric
	if err := p.store.SaveSignals(ctx, id, signals); err != nil {
		return res, fmt.Errorf("save rubric %s: %w", id, err)
	}
	return res, nil
}

// SuggestResult is one suggestion call. On provider failure Tags is empty,
// Error says why and the stored suggestions are left alone.
type SuggestResult struct {
	CatalogID string   `json:"catalog_id"`
	Tags      []string `json:"suggested_tags"`
	Error     string   `json:"error,omitempty"`
}

// SuggestOne asks for tag suggestions and stores them. Only lookup and
// persistence failures are returned as errors.
func (p *Pipeline) SuggestOne(ctx context.Context, id, provider string) (SuggestResult, error) {
	res := SuggestResult{CatalogID: id, Tags: []string{}}
	rec, err := p.store.Get(ctx, id)
	if err != nil {
		return res, err
	}
	tags, err := p.suggester.Suggest(ctx, rec, provider)
	if err != nil {
		res.Error = err.Error()
		return res, nil
	}
	res.Tags = tags

	signals := rec.Signals
	signals.SuggestedTags = tags
	if err := p.store.SaveSignals(ctx, id, signals); err != nil {
		return res, fmt.Errorf("save suggestions %s: %w", id, err)
	}
	return res, nil
}

func positive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}

func hasFailedPage(pages []domain.PageReport) bool {
	for _, p := range pages {
		if p.Status == domain.PageFailed {
			return true
		}
	}
	return false
}
