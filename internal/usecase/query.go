package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/ports"
	"PaperTriage/internal/ranking"
)

// SearchRequest is a lexical search over stored records.
type SearchRequest struct {
	Query      string
	States     []domain.TriageState
	Categories []string
	Limit      int
}

// Search prefilters in the store and ranks the candidates with BM25.
func (p *Pipeline) Search(ctx context.Context, req SearchRequest) ([]ranking.Scored, error) {
	candidates, err := p.store.GetCandidates(ctx, ports.CandidateFilter{
		States:     req.States,
		Categories: req.Categories,
		Query:      req.Query,
	})
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	ranked := p.ranker.Rank(candidates, req.Query)
	if req.Limit > 0 && len(ranked) > req.Limit {
		ranked = ranked[:req.Limit]
	}
	return ranked, nil
}

const histogramDays = 31

// StatsRequest selects the records to count. A query narrows them to BM25
// matches. Month ("2006-01") switches the day histogram from the last 31
// days to that calendar month.
type StatsRequest struct {
	States     []domain.TriageState
	Categories []string
	Query      string
	Month      string
}

// Stats summarizes a candidate set.
type Stats struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
	ByState    map[string]int `json:"by_state"`
	ByTag      map[string]int `json:"by_tag"`
	ByDay      map[string]int `json:"by_day"`
	Untagged   int            `json:"untagged"`
	Scored     int            `json:"scored"`
}

// Stats counts records by primary category, state, tag and day.
func (p *Pipeline) Stats(ctx context.Context, req StatsRequest) (Stats, error) {
	day, err := p.dayBucket(req.Month)
	if err != nil {
		return Stats{}, err
	}

	records, err := p.store.GetCandidates(ctx, ports.CandidateFilter{
		States:     req.States,
		Categories: req.Categories,
		Query:      req.Query,
	})
	if err != nil {
		return Stats{}, fmt.Errorf("load candidates: %w", err)
	}
	if strings.TrimSpace(req.Query) != "" {
		ranked := p.ranker.Rank(records, req.Query)
		records = make([]domain.CatalogRecord, len(ranked))
		for i, s := range ranked {
			records[i] = s.Record
		}
	}

	st := Stats{
		Total:      len(records),
		ByCategory: map[string]int{},
		ByState:    map[string]int{},
		ByTag:      map[string]int{},
		ByDay:      map[string]int{},
	}
	for _, rec := range records {
		st.ByCategory[rec.PrimaryCategory]++
		st.ByState[string(rec.State)]++
		if len(rec.Tags) == 0 {
			st.Untagged++
		}
		for _, t := range rec.Tags {
			st.ByTag[t]++
		}
		if rec.Signals.Rubric != nil {
			st.Scored++
		}
		if d, ok := day(rec); ok {
			st.ByDay[d]++
		}
	}
	return st, nil
}

// dayBucket returns the histogram key of a record. Without a month, records
// count on their submission day (update day when unknown) if that falls in
// the last 31 days. With a month, the submission day counts when it lies in
// the month, else the update day.
func (p *Pipeline) dayBucket(month string) (func(domain.CatalogRecord) (string, bool), error) {
	if month == "" {
		cutoff := p.now().UTC().AddDate(0, 0, -histogramDays).Format(time.DateOnly)
		return func(rec domain.CatalogRecord) (string, bool) {
			at := rec.SubmittedAt
			if at.IsZero() {
				at = rec.UpdatedAt
			}
			if at.IsZero() {
				return "", false
			}
			d := at.Format(time.DateOnly)
			return d, d >= cutoff
		}, nil
	}

	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, fmt.Errorf("month %q is not YYYY-MM", month)
	}
	return func(rec domain.CatalogRecord) (string, bool) {
		for _, at := range []time.Time{rec.SubmittedAt, rec.UpdatedAt} {
			if at.IsZero() {
				continue
			}
			if d := at.Format(time.DateOnly); strings.HasPrefix(d, month) {
				return d, true
			}
		}
		return "", false
	}, nil
}
