package storage

import (
	"fmt"
	"strings"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/ports"
	"PaperTriage/internal/ranking"
)

// ErrNotFound aliases the port sentinel so callers can match either.
var ErrNotFound = ports.ErrNotFound

const (
	papersTable      = "papers"
	checkpointsTable = "checkpoints"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS papers (
		catalog_id       TEXT PRIMARY KEY,
		version          INTEGER NOT NULL,
		title            TEXT NOT NULL,
		authors          TEXT[] NOT NULL DEFAULT '{}',
		abstract         TEXT NOT NULL DEFAULT '',
		categories       TEXT[] NOT NULL DEFAULT '{}',
		primary_category TEXT NOT NULL DEFAULT '',
		submitted_at     TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL,
		abs_url          TEXT NOT NULL DEFAULT '',
		pdf_url          TEXT NOT NULL DEFAULT '',
		html_url         TEXT NOT NULL DEFAULT '',
		doi_url          TEXT NOT NULL DEFAULT '',
		state            TEXT NOT NULL DEFAULT 'triage',
		tags             JSONB NOT NULL DEFAULT '[]',
		signals          JSONB NOT NULL DEFAULT '{}',
		ingested_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS papers_state_updated_idx ON papers (state, updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// recordColumns is the scan order shared by every record query.
var recordColumns = []string{
	"catalog_id", "version", "title", "authors", "abstract", "categories", "primary_category",
	"submitted_at", "updated_at", "abs_url", "pdf_url", "html_url", "doi_url",
	"state", "tags", "signals",
}

// queryTerms are the tokens the text prefilter looks for.
func queryTerms(query string) []string {
	return ranking.Tokenize(query)
}

// matches applies a CandidateFilter in memory. Any query token appearing in
// title or abstract is enough; the ranker does the precise work.
func matches(rec domain.CatalogRecord, f ports.CandidateFilter) bool {
	if len(f.States) > 0 && !containsState(f.States, rec.State) {
		return false
	}
	if len(f.Categories) > 0 && !overlaps(f.Categories, rec.Categories) {
		return false
	}
	terms := queryTerms(f.Query)
	if len(terms) == 0 {
		return true
	}
	text := strings.ToLower(rec.Title + " " + rec.Abstract)
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func containsState(states []domain.TriageState, s domain.TriageState) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
