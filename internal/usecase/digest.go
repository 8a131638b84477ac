package usecase

import (
	"fmt"
	"strings"

	"PaperTriage/internal/domain"
)

func formatIngestDigest(r domain.IngestReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ingest %s: %d fetched, %d new, %d updated, %d unchanged",
		r.Source, r.Fetched, r.Inserted, r.Updated, r.Unchanged)
	if r.Rejected > 0 {
		fmt.Fprintf(&b, ", %d rejected", r.Rejected)
	}
	for _, page := range r.FailedPages() {
		b.WriteString("\nfailed page ")
		if page.Category != "" {
			b.WriteString(page.Category + " ")
		}
		fmt.Fprintf(&b, "%s: %s", page.Cursor, page.Error)
	}
	return b.String()
}

func formatBatchDigest(s domain.BatchSummary) string {
	if s.Total == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s (%s): %d/%d ok", s.Operation, s.JobID, s.Succeeded, s.Total)
	if s.Failed > 0 {
		fmt.Fprintf(&b, ", %d failed", s.Failed)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", s.Skipped)
	}
	fallbacks := 0
	for _, o := range s.Outcomes {
		if o.Fallback {
			fallbacks++
		}
	}
	if fallbacks > 0 {
		fmt.Fprintf(&b, ", %d heuristic", fallbacks)
	}
	return b.String()
}
