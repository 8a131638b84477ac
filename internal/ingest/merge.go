package ingest

import "PaperTriage/internal/domain"

// Merge resolves an incoming snapshot against the stored one. A missing record
// is inserted; a stored version at or above the incoming one wins unchanged;
// a newer version replaces content while keeping state, tags and signals.
func Merge(existing *domain.CatalogRecord, incoming domain.CatalogRecord) (domain.CatalogRecord, bool) {
	if existing == nil {
		if !incoming.State.Valid() {
			incoming.State = domain.StateTriage
		}
		if incoming.Tags == nil {
			incoming.Tags = []string{}
		}
		return incoming, true
	}

	if existing.Version >= incoming.Version {
		return *existing, false
	}

	merged := incoming
	merged.State = existing.State
	merged.Tags = existing.Tags
	merged.Signals = existing.Signals
	return merged, true
}

// Outcome names a merge decision for reporting.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeRejected  Outcome = "rejected"
)

// Classify maps a merge call to its outcome.
func Classify(existed, applied bool) Outcome {
	switch {
	case !applied:
		return OutcomeUnchanged
	case existed:
		return OutcomeUpdated
	default:
		return OutcomeInserted
	}
}
