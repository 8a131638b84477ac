package domain

// Operation selects which scoring stage a batch drives.
type Operation string

const (
	OpScore   Operation = "score"
	OpSuggest Operation = "suggest"
)

// Valid reports whether op is a known batch operation.
func (op Operation) Valid() bool {
	return op == OpScore || op == OpSuggest
}

// BatchJob lives only for the duration of one orchestrator run.
type BatchJob struct {
	ID    string
	Label string
	Items []string
	Done  int
	Total int
}

// Outcome is the per-item result of a batch run, reported in input order.
type Outcome struct {
	TargetID string `json:"target_id"`
	Success  bool   `json:"success"`
	Skipped  bool   `json:"skipped,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchSummary aggregates outcomes for reporting.
type BatchSummary struct {
	JobID     string    `json:"job_id"`
	Operation Operation `json:"operation"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Summarize counts outcomes.
func Summarize(jobID string, op Operation, outcomes []Outcome) BatchSummary {
	s := BatchSummary{JobID: jobID, Operation: op, Total: len(outcomes), Outcomes: outcomes}
	for _, o := range outcomes {
		switch {
		case o.Success:
			s.Succeeded++
		case o.Skipped:
			s.Skipped++
		default:
			s.Failed++
		}
	}
	return s
}
