package domain

import (
	"encoding/json"
	"time"
)

// TriageState enumerates the reader-facing queue a record sits in.
type TriageState string

const (
	StateTriage    TriageState = "triage"
	StateShortlist TriageState = "shortlist"
	StateArchived  TriageState = "archived"
	StateHidden    TriageState = "hidden"
)

// Valid reports whether s is one of the known triage states.
func (s TriageState) Valid() bool {
	switch s {
	case StateTriage, StateShortlist, StateArchived, StateHidden:
		return true
	}
	return false
}

// RawLink is a provider link as it appears in the feed.
type RawLink struct {
	Href  string
	Rel   string
	Type  string
	Title string
}

// RawEntry is a catalog entry before normalization. Field semantics follow the
// provider; the normalizer owns the mapping to CatalogRecord.
type RawEntry struct {
	Source          string
	ID              string
	Version         int
	Title           string
	Summary         string
	Authors         []string
	Categories      []string
	PrimaryCategory string
	Published       string
	Updated         string
	Links           []RawLink
}

// Links are derived from catalog_id and version.
type Links struct {
	Abs  string `json:"abs_url"`
	PDF  string `json:"pdf_url"`
	HTML string `json:"html_url"`
	DOI  string `json:"doi_url,omitempty"`
}

// CatalogRecord is a single paper snapshot. Identity is CatalogID alone.
type CatalogRecord struct {
	CatalogID       string      `json:"catalog_id"`
	Version         int         `json:"version"`
	Title           string      `json:"title"`
	Authors         []string    `json:"authors"`
	Abstract        string      `json:"abstract"`
	Categories      []string    `json:"categories"`
	PrimaryCategory string      `json:"primary_category"`
	SubmittedAt     time.Time   `json:"submitted_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	Links           Links       `json:"links"`
	State           TriageState `json:"state"`
	Tags            []string    `json:"tags"`
	Signals         Signals     `json:"signals"`
}

// Text is the document the lexical ranker indexes.
func (r CatalogRecord) Text() string {
	return r.Title + " " + r.Abstract
}

// Signals is the mutable annotation owned by the scoring stages.
type Signals struct {
	Rubric        *Rubric  `json:"rubric,omitempty"`
	SuggestedTags []string `json:"suggested_tags,omitempty"`
}

// Rubric is the five-axis quality score. Total is derived, never stored.
type Rubric struct {
	Novelty     int
	Evidence    int
	Clarity     int
	Reusability int
	Fit         int
}

// Axes returns the five values in canonical order.
func (r Rubric) Axes() [5]int {
	return [5]int{r.Novelty, r.Evidence, r.Clarity, r.Reusability, r.Fit}
}

// Total is the sum of the five axes.
func (r Rubric) Total() int {
	return r.Novelty + r.Evidence + r.Clarity + r.Reusability + r.Fit
}

// Map applies fn to every axis.
func (r Rubric) Map(fn func(int) int) Rubric {
	return Rubric{
		Novelty:     fn(r.Novelty),
		Evidence:    fn(r.Evidence),
		Clarity:     fn(r.Clarity),
		Reusability: fn(r.Reusability),
		Fit:         fn(r.Fit),
	}
}

type rubricJSON struct {
	Novelty     int  `json:"novelty"`
	Evidence    int  `json:"evidence"`
	Clarity     int  `json:"clarity"`
	Reusability int  `json:"reusability"`
	Fit         int  `json:"fit"`
	Total       *int `json:"total,omitempty"`
}

// MarshalJSON writes the axes plus the recomputed total.
func (r Rubric) MarshalJSON() ([]byte, error) {
	total := r.Total()
	return json.Marshal(rubricJSON{
		Novelty:     r.Novelty,
		Evidence:    r.Evidence,
		Clarity:     r.Clarity,
		Reusability: r.Reusability,
		Fit:         r.Fit,
		Total:       &total,
	})
}

// UnmarshalJSON reads the axes and ignores any stored total.
func (r *Rubric) UnmarshalJSON(data []byte) error {
	var raw rubricJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Rubric{
		Novelty:     raw.Novelty,
		Evidence:    raw.Evidence,
		Clarity:     raw.Clarity,
		Reusability: raw.Reusability,
		Fit:         raw.Fit,
	}
	return nil
}
