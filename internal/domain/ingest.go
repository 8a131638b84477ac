package domain

import (
	"fmt"
	"strings"
	"time"
)

// Window is a half-open time range [From, Until).
type Window struct {
	From  time.Time
	Until time.Time
}

// Contains reports whether t falls inside the window. Zero bounds are open.
func (w Window) Contains(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.Until.IsZero() && !t.Before(w.Until) {
		return false
	}
	return true
}

// LastDays builds a day-aligned UTC window covering the previous days and
// today. Day alignment keeps query signatures stable within a day.
func LastDays(now time.Time, days int) Window {
	if days <= 0 {
		days = 1
	}
	today := now.UTC().Truncate(24 * time.Hour)
	return Window{From: today.AddDate(0, 0, -days), Until: today.Add(24 * time.Hour)}
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02",
}

// ParseInstant parses the timestamp shapes catalog feeds use. Values without
// a zone are taken as UTC.
func ParseInstant(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// PageStatus is the outcome of fetching one catalog page.
type PageStatus string

const (
	PageOK          PageStatus = "ok"
	PageNotModified PageStatus = "not_modified"
	PageFailed      PageStatus = "failed"
)

// PageReport describes one scheduled page of a fetch.
type PageReport struct {
	Category string     `json:"category,omitempty"`
	Cursor   string     `json:"cursor"`
	Status   PageStatus `json:"status"`
	Entries  int        `json:"entries"`
	Error    string     `json:"error,omitempty"`
}

// IngestReport is a partial-ingestion result.
type IngestReport struct {
	Source    string       `json:"source"`
	Fetched   int          `json:"fetched"`
	Inserted  int          `json:"inserted"`
	Updated   int          `json:"updated"`
	Unchanged int          `json:"unchanged"`
	Rejected  int          `json:"rejected"`
	Pages     []PageReport `json:"pages"`
}

// FailedPages returns the pages that exhausted their retries.
func (r IngestReport) FailedPages() []PageReport {
	var failed []PageReport
	for _, p := range r.Pages {
		if p.Status == PageFailed {
			failed = append(failed, p)
		}
	}
	return failed
}
