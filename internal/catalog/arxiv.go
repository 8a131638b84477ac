package catalog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed/atom"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/logging"
)

const (
	arxivSourceName      = "arxiv"
	defaultArxivQueryURL = "https://export.arxiv.org/api/query"
	defaultPageSize      = 100
	defaultMaxResults    = 200
)

// ArxivSource queries the arXiv Atom API by category and recency window.
type ArxivSource struct {
	transport *Transport
	baseURL   string
	pageSize  int
	logger    *slog.Logger
}

var _ Source = (*ArxivSource)(nil)

// NewArxivSource wires the shared transport; pageSize defaults to 100.
func NewArxivSource(transport *Transport, baseURL string, pageSize int, log *slog.Logger) *ArxivSource {
	if baseURL == "" {
		baseURL = defaultArxivQueryURL
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &ArxivSource{
		transport: transport,
		baseURL:   baseURL,
		pageSize:  pageSize,
		logger:    logging.OrDiscard(log),
	}
}

// Name identifies the strategy inside the registry.
func (a *ArxivSource) Name() string {
	return arxivSourceName
}

// Fetch schedules ceil(MaxResults/pageSize) pages newest-updated first. A page
// that fails is reported and the next page is still attempted; a short page,
// the reported total, or a page entirely older than the window ends paging.
func (a *ArxivSource) Fetch(ctx context.Context, q Query) (Result, error) {
	if len(q.Categories) == 0 {
		return Result{}, fmt.Errorf("no categories provided for source %s", a.Name())
	}

	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	searchQuery := categoryQuery(q.Categories)

	var result Result
	for start := 0; start < maxResults; start += a.pageSize {
		size := min(a.pageSize, maxResults-start)
		cursor := strconv.Itoa(start)
		report := domain.PageReport{Cursor: cursor}

		pageURL, err := buildQueryURL(a.baseURL, url.Values{
			"search_query": {searchQuery},
			"sortBy":       {"lastUpdatedDate"},
			"sortOrder":    {"descending"},
			"start":        {cursor},
			"max_results":  {strconv.Itoa(size)},
		})
		if err != nil {
			return result, err
		}

		page, err := a.transport.Get(ctx, a.Name(), pageURL, Signature(a.Name(), q, cursor))
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			a.logger.Warn("page failed", "cursor", cursor, "error", err)
			report.Status = domain.PageFailed
			report.Error = err.Error()
			result.Pages = append(result.Pages, report)
			continue
		}

		if page.NotModified {
			a.logger.Debug("page not modified", "cursor", cursor)
			report.Status = domain.PageNotModified
			result.Pages = append(result.Pages, report)
			continue
		}

		entries, total, err := parseAtomFeed(page.Body)
		if err != nil {
			report.Status = domain.PageFailed
			report.Error = err.Error()
			result.Pages = append(result.Pages, report)
			continue
		}

		kept, stale := filterWindow(entries, q.Window)
		report.Status = domain.PageOK
		report.Entries = len(kept)
		result.Pages = append(result.Pages, report)
		result.Entries = append(result.Entries, kept...)

		a.logger.Debug("page fetched", "cursor", cursor, "entries", len(entries), "kept", len(kept), "total", total)

		if len(entries) < size || (total > 0 && start+size >= total) || (len(entries) > 0 && stale == len(entries)) {
			break
		}
	}

	return result, nil
}

// FetchByIDs resolves specific identifiers through the id_list parameter.
func (a *ArxivSource) FetchByIDs(ctx context.Context, ids []string) (Result, error) {
	if len(ids) == 0 {
		return Result{}, nil
	}

	joined := strings.Join(ids, ",")
	pageURL, err := buildQueryURL(a.baseURL, url.Values{
		"id_list":     {joined},
		"max_results": {strconv.Itoa(len(ids))},
	})
	if err != nil {
		return Result{}, err
	}

	report := domain.PageReport{Cursor: "ids"}
	page, err := a.transport.Get(ctx, a.Name(), pageURL, IDsSignature(a.Name(), ids))
	if err != nil {
		report.Status = domain.PageFailed
		report.Error = err.Error()
		return Result{Pages: []domain.PageReport{report}}, err
	}
	if page.NotModified {
		report.Status = domain.PageNotModified
		return Result{Pages: []domain.PageReport{report}}, nil
	}

	entries, _, err := parseAtomFeed(page.Body)
	if err != nil {
		report.Status = domain.PageFailed
		report.Error = err.Error()
		return Result{Pages: []domain.PageReport{report}}, err
	}
	report.Status = domain.PageOK
	report.Entries = len(entries)
	return Result{Entries: entries, Pages: []domain.PageReport{report}}, nil
}

func categoryQuery(categories []string) string {
	terms := make([]string, 0, len(categories))
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			terms = append(terms, "cat:"+c)
		}
	}
	joined := strings.Join(terms, " OR ")
	if len(terms) > 1 {
		joined = "(" + joined + ")"
	}
	return joined
}

func buildQueryURL(base string, params url.Values) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid catalog url %s: %w", base, err)
	}

	query := parsed.Query()
	for k, v := range params {
		query[k] = v
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func parseAtomFeed(body []byte) ([]domain.RawEntry, int, error) {
	parser := &atom.Parser{}
	feed, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("parse atom feed: %w", err)
	}

	total := 0
	if exts, ok := feed.Extensions["opensearch"]; ok {
		if values := exts["totalResults"]; len(values) > 0 {
			total, _ = strconv.Atoi(strings.TrimSpace(values[0].Value))
		}
	}

	entries := make([]domain.RawEntry, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		entries = append(entries, toRawEntry(e))
	}
	return entries, total, nil
}

func toRawEntry(e *atom.Entry) domain.RawEntry {
	raw := domain.RawEntry{
		Source:    arxivSourceName,
		ID:        strings.TrimSpace(e.ID),
		Title:     e.Title,
		Summary:   e.Summary,
		Published: e.Published,
		Updated:   e.Updated,
	}

	for _, p := range e.Authors {
		if p != nil {
			raw.Authors = append(raw.Authors, p.Name)
		}
	}
	for _, c := range e.Categories {
		if c != nil && c.Term != "" {
			raw.Categories = append(raw.Categories, c.Term)
		}
	}
	for _, l := range e.Links {
		if l != nil {
			raw.Links = append(raw.Links, domain.RawLink{Href: l.Href, Rel: l.Rel, Type: l.Type, Title: l.Title})
		}
	}

	if exts, ok := e.Extensions["arxiv"]; ok {
		if values := exts["primary_category"]; len(values) > 0 {
			raw.PrimaryCategory = values[0].Attrs["term"]
		}
	}

	return raw
}

// filterWindow keeps entries published or updated inside w and counts those
// updated before w.From.
func filterWindow(entries []domain.RawEntry, w domain.Window) ([]domain.RawEntry, int) {
	if w.From.IsZero() && w.Until.IsZero() {
		return entries, 0
	}

	kept := make([]domain.RawEntry, 0, len(entries))
	stale := 0
	for _, e := range entries {
		published, _ := domain.ParseInstant(e.Published)
		updated, _ := domain.ParseInstant(e.Updated)
		if w.Contains(published) || w.Contains(updated) {
			kept = append(kept, e)
			continue
		}
		if !w.From.IsZero() && !updated.IsZero() && updated.Before(w.From) {
			stale++
		}
	}
	return kept, stale
}
