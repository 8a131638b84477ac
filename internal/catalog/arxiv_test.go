package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/infrastructure/etagcache"
)

type atomEntry struct {
	id        string
	title     string
	published string
	updated   string
}

func atomFeed(total int, entries ...atomEntry) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <title>arXiv Query</title>
  <id>http://arxiv.org/api/query</id>
  <updated>2025-01-10T00:00:00-05:00</updated>
`)
	fmt.Fprintf(&b, "  <opensearch:totalResults>%d</opensearch:totalResults>\n", total)
	for _, e := range entries {
		fmt.Fprintf(&b, `  <entry>
    <id>http://arxiv.org/abs/%[1]s</id>
    <updated>%[3]s</updated>
    <published>%[4]s</published>
    <title>%[2]s</title>
    <summary>Abstract of %[2]s.</summary>
    <author><name>Jane Doe</name></author>
    <author><name>John Roe</name></author>
    <link href="http://arxiv.org/abs/%[1]s" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/%[1]s" rel="related" type="application/pdf"/>
    <arxiv:primary_category term="cs.CV" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.CV" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
`, e.id, e.title, e.updated, e.published)
	}
	b.WriteString("</feed>\n")
	return b.String()
}

func newTestArxiv(t *testing.T, handler http.Handler, pageSize int) *ArxivSource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tr := NewTransport(TransportOptions{Client: server.Client(), Cache: etagcache.NewMemory()})
	tr.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return NewArxivSource(tr, server.URL+"/api/query", pageSize, nil)
}

func TestBuildQueryURL(t *testing.T) {
	t.Parallel()

	u, err := buildQueryURL("https://export.arxiv.org/api/query", url.Values{
		"search_query": {categoryQuery([]string{"cs.CV", " cs.LG ", ""})},
		"start":        {"200"},
		"max_results":  {"100"},
	})
	if err != nil {
		t.Fatalf("buildQueryURL returned error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if parsed.Scheme != "https" || parsed.Host != "export.arxiv.org" {
		t.Fatalf("unexpected host: %s", parsed.Host)
	}

	q := parsed.Query()
	if got := q.Get("search_query"); got != "(cat:cs.CV OR cat:cs.LG)" {
		t.Fatalf("unexpected search_query: %s", got)
	}
	if q.Get("start") != "200" || q.Get("max_results") != "100" {
		t.Fatalf("unexpected paging: %s", parsed.RawQuery)
	}
}

func TestCategoryQuerySingle(t *testing.T) {
	t.Parallel()

	if got := categoryQuery([]string{"cs.AI"}); got != "cat:cs.AI" {
		t.Fatalf("unexpected query: %s", got)
	}
}

func TestParseAtomFeed(t *testing.T) {
	t.Parallel()

	body := atomFeed(42, atomEntry{
		id:        "2501.01234v2",
		title:     "Line and Plane Geometry",
		published: "2025-01-02T08:00:00Z",
		updated:   "2025-01-09T12:00:00Z",
	})

	entries, total, err := parseAtomFeed([]byte(body))
	if err != nil {
		t.Fatalf("parseAtomFeed error: %v", err)
	}
	if total != 42 {
		t.Fatalf("expected total 42, got %d", total)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	e := entries[0]
	if e.ID != "http://arxiv.org/abs/2501.01234v2" {
		t.Fatalf("unexpected id: %s", e.ID)
	}
	if strings.TrimSpace(e.Title) != "Line and Plane Geometry" {
		t.Fatalf("unexpected title: %q", e.Title)
	}
	if e.PrimaryCategory != "cs.CV" {
		t.Fatalf("unexpected primary category: %s", e.PrimaryCategory)
	}
	if len(e.Categories) != 2 || e.Categories[1] != "cs.LG" {
		t.Fatalf("unexpected categories: %v", e.Categories)
	}
	if len(e.Authors) != 2 || e.Authors[0] != "Jane Doe" {
		t.Fatalf("unexpected authors: %v", e.Authors)
	}
	if len(e.Links) != 2 || e.Links[1].Title != "pdf" {
		t.Fatalf("unexpected links: %+v", e.Links)
	}
	if e.Updated != "2025-01-09T12:00:00Z" {
		t.Fatalf("unexpected updated: %s", e.Updated)
	}
}

func TestFilterWindow(t *testing.T) {
	t.Parallel()

	w := domain.Window{
		From:  time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	entries := []domain.RawEntry{
		{ID: "fresh", Published: "2025-01-09T00:00:00Z", Updated: "2025-01-09T00:00:00Z"},
		{ID: "revised", Published: "2024-06-01T00:00:00Z", Updated: "2025-01-08T10:00:00Z"},
		{ID: "stale", Published: "2024-06-01T00:00:00Z", Updated: "2024-12-01T00:00:00Z"},
		{ID: "future", Published: "2025-01-10T00:00:00Z", Updated: "2025-01-10T00:00:00Z"},
	}

	kept, stale := filterWindow(entries, w)
	if len(kept) != 2 || kept[0].ID != "fresh" || kept[1].ID != "revised" {
		t.Fatalf("unexpected kept entries: %+v", kept)
	}
	if stale != 1 {
		t.Fatalf("expected 1 stale entry, got %d", stale)
	}
}

func TestArxivFetchPagesUntilShortPage(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	src := newTestArxiv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		q := r.URL.Query()
		if q.Get("sortBy") != "lastUpdatedDate" || q.Get("sortOrder") != "descending" {
			t.Errorf("unexpected sort: %s", r.URL.RawQuery)
		}
		switch q.Get("start") {
		case "0":
			_, _ = w.Write([]byte(atomFeed(0,
				atomEntry{id: "2501.00001v1", title: "One", published: "2025-01-09T00:00:00Z", updated: "2025-01-09T00:00:00Z"},
				atomEntry{id: "2501.00002v1", title: "Two", published: "2025-01-09T00:00:00Z", updated: "2025-01-09T00:00:00Z"},
			)))
		case "2":
			_, _ = w.Write([]byte(atomFeed(0,
				atomEntry{id: "2501.00003v1", title: "Three", published: "2025-01-09T00:00:00Z", updated: "2025-01-09T00:00:00Z"},
			)))
		default:
			t.Errorf("unexpected page request: %s", r.URL.RawQuery)
		}
	}), 2)

	result, err := src.Fetch(context.Background(), Query{Categories: []string{"cs.CV"}, MaxResults: 10})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(result.Entries))
	}
	if len(result.Pages) != 2 || requests.Load() != 2 {
		t.Fatalf("expected paging to stop after short page, pages=%d requests=%d", len(result.Pages), requests.Load())
	}
}

func TestArxivFetchIsolatesFailedPages(t *testing.T) {
	t.Parallel()

	var firstPageCalls atomic.Int32
	src := newTestArxiv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("start") {
		case "0":
			firstPageCalls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		case "2":
			_, _ = w.Write([]byte(atomFeed(4,
				atomEntry{id: "2501.00003v1", title: "Three", published: "2025-01-09T00:00:00Z", updated: "2025-01-09T00:00:00Z"},
				atomEntry{id: "2501.00004v1", title: "Four", published: "2025-01-09T00:00:00Z", updated: "2025-01-09T00:00:00Z"},
			)))
		}
	}), 2)

	result, err := src.Fetch(context.Background(), Query{Categories: []string{"cs.CV"}, MaxResults: 4})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if firstPageCalls.Load() != 4 {
		t.Fatalf("expected 4 attempts on the failing page, got %d", firstPageCalls.Load())
	}
	if len(result.Pages) != 2 {
		t.Fatalf("expected 2 page reports, got %d", len(result.Pages))
	}
	if result.Pages[0].Status != domain.PageFailed || result.Pages[0].Error == "" {
		t.Fatalf("expected first page failed, got %+v", result.Pages[0])
	}
	if result.Pages[1].Status != domain.PageOK || result.Pages[1].Entries != 2 {
		t.Fatalf("expected second page ok, got %+v", result.Pages[1])
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected entries from the healthy page, got %d", len(result.Entries))
	}
}

func TestArxivFetchStopsOnStalePage(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	src := newTestArxiv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(atomFeed(0,
			atomEntry{id: "2401.00001v1", title: "Old", published: "2024-01-01T00:00:00Z", updated: "2024-01-02T00:00:00Z"},
		)))
	}), 1)

	window := domain.Window{From: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	result, err := src.Fetch(context.Background(), Query{Categories: []string{"cs.CV"}, Window: window, MaxResults: 5})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if requests.Load() != 1 {
		t.Fatalf("expected a single request, got %d", requests.Load())
	}
	if len(result.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(result.Entries))
	}
}

func TestArxivFetchReportsNotModifiedPages(t *testing.T) {
	t.Parallel()

	src := newTestArxiv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"p`+r.URL.Query().Get("start")+`"`)
		_, _ = w.Write([]byte(atomFeed(2,
			atomEntry{id: "2501.0000" + r.URL.Query().Get("start") + "v1", title: "T", published: "2025-01-09T00:00:00Z", updated: "2025-01-09T00:00:00Z"},
		)))
	}), 1)

	q := Query{Categories: []string{"cs.CV"}, MaxResults: 2}
	first, err := src.Fetch(context.Background(), q)
	if err != nil {
		t.Fatalf("first Fetch error: %v", err)
	}
	if len(first.Entries) != 2 {
		t.Fatalf("expected 2 entries on first fetch, got %d", len(first.Entries))
	}

	second, err := src.Fetch(context.Background(), q)
	if err != nil {
		t.Fatalf("second Fetch error: %v", err)
	}
	if len(second.Entries) != 0 {
		t.Fatalf("expected empty delta, got %d entries", len(second.Entries))
	}
	for _, p := range second.Pages {
		if p.Status != domain.PageNotModified {
			t.Fatalf("expected not_modified page, got %+v", p)
		}
	}
}

func TestArxivFetchByIDs(t *testing.T) {
	t.Parallel()

	src := newTestArxiv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id_list"); got != "2501.00001,2501.00002" {
			t.Errorf("unexpected id_list: %s", got)
		}
		_, _ = w.Write([]byte(atomFeed(2,
			atomEntry{id: "2501.00001v3", title: "One", published: "2025-01-01T00:00:00Z", updated: "2025-01-05T00:00:00Z"},
			atomEntry{id: "2501.00002v1", title: "Two", published: "2025-01-01T00:00:00Z", updated: "2025-01-01T00:00:00Z"},
		)))
	}), 0)

	result, err := src.FetchByIDs(context.Background(), []string{"2501.00001", "2501.00002"})
	if err != nil {
		t.Fatalf("FetchByIDs error: %v", err)
	}
	if len(result.Entries) != 2 || result.Pages[0].Status != domain.PageOK {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestArxivFetchRequiresCategories(t *testing.T) {
	t.Parallel()

	src := NewArxivSource(NewTransport(TransportOptions{}), "", 0, nil)
	if _, err := src.Fetch(context.Background(), Query{}); err == nil {
		t.Fatalf("expected error without categories")
	}
}

func TestSignatureIsOrderIndependent(t *testing.T) {
	t.Parallel()

	w := domain.Window{From: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := Signature("arxiv", Query{Categories: []string{"cs.LG", "cs.CV"}, Window: w}, "0")
	b := Signature("arxiv", Query{Categories: []string{"cs.CV", "cs.LG"}, Window: w}, "0")
	if a != b {
		t.Fatalf("signatures differ: %s vs %s", a, b)
	}
	if a != "arxiv|cats=cs.CV,cs.LG|from=2025-01-01T00:00:00Z|until=-|cursor=0" {
		t.Fatalf("unexpected signature: %s", a)
	}
	if !strings.HasPrefix(a, QueryPrefix("arxiv", Query{Categories: []string{"cs.CV", "cs.LG"}, Window: w})) {
		t.Fatalf("signature does not extend its prefix")
	}
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(NewArxivSource(NewTransport(TransportOptions{}), "", 0, nil))

	if _, err := reg.Resolve("arxiv"); err != nil {
		t.Fatalf("resolve arxiv: %v", err)
	}
	if _, err := reg.Resolve("missing"); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}
