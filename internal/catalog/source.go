package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"PaperTriage/internal/domain"
)

// Query carries all parameters required to execute a fetch.
type Query struct {
	Categories []string
	Window     domain.Window
	MaxResults int
}

// Result is the entries fetched plus a report for every scheduled page.
type Result struct {
	Entries []domain.RawEntry
	Pages   []domain.PageReport
}

// Source captures a single catalog strategy (Atom query API, OAI-PMH, ...).
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) (Result, error)
}

// Registry keeps a mapping from source names to their implementations.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(source Source) {
	if r.sources == nil {
		r.sources = map[string]Source{}
	}
	r.sources[source.Name()] = source
}

// Resolve returns a source by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Source, error) {
	if source, ok := r.sources[name]; ok {
		return source, nil
	}
	return nil, fmt.Errorf("catalog source %s is not registered", name)
}

// QueryPrefix identifies a query independent of its pagination cursor.
// Invalidating by prefix drops every page of the query.
func QueryPrefix(source string, q Query) string {
	cats := make([]string, 0, len(q.Categories))
	for _, c := range q.Categories {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}
	sort.Strings(cats)
	return fmt.Sprintf("%s|cats=%s|from=%s|until=%s",
		source, strings.Join(cats, ","), formatBound(q.Window.From), formatBound(q.Window.Until))
}

// Signature is the ETag cache key of one page of a query.
func Signature(source string, q Query, cursor string) string {
	return QueryPrefix(source, q) + "|cursor=" + cursor
}

// IDsSignature is the ETag cache key of an explicit id lookup.
func IDsSignature(source string, ids []string) string {
	return source + "|ids=" + strings.Join(ids, ",")
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
