// Package tagging asks a language model for free-text tags.
package tagging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/logging"
	"PaperTriage/internal/metrics"
	"PaperTriage/internal/ports"
	"PaperTriage/pkg/llmjson"
)

const defaultMaxTags = 8

const tagSpec = `Respond with a JSON array of short topical tags:

["<tag1>", "<tag2>"]

Constraints:
- Always respond with valid JSON, no markdown fencing
- Between 3 and %d tags, most specific first
- Each tag is one to three lowercase words
- Prefer method, task and domain names over generic words like "paper"`

// Suggester has no fallback: without a working model it suggests nothing.
type Suggester struct {
	models  ports.ModelResolver
	maxTags int
	logger  *slog.Logger
}

// NewSuggester caps suggestions at maxTags (8 when not positive).
func NewSuggester(models ports.ModelResolver, maxTags int, log *slog.Logger) *Suggester {
	if maxTags <= 0 {
		maxTags = defaultMaxTags
	}
	return &Suggester{models: models, maxTags: maxTags, logger: logging.OrDiscard(log)}
}

// Suggest returns cleaned tags. On any provider or parse failure it returns
// an empty, non-nil slice together with the error.
func (s *Suggester) Suggest(ctx context.Context, rec domain.CatalogRecord, provider string) ([]string, error) {
	tags, name, err := s.fromModel(ctx, rec, provider)
	if err != nil {
		metrics.RecordSuggestion(name, "failed")
		s.logger.Debug("tag suggestion failed", "catalog_id", rec.CatalogID, "provider", name, "error", err)
		return []string{}, err
	}

	metrics.RecordSuggestion(name, "ok")
	return Clean(tags, s.maxTags), nil
}

func (s *Suggester) fromModel(ctx context.Context, rec domain.CatalogRecord, provider string) ([]string, string, error) {
	if s.models == nil {
		return nil, "", fmt.Errorf("no language models configured")
	}
	model := s.models.Resolve(provider)
	if !model.Available() {
		return nil, model.Name(), fmt.Errorf("provider %s is not available", model.Name())
	}

	out, err := model.Complete(ctx, Prompt(rec, s.maxTags))
	if err != nil {
		return nil, model.Name(), err
	}
	tags, err := parseTags(out)
	return tags, model.Name(), err
}

// Prompt embeds the record into the fixed tag instructions.
func Prompt(rec domain.CatalogRecord, maxTags int) string {
	var b strings.Builder
	b.WriteString("Suggest tags for the paper below.\n\n")
	fmt.Fprintf(&b, tagSpec, maxTags)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Title: %s\n", rec.Title)
	fmt.Fprintf(&b, "Abstract: %s\n", rec.Abstract)
	if len(rec.Categories) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(rec.Categories, ", "))
	}
	return b.String()
}

func parseTags(out string) ([]string, error) {
	if tags, err := llmjson.Parse[[]string](out); err == nil {
		return tags, nil
	}
	wrapped, err := llmjson.Parse[struct {
		Tags []string `json:"tags"`
	}](out)
	if err != nil {
		return nil, err
	}
	return wrapped.Tags, nil
}

// Clean normalises tags, drops empties and duplicates, keeps the first
// occurrence order and caps the result at limit when limit is positive.
func Clean(tags []string, limit int) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = Normalize(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Normalize lowercases a tag, collapses whitespace and trims stray
// punctuation.
func Normalize(tag string) string {
	tag = strings.Join(strings.Fields(strings.ToLower(tag)), " ")
	return strings.Trim(tag, "#-_,.;:\"' ")
}
