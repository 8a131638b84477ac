// Package ingest maps raw catalog entries onto canonical records and resolves
// version conflicts between stored and incoming snapshots.
package ingest

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PaperTriage/internal/domain"
)

const unknownCategory = "unknown"

var (
	// ErrMissingID marks entries whose identifier cannot be recognised.
	ErrMissingID = errors.New("entry has no catalog identifier")
	// ErrMissingTitle marks entries without a usable title.
	ErrMissingTitle = errors.New("entry has no title")
)

var (
	modernID = regexp.MustCompile(`(\d{4}\.\d{4,5})(?:v(\d+))?$`)
	legacyID = regexp.MustCompile(`([a-z][a-z\-]*(?:\.[A-Z]{2})?/\d{7})(?:v(\d+))?$`)
)

var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
}

// Normalizer converts raw entries into CatalogRecords with timestamps in a
// fixed location.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer uses UTC when loc is nil.
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// Normalize maps one raw entry. Entries without an identifier or title are
// rejected with an error; everything else is best effort.
func (n *Normalizer) Normalize(raw domain.RawEntry) (domain.CatalogRecord, error) {
	id, version, ok := ParseID(raw.ID)
	if !ok {
		return domain.CatalogRecord{}, fmt.Errorf("%w: %q", ErrMissingID, raw.ID)
	}
	if raw.Version > version {
		version = raw.Version
	}

	title := cleanText(raw.Title)
	if title == "" {
		return domain.CatalogRecord{}, fmt.Errorf("%w: %s", ErrMissingTitle, id)
	}

	rec := domain.CatalogRecord{
		CatalogID:  id,
		Version:    version,
		Title:      title,
		Abstract:   cleanText(raw.Summary),
		Authors:    cleanList(raw.Authors),
		Categories: cleanList(raw.Categories),
		State:      domain.StateTriage,
		Tags:       []string{},
	}

	rec.PrimaryCategory = strings.TrimSpace(raw.PrimaryCategory)
	if rec.PrimaryCategory == "" && len(rec.Categories) > 0 {
		rec.PrimaryCategory = rec.Categories[0]
	}
	if rec.PrimaryCategory == "" {
		rec.PrimaryCategory = unknownCategory
	}

	rec.SubmittedAt = n.instant(raw.Published)
	rec.UpdatedAt = n.instant(raw.Updated)
	switch {
	case rec.UpdatedAt.IsZero():
		rec.UpdatedAt = rec.SubmittedAt
	case rec.SubmittedAt.IsZero():
		rec.SubmittedAt = rec.UpdatedAt
	}

	rec.Links = DeriveLinks(id, version)
	rec.Links.DOI = doiLink(raw.Links)

	return rec, nil
}

func (n *Normalizer) instant(value string) time.Time {
	t, err := domain.ParseInstant(value)
	if err != nil {
		return time.Time{}
	}
	return t.In(n.loc)
}

// ParseID extracts the bare identifier and version from an abs URL, an OAI
// identifier or a plain id. Version defaults to 1.
func ParseID(value string) (string, int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", 0, false
	}

	m := modernID.FindStringSubmatch(value)
	if m == nil {
		m = legacyID.FindStringSubmatch(value)
	}
	if m == nil {
		return "", 0, false
	}

	version := 1
	if m[2] != "" {
		if v, err := strconv.Atoi(m[2]); err == nil && v > 0 {
			version = v
		}
	}
	return m[1], version, true
}

// DeriveLinks builds the abs, pdf and html URLs of one version.
func DeriveLinks(id string, version int) domain.Links {
	suffix := id + "v" + strconv.Itoa(version)
	return domain.Links{
		Abs:  "https://arxiv.org/abs/" + suffix,
		PDF:  "https://arxiv.org/pdf/" + suffix,
		HTML: "https://arxiv.org/html/" + suffix,
	}
}

// StripTracking removes analytics query parameters from a link. Unparseable
// input is returned trimmed but otherwise untouched.
func StripTracking(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if _, ok := trackingParams[lower]; ok || strings.HasPrefix(lower, "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func doiLink(links []domain.RawLink) string {
	for _, l := range links {
		if strings.EqualFold(l.Title, "doi") || strings.Contains(l.Href, "doi.org/") {
			return StripTracking(l.Href)
		}
	}
	return ""
}

// cleanText drops markup and collapses runs of whitespace.
func cleanText(s string) string {
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

// cleanList trims values and removes empties and duplicates, keeping order.
func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.Join(strings.Fields(v), " ")
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
