package catalog

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/logging"
)

const (
	oaiSourceName      = "oai"
	defaultOAIURL      = "https://oaipmh.arxiv.org/oai"
	oaiMetadataPrefix  = "arXivRaw"
	oaiNoRecordsMatch  = "noRecordsMatch"
	oaiFirstPageCursor = "start"
)

var authorSeparators = regexp.MustCompile(`\s*,\s*|\s+and\s+`)

// OAISource harvests categories through OAI-PMH ListRecords. Pages chain via
// resumptionToken, so a failed page ends its category's harvest while other
// categories continue.
type OAISource struct {
	transport *Transport
	baseURL   string
	logger    *slog.Logger
}

var _ Source = (*OAISource)(nil)

// NewOAISource wires the shared transport.
func NewOAISource(transport *Transport, baseURL string, log *slog.Logger) *OAISource {
	if baseURL == "" {
		baseURL = defaultOAIURL
	}
	return &OAISource{transport: transport, baseURL: baseURL, logger: logging.OrDiscard(log)}
}

// Name identifies the strategy inside the registry.
func (o *OAISource) Name() string {
	return oaiSourceName
}

// Fetch harvests every category over the window's date range.
func (o *OAISource) Fetch(ctx context.Context, q Query) (Result, error) {
	if len(q.Categories) == 0 {
		return Result{}, fmt.Errorf("no categories provided for source %s", o.Name())
	}

	var result Result
	for _, cat := range q.Categories {
		if err := o.harvest(ctx, cat, q, &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (o *OAISource) harvest(ctx context.Context, category string, q Query, result *Result) error {
	params := url.Values{
		"verb":           {"ListRecords"},
		"metadataPrefix": {oaiMetadataPrefix},
		"set":            {SetSpec(category)},
	}
	if !q.Window.From.IsZero() {
		params.Set("from", q.Window.From.UTC().Format(time.DateOnly))
	}
	if !q.Window.Until.IsZero() {
		params.Set("until", q.Window.Until.Add(-time.Nanosecond).UTC().Format(time.DateOnly))
	}

	sigQuery := Query{Categories: []string{category}, Window: q.Window}
	cursor := oaiFirstPageCursor
	harvested := 0

	for {
		report := domain.PageReport{Category: category, Cursor: cursor}

		pageURL, err := buildQueryURL(o.baseURL, params)
		if err != nil {
			return err
		}

		page, err := o.transport.Get(ctx, o.Name(), pageURL, Signature(o.Name(), sigQuery, cursor))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn("harvest page failed", "category", category, "cursor", cursor, "error", err)
			report.Status = domain.PageFailed
			report.Error = err.Error()
			result.Pages = append(result.Pages, report)
			return nil
		}

		if page.NotModified {
			// Without a body there is no token to follow.
			report.Status = domain.PageNotModified
			result.Pages = append(result.Pages, report)
			return nil
		}

		entries, token, err := parseListRecords(page.Body)
		if err != nil {
			report.Status = domain.PageFailed
			report.Error = err.Error()
			result.Pages = append(result.Pages, report)
			return nil
		}

		report.Status = domain.PageOK
		report.Entries = len(entries)
		result.Pages = append(result.Pages, report)
		result.Entries = append(result.Entries, entries...)
		harvested += len(entries)

		o.logger.Info("harvest page", "category", category, "rows", len(entries), "total", harvested)

		if token == "" {
			return nil
		}
		cursor = token
		params = url.Values{"verb": {"ListRecords"}, "resumptionToken": {token}}
	}
}

// SetSpec maps a category to its OAI set: cs.CV -> cs:cs:CV.
func SetSpec(category string) string {
	archive, sub, ok := strings.Cut(category, ".")
	if !ok {
		return category
	}
	return archive + ":" + archive + ":" + sub
}

type oaiEnvelope struct {
	XMLName     xml.Name `xml:"OAI-PMH"`
	Error       *oaiErr  `xml:"error"`
	ListRecords struct {
		Records         []oaiRecord `xml:"record"`
		ResumptionToken string      `xml:"resumptionToken"`
	} `xml:"ListRecords"`
}

type oaiErr struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

type oaiRecord struct {
	Header struct {
		Status     string `xml:"status,attr"`
		Identifier string `xml:"identifier"`
		Datestamp  string `xml:"datestamp"`
	} `xml:"header"`
	Metadata struct {
		Raw *arxivRaw `xml:"arXivRaw"`
	} `xml:"metadata"`
}

type arxivRaw struct {
	ID       string `xml:"id"`
	Versions []struct {
		Label string `xml:"version,attr"`
		Date  string `xml:"date"`
	} `xml:"version"`
	Title      string `xml:"title"`
	Authors    string `xml:"authors"`
	Categories string `xml:"categories"`
	Abstract   string `xml:"abstract"`
}

func parseListRecords(body []byte) ([]domain.RawEntry, string, error) {
	var env oaiEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, "", fmt.Errorf("parse oai response: %w", err)
	}
	if env.Error != nil {
		if env.Error.Code == oaiNoRecordsMatch {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("oai error %s: %s", env.Error.Code, strings.TrimSpace(env.Error.Message))
	}

	entries := make([]domain.RawEntry, 0, len(env.ListRecords.Records))
	for _, rec := range env.ListRecords.Records {
		if rec.Header.Status == "deleted" || rec.Metadata.Raw == nil {
			continue
		}
		entries = append(entries, rawFromOAI(rec))
	}
	return entries, strings.TrimSpace(env.ListRecords.ResumptionToken), nil
}

func rawFromOAI(rec oaiRecord) domain.RawEntry {
	md := rec.Metadata.Raw

	id := strings.TrimSpace(md.ID)
	if id == "" {
		id = rec.Header.Identifier[strings.LastIndex(rec.Header.Identifier, ":")+1:]
	}

	type version struct {
		n    int
		date string
	}
	versions := make([]version, 0, len(md.Versions))
	for _, v := range md.Versions {
		n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(v.Label), "v"))
		if err != nil {
			continue
		}
		versions = append(versions, version{n: n, date: strings.TrimSpace(v.Date)})
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].n < versions[j].n })

	raw := domain.RawEntry{
		Source:     oaiSourceName,
		ID:         id,
		Version:    1,
		Title:      md.Title,
		Summary:    md.Abstract,
		Categories: strings.Fields(md.Categories),
		Updated:    rec.Header.Datestamp,
	}
	if len(versions) > 0 {
		raw.Version = versions[len(versions)-1].n
		raw.Published = versions[0].date
		if last := versions[len(versions)-1].date; last != "" {
			raw.Updated = last
		}
	}
	if raw.Published == "" {
		raw.Published = rec.Header.Datestamp
	}

	for _, name := range authorSeparators.Split(strings.TrimSpace(md.Authors), -1) {
		if name = strings.TrimSpace(name); name != "" {
			raw.Authors = append(raw.Authors, name)
		}
	}

	return raw
}
