package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"PaperTriage/internal/logging"
	"PaperTriage/internal/metrics"
	"PaperTriage/internal/ports"
)

const maxBodyBytes = 32 << 20

// RetryPolicy bounds retries of one page request.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Factor     float64
	MaxDelay   time.Duration
}

// DefaultRetryPolicy is 3 retries at 1s, 2s, 4s, capped at 15s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, Factor: 2, MaxDelay: 15 * time.Second}
}

// FetchError is a page request that failed for good, either after exhausting
// retries on transient failures or on a non-retryable response.
type FetchError struct {
	URL       string
	Attempts  int
	Status    int
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s): %v", e.URL, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type statusError struct {
	code   int
	status string
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return "catalog returned " + e.status
	}
	return fmt.Sprintf("catalog returned %s: %s", e.status, e.body)
}

func (e *statusError) retryable() bool {
	return e.code >= http.StatusInternalServerError || e.code == http.StatusTooManyRequests
}

// Page is one conditional GET result. NotModified pages carry no body.
type Page struct {
	Body        []byte
	NotModified bool
	ETag        string
	Attempts    int
}

// Transport performs throttled, conditional, retrying GETs against the catalog.
type Transport struct {
	client    *http.Client
	gate      Gate
	cache     ports.ETagCache
	retry     RetryPolicy
	userAgent string
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// TransportOptions wires the transport collaborators. Gate must be the
// process-wide gate; a nil cache disables conditional requests.
type TransportOptions struct {
	Client    *http.Client
	Gate      Gate
	Cache     ports.ETagCache
	Retry     RetryPolicy
	UserAgent string
	Logger    *slog.Logger
}

// NewTransport applies defaults for missing options.
func NewTransport(opts TransportOptions) *Transport {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	gate := opts.Gate
	if gate == nil {
		gate = NopGate{}
	}
	retry := opts.Retry
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy()
	}
	if retry.Factor <= 0 {
		retry.Factor = 2
	}
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = 15 * time.Second
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "PaperTriage/1.0"
	}
	return &Transport{
		client:    client,
		gate:      gate,
		cache:     opts.Cache,
		retry:     retry,
		userAgent: ua,
		logger:    logging.OrDiscard(opts.Logger),
		sleep:     sleepContext,
		now:       time.Now,
	}
}

// Get fetches pageURL. The ETag recorded for signature, if any, is sent as
// If-None-Match; a 200 with an ETag header replaces it. Every attempt passes
// through the gate, including retries and 304s.
func (t *Transport) Get(ctx context.Context, source, pageURL, signature string) (Page, error) {
	var etag string
	if t.cache != nil && signature != "" {
		entry, ok, err := t.cache.Get(ctx, signature)
		switch {
		case err != nil:
			t.logger.Warn("etag lookup failed", "signature", signature, "error", err)
		case ok:
			etag = entry.ETag
		}
	}

	bo := t.newBackOff()
	attempts := 0
	var lastErr error
	var lastStatus int

	for attempts <= t.retry.MaxRetries {
		if attempts > 0 {
			delay := bo.NextBackOff()
			t.logger.Debug("retrying catalog request", "url", pageURL, "attempt", attempts+1, "delay", delay, "error", lastErr)
			metrics.RecordCatalogRequest(source, "retry", 0)
			if err := t.sleep(ctx, delay); err != nil {
				return Page{}, &FetchError{URL: pageURL, Attempts: attempts, Status: lastStatus, Transient: true, Err: err}
			}
		}
		attempts++

		if err := t.gate.Wait(ctx); err != nil {
			return Page{}, &FetchError{URL: pageURL, Attempts: attempts - 1, Err: fmt.Errorf("wait for request slot: %w", err)}
		}

		start := time.Now()
		page, err := t.do(ctx, pageURL, etag)
		elapsed := time.Since(start).Seconds()
		if err == nil {
			page.Attempts = attempts
			if page.NotModified {
				metrics.RecordCatalogRequest(source, "not_modified", elapsed)
				return page, nil
			}
			metrics.RecordCatalogRequest(source, "ok", elapsed)
			t.remember(ctx, signature, page.ETag)
			return page, nil
		}

		lastErr = err
		lastStatus = 0
		var se *statusError
		if errors.As(err, &se) {
			lastStatus = se.code
			if !se.retryable() {
				metrics.RecordCatalogRequest(source, "failed", elapsed)
				return Page{}, &FetchError{URL: pageURL, Attempts: attempts, Status: se.code, Err: err}
			}
		}
		if ctx.Err() != nil {
			metrics.RecordCatalogRequest(source, "failed", elapsed)
			return Page{}, &FetchError{URL: pageURL, Attempts: attempts, Err: ctx.Err()}
		}
	}

	metrics.RecordCatalogRequest(source, "failed", 0)
	return Page{}, &FetchError{URL: pageURL, Attempts: attempts, Status: lastStatus, Transient: true, Err: lastErr}
}

func (t *Transport) do(ctx context.Context, pageURL, etag string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Page{}, &statusError{code: http.StatusBadRequest, status: "invalid request", body: err.Error()}
	}
	req.Header.Set("User-Agent", t.userAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return Page{NotModified: true, ETag: etag}, nil
	case resp.StatusCode != http.StatusOK:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Page{}, &statusError{code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(payload))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read page: %w", err)
	}
	return Page{Body: body, ETag: resp.Header.Get("ETag")}, nil
}

func (t *Transport) remember(ctx context.Context, signature, etag string) {
	if t.cache == nil || signature == "" || etag == "" {
		return
	}
	if err := t.cache.Put(ctx, signature, ports.ETagEntry{ETag: etag, FetchedAt: t.now().UTC()}); err != nil {
		t.logger.Warn("etag store failed", "signature", signature, "error", err)
	}
}

// Invalidate drops every cached ETag whose signature starts with prefix.
func (t *Transport) Invalidate(ctx context.Context, prefix string) (int, error) {
	if t.cache == nil {
		return 0, nil
	}
	return t.cache.InvalidatePrefix(ctx, prefix)
}

func (t *Transport) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.retry.BaseDelay
	bo.Multiplier = t.retry.Factor
	bo.MaxInterval = t.retry.MaxDelay
	bo.RandomizationFactor = 0
	bo.Reset()
	return bo
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
