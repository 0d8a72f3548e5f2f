package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncronus/internal/auth"
	"github.com/desertthunder/syncronus/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultGetRetries  = 5
	defaultPostRetries = 3
	defaultBaseDelay   = time.Second
	maxBackoff         = 60 * time.Second
	requestTimeout     = 15 * time.Second
)

// RateLimitError indicates retries were exhausted while the provider kept responding 429.
type RateLimitError struct {
	URL      string
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d retries for %s", e.Attempts, e.URL)
}

func (e *RateLimitError) Unwrap() error {
	return shared.ErrRateLimited
}

// UpstreamError wraps any non-429 status >= 400. Not retried.
type UpstreamError struct {
	URL    string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d: %s", e.URL, e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return shared.ErrAPIRequest
}

// Fetcher executes authenticated requests against one provider API with
// rate-limit handling. One in-flight request at a time; not safe for
// concurrent use.
type Fetcher struct {
	session *auth.Session
	client  *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
	baseURL string

	getRetries  int
	postRetries int
	baseDelay   time.Duration

	sleep  func(time.Duration)
	jitter func() float64
}

// FetcherOpts contains optional configuration for a [Fetcher].
type FetcherOpts struct {
	HTTPClient  *http.Client
	Limiter     *rate.Limiter // Client-side courtesy limiter, applied before every request
	Logger      *log.Logger
	GetRetries  int
	PostRetries int
	BaseDelay   time.Duration
}

// NewFetcher creates a fetcher for the API rooted at baseURL, authenticated by session.
func NewFetcher(session *auth.Session, baseURL string, opts FetcherOpts) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	if opts.GetRetries <= 0 {
		opts.GetRetries = defaultGetRetries
	}
	if opts.PostRetries <= 0 {
		opts.PostRetries = defaultPostRetries
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}

	return &Fetcher{
		session:     session,
		client:      client,
		limiter:     opts.Limiter,
		logger:      logger,
		baseURL:     baseURL,
		getRetries:  opts.GetRetries,
		postRetries: opts.PostRetries,
		baseDelay:   opts.BaseDelay,
		sleep:       time.Sleep,
		jitter:      func() float64 { return 0.75 + rand.Float64()*0.5 },
	}
}

// BaseURL returns the API root this fetcher resolves relative cursors against.
func (f *Fetcher) BaseURL() string {
	return f.baseURL
}

// Get performs an authenticated GET. Relative paths are resolved against the base URL.
//
// Reads are idempotent, so 429 responses retry more aggressively than writes.
func (f *Fetcher) Get(ctx context.Context, rawURL string, params url.Values) (json.RawMessage, error) {
	fullURL := f.resolve(rawURL)
	if len(params) > 0 {
		if strings.Contains(fullURL, "?") {
			fullURL += "&" + params.Encode()
		} else {
			fullURL += "?" + params.Encode()
		}
	}

	return f.do(ctx, http.MethodGet, fullURL, nil, f.getRetries)
}

// Post performs an authenticated POST with a JSON body.
func (f *Fetcher) Post(ctx context.Context, rawURL string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	return f.do(ctx, http.MethodPost, f.resolve(rawURL), payload, f.postRetries)
}

// resolve turns a root-relative path into an absolute URL; absolute URLs pass through.
func (f *Fetcher) resolve(rawURL string) string {
	if strings.HasPrefix(rawURL, "/") {
		return f.baseURL + rawURL
	}
	return rawURL
}

func (f *Fetcher) do(ctx context.Context, method, fullURL string, body []byte, maxRetries int) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		// Tokens can expire mid-loop during a long fetch, so validity is
		// re-checked per request rather than once per session.
		if err := f.session.EnsureToken(ctx); err != nil {
			return nil, err
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+f.session.AccessToken())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := f.client.Do(req)
		if err != nil {
			// Transport failures are not retried; within the 15s budget they
			// usually indicate a non-recoverable condition.
			return nil, fmt.Errorf("%w: %s %s: %v", shared.ErrAPIRequest, method, fullURL, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt >= maxRetries {
				return nil, &RateLimitError{URL: fullURL, Attempts: maxRetries}
			}

			wait := f.retryDelay(resp, attempt+1)
			f.logger.Warn("rate limited, backing off", "method", method, "url", fullURL, "retry", attempt+1, "max", maxRetries, "wait", wait)
			f.sleep(wait)
			continue
		}

		if resp.StatusCode >= 400 {
			return nil, &UpstreamError{URL: fullURL, Status: resp.StatusCode, Body: string(respBody)}
		}

		if readErr != nil {
			return nil, fmt.Errorf("failed to read response: %w", readErr)
		}

		if len(respBody) == 0 {
			return json.RawMessage("{}"), nil
		}

		return json.RawMessage(respBody), nil
	}
}

// retryDelay computes how long to wait before retrying a 429, in priority order:
// the Retry-After header taken literally as seconds, the rate-limit-reset header
// as reset minus now floored at zero, then capped exponential backoff with jitter.
func (f *Fetcher) retryDelay(resp *http.Response, attempt int) time.Duration {
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if secs, err := strconv.ParseFloat(retryAfter, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
		f.logger.Warn("invalid Retry-After header", "value", retryAfter)
	}

	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if ts, err := strconv.ParseInt(reset, 10, 64); err == nil {
			if wait := ts - time.Now().Unix(); wait > 0 {
				return time.Duration(wait) * time.Second
			}
		} else {
			f.logger.Warn("invalid X-RateLimit-Reset header", "value", reset)
		}
	}

	delay := f.baseDelay * (1 << (attempt - 1))
	if delay > maxBackoff {
		delay = maxBackoff
	}

	return time.Duration(float64(delay) * f.jitter())
}

// Page is one page of a cursored collection.
type Page struct {
	Items []json.RawMessage
	Next  string // Next-page cursor; empty terminates the fetch
}

// PageParser extracts the items and next cursor from a raw page response.
type PageParser func(json.RawMessage) (Page, error)

// PageOpts bounds a paginated fetch.
type PageOpts struct {
	MaxPages    int // Soft cap: exceeding it only logs, the cursor is authoritative
	MaxItems    int // Hard cap on accumulated items: stop immediately once reached
	MaxFailures int // Consecutive page failures before aborting the whole fetch
}

func (o PageOpts) withDefaults() PageOpts {
	if o.MaxPages <= 0 {
		o.MaxPages = 1000
	}
	if o.MaxItems <= 0 {
		o.MaxItems = 50000
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = 3
	}
	return o
}

// FetchAll walks a cursored collection from startURL, mapping each page item.
//
// The mapper returns (item, true, nil) to keep an item, (_, false, nil) to skip
// it silently, or an error, which is logged and skipped; a single malformed
// item never aborts the page or the fetch. A first page with zero items fails
// with [shared.ErrEmptyCollection], distinct from exhausting the cursor after
// items were seen.
func FetchAll[T any](ctx context.Context, f *Fetcher, startURL string, parse PageParser, mapItem func(json.RawMessage) (T, bool, error), opts PageOpts) ([]T, error) {
	opts = opts.withDefaults()

	var items []T
	currentURL := startURL
	pages := 0
	failures := 0
	sawPage := false

	for currentURL != "" {
		pages++

		if len(items) >= opts.MaxItems {
			f.logger.Warn("reached item limit, stopping pagination", "limit", opts.MaxItems, "pages", pages-1)
			break
		}

		if pages > opts.MaxPages {
			f.logger.Warn("exceeded expected page limit, continuing due to next cursor", "limit", opts.MaxPages, "page", pages)
		}

		raw, err := f.Get(ctx, currentURL, nil)
		if err != nil {
			failures++
			f.logger.Error("failed to fetch page", "page", pages, "failure", failures, "max", opts.MaxFailures, "error", err)
			if failures >= opts.MaxFailures {
				return nil, fmt.Errorf("too many consecutive fetch failures (%d) at page %d: %w", failures, pages, err)
			}
			continue
		}
		failures = 0

		page, err := parse(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse page %d: %w", pages, err)
		}

		if !sawPage && len(page.Items) == 0 {
			return nil, fmt.Errorf("%w: first page at %s", shared.ErrEmptyCollection, startURL)
		}
		sawPage = true

		for _, rawItem := range page.Items {
			item, ok, err := mapItem(rawItem)
			if err != nil {
				f.logger.Warn("skipping malformed item", "page", pages, "error", err)
				continue
			}
			if !ok {
				continue
			}
			items = append(items, item)
		}

		currentURL = page.Next
	}

	f.logger.Info("fetched paginated collection", "items", len(items), "pages", pages)
	return items, nil
}
