package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxPages caps one pagination loop regardless of upstream
	// behavior. Guarantees termination even under a non-advancing cursor.
	DefaultMaxPages = 50

	// DefaultPageDelay is the pause between successive page requests.
	// The upstream source rate-limits aggressively; this is a throttling
	// contract, not an accidental serialization.
	DefaultPageDelay = 150 * time.Millisecond
)

// ErrNoUpstreamData is returned when not a single page could be fetched.
var ErrNoUpstreamData = errors.New("upstream event source returned no data")

// ClientConfig configures the upstream event client.
type ClientConfig struct {
	BaseURL   string
	APISecret string
	Timeout   time.Duration
	MaxPages  int
	PageDelay time.Duration
}

// Client queries the upstream raw-event API one page at a time.
type Client struct {
	baseURL    string
	apiSecret  string
	httpClient *http.Client
	maxPages   int
	pageDelay  time.Duration
	sleep      func(time.Duration)
	log        *logrus.Logger
}

// NewClient creates an upstream event client.
func NewClient(cfg ClientConfig, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	pageDelay := cfg.PageDelay
	if pageDelay <= 0 {
		pageDelay = DefaultPageDelay
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiSecret:  cfg.APISecret,
		httpClient: &http.Client{Timeout: timeout},
		maxPages:   maxPages,
		pageDelay:  pageDelay,
		sleep:      time.Sleep,
		log:        log,
	}
}

// SetSleep replaces the inter-page pause function. Used by tests and
// callers that need cancellation-aware throttling.
func (c *Client) SetSleep(fn func(time.Duration)) {
	if fn != nil {
		c.sleep = fn
	}
}

// FetchPage retrieves one page of events for the window and name filter.
// An empty cursor requests the first page.
func (c *Client) FetchPage(ctx context.Context, start, end time.Time, names []string, cursor string) (Page, error) {
	if len(names) == 0 {
		return Page{}, fmt.Errorf("at least one event name filter is required")
	}

	q := url.Values{}
	q.Set("from_date", start.UTC().Format(time.RFC3339))
	q.Set("to_date", end.UTC().Format(time.RFC3339))
	q.Set("event", strings.Join(names, ","))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/2.0/events/query?"+q.Encode(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.SetBasicAuth(c.apiSecret, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("upstream fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("upstream fetch failed: HTTP %d", resp.StatusCode)
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return Page{}, fmt.Errorf("malformed upstream page: %w", err)
	}

	return page, nil
}

// FetchAll drives the pagination loop for a window, accumulating all
// pages up to the page cap. Pagination is sequential by design: each
// cursor depends on the previous response, and the configured pause
// between requests respects upstream rate limits.
//
// If a page after the first fails, FetchAll returns the events gathered
// so far with Partial set. If the very first page fails, it returns
// ErrNoUpstreamData wrapping the cause.
func (c *Client) FetchAll(ctx context.Context, start, end time.Time, names []string) (FetchResult, error) {
	var result FetchResult
	cursor := ""

	for result.Pages < c.maxPages {
		if err := ctx.Err(); err != nil {
			if result.Pages == 0 {
				return result, fmt.Errorf("%w: %v", ErrNoUpstreamData, err)
			}
			result.Partial = true
			return result, nil
		}

		page, err := c.FetchPage(ctx, start, end, names, cursor)
		if err != nil {
			if result.Pages == 0 {
				return result, fmt.Errorf("%w: %v", ErrNoUpstreamData, err)
			}
			c.log.WithError(err).Warnf("Aborting pagination after %d pages, returning partial results", result.Pages)
			result.Partial = true
			return result, nil
		}

		result.Events = append(result.Events, page.Events...)
		result.Pages++

		if !page.HasMore {
			return result, nil
		}
		if page.NextCursor == "" || page.NextCursor == cursor {
			// Non-advancing cursor; treat as exhaustion rather than
			// looping forever.
			c.log.Warnf("Upstream cursor did not advance after page %d, stopping", result.Pages)
			return result, nil
		}
		cursor = page.NextCursor

		c.sleep(c.pageDelay)
	}

	c.log.Warnf("Hit page cap (%d) before upstream exhaustion, results may be truncated", c.maxPages)
	result.Partial = true
	return result, nil
}
