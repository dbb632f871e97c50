// Package search implements the Search Client: a thin, rate-limited
// client over an external web-search provider, used when a business has
// no usable candidate URL and the Disposition Engine needs to discover
// one. Structured the same way as pkg/listing's provider
// client: a shared rate limiter, sentry span per call, and status-code
// classification into errclass kinds.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/singleflight"

	"github.com/webleads/ingestion/pkg/errclass"
	"github.com/webleads/ingestion/pkg/ratelimit"
)

// Result is one organic search result.
type Result struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

const maxResults = 10
const provider = "search"

// Client queries the configured web-search provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *ratelimit.Limiter
	group      singleflight.Group
}

// New builds a Client and configures the shared limiter's search bucket
// to a default of ~1.6 req/s.
func New(httpClient *http.Client, baseURL, apiKey string, limiter *ratelimit.Limiter) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	limiter.Configure(provider, 1.6, 2)
	return &Client{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey, limiter: limiter}
}

type searchRequest struct {
	Query  string `json:"q"`
	Region string `json:"region,omitempty"`
	Limit  int    `json:"num"`
}

type searchResponse struct {
	Organic []Result `json:"organic"`
}

// Search queries "{businessName} {city}" literally — no quoting, no
// appended keyword, no region folded into the query string. Concurrent
// calls for the same (businessName, city, regionHint) collapse onto a
// single in-flight request via singleflight.
func (c *Client) Search(ctx context.Context, businessName, city, regionHint string) ([]Result, error) {
	key := businessName + "|" + city + "|" + regionHint
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.doSearch(ctx, businessName, city, regionHint)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Result), nil
}

func (c *Client) doSearch(ctx context.Context, businessName, city, regionHint string) ([]Result, error) {
	span := sentry.StartSpan(ctx, "search.query")
	defer span.Finish()

	if err := c.limiter.Wait(ctx, provider); err != nil {
		return nil, errclass.Wrap(errclass.KindInternal, fmt.Errorf("search: rate limiter: %w", err))
	}

	query := businessName + " " + city
	body, err := json.Marshal(searchRequest{Query: query, Region: regionHint, Limit: maxResults})
	if err != nil {
		return nil, errclass.Permanent(fmt.Errorf("search: encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(span.Context(), http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, errclass.Permanent(fmt.Errorf("search: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errclass.Transient(&SearchError{Err: err})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errclass.Transient(&SearchError{Err: fmt.Errorf("read response: %w", err)})
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, errclass.Transient(&SearchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("search: transient status %d", resp.StatusCode)})
	}
	if resp.StatusCode >= 400 {
		return nil, errclass.Permanent(&SearchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("search: rejected with status %d", resp.StatusCode)})
	}

	var parsed searchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errclass.Permanent(&SearchError{Err: fmt.Errorf("decode response: %w", err)})
	}

	results := parsed.Organic
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	for i := range results {
		if results[i].Position == 0 {
			results[i].Position = i + 1
		}
	}
	return results, nil
}

// SearchError is the Search Client's typed failure.
type SearchError struct {
	StatusCode int
	Err        error
}

func (e *SearchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("search: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("search: %v", e.Err)
}
func (e *SearchError) Unwrap() error { return e.Err }
