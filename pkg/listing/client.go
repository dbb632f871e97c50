// Package listing implements the Listing Client: querying the external
// business-listing provider for a zone and normalizing the raw records
// into the Business schema.
package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/webleads/ingestion/pkg/errclass"
	"github.com/webleads/ingestion/pkg/model"
	"github.com/webleads/ingestion/pkg/ratelimit"
)

// RawBusiness is the provider's full, un-lossy record: a typed core view
// plus an open map of whatever extra fields that provider's payload
// carries, since listing payloads vary field-by-field across categories.
type RawBusiness struct {
	ExternalListingID string
	Name               string
	Category           string
	Address            string
	City               string
	Region             string
	Country            string
	Phone              string
	Latitude           float64
	Longitude          float64
	Rating             float64
	ReviewCount        int
	// CandidateWebsite is the first non-empty of the provider's
	// website/site/url/domain/web/homepage fields. Normalization must not
	// discard it based on content — that's the Disposition Engine's job.
	CandidateWebsite string
	Raw              json.RawMessage // the provider's full response for this record
}

// Client queries the listing provider over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *ratelimit.Limiter
	provider   string
}

// New builds a listing Client. baseURL is the provider's search endpoint.
func New(baseURL, apiKey string, timeout time.Duration, limiter *ratelimit.Limiter) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    limiter,
		provider:   "listing",
	}
}

// queryString builds the literal, bounded format this requires:
// "{category}, {city}, {region}, {country-name}" — empirically the only
// form that reliably geo-resolves against the provider.
func queryString(category, city, region, countryName string) string {
	return fmt.Sprintf("%s, %s, %s, %s", category, city, region, countryName)
}

// Search queries the provider for businesses in zone z, in category, up to
// limit results. regionHint is passed as the provider's country parameter.
func (c *Client) Search(ctx context.Context, z model.Zone, category, regionHint, city, countryName string, limit int) ([]RawBusiness, error) {
	if err := c.limiter.Wait(ctx, c.provider); err != nil {
		return nil, errclass.Transient(fmt.Errorf("listing: rate limit wait: %w", err))
	}

	span := sentry.StartSpan(ctx, "http.client", sentry.WithDescription("listing.search"))
	defer span.Finish()

	q := url.Values{}
	q.Set("query", queryString(category, city, regionHint, countryName))
	q.Set("region", regionHint)
	q.Set("language", "en")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("lat", strconv.FormatFloat(z.CenterLat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(z.CenterLon, 'f', 6, 64))
	q.Set("radius", strconv.FormatFloat(z.RadiusKM, 'f', 2, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("listing: build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, errclass.Transient(fmt.Errorf("listing: request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errclass.Transient(fmt.Errorf("listing: read body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusPaymentRequired:
		span.Status = sentry.SpanStatusPermissionDenied
		return nil, errclass.Permanent(&ListingPermanentError{StatusCode: resp.StatusCode, Body: string(body)})
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		span.Status = sentry.SpanStatusInternalError
		return nil, errclass.Transient(&ListingTransientError{StatusCode: resp.StatusCode, Body: string(body)})
	case resp.StatusCode >= 400:
		span.Status = sentry.SpanStatusInvalidArgument
		return nil, errclass.Permanent(&ListingPermanentError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	var payload struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errclass.Transient(fmt.Errorf("listing: decode response: %w", err))
	}

	span.Status = sentry.SpanStatusOK

	out := make([]RawBusiness, 0, len(payload.Results))
	for _, raw := range payload.Results {
		rb, err := Normalize(raw)
		if err != nil {
			continue // a single malformed record must not fail the whole zone
		}
		out = append(out, rb)
	}
	return out, nil
}

// ListingTransientError wraps a retriable provider failure (timeout, 5xx).
type ListingTransientError struct {
	StatusCode int
	Body       string
}

func (e *ListingTransientError) Error() string {
	return fmt.Sprintf("listing provider transient error: status=%d", e.StatusCode)
}

func (e *ListingTransientError) StatusCodeValue() int { return e.StatusCode }

// ListingPermanentError wraps a non-retriable failure (auth, quota, 4xx).
type ListingPermanentError struct {
	StatusCode int
	Body       string
}

func (e *ListingPermanentError) Error() string {
	return fmt.Sprintf("listing provider permanent error: status=%d", e.StatusCode)
}
