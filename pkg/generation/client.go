package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/webleads/ingestion/pkg/errclass"
)

// HTTPClient submits businesses to the external generator's REST API.
// Structured like pkg/search's Client: a sentry span per call and
// status-code classification into errclass kinds.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewHTTPClient builds an HTTPClient against the generator's base URL.
func NewHTTPClient(httpClient *http.Client, baseURL, apiKey string) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey}
}

type submitRequest struct {
	BusinessID string `json:"business_id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Region     string `json:"region"`
	Phone      string `json:"phone"`
}

// Submit implements Client.
func (c *HTTPClient) Submit(ctx context.Context, req SubmissionRequest) error {
	span := sentry.StartSpan(ctx, "generation.submit")
	defer span.Finish()

	body, err := json.Marshal(submitRequest{
		BusinessID: req.BusinessID.String(),
		Name:       req.Name,
		Category:   req.Category,
		Address:    req.Address,
		City:       req.City,
		Region:     req.Region,
		Phone:      req.Phone,
	})
	if err != nil {
		return errclass.Permanent(fmt.Errorf("generation: encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(span.Context(), http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return errclass.Permanent(fmt.Errorf("generation: build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return errclass.Transient(fmt.Errorf("generation: submit request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		span.Status = sentry.SpanStatusInternalError
		return errclass.Transient(fmt.Errorf("generation: submit status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		span.Status = sentry.SpanStatusInvalidArgument
		b, _ := io.ReadAll(resp.Body)
		return errclass.Permanent(fmt.Errorf("generation: submit rejected, status %d: %s", resp.StatusCode, string(b)))
	}

	span.Status = sentry.SpanStatusOK
	return nil
}
