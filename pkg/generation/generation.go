// Package generation implements the Generation Submitter: idempotent
// submission of a business with a confirmed_no_website disposition to
// the external website-generation service, and verification of its
// completion webhook callback.
package generation

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/webleads/ingestion/pkg/model"
)

// Store is the persistence seam: mark a business submitted, and mark it
// completed when the webhook confirms generation finished.
type Store interface {
	MarkGenerationQueued(ctx context.Context, businessID uuid.UUID) error
	MarkGenerationCompleted(ctx context.Context, businessID uuid.UUID, completedAt time.Time) error
}

// Client submits a business to the external generator over HTTP. The
// generator's API surface is an external boundary; Submit only needs to
// know its submission endpoint.
type Client interface {
	Submit(ctx context.Context, req SubmissionRequest) error
}

// SubmissionRequest is what the generator needs to build a site.
type SubmissionRequest struct {
	BusinessID uuid.UUID
	Name       string
	Category   string
	Address    string
	City       string
	Region     string
	Phone      string
}

// Submitter wires the Store and Client together for one submission.
type Submitter struct {
	store  Store
	client Client
}

// New builds a Submitter.
func New(store Store, client Client) *Submitter {
	return &Submitter{store: store, client: client}
}

// Submit sends one business to the generator and marks it queued. It is
// idempotent at the Work Queue layer (submit-generation items dedup on
// business id); a second Submit call for an already-queued business is
// a caller error, not handled here.
func (s *Submitter) Submit(ctx context.Context, b *model.Business) error {
	req := SubmissionRequest{
		BusinessID: b.ID,
		Name:       b.Name,
		Category:   b.Category,
		Address:    b.Address,
		City:       b.City,
		Region:     b.Region,
		Phone:      b.Phone,
	}
	if err := s.client.Submit(ctx, req); err != nil {
		return fmt.Errorf("generation: submit %s: %w", b.ID, err)
	}
	if err := s.store.MarkGenerationQueued(ctx, b.ID); err != nil {
		return fmt.Errorf("generation: mark queued %s: %w", b.ID, err)
	}
	return nil
}

// WebhookPayload is the body of the generator's completion callback.
type WebhookPayload struct {
	BusinessID  uuid.UUID `json:"business_id"`
	Status      string    `json:"status"`
	GeneratedAt time.Time `json:"generated_at"`
}

const (
	webhookReplayWindow  = 5 * time.Minute
	statusCompleted      = "completed"
	headerTimestamp      = "X-Webhook-Timestamp"
	headerSignature      = "X-Webhook-Signature"
)

// VerifyWebhookSignature checks the generator webhook's HMAC-SHA256
// signature over "timestamp.body" and rejects requests outside the
// replay window. Mirrors the Slack request-signature check in
// slack/internal/slack/verifier.go, generalized to this webhook's header
// names and a constant-time comparison.
func VerifyWebhookSignature(r *http.Request, body []byte, secret string, now time.Time) bool {
	timestamp := r.Header.Get(headerTimestamp)
	signature := r.Header.Get(headerSignature)
	if timestamp == "" || signature == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := now.Unix() - ts
	if age > int64(webhookReplayWindow.Seconds()) || age < -int64(webhookReplayWindow.Seconds()) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(body)))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// HandleWebhook verifies and applies one completion callback. Callers
// (pkg/httpapi) are responsible for reading the request body and
// turning a returned error into an HTTP response; the returned errors
// carry no errclass kind.
func HandleWebhook(ctx context.Context, store Store, r *http.Request, body []byte, secret string, now time.Time) error {
	if !VerifyWebhookSignature(r, body, secret, now) {
		return fmt.Errorf("generation: webhook signature invalid or expired")
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("generation: decode webhook payload: %w", err)
	}
	if payload.Status != statusCompleted {
		return nil
	}

	if err := store.MarkGenerationCompleted(ctx, payload.BusinessID, payload.GeneratedAt); err != nil {
		return fmt.Errorf("generation: mark completed %s: %w", payload.BusinessID, err)
	}
	return nil
}
