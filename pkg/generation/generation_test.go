package generation

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/webleads/ingestion/pkg/model"
)

func signedRequest(t *testing.T, secret string, ts time.Time, body []byte) *http.Request {
	t.Helper()
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(body)))
	sig := hex.EncodeToString(mac.Sum(nil))

	r := httptest.NewRequest(http.MethodPost, "/webhooks/generation", bytes.NewReader(body))
	r.Header.Set(headerTimestamp, timestamp)
	r.Header.Set(headerSignature, sig)
	return r
}

func TestVerifyWebhookSignatureAccepts(t *testing.T) {
	now := time.Now()
	body := []byte(`{"business_id":"` + uuid.New().String() + `"}`)
	r := signedRequest(t, "secret", now, body)

	require.True(t, VerifyWebhookSignature(r, body, "secret", now))
}

func TestVerifyWebhookSignatureRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	body := []byte(`{}`)
	r := signedRequest(t, "secret", now, body)

	require.False(t, VerifyWebhookSignature(r, body, "other-secret", now))
}

func TestVerifyWebhookSignatureRejectsStaleTimestamp(t *testing.T) {
	stale := time.Now().Add(-10 * time.Minute)
	body := []byte(`{}`)
	r := signedRequest(t, "secret", stale, body)

	require.False(t, VerifyWebhookSignature(r, body, "secret", time.Now()))
}

func TestVerifyWebhookSignatureRejectsMissingHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/generation", bytes.NewReader(nil))
	require.False(t, VerifyWebhookSignature(r, nil, "secret", time.Now()))
}

type fakeGenStore struct {
	completed   map[uuid.UUID]time.Time
	queued      map[uuid.UUID]bool
	completeErr error
}

func newFakeGenStore() *fakeGenStore {
	return &fakeGenStore{completed: make(map[uuid.UUID]time.Time), queued: make(map[uuid.UUID]bool)}
}

func (f *fakeGenStore) MarkGenerationQueued(_ context.Context, id uuid.UUID) error {
	f.queued[id] = true
	return nil
}

func (f *fakeGenStore) MarkGenerationCompleted(_ context.Context, id uuid.UUID, completedAt time.Time) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed[id] = completedAt
	return nil
}

func TestHandleWebhookMarksCompletedBusiness(t *testing.T) {
	store := newFakeGenStore()
	businessID := uuid.New()
	generatedAt := time.Now().Truncate(time.Second)
	payload, err := json.Marshal(WebhookPayload{BusinessID: businessID, Status: statusCompleted, GeneratedAt: generatedAt})
	require.NoError(t, err)

	now := time.Now()
	r := signedRequest(t, "secret", now, payload)

	require.NoError(t, HandleWebhook(context.Background(), store, r, payload, "secret", now))
	require.WithinDuration(t, generatedAt, store.completed[businessID], time.Second)
}

func TestHandleWebhookIgnoresNonCompletedStatus(t *testing.T) {
	store := newFakeGenStore()
	businessID := uuid.New()
	payload, err := json.Marshal(WebhookPayload{BusinessID: businessID, Status: "failed"})
	require.NoError(t, err)

	now := time.Now()
	r := signedRequest(t, "secret", now, payload)

	require.NoError(t, HandleWebhook(context.Background(), store, r, payload, "secret", now))
	require.Empty(t, store.completed)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	store := newFakeGenStore()
	payload := []byte(`{"status":"completed"}`)
	r := signedRequest(t, "wrong-secret", time.Now(), payload)

	err := HandleWebhook(context.Background(), store, r, payload, "secret", time.Now())
	require.Error(t, err)
}

type fakeGenClient struct {
	submitted []SubmissionRequest
	err       error
}

func (c *fakeGenClient) Submit(_ context.Context, req SubmissionRequest) error {
	c.submitted = append(c.submitted, req)
	return c.err
}

func TestSubmitterSubmitMarksQueued(t *testing.T) {
	store := newFakeGenStore()
	client := &fakeGenClient{}
	s := New(store, client)

	b := &model.Business{ID: uuid.New(), Name: "Acme Plumbing", City: "Austin"}
	require.NoError(t, s.Submit(context.Background(), b))

	require.True(t, store.queued[b.ID])
	require.Len(t, client.submitted, 1)
	require.Equal(t, b.ID, client.submitted[0].BusinessID)
}

func TestSubmitterSubmitPropagatesClientError(t *testing.T) {
	store := newFakeGenStore()
	client := &fakeGenClient{err: errors.New("upstream down")}
	s := New(store, client)

	b := &model.Business{ID: uuid.New()}
	err := s.Submit(context.Background(), b)

	require.Error(t, err)
	require.False(t, store.queued[b.ID])
}
