package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/webleads/ingestion/pkg/campaign"
	"github.com/webleads/ingestion/pkg/model"
)

type fakeCoordinator struct {
	submitErr error
	campaign  *model.Campaign
	progress  *campaign.Progress
}

func (f *fakeCoordinator) Submit(context.Context, campaign.Request) (*model.Campaign, []*model.Zone, error) {
	if f.submitErr != nil {
		return nil, nil, f.submitErr
	}
	return f.campaign, nil, nil
}

func (f *fakeCoordinator) GetProgress(context.Context, uuid.UUID) (*campaign.Progress, error) {
	return f.progress, nil
}

func (f *fakeCoordinator) Cancel(context.Context, uuid.UUID) error { return nil }

type fakeWebhookStore struct {
	completed map[uuid.UUID]time.Time
}

func (f *fakeWebhookStore) MarkGenerationQueued(context.Context, uuid.UUID) error { return nil }

func (f *fakeWebhookStore) MarkGenerationCompleted(_ context.Context, id uuid.UUID, at time.Time) error {
	if f.completed == nil {
		f.completed = make(map[uuid.UUID]time.Time)
	}
	f.completed[id] = at
	return nil
}

func newTestServer(coord *fakeCoordinator, webhookStore *fakeWebhookStore, secret string) *Server {
	return NewServer(coord, webhookStore, nil, Config{WebhookSecret: secret, RatePerSecond: 1000, Burst: 1000}, nil)
}

func TestSubmitCampaignRejectsMissingFields(t *testing.T) {
	s := newTestServer(&fakeCoordinator{}, &fakeWebhookStore{}, "")
	req := httptest.NewRequest(http.MethodPost, "/campaigns/", bytes.NewBufferString(`{"country":"US"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitCampaignReturnsConflictOnDuplicate(t *testing.T) {
	existing := &model.Campaign{ID: uuid.New()}
	coord := &fakeCoordinator{submitErr: &campaign.DuplicateCampaignError{Existing: existing}}
	s := newTestServer(coord, &fakeWebhookStore{}, "")

	body := `{"country":"US","city":"Austin","category":"plumbers"}`
	req := httptest.NewRequest(http.MethodPost, "/campaigns/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitCampaignSucceeds(t *testing.T) {
	c := &model.Campaign{ID: uuid.New(), Country: "US", City: "Austin", Category: "plumbers", Mode: model.ModeLive}
	coord := &fakeCoordinator{campaign: c}
	s := newTestServer(coord, &fakeWebhookStore{}, "")

	body := `{"country":"US","city":"Austin","category":"plumbers","mode":"live"}`
	req := httptest.NewRequest(http.MethodPost, "/campaigns/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp, "campaign")
}

func TestCampaignStatusRejectsInvalidID(t *testing.T) {
	s := newTestServer(&fakeCoordinator{}, &fakeWebhookStore{}, "")
	req := httptest.NewRequest(http.MethodGet, "/campaigns/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCampaignStatusReturnsProgress(t *testing.T) {
	id := uuid.New()
	coord := &fakeCoordinator{progress: &campaign.Progress{Campaign: &model.Campaign{ID: id}}}
	s := newTestServer(coord, &fakeWebhookStore{}, "")

	req := httptest.NewRequest(http.MethodGet, "/campaigns/"+id.String(), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthzAndReadyz(t *testing.T) {
	s := newTestServer(&fakeCoordinator{}, &fakeWebhookStore{}, "")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerationWebhookRejectsBadSignature(t *testing.T) {
	s := newTestServer(&fakeCoordinator{}, &fakeWebhookStore{}, "shared-secret")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/generation", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerationWebhookAcceptsValidSignature(t *testing.T) {
	store := &fakeWebhookStore{}
	s := newTestServer(&fakeCoordinator{}, store, "shared-secret")

	businessID := uuid.New()
	body := []byte(`{"business_id":"` + businessID.String() + `","status":"completed","generated_at":"2026-01-01T00:00:00Z"}`)
	now := time.Now()
	timestamp := strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, []byte("shared-secret"))
	mac.Write([]byte(timestamp + "." + string(body)))
	signature := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/generation", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Timestamp", timestamp)
	req.Header.Set("X-Webhook-Signature", signature)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, store.completed, businessID)
}

func TestRateLimitBlocksBurst(t *testing.T) {
	coord := &fakeCoordinator{campaign: &model.Campaign{ID: uuid.New()}}
	s := NewServer(coord, &fakeWebhookStore{}, nil, Config{RatePerSecond: 0.001, Burst: 1}, nil)

	body := `{"country":"US","city":"Austin","category":"plumbers"}`
	req := func() *http.Request { return httptest.NewRequest(http.MethodPost, "/campaigns/", bytes.NewBufferString(body)) }

	rec1 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec1, req())
	require.Equal(t, http.StatusCreated, rec1.Code)

	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req())
	require.Equal(t, http.StatusTooManyRequests, rec2.Code)
}
