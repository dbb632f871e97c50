package campaign

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/webleads/ingestion/pkg/disposition"
	"github.com/webleads/ingestion/pkg/model"
)

type fakeStore struct {
	campaigns map[uuid.UUID]*model.Campaign
	zones     map[uuid.UUID][]*model.Zone
	active    *model.Campaign
	enqueued  []*disposition.FollowUp
	cancelled []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns: make(map[uuid.UUID]*model.Campaign),
		zones:     make(map[uuid.UUID][]*model.Zone),
	}
}

func (f *fakeStore) FindActiveCampaign(_ context.Context, _, _, _, _ string) (*model.Campaign, error) {
	return f.active, nil
}

func (f *fakeStore) CreateCampaign(_ context.Context, c *model.Campaign, zones []*model.Zone) error {
	f.campaigns[c.ID] = c
	f.zones[c.ID] = zones
	return nil
}

func (f *fakeStore) GetCampaign(_ context.Context, id uuid.UUID) (*model.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, errNotFound{}
	}
	return c, nil
}

func (f *fakeStore) ListZones(_ context.Context, campaignID uuid.UUID) ([]*model.Zone, error) {
	return f.zones[campaignID], nil
}

func (f *fakeStore) CancelCampaign(_ context.Context, id uuid.UUID) error {
	if c, ok := f.campaigns[id]; ok {
		c.Cancelled = true
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeStore) Enqueue(_ context.Context, fu *disposition.FollowUp) error {
	f.enqueued = append(f.enqueued, fu)
	return nil
}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type fakePlanner struct {
	zones []model.Zone
	raw   json.RawMessage
	err   error
}

func (f *fakePlanner) Plan(_ context.Context, _ model.Campaign) ([]model.Zone, json.RawMessage, error) {
	return f.zones, f.raw, f.err
}

func newZones(n int) []model.Zone {
	zones := make([]model.Zone, n)
	for i := range zones {
		zones[i] = model.Zone{ID: uuid.New(), ZoneID: uuid.New().String(), Priority: 1}
	}
	return zones
}

func TestSubmitPlansPersistsAndEnqueuesLiveCampaign(t *testing.T) {
	store := newFakeStore()
	planner := &fakePlanner{zones: newZones(3)}
	co := New(store, planner)

	c, zones, err := co.Submit(context.Background(), Request{
		Country: "us", Region: "tx", City: "austin", Category: "plumber", Mode: model.ModeLive,
	})

	require.NoError(t, err)
	require.Len(t, zones, 3)
	require.Len(t, store.enqueued, 3)
	require.Equal(t, c.ID.String(), store.enqueued[0].Payload.(map[string]string)["campaign_id"])
}

func TestSubmitPersistsAdaptivePlannerRawResponse(t *testing.T) {
	store := newFakeStore()
	raw := json.RawMessage(`{"districts":[{"name":"Downtown"}]}`)
	planner := &fakePlanner{zones: newZones(1), raw: raw}
	co := New(store, planner)

	c, _, err := co.Submit(context.Background(), Request{
		Country: "us", Region: "tx", City: "austin", Category: "plumber", Mode: model.ModeDraft,
	})

	require.NoError(t, err)
	require.JSONEq(t, string(raw), string(c.GeoPlanRaw))
	require.JSONEq(t, string(raw), string(store.campaigns[c.ID].GeoPlanRaw))
}

func TestSubmitDraftModeDoesNotEnqueue(t *testing.T) {
	store := newFakeStore()
	planner := &fakePlanner{zones: newZones(2)}
	co := New(store, planner)

	_, _, err := co.Submit(context.Background(), Request{
		Country: "us", Region: "tx", City: "austin", Category: "plumber", Mode: model.ModeDraft,
	})

	require.NoError(t, err)
	require.Empty(t, store.enqueued)
}

func TestSubmitRejectsDuplicateActiveCampaign(t *testing.T) {
	store := newFakeStore()
	store.active = &model.Campaign{ID: uuid.New(), City: "austin"}
	planner := &fakePlanner{zones: newZones(1)}
	co := New(store, planner)

	_, _, err := co.Submit(context.Background(), Request{
		Country: "us", Region: "tx", City: "austin", Category: "plumber", Mode: model.ModeLive,
	})

	require.Error(t, err)
	var dup *DuplicateCampaignError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, store.active, dup.Existing)
}

func TestSubmitRejectsEmptyZonePlan(t *testing.T) {
	store := newFakeStore()
	planner := &fakePlanner{zones: nil}
	co := New(store, planner)

	_, _, err := co.Submit(context.Background(), Request{
		Country: "us", Region: "tx", City: "austin", Category: "plumber", Mode: model.ModeLive,
	})

	require.Error(t, err)
}

func TestGetProgressAggregatesZoneCounts(t *testing.T) {
	store := newFakeStore()
	campaignID := uuid.New()
	store.campaigns[campaignID] = &model.Campaign{ID: campaignID}
	store.zones[campaignID] = []*model.Zone{
		{ID: uuid.New(), Status: model.ZoneCompleted, AttemptCount: 1, Counts: model.ResultCounts{Saved: 4, WithWebsite: 1, WithoutWebsite: 3}},
		{ID: uuid.New(), Status: model.ZonePending, AttemptCount: 0},
	}
	co := New(store, &fakePlanner{})

	progress, err := co.GetProgress(context.Background(), campaignID)

	require.NoError(t, err)
	require.Equal(t, 1, progress.ZonesByStatus[model.ZoneCompleted])
	require.Equal(t, 1, progress.ZonesByStatus[model.ZonePending])
	require.Equal(t, 4, progress.Counts.Saved)
	require.False(t, progress.Complete)
}

func TestCancelMarksCampaignCancelled(t *testing.T) {
	store := newFakeStore()
	campaignID := uuid.New()
	store.campaigns[campaignID] = &model.Campaign{ID: campaignID}
	co := New(store, &fakePlanner{})

	require.NoError(t, co.Cancel(context.Background(), campaignID))
	require.True(t, store.campaigns[campaignID].Cancelled)
}
