// Package campaign implements the Campaign Coordinator: accepts a new
// campaign request, invokes the Geo Planner, persists the campaign and
// its zones, enqueues one scrape-zone work item per zone, and serves the
// progress query used by the campaign-status ingress endpoint.
package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/webleads/ingestion/pkg/disposition"
	"github.com/webleads/ingestion/pkg/model"
)

// Planner produces zones for a campaign, plus the adaptive planner's raw
// LLM response (nil in uniform mode) for persistence on the Campaign
// record. Implemented by *geo.Planner.
type Planner interface {
	Plan(ctx context.Context, c model.Campaign) ([]model.Zone, json.RawMessage, error)
}

// Store is the persistence seam the Coordinator needs.
type Store interface {
	FindActiveCampaign(ctx context.Context, country, region, city, category string) (*model.Campaign, error)
	CreateCampaign(ctx context.Context, c *model.Campaign, zones []*model.Zone) error
	GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	ListZones(ctx context.Context, campaignID uuid.UUID) ([]*model.Zone, error)
	CancelCampaign(ctx context.Context, id uuid.UUID) error
	Enqueue(ctx context.Context, f *disposition.FollowUp) error
}

var errDuplicateCampaign = fmt.Errorf("campaign: an active campaign for this geography/category already exists")

// DuplicateCampaignError reports the 409 case: an active campaign for the
// same (country, region, city, category) was requested in the last hour.
type DuplicateCampaignError struct {
	Existing *model.Campaign
}

func (e *DuplicateCampaignError) Error() string { return errDuplicateCampaign.Error() }

// Request is a new-campaign submission.
type Request struct {
	Country  string
	Region   string
	City     string
	Category string
	Mode     model.CampaignMode
}

// Coordinator wires the Planner and Store together.
type Coordinator struct {
	store   Store
	planner Planner
}

// New builds a Coordinator.
func New(store Store, planner Planner) *Coordinator {
	return &Coordinator{store: store, planner: planner}
}

// Submit plans and persists a new campaign; a live-mode campaign also has
// one scrape-zone item enqueued per zone, a draft one is persisted only.
// Returns 409 (via
// *DuplicateCampaignError) if a non-cancelled campaign for the same
// geography/category was requested within the last hour.
func (co *Coordinator) Submit(ctx context.Context, req Request) (*model.Campaign, []*model.Zone, error) {
	existing, err := co.store.FindActiveCampaign(ctx, req.Country, req.Region, req.City, req.Category)
	if err != nil {
		return nil, nil, fmt.Errorf("campaign: check duplicate: %w", err)
	}
	if existing != nil {
		return nil, nil, &DuplicateCampaignError{Existing: existing}
	}

	c := model.Campaign{
		ID:          uuid.New(),
		Country:     req.Country,
		Region:      req.Region,
		City:        req.City,
		Category:    req.Category,
		Mode:        req.Mode,
		RequestedAt: time.Now(),
	}

	planned, raw, err := co.planner.Plan(ctx, c)
	if err != nil {
		return nil, nil, fmt.Errorf("campaign: plan zones: %w", err)
	}
	if len(planned) == 0 {
		return nil, nil, fmt.Errorf("campaign: planner returned no zones")
	}
	c.GeoPlanRaw = raw

	zones := make([]*model.Zone, 0, len(planned))
	for i := range planned {
		z := planned[i]
		z.CampaignID = c.ID
		zones = append(zones, &z)
	}

	if err := co.store.CreateCampaign(ctx, &c, zones); err != nil {
		return nil, nil, fmt.Errorf("campaign: persist campaign: %w", err)
	}

	if c.Mode == model.ModeLive {
		for _, z := range zones {
			if err := co.enqueueScrape(ctx, &c, z); err != nil {
				return &c, zones, fmt.Errorf("campaign: enqueue zone %s: %w", z.ZoneID, err)
			}
		}
	}

	return &c, zones, nil
}

func (co *Coordinator) enqueueScrape(ctx context.Context, c *model.Campaign, z *model.Zone) error {
	return co.store.Enqueue(ctx, &disposition.FollowUp{
		Kind:      model.KindScrapeZone,
		DedupKey:  scrapeDedupKey(z.ID),
		Payload:   map[string]string{"zone_id": z.ID.String(), "campaign_id": c.ID.String()},
		Priority:  z.Priority,
		NotBefore: time.Now(),
	})
}

func scrapeDedupKey(zoneID uuid.UUID) string { return "scrape:" + zoneID.String() }

// Progress aggregates a campaign's zones by status and sums result
// counts, for the campaign-status ingress endpoint.
type Progress struct {
	Campaign          *model.Campaign
	Zones             []*model.Zone
	ZonesByStatus     map[model.ZoneStatus]int
	Counts            model.ResultCounts
	AverageAttemptCount float64
	Complete          bool
}

// GetProgress loads a campaign's current zone states and aggregates them.
func (co *Coordinator) GetProgress(ctx context.Context, campaignID uuid.UUID) (*Progress, error) {
	c, err := co.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign: load campaign %s: %w", campaignID, err)
	}
	zones, err := co.store.ListZones(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign: list zones for %s: %w", campaignID, err)
	}

	p := &Progress{
		Campaign:      c,
		Zones:         zones,
		ZonesByStatus: make(map[model.ZoneStatus]int, 5),
	}

	var attemptSum int
	complete := true
	for _, z := range zones {
		p.ZonesByStatus[z.Status]++
		attemptSum += z.AttemptCount
		p.Counts.Raw += z.Counts.Raw
		p.Counts.Saved += z.Counts.Saved
		p.Counts.WithWebsite += z.Counts.WithWebsite
		p.Counts.WithoutWebsite += z.Counts.WithoutWebsite
		p.Counts.QueuedGeneration += z.Counts.QueuedGeneration
		if z.Status != model.ZoneCompleted && z.Status != model.ZoneFailed && z.Status != model.ZoneSkipped {
			complete = false
		}
	}
	if len(zones) > 0 {
		p.AverageAttemptCount = float64(attemptSum) / float64(len(zones))
	}
	p.Complete = complete

	return p, nil
}

// Cancel marks a campaign cancelled. In-flight work items complete
// naturally; new work for the campaign's zones is skipped by the workers
// that check this flag before starting.
func (co *Coordinator) Cancel(ctx context.Context, campaignID uuid.UUID) error {
	if err := co.store.CancelCampaign(ctx, campaignID); err != nil {
		return fmt.Errorf("campaign: cancel %s: %w", campaignID, err)
	}
	return nil
}
