package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/webleads/ingestion/pkg/disposition"
	"github.com/webleads/ingestion/pkg/errclass"
	"github.com/webleads/ingestion/pkg/listing"
	"github.com/webleads/ingestion/pkg/model"
)

// ScrapeStore is the persistence seam the scrape-zone handler needs.
type ScrapeStore interface {
	GetZone(ctx context.Context, zoneID uuid.UUID) (*model.Zone, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	InsertBusinesses(ctx context.Context, businesses []*model.Business) (int, error)
	UpdateZoneStatus(ctx context.Context, z *model.Zone) error
	Enqueue(ctx context.Context, f *disposition.FollowUp) error
}

// ListingClient is the scrape-zone handler's seam onto the Listing
// Client.
type ListingClient interface {
	Search(ctx context.Context, z model.Zone, category, regionHint, city, countryName string, limit int) ([]listing.RawBusiness, error)
}

const scrapeResultLimit = 60

type zonePayload struct {
	ZoneID     string `json:"zone_id"`
	CampaignID string `json:"campaign_id"`
}

// ScrapeZoneHandler queries the Listing Client for one zone, saves the
// results (idempotent by external-listing-id), tallies result counts
// onto the zone, and enqueues validate-business for every business that
// still needs a disposition decision.
func ScrapeZoneHandler(store ScrapeStore, client ListingClient) Handler {
	return func(ctx context.Context, item *model.WorkItem) error {
		var p zonePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return errclass.Permanent(fmt.Errorf("scrape-zone: decode payload: %w", err))
		}
		zoneID, err := uuid.Parse(p.ZoneID)
		if err != nil {
			return errclass.Permanent(fmt.Errorf("scrape-zone: invalid zone id %q: %w", p.ZoneID, err))
		}

		zone, err := store.GetZone(ctx, zoneID)
		if err != nil {
			return fmt.Errorf("scrape-zone: load zone: %w", err)
		}
		c, err := store.GetCampaign(ctx, zone.CampaignID)
		if err != nil {
			return fmt.Errorf("scrape-zone: load campaign: %w", err)
		}
		if c.Cancelled {
			zone.Status = model.ZoneSkipped
			return store.UpdateZoneStatus(ctx, zone)
		}

		zone.Status = model.ZoneScraping
		zone.AttemptCount++
		if err := store.UpdateZoneStatus(ctx, zone); err != nil {
			return fmt.Errorf("scrape-zone: mark scraping: %w", err)
		}

		raw, err := client.Search(ctx, *zone, c.Category, c.Region, c.City, c.Country, scrapeResultLimit)
		if err != nil {
			zone.ErrorMessage = err.Error()
			if zone.AttemptCount >= model.MaxZoneAttempts {
				zone.Status = model.ZoneFailed
			} else {
				zone.Status = model.ZonePending
			}
			if uerr := store.UpdateZoneStatus(ctx, zone); uerr != nil {
				return fmt.Errorf("scrape-zone: record failure: %w", uerr)
			}
			return fmt.Errorf("scrape-zone: listing search: %w", err)
		}

		businesses := make([]*model.Business, 0, len(raw))
		for _, rb := range raw {
			b := &model.Business{
				ID:                uuid.New(),
				ExternalListingID: rb.ExternalListingID,
				Name:              rb.Name,
				Category:          rb.Category,
				Address:           rb.Address,
				City:              rb.City,
				Region:            rb.Region,
				Country:           rb.Country,
				Phone:             rb.Phone,
				Latitude:          rb.Latitude,
				Longitude:         rb.Longitude,
				Rating:            rb.Rating,
				ReviewCount:       rb.ReviewCount,
				WebsiteURL:        rb.CandidateWebsite,
				ValidationStatus:  model.StatusPending,
				RawListingData:    rb.Raw,
				ZoneID:            zone.ID,
			}
			if b.WebsiteURL != "" {
				b.Metadata.Source = model.SourceProvider
				b.Metadata.SourceTimestamp = time.Now()
				b.Metadata.DiscoveryAttempts = map[string]model.DiscoveryAttempt{
					string(model.SourceProvider): {
						Attempted: true,
						Timestamp: time.Now(),
						FoundURL:  b.WebsiteURL,
					},
				}
			}
			businesses = append(businesses, b)
		}

		inserted, err := store.InsertBusinesses(ctx, businesses)
		if err != nil {
			return fmt.Errorf("scrape-zone: save businesses: %w", err)
		}

		zone.Status = model.ZoneCompleted
		zone.Counts.Raw += len(raw)
		zone.Counts.Saved += inserted
		if err := store.UpdateZoneStatus(ctx, zone); err != nil {
			return fmt.Errorf("scrape-zone: mark completed: %w", err)
		}

		for _, b := range businesses {
			if err := store.Enqueue(ctx, &disposition.FollowUp{
				Kind:      model.KindValidateBusiness,
				DedupKey:  "validate:" + b.ID.String(),
				Payload:   map[string]string{"business_id": b.ID.String()},
				Priority:  zone.Priority,
				NotBefore: time.Now(),
			}); err != nil {
				return fmt.Errorf("scrape-zone: enqueue validate for %s: %w", b.ID, err)
			}
		}

		return nil
	}
}

type businessPayload struct {
	BusinessID string `json:"business_id"`
}

// Engine is the Disposition Engine seam the validate-business and
// discover-website handlers share.
type Engine interface {
	EvaluateCandidate(ctx context.Context, businessID string) error
	DiscoverWebsite(ctx context.Context, businessID string) error
}

// ValidateBusinessHandler runs one business through the Disposition
// Engine's prescreen -> render -> verify pipeline.
func ValidateBusinessHandler(engine Engine) Handler {
	return func(ctx context.Context, item *model.WorkItem) error {
		id, err := decodeBusinessID(item.Payload)
		if err != nil {
			return err
		}
		if err := engine.EvaluateCandidate(ctx, id); err != nil {
			return fmt.Errorf("validate-business: %w", err)
		}
		return nil
	}
}

// DiscoverWebsiteHandler runs one business through search-based
// discovery.
func DiscoverWebsiteHandler(engine Engine) Handler {
	return func(ctx context.Context, item *model.WorkItem) error {
		id, err := decodeBusinessID(item.Payload)
		if err != nil {
			return err
		}
		if err := engine.DiscoverWebsite(ctx, id); err != nil {
			return fmt.Errorf("discover-website: %w", err)
		}
		return nil
	}
}

// GenerationStore is the persistence seam the submit-generation handler
// needs to load the business to submit.
type GenerationStore interface {
	GetBusiness(ctx context.Context, id string) (*model.Business, error)
}

// Submitter is the Generation Submitter seam.
type Submitter interface {
	Submit(ctx context.Context, b *model.Business) error
}

// SubmitGenerationHandler hands a confirmed_no_website business to the
// external generator. Idempotent: if the business was already queued or
// completed, it completes without side effect.
func SubmitGenerationHandler(store GenerationStore, submitter Submitter) Handler {
	return func(ctx context.Context, item *model.WorkItem) error {
		id, err := decodeBusinessID(item.Payload)
		if err != nil {
			return err
		}
		b, err := store.GetBusiness(ctx, id)
		if err != nil {
			return fmt.Errorf("submit-generation: load business: %w", err)
		}
		if b.GenerationQueuedAt != nil {
			return nil
		}
		if err := submitter.Submit(ctx, b); err != nil {
			return fmt.Errorf("submit-generation: %w", err)
		}
		return nil
	}
}

func decodeBusinessID(payload []byte) (string, error) {
	var p businessPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", errclass.Permanent(fmt.Errorf("decode business payload: %w", err))
	}
	if p.BusinessID == "" {
		return "", errclass.Permanent(fmt.Errorf("payload missing business_id"))
	}
	return p.BusinessID, nil
}
