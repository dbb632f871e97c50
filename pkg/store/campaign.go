package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webleads/ingestion/pkg/model"
)

// CreateCampaign persists a newly planned campaign and its zones as one
// transaction — the Campaign Coordinator must never observe a campaign
// row with no zones to scrape.
func (s *Store) CreateCampaign(ctx context.Context, c *model.Campaign, zones []*model.Zone) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin campaign tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO campaigns (id, country, region, city, category, mode, geo_plan_raw, requested_at, cancelled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.Country, c.Region, c.City, c.Category, c.Mode, c.GeoPlanRaw, c.RequestedAt, c.Cancelled,
	); err != nil {
		return fmt.Errorf("store: insert campaign %s: %w", c.ID, err)
	}

	for _, z := range zones {
		if z.ID == uuid.Nil {
			z.ID = uuid.New()
		}
		z.CampaignID = c.ID
		if _, err := tx.Exec(ctx, `
			INSERT INTO zones (id, campaign_id, zone_id, center_lat, center_lon, radius_km, priority, status, attempt_count)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			z.ID, z.CampaignID, z.ZoneID, z.CenterLat, z.CenterLon, z.RadiusKM, z.Priority, model.ZonePending, 0,
		); err != nil {
			return fmt.Errorf("store: insert zone %s: %w", z.ZoneID, err)
		}
	}

	return tx.Commit(ctx)
}

// GetCampaign loads one campaign by id.
func (s *Store) GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	var c model.Campaign
	row := s.pool.QueryRow(ctx, `
		SELECT id, country, region, city, category, mode, geo_plan_raw, requested_at, cancelled
		FROM campaigns WHERE id = $1`, id)
	if err := row.Scan(&c.ID, &c.Country, &c.Region, &c.City, &c.Category, &c.Mode, &c.GeoPlanRaw, &c.RequestedAt, &c.Cancelled); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("store: campaign %s: %w", id, errNotFound)
		}
		return nil, fmt.Errorf("store: get campaign %s: %w", id, err)
	}
	return &c, nil
}

// ListZones returns every zone belonging to a campaign, ordered by
// priority — used by the campaign progress query.
func (s *Store) ListZones(ctx context.Context, campaignID uuid.UUID) ([]*model.Zone, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, campaign_id, zone_id, center_lat, center_lon, radius_km, priority, status,
		       last_attempt_at, attempt_count, COALESCE(error_message, ''), result_counts
		FROM zones WHERE campaign_id = $1 ORDER BY priority DESC, zone_id ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("store: list zones for campaign %s: %w", campaignID, err)
	}
	defer rows.Close()

	var zones []*model.Zone
	for rows.Next() {
		var z model.Zone
		var countsJSON []byte
		if err := rows.Scan(&z.ID, &z.CampaignID, &z.ZoneID, &z.CenterLat, &z.CenterLon, &z.RadiusKM, &z.Priority, &z.Status,
			&z.LastAttemptAt, &z.AttemptCount, &z.ErrorMessage, &countsJSON,
		); err != nil {
			return nil, fmt.Errorf("store: scan zone: %w", err)
		}
		if len(countsJSON) > 0 {
			if err := json.Unmarshal(countsJSON, &z.Counts); err != nil {
				return nil, fmt.Errorf("store: decode zone %s result_counts: %w", z.ZoneID, err)
			}
		}
		zones = append(zones, &z)
	}
	return zones, rows.Err()
}

// GetZone loads one zone by id, used by the scrape-zone worker handler to
// resolve a work item's payload back to its coordinates and campaign.
func (s *Store) GetZone(ctx context.Context, zoneID uuid.UUID) (*model.Zone, error) {
	var z model.Zone
	var countsJSON []byte
	row := s.pool.QueryRow(ctx, `
		SELECT id, campaign_id, zone_id, center_lat, center_lon, radius_km, priority, status,
		       last_attempt_at, attempt_count, COALESCE(error_message, ''), result_counts
		FROM zones WHERE id = $1`, zoneID)
	if err := row.Scan(&z.ID, &z.CampaignID, &z.ZoneID, &z.CenterLat, &z.CenterLon, &z.RadiusKM, &z.Priority, &z.Status,
		&z.LastAttemptAt, &z.AttemptCount, &z.ErrorMessage, &countsJSON,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("store: zone %s: %w", zoneID, errNotFound)
		}
		return nil, fmt.Errorf("store: get zone %s: %w", zoneID, err)
	}
	if len(countsJSON) > 0 {
		if err := json.Unmarshal(countsJSON, &z.Counts); err != nil {
			return nil, fmt.Errorf("store: decode zone %s result_counts: %w", z.ZoneID, err)
		}
	}
	return &z, nil
}

// UpdateZoneStatus records the outcome of one scrape attempt on a zone,
// including the counts tallied from that run.
func (s *Store) UpdateZoneStatus(ctx context.Context, z *model.Zone) error {
	countsJSON, err := json.Marshal(z.Counts)
	if err != nil {
		return fmt.Errorf("store: encode zone %s result_counts: %w", z.ZoneID, err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE zones SET
			status = $2, last_attempt_at = now(), attempt_count = $3, error_message = $4, result_counts = $5
		WHERE id = $1`,
		z.ID, z.Status, z.AttemptCount, z.ErrorMessage, countsJSON,
	)
	if err != nil {
		return fmt.Errorf("store: update zone %s: %w", z.ID, err)
	}
	return nil
}

// FindActiveCampaign looks for a non-cancelled campaign for the same
// (country, region, city, category) requested within the last hour, used
// by the Campaign Coordinator to reject duplicate submissions.
func (s *Store) FindActiveCampaign(ctx context.Context, country, region, city, category string) (*model.Campaign, error) {
	var c model.Campaign
	row := s.pool.QueryRow(ctx, `
		SELECT id, country, region, city, category, mode, geo_plan_raw, requested_at, cancelled
		FROM campaigns
		WHERE country = $1 AND region = $2 AND city = $3 AND category = $4
		  AND cancelled = false AND requested_at > now() - interval '1 hour'
		ORDER BY requested_at DESC LIMIT 1`,
		country, region, city, category,
	)
	if err := row.Scan(&c.ID, &c.Country, &c.Region, &c.City, &c.Category, &c.Mode, &c.GeoPlanRaw, &c.RequestedAt, &c.Cancelled); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find active campaign: %w", err)
	}
	return &c, nil
}

// CancelCampaign marks a campaign cancelled. In-flight work items for its
// zones/businesses complete naturally. The scrape-zone handler checks
// this flag before starting and marks the zone skipped; validate-business
// and discover-website work for the campaign's businesses does not check
// it and runs to its normal disposition.
func (s *Store) CancelCampaign(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `UPDATE campaigns SET cancelled = true WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: cancel campaign %s: %w", id, err)
	}
	return nil
}

// InsertValidationRecord appends one immutable verifier-run record.
// Never updated once written.
func (s *Store) InsertValidationRecord(ctx context.Context, r *model.ValidationRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	verdictJSON, err := json.Marshal(r.Verdict)
	if err != nil {
		return fmt.Errorf("store: encode verdict: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO validation_records (id, business_id, run_at, evidence_kind, evidence_json, verdict)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID, r.BusinessID, r.RunAt, r.EvidenceKind, r.EvidenceJSON, verdictJSON,
	)
	if err != nil {
		return fmt.Errorf("store: insert validation record for business %s: %w", r.BusinessID, err)
	}
	return nil
}
