package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webleads/ingestion/pkg/disposition"
	"github.com/webleads/ingestion/pkg/model"
)

// GetBusiness implements disposition.Store.
func (s *Store) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, external_listing_id, name, category, address, city, region, country,
		       phone, latitude, longitude, rating, review_count, COALESCE(website_url, ''),
		       website_validation_status, website_metadata, quality_score, raw_listing_data,
		       archived, discovery_queued_at, discovery_completed_at,
		       generation_queued_at, generation_completed_at, created_at, updated_at, zone_id
		FROM businesses WHERE id = $1`, id)

	var b model.Business
	var metadataJSON []byte
	if err := row.Scan(
		&b.ID, &b.ExternalListingID, &b.Name, &b.Category, &b.Address, &b.City, &b.Region, &b.Country,
		&b.Phone, &b.Latitude, &b.Longitude, &b.Rating, &b.ReviewCount, &b.WebsiteURL,
		&b.ValidationStatus, &metadataJSON, &b.QualityScore, &b.RawListingData,
		&b.Archived, &b.DiscoveryQueuedAt, &b.DiscoveryCompletedAt,
		&b.GenerationQueuedAt, &b.GenerationCompletedAt, &b.CreatedAt, &b.UpdatedAt, &b.ZoneID,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("store: business %s: %w", id, errNotFound)
		}
		return nil, fmt.Errorf("store: get business %s: %w", id, err)
	}
	if err := json.Unmarshal(metadataJSON, &b.Metadata); err != nil {
		return nil, fmt.Errorf("store: decode metadata for business %s: %w", id, err)
	}
	return &b, nil
}

// CommitTransition implements disposition.Store: persist the full
// business row (status, URL, metadata, quality score) and optionally
// enqueue one follow-up work item, inside a single transaction — a
// business must never be left in a state with no scheduled next action.
func (s *Store) CommitTransition(ctx context.Context, b *model.Business, followUp *disposition.FollowUp) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx)

	metadataJSON, err := json.Marshal(b.Metadata)
	if err != nil {
		return fmt.Errorf("store: encode metadata: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE businesses SET
			website_url = $2,
			website_validation_status = $3,
			website_metadata = $4,
			quality_score = $5,
			updated_at = now()
		WHERE id = $1`,
		b.ID, nullableString(b.WebsiteURL), b.ValidationStatus, metadataJSON, b.QualityScore,
	); err != nil {
		return fmt.Errorf("store: update business %s: %w", b.ID, err)
	}

	if followUp != nil {
		if err := enqueueTx(ctx, tx, followUp); err != nil {
			return fmt.Errorf("store: enqueue follow-up for business %s: %w", b.ID, err)
		}
	}

	for _, field := range zoneCountFields(b.ValidationStatus) {
		if err := incrementZoneCount(ctx, tx, b.ZoneID, field); err != nil {
			return fmt.Errorf("store: tally zone %s for business %s: %w", b.ZoneID, b.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit transition for business %s: %w", b.ID, err)
	}
	return nil
}

// zoneCountFields reports which of the owning zone's result_counts should
// be incremented now that a business has reached status. Only dispositions
// that resolve the "has a website" question move a count; non-terminal and
// ambiguous-error statuses (invalid_technical, error) do not.
func zoneCountFields(status model.WebsiteValidationStatus) []string {
	switch status {
	case model.StatusValidFromProvider, model.StatusValidFromSearch:
		return []string{"with_website"}
	case model.StatusConfirmedNoWebsite:
		return []string{"without_website", "queued_for_generation"}
	default:
		return nil
	}
}

// incrementZoneCount atomically bumps one named counter in a zone's
// result_counts jsonb column. field must be one of ResultCounts' JSON
// tag names.
func incrementZoneCount(ctx context.Context, tx pgx.Tx, zoneID uuid.UUID, field string) error {
	if zoneID == uuid.Nil {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE zones SET result_counts = jsonb_set(
			result_counts, ARRAY[$2]::text[],
			to_jsonb(COALESCE((result_counts->>$2)::int, 0) + 1)
		) WHERE id = $1`, zoneID, field)
	return err
}

// RequeueValidation forces a re-probe of a business stuck in a terminal
// validation status (most commonly invalid_technical, where a transient
// render or search failure was misclassified as permanent). It resets
// the status to pending and enqueues a fresh validate-business item,
// inside one transaction so the business is never left without a
// scheduled next action.
func (s *Store) RequeueValidation(ctx context.Context, businessID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin requeue validation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE businesses SET website_validation_status = $2, updated_at = now()
		WHERE id = $1`, businessID, model.StatusPending)
	if err != nil {
		return fmt.Errorf("store: reset business %s: %w", businessID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: business %s: %w", businessID, errNotFound)
	}

	if err := enqueueTx(ctx, tx, &disposition.FollowUp{
		Kind:     model.KindValidateBusiness,
		DedupKey: "validate:" + businessID.String(),
		Payload:  map[string]string{"business_id": businessID.String()},
	}); err != nil {
		return fmt.Errorf("store: enqueue requeue validation for business %s: %w", businessID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit requeue validation for business %s: %w", businessID, err)
	}
	return nil
}

// InsertBusinesses bulk-inserts the results of one zone's scrape.
// ExternalListingID collisions are ignored (the listing provider may
// resurface the same place across overlapping zones); the unique index
// is the source of truth.
func (s *Store) InsertBusinesses(ctx context.Context, businesses []*model.Business) (inserted int, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: begin insert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, b := range businesses {
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		metadataJSON, err := json.Marshal(b.Metadata)
		if err != nil {
			return inserted, fmt.Errorf("store: encode metadata: %w", err)
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO businesses (
				id, external_listing_id, name, category, address, city, region, country,
				phone, latitude, longitude, rating, review_count, website_url,
				website_validation_status, website_metadata, quality_score, raw_listing_data,
				zone_id, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19, now(), now())
			ON CONFLICT (external_listing_id) DO NOTHING`,
			b.ID, b.ExternalListingID, b.Name, b.Category, b.Address, b.City, b.Region, b.Country,
			b.Phone, b.Latitude, b.Longitude, b.Rating, b.ReviewCount, nullableString(b.WebsiteURL),
			b.ValidationStatus, metadataJSON, b.QualityScore, b.RawListingData, b.ZoneID,
		)
		if err != nil {
			return inserted, fmt.Errorf("store: insert business %s: %w", b.ExternalListingID, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return inserted, fmt.Errorf("store: commit insert tx: %w", err)
	}
	return inserted, nil
}

// MarkGenerationQueued implements generation.Store: records that a
// business was handed to the external generator.
func (s *Store) MarkGenerationQueued(ctx context.Context, businessID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE businesses SET generation_queued_at = now(), updated_at = now() WHERE id = $1`,
		businessID,
	); err != nil {
		return fmt.Errorf("store: mark generation queued %s: %w", businessID, err)
	}
	return nil
}

// MarkGenerationCompleted implements generation.Store: records the
// generator's completion webhook callback.
func (s *Store) MarkGenerationCompleted(ctx context.Context, businessID uuid.UUID, completedAt time.Time) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE businesses SET generation_completed_at = $2, updated_at = now() WHERE id = $1`,
		businessID, completedAt,
	); err != nil {
		return fmt.Errorf("store: mark generation completed %s: %w", businessID, err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type notFoundError struct{}

func (*notFoundError) Error() string { return "not found" }

var errNotFound = &notFoundError{}
