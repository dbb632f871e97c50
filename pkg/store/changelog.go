package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/webleads/ingestion/pkg/analytics"
	"github.com/webleads/ingestion/pkg/model"
)

// ZoneFacts implements analytics.Store: every zone row whose seq_no
// (bumped on every UPDATE by its bigserial default advancing the
// sequence underneath it) exceeds cursor, oldest first.
func (s *Store) ZoneFacts(ctx context.Context, cursor int64, limit int) ([]analytics.ZoneFact, int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq_no, id, campaign_id, status, attempt_count, result_counts, now()
		FROM zones WHERE seq_no > $1 ORDER BY seq_no ASC LIMIT $2`, cursor, limit)
	if err != nil {
		return nil, cursor, fmt.Errorf("store: query zone facts: %w", err)
	}
	defer rows.Close()

	facts := make([]analytics.ZoneFact, 0, limit)
	next := cursor
	for rows.Next() {
		var f analytics.ZoneFact
		var countsJSON []byte
		if err := rows.Scan(&f.SeqNo, &f.ZoneID, &f.CampaignID, &f.Status, &f.AttemptCount, &countsJSON, &f.ObservedAt); err != nil {
			return nil, cursor, fmt.Errorf("store: scan zone fact: %w", err)
		}
		var counts model.ResultCounts
		if len(countsJSON) > 0 {
			if err := json.Unmarshal(countsJSON, &counts); err == nil {
				f.RawCount, f.SavedCount = counts.Raw, counts.Saved
				f.WithWebsite, f.WithoutWebsite, f.QueuedGeneration = counts.WithWebsite, counts.WithoutWebsite, counts.QueuedGeneration
			}
		}
		facts = append(facts, f)
		next = f.SeqNo
	}
	return facts, next, rows.Err()
}

// BusinessFacts implements analytics.Store.
func (s *Store) BusinessFacts(ctx context.Context, cursor int64, limit int) ([]analytics.BusinessFact, int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq_no, id, zone_id, website_validation_status, quality_score, website_url, now()
		FROM businesses WHERE seq_no > $1 ORDER BY seq_no ASC LIMIT $2`, cursor, limit)
	if err != nil {
		return nil, cursor, fmt.Errorf("store: query business facts: %w", err)
	}
	defer rows.Close()

	facts := make([]analytics.BusinessFact, 0, limit)
	next := cursor
	for rows.Next() {
		var f analytics.BusinessFact
		var websiteURL *string
		if err := rows.Scan(&f.SeqNo, &f.BusinessID, &f.ZoneID, &f.ValidationStatus, &f.QualityScore, &websiteURL, &f.ObservedAt); err != nil {
			return nil, cursor, fmt.Errorf("store: scan business fact: %w", err)
		}
		f.HasWebsite = websiteURL != nil && *websiteURL != ""
		facts = append(facts, f)
		next = f.SeqNo
	}
	return facts, next, rows.Err()
}
