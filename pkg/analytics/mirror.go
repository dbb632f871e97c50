// Package analytics implements the Analytics Mirror: a read-side
// projection of Store state into ClickHouse, polled from the Store's
// monotonically increasing change log rather than subscribed to, so no
// external broker is required. CampaignCounts answers aggregate queries
// from the projected facts; the campaign-status endpoint
// (campaign.Coordinator.GetProgress) reads the zones table directly and
// does not consult the mirror, and no command in this module starts a
// Mirror. Structured like
// indexer/pkg/clickhouse's client: a thin interface over the driver
// connection, opened once and reused.
package analytics

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jonboulle/clockwork"
)

// Store is the change-log seam the Mirror polls.
type Store interface {
	// ZoneFacts returns every zone mutation committed after cursor,
	// ordered oldest first, and the new cursor to resume from.
	ZoneFacts(ctx context.Context, cursor int64, limit int) ([]ZoneFact, int64, error)
	// BusinessFacts returns every business mutation committed after
	// cursor, ordered oldest first, and the new cursor to resume from.
	BusinessFacts(ctx context.Context, cursor int64, limit int) ([]BusinessFact, int64, error)
}

// ZoneFact is one denormalized zone-state snapshot.
type ZoneFact struct {
	SeqNo      int64
	ZoneID     string
	CampaignID string
	Status     string
	AttemptCount int
	RawCount     int
	SavedCount   int
	WithWebsite  int
	WithoutWebsite int
	QueuedGeneration int
	ObservedAt time.Time
}

// BusinessFact is one denormalized business-state snapshot.
type BusinessFact struct {
	SeqNo            int64
	BusinessID       string
	ZoneID           string
	ValidationStatus string
	QualityScore     int
	HasWebsite       bool
	ObservedAt       time.Time
}

// Mirror polls a Store's change log and projects facts into ClickHouse.
// Unavailability degrades reporting (stale or best-effort counts) but
// never blocks ingestion, disposition, or queueing — callers must not
// wire Mirror into any write path.
type Mirror struct {
	store      Store
	conn       clickhouse.Conn
	log        *slog.Logger
	clock      clockwork.Clock
	batchLimit int

	zoneCursor     int64
	businessCursor int64
}

// Config configures the ClickHouse connection.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	Secure   bool
}

// Open connects to ClickHouse and returns a ready Mirror.
func Open(ctx context.Context, cfg Config, store Store, log *slog.Logger) (*Mirror, error) {
	if log == nil {
		log = slog.Default()
	}
	options := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	}
	if cfg.Secure {
		options.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("analytics: open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("analytics: ping clickhouse: %w", err)
	}

	return &Mirror{
		store:      store,
		conn:       conn,
		log:        log,
		clock:      clockwork.NewRealClock(),
		batchLimit: 500,
	}, nil
}

// Close releases the ClickHouse connection.
func (m *Mirror) Close() error { return m.conn.Close() }

// PollInterval is the default spacing between change-log poll cycles.
const PollInterval = 10 * time.Second

// Run polls the Store's change log until ctx is cancelled, projecting
// new facts each cycle. Poll errors are logged and retried next cycle;
// the Mirror never returns an error to a caller that can't act on it.
func (m *Mirror) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := m.pollOnce(ctx); err != nil {
				m.log.Error("analytics: poll cycle failed", "error", err)
			}
		}
	}
}

func (m *Mirror) pollOnce(ctx context.Context) error {
	zones, nextZoneCursor, err := m.store.ZoneFacts(ctx, m.zoneCursor, m.batchLimit)
	if err != nil {
		return fmt.Errorf("analytics: read zone facts: %w", err)
	}
	if len(zones) > 0 {
		if err := m.insertZoneFacts(ctx, zones); err != nil {
			return fmt.Errorf("analytics: insert zone facts: %w", err)
		}
		m.zoneCursor = nextZoneCursor
	}

	businesses, nextBusinessCursor, err := m.store.BusinessFacts(ctx, m.businessCursor, m.batchLimit)
	if err != nil {
		return fmt.Errorf("analytics: read business facts: %w", err)
	}
	if len(businesses) > 0 {
		if err := m.insertBusinessFacts(ctx, businesses); err != nil {
			return fmt.Errorf("analytics: insert business facts: %w", err)
		}
		m.businessCursor = nextBusinessCursor
	}

	return nil
}

func (m *Mirror) insertZoneFacts(ctx context.Context, facts []ZoneFact) error {
	batch, err := m.conn.PrepareBatch(ctx, `INSERT INTO zone_facts (
		seq_no, zone_id, campaign_id, status, attempt_count,
		raw_count, saved_count, with_website, without_website, queued_generation, observed_at
	)`)
	if err != nil {
		return err
	}
	for _, f := range facts {
		if err := batch.Append(
			f.SeqNo, f.ZoneID, f.CampaignID, f.Status, f.AttemptCount,
			f.RawCount, f.SavedCount, f.WithWebsite, f.WithoutWebsite, f.QueuedGeneration, f.ObservedAt,
		); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (m *Mirror) insertBusinessFacts(ctx context.Context, facts []BusinessFact) error {
	batch, err := m.conn.PrepareBatch(ctx, `INSERT INTO business_facts (
		seq_no, business_id, zone_id, validation_status, quality_score, has_website, observed_at
	)`)
	if err != nil {
		return err
	}
	for _, f := range facts {
		if err := batch.Append(
			f.SeqNo, f.BusinessID, f.ZoneID, f.ValidationStatus, f.QualityScore, f.HasWebsite, f.ObservedAt,
		); err != nil {
			return err
		}
	}
	return batch.Send()
}

// CampaignCounts aggregates a campaign's projected zone facts (the latest
// fact per zone), reading the mirror instead of the transactional zones
// table.
func (m *Mirror) CampaignCounts(ctx context.Context, campaignID string) (raw, saved, withWebsite, withoutWebsite, queuedGeneration int, err error) {
	row := m.conn.QueryRow(ctx, `
		SELECT
			sum(raw_count), sum(saved_count), sum(with_website), sum(without_website), sum(queued_generation)
		FROM zone_facts
		WHERE campaign_id = ? AND seq_no IN (
			SELECT max(seq_no) FROM zone_facts WHERE campaign_id = ? GROUP BY zone_id
		)`, campaignID, campaignID)
	if err := row.Scan(&raw, &saved, &withWebsite, &withoutWebsite, &queuedGeneration); err != nil {
		return 0, 0, 0, 0, 0, fmt.Errorf("analytics: campaign counts %s: %w", campaignID, err)
	}
	return raw, saved, withWebsite, withoutWebsite, queuedGeneration, nil
}
