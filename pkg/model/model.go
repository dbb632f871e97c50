// Package model holds the shared data types that flow between every
// component of the ingestion engine: campaigns, zones, businesses, and the
// audit records attached to them.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CampaignMode distinguishes a dry-run plan from one that is actually
// queued for scraping.
type CampaignMode string

const (
	ModeDraft CampaignMode = "draft"
	ModeLive  CampaignMode = "live"
)

// Campaign is a user request to ingest leads for a geography/category.
// Immutable after creation.
type Campaign struct {
	ID          uuid.UUID       `json:"id"`
	Country     string          `json:"country"`
	Region      string          `json:"region"`
	City        string          `json:"city"`
	Category    string          `json:"category"`
	Mode        CampaignMode    `json:"mode"`
	GeoPlanRaw  json.RawMessage `json:"geo_plan_raw,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
	Cancelled   bool            `json:"cancelled"`
}

// ZoneStatus tracks where a zone is in its scrape lifecycle.
type ZoneStatus string

const (
	ZonePending   ZoneStatus = "pending"
	ZoneScraping  ZoneStatus = "scraping"
	ZoneCompleted ZoneStatus = "completed"
	ZoneFailed    ZoneStatus = "failed"
	ZoneSkipped   ZoneStatus = "skipped"
)

// ResultCounts tallies what a zone's scrape produced.
type ResultCounts struct {
	Raw                int `json:"raw"`
	Saved              int `json:"saved"`
	WithWebsite        int `json:"with_website"`
	WithoutWebsite     int `json:"without_website"`
	QueuedGeneration   int `json:"queued_for_generation"`
}

// Zone is one search partition within a campaign.
type Zone struct {
	ID            uuid.UUID    `json:"id"`
	CampaignID    uuid.UUID    `json:"campaign_id"`
	ZoneID        string       `json:"zone_id"` // human-readable, unique within campaign
	CenterLat     float64      `json:"center_lat"`
	CenterLon     float64      `json:"center_lon"`
	RadiusKM      float64      `json:"radius_km"`
	Priority      int          `json:"priority"` // 1-10
	Status        ZoneStatus   `json:"status"`
	LastAttemptAt *time.Time   `json:"last_attempt_at,omitempty"`
	AttemptCount  int          `json:"attempt_count"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	Counts        ResultCounts `json:"result_counts"`
}

// MaxZoneAttempts is the retry ceiling for one zone's scrape attempts.
const MaxZoneAttempts = 3

// WebsiteValidationStatus is the Disposition Engine's state for a business.
type WebsiteValidationStatus string

const (
	StatusPending               WebsiteValidationStatus = "pending"
	StatusNeedsDiscovery        WebsiteValidationStatus = "needs_discovery"
	StatusDiscoveryInProgress   WebsiteValidationStatus = "discovery_in_progress"
	StatusValidating            WebsiteValidationStatus = "validating"
	StatusValidFromProvider     WebsiteValidationStatus = "valid_from_provider"
	StatusValidFromSearch       WebsiteValidationStatus = "valid_from_search"
	StatusInvalidTechnical      WebsiteValidationStatus = "invalid_technical"
	StatusNeedsVerification     WebsiteValidationStatus = "needs_verification"
	StatusConfirmedNoWebsite    WebsiteValidationStatus = "confirmed_no_website"
	StatusError                 WebsiteValidationStatus = "error"
)

// Terminal reports whether a status is one of the states in which the
// Disposition Engine no longer has a pending action for the business.
func (s WebsiteValidationStatus) Terminal() bool {
	switch s {
	case StatusValidFromProvider, StatusValidFromSearch, StatusInvalidTechnical,
		StatusConfirmedNoWebsite, StatusError:
		return true
	default:
		return false
	}
}

// WebsiteSource records where the candidate URL currently on a Business
// came from.
type WebsiteSource string

const (
	SourceProvider WebsiteSource = "provider"
	SourceSearch   WebsiteSource = "search"
	SourceManual   WebsiteSource = "manual"
	SourceNone     WebsiteSource = "none"
)

// VerdictLabel is the LLM Verifier's typed response label.
type VerdictLabel string

const (
	VerdictValid   VerdictLabel = "valid"
	VerdictInvalid VerdictLabel = "invalid"
	VerdictMissing VerdictLabel = "missing"
)

// Recommendation is the verifier's prescribed follow-up action.
type Recommendation string

const (
	RecommendKeepURL               Recommendation = "keep_url"
	RecommendClearURLMarkMissing   Recommendation = "clear_url_and_mark_missing"
	RecommendMarkInvalidKeepURL    Recommendation = "mark_invalid_keep_url"
	RecommendUseURL                Recommendation = "use_url"
)

// MatchSignals are the boolean evidence flags the verifier must report.
type MatchSignals struct {
	PhoneMatch   bool `json:"phone_match"`
	AddressMatch bool `json:"address_match"`
	NameMatch    bool `json:"name_match"`
	IsDirectory  bool `json:"is_directory"`
	IsAggregator bool `json:"is_aggregator"`
}

// Verdict is the schema-constrained output of the LLM Verifier.
type Verdict struct {
	Verdict        VerdictLabel   `json:"verdict"`
	Confidence     float64        `json:"confidence"`
	Reasoning      string         `json:"reasoning"`
	Recommendation Recommendation `json:"recommendation"`
	RecommendedURL string         `json:"recommended_url,omitempty"` // set when Recommendation == use_url
	MatchSignals   MatchSignals   `json:"match_signals"`
}

// ValidationHistoryEntry is one append-only entry of WebsiteMetadata's
// validation-history. Never mutated or removed once written.
type ValidationHistoryEntry struct {
	Timestamp      time.Time      `json:"timestamp"`
	URLEvaluated   string         `json:"url_evaluated"`
	Verdict        VerdictLabel   `json:"verdict"`
	Confidence     float64        `json:"confidence"`
	Reasoning      string         `json:"reasoning"`
	Recommendation Recommendation `json:"recommendation"`
	EvidenceSummary string        `json:"evidence_summary"`
}

// DiscoveryAttempt records one attempt at a discovery method (provider,
// search, manual).
type DiscoveryAttempt struct {
	Attempted bool      `json:"attempted"`
	Timestamp time.Time `json:"timestamp"`
	FoundURL  string    `json:"found_url,omitempty"`
	Verdict   VerdictLabel `json:"verdict,omitempty"`
}

// WebsiteMetadata is the embedded, append-only audit record on a Business.
type WebsiteMetadata struct {
	Source            WebsiteSource                  `json:"source"`
	SourceTimestamp    time.Time                      `json:"source_timestamp"`
	ValidationHistory  []ValidationHistoryEntry        `json:"validation_history"`
	DiscoveryAttempts  map[string]DiscoveryAttempt     `json:"discovery_attempts"`
	Notes              string                          `json:"notes,omitempty"`
}

// AppendHistory appends a new entry; callers must never truncate or
// reorder ValidationHistory.
func (m *WebsiteMetadata) AppendHistory(e ValidationHistoryEntry) {
	m.ValidationHistory = append(m.ValidationHistory, e)
}

// SeenURLs returns the normalized set of every URL that has ever appeared
// in validation-history, used by the Disposition Engine's loop-prevention
// check. Callers must compare against this *set*, not just the most
// recent entry, or a URL seen two rounds ago could be "rediscovered" and
// loop forever.
func (m *WebsiteMetadata) SeenURLs(normalize func(string) string) map[string]bool {
	seen := make(map[string]bool, len(m.ValidationHistory))
	for _, h := range m.ValidationHistory {
		if h.URLEvaluated == "" {
			continue
		}
		seen[normalize(h.URLEvaluated)] = true
	}
	return seen
}

// Business is a candidate lead.
type Business struct {
	ID                    uuid.UUID               `json:"id"`
	ExternalListingID     string                   `json:"external_listing_id"`
	Name                  string                   `json:"name"`
	Category              string                   `json:"category"`
	Address               string                   `json:"address"`
	City                  string                   `json:"city"`
	Region                string                   `json:"region"`
	Country               string                   `json:"country"`
	Phone                 string                   `json:"phone"`
	Latitude              float64                  `json:"latitude"`
	Longitude             float64                  `json:"longitude"`
	Rating                float64                  `json:"rating"`
	ReviewCount            int                      `json:"review_count"`
	WebsiteURL            string                   `json:"website_url,omitempty"`
	ValidationStatus      WebsiteValidationStatus  `json:"website_validation_status"`
	Metadata              WebsiteMetadata          `json:"website_metadata"`
	QualityScore          int                      `json:"quality_score"`
	RawListingData        json.RawMessage          `json:"raw_listing_data"`
	Archived              bool                     `json:"archived"`
	DiscoveryQueuedAt     *time.Time               `json:"discovery_queued_at,omitempty"`
	DiscoveryCompletedAt  *time.Time               `json:"discovery_completed_at,omitempty"`
	GenerationQueuedAt    *time.Time               `json:"generation_queued_at,omitempty"`
	GenerationCompletedAt *time.Time               `json:"generation_completed_at,omitempty"`
	CreatedAt             time.Time                `json:"created_at"`
	UpdatedAt             time.Time                `json:"updated_at"`
	ZoneID                uuid.UUID                `json:"zone_id"`
}

// ValidationRecord is the immutable, one-to-many audit row tied to a
// Business: the full input evidence and output of one verifier run.
type ValidationRecord struct {
	ID           uuid.UUID       `json:"id"`
	BusinessID   uuid.UUID       `json:"business_id"`
	RunAt        time.Time       `json:"run_at"`
	EvidenceKind string          `json:"evidence_kind"` // "rendered_page" | "search_results"
	EvidenceJSON json.RawMessage `json:"evidence_json"`
	Verdict      Verdict         `json:"verdict"`
}

// WorkKind enumerates the Work Queue's job types.
type WorkKind string

const (
	KindScrapeZone        WorkKind = "scrape-zone"
	KindValidateBusiness  WorkKind = "validate-business"
	KindDiscoverWebsite   WorkKind = "discover-website"
	KindSubmitGeneration  WorkKind = "submit-generation"
)

// DefaultMaxAttempts returns the default retry ceiling per work kind.
func (k WorkKind) DefaultMaxAttempts() int {
	switch k {
	case KindDiscoverWebsite:
		return 2
	default:
		return 3
	}
}

// WorkItem is one durable job in the Work Queue.
type WorkItem struct {
	ID             uuid.UUID       `json:"id"`
	Kind           WorkKind        `json:"kind"`
	DedupKey       string          `json:"dedup_key"`
	Payload        json.RawMessage `json:"payload"`
	Priority       int             `json:"priority"`
	ScheduledNotBefore time.Time   `json:"scheduled_not_before"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	LockedBy       string          `json:"locked_by,omitempty"`
	LockExpiresAt  *time.Time      `json:"lock_expires_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// DeadLetterItem is a WorkItem that exhausted retries.
type DeadLetterItem struct {
	WorkItem
	LastError  string    `json:"last_error"`
	FailedAt   time.Time `json:"failed_at"`
}
