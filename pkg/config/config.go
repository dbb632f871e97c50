// Package config loads the single validated configuration struct the
// ingestion engine runs from: one struct populated at startup rather than
// feature flags scattered through code. Loading follows the
// LoadPostgres/PgConfig pattern in api/config/postgres.go: read from the
// environment (optionally seeded by a local .env via godotenv), default
// sensibly, and fail fast on anything required but missing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is every runtime knob the ingestion engine needs, plus the
// Postgres/object-storage/analytics connection settings its services
// require to start.
type Config struct {
	// External API credentials and endpoints.
	ListingBaseURL string
	ListingAPIKey  string
	SearchBaseURL  string
	SearchAPIKey   string
	LLMAPIKey      string

	// Timeouts.
	RenderTimeout   time.Duration
	ListingTimeout  time.Duration
	SearchTimeout   time.Duration
	LLMTimeout      time.Duration
	StoreTimeout    time.Duration

	// Concurrency caps, one per Work Queue kind.
	RenderMaxConcurrent   int
	ScrapeConcurrency     int
	ValidateConcurrency   int
	DiscoverConcurrency   int
	SubmitConcurrency     int

	// Retry.
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration

	// Rate limits, requests per second.
	ListingRatePerSecond float64
	SearchRatePerSecond  float64
	LLMRatePerSecond     float64

	// Lists.
	BlockedHosts  []string
	UserAgentPool []string

	// Postgres (Store).
	PostgresHost     string
	PostgresPort     string
	PostgresDatabase string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string
	RunMigrations    bool

	// Generator webhook HMAC secret.
	GeneratorWebhookSecret string

	// Notifier (Slack).
	SlackBotToken   string
	SlackChannelID  string

	// Object storage (Renderer screenshot artifacts).
	ScreenshotBucket string
	AWSRegion        string

	// Analytics mirror (ClickHouse).
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// HTTP ingress.
	ListenAddr        string
	CORSAllowedOrigins []string
	IngressRatePerSecond float64
	IngressBurst      int
	Verbose           bool

	// LLM Verifier / District Planner.
	LLMModel     string
	LLMMaxTokens int64

	// Generation Submitter client.
	GeneratorBaseURL string
	GeneratorAPIKey  string
}

// DefaultBlockedHosts is the ~40-entry aggregator/directory/social
// blocklist the Prescreener rejects candidate URLs against.
var DefaultBlockedHosts = []string{
	"yelp.com", "www.yelp.com", "yellowpages.com", "www.yellowpages.com",
	"facebook.com", "www.facebook.com", "m.facebook.com", "linkedin.com",
	"www.linkedin.com", "instagram.com", "www.instagram.com", "bbb.org",
	"www.bbb.org", "chamberofcommerce.com", "mapquest.com", "www.mapquest.com",
	"foursquare.com", "angi.com", "angieslist.com", "thumbtack.com",
	"yellowbook.com", "manta.com", "superpages.com", "citysearch.com",
	"merchantcircle.com", "local.com", "mapsconnect.google.com",
	"twitter.com", "x.com", "pinterest.com", "youtube.com", "tiktok.com",
	"nextdoor.com", "tripadvisor.com", "opentable.com", "zomato.com",
	"glassdoor.com", "indeed.com", "craigslist.org", "bizapedia.com",
	"dandb.com", "buzzfile.com",
}

// DefaultUserAgentPool is the >=5-entry pool the Renderer rotates
// through for human-like behavior.
var DefaultUserAgentPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// Load populates a Config from the environment, applying the package
// defaults above, and loading a local .env file first if present
// (development convenience, ignored in production where the file won't
// exist).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListingBaseURL: os.Getenv("LISTING_BASE_URL"),
		ListingAPIKey:  os.Getenv("LISTING_API_KEY"),
		SearchBaseURL:  os.Getenv("SEARCH_BASE_URL"),
		SearchAPIKey:   os.Getenv("SEARCH_API_KEY"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),

		RenderTimeout:  envDurationSeconds("RENDERER_TIMEOUT_SECONDS", 30),
		ListingTimeout: envDurationSeconds("LISTING_TIMEOUT_SECONDS", 60),
		SearchTimeout:  envDurationSeconds("SEARCH_TIMEOUT_SECONDS", 15),
		LLMTimeout:     envDurationSeconds("LLM_TIMEOUT_SECONDS", 30),
		StoreTimeout:   envDurationSeconds("STORE_TIMEOUT_SECONDS", 5),

		RenderMaxConcurrent: envInt("RENDER_MAX_CONCURRENT", 8),
		ScrapeConcurrency:   envInt("SCRAPE_CONCURRENCY", 2),
		ValidateConcurrency: envInt("VALIDATE_CONCURRENCY", 6),
		DiscoverConcurrency: envInt("DISCOVER_CONCURRENCY", 3),
		SubmitConcurrency:   envInt("SUBMIT_CONCURRENCY", 2),

		RetryBackoffBase: envDurationSeconds("RETRY_BACKOFF_BASE_SECONDS", 30),
		RetryBackoffCap:  envDurationSeconds("RETRY_BACKOFF_CAP_SECONDS", 3600),

		ListingRatePerSecond: envFloat("LISTING_RATE_PER_SECOND", 5),
		SearchRatePerSecond:  envFloat("SEARCH_RATE_PER_SECOND", 1.6),
		LLMRatePerSecond:     envFloat("LLM_RATE_PER_SECOND", 3),

		BlockedHosts:  envList("BLOCKED_HOSTS", DefaultBlockedHosts),
		UserAgentPool: envList("USER_AGENT_POOL", DefaultUserAgentPool),

		PostgresHost:     envString("POSTGRES_HOST", "localhost"),
		PostgresPort:     envString("POSTGRES_PORT", "5432"),
		PostgresDatabase: os.Getenv("POSTGRES_DB"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresSSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		RunMigrations:    os.Getenv("POSTGRES_RUN_MIGRATIONS") == "true",

		GeneratorWebhookSecret: os.Getenv("GENERATOR_WEBHOOK_SECRET"),

		SlackBotToken:  os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannelID: os.Getenv("SLACK_CHANNEL_ID"),

		ScreenshotBucket: os.Getenv("SCREENSHOT_BUCKET"),
		AWSRegion:        envString("AWS_REGION", "us-east-1"),

		ClickHouseAddr:     envString("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase: envString("CLICKHOUSE_DATABASE", "ingestion"),
		ClickHouseUsername: envString("CLICKHOUSE_USER", "default"),
		ClickHousePassword: os.Getenv("CLICKHOUSE_PASSWORD"),

		ListenAddr:           envString("LISTEN_ADDR", ":8080"),
		CORSAllowedOrigins:   envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		IngressRatePerSecond: envFloat("INGRESS_RATE_PER_SECOND", 5),
		IngressBurst:         envInt("INGRESS_BURST", 10),
		Verbose:              os.Getenv("VERBOSE") == "true",

		LLMModel:     envString("LLM_MODEL", "claude-sonnet-4-5"),
		LLMMaxTokens: int64(envInt("LLM_MAX_TOKENS", 1024)),

		GeneratorBaseURL: os.Getenv("GENERATOR_BASE_URL"),
		GeneratorAPIKey:  os.Getenv("GENERATOR_API_KEY"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that have no safe default.
func (c *Config) Validate() error {
	if c.PostgresDatabase == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if c.RenderMaxConcurrent <= 0 {
		return fmt.Errorf("render max concurrent must be positive")
	}
	return nil
}

// PostgresDSN builds the libpq connection string LoadPostgres-style.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort,
		c.PostgresDatabase, c.PostgresSSLMode,
	)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDurationSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(envInt(key, defSeconds)) * time.Second
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
