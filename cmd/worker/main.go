// Command worker runs the Work Queue's per-kind worker pools: scraping
// zones, validating businesses against the Disposition Engine, running
// search-based discovery, and submitting confirmed-no-website businesses
// to the external generator.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"golang.org/x/sync/errgroup"

	"github.com/webleads/ingestion/pkg/config"
	"github.com/webleads/ingestion/pkg/disposition"
	"github.com/webleads/ingestion/pkg/generation"
	"github.com/webleads/ingestion/pkg/listing"
	"github.com/webleads/ingestion/pkg/llm"
	"github.com/webleads/ingestion/pkg/logger"
	"github.com/webleads/ingestion/pkg/model"
	"github.com/webleads/ingestion/pkg/notify"
	"github.com/webleads/ingestion/pkg/prescreen"
	"github.com/webleads/ingestion/pkg/ratelimit"
	"github.com/webleads/ingestion/pkg/render"
	"github.com/webleads/ingestion/pkg/retry"
	"github.com/webleads/ingestion/pkg/search"
	"github.com/webleads/ingestion/pkg/store"
	"github.com/webleads/ingestion/pkg/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.PostgresDSN())
	if err != nil {
		log.Error("open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	limiter := ratelimit.New()
	limiter.Configure("listing", cfg.ListingRatePerSecond, 2)

	listingClient := listing.New(cfg.ListingBaseURL, cfg.ListingAPIKey, cfg.ListingTimeout, limiter)
	searchClient := search.New(&http.Client{Timeout: cfg.SearchTimeout}, cfg.SearchBaseURL, cfg.SearchAPIKey, limiter)
	screener := prescreen.New(cfg.BlockedHosts)

	renderCfg := render.Config{
		MaxConcurrent: cfg.RenderMaxConcurrent,
		NavTimeout:    cfg.RenderTimeout,
		UserAgentPool: cfg.UserAgentPool,
		Headless:      true,
	}
	renderer := render.New(renderCfg)
	if cfg.ScreenshotBucket != "" {
		artifacts, err := render.NewS3ArtifactStore(ctx, cfg.ScreenshotBucket, cfg.AWSRegion)
		if err != nil {
			log.Error("open artifact store", "error", err)
			os.Exit(1)
		}
		renderer = renderer.WithArtifactStore(artifacts)
	}
	defer renderer.Close()

	verifier := llm.New(anthropic.Model(cfg.LLMModel), cfg.LLMMaxTokens)
	engine := disposition.New(db, screener, renderer, searchClient, verifier, nil)

	genClient := generation.NewHTTPClient(&http.Client{Timeout: 30 * time.Second}, cfg.GeneratorBaseURL, cfg.GeneratorAPIKey)
	submitter := generation.New(db, genClient)

	notifier := notify.New(cfg.SlackBotToken, cfg.SlackChannelID, log)

	retryCfg := retry.Config{MaxAttempts: 5, BaseBackoff: cfg.RetryBackoffBase, MaxBackoff: cfg.RetryBackoffCap}

	pools := []*worker.Pool{
		{
			Kind:        model.KindScrapeZone,
			Concurrency: cfg.ScrapeConcurrency,
			Store:       db,
			Handler:     worker.ScrapeZoneHandler(db, listingClient),
			RetryConfig: retryCfg,
			WorkerID:    "scrape",
			Log:         log,
			Notifier:    notifier,
		},
		{
			Kind:        model.KindValidateBusiness,
			Concurrency: cfg.ValidateConcurrency,
			Store:       db,
			Handler:     worker.ValidateBusinessHandler(engine),
			RetryConfig: retryCfg,
			WorkerID:    "validate",
			Log:         log,
			Notifier:    notifier,
		},
		{
			Kind:        model.KindDiscoverWebsite,
			Concurrency: cfg.DiscoverConcurrency,
			Store:       db,
			Handler:     worker.DiscoverWebsiteHandler(engine),
			RetryConfig: retryCfg,
			WorkerID:    "discover",
			Log:         log,
			Notifier:    notifier,
		},
		{
			Kind:        model.KindSubmitGeneration,
			Concurrency: cfg.SubmitConcurrency,
			Store:       db,
			Handler:     worker.SubmitGenerationHandler(db, submitter),
			RetryConfig: retryCfg,
			WorkerID:    "submit",
			Log:         log,
			Notifier:    notifier,
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pools {
		p := p
		g.Go(func() error {
			p.Run(gctx)
			return nil
		})
	}

	log.Info("worker pools running",
		"scrape", cfg.ScrapeConcurrency, "validate", cfg.ValidateConcurrency,
		"discover", cfg.DiscoverConcurrency, "submit", cfg.SubmitConcurrency,
	)

	if err := g.Wait(); err != nil {
		log.Error("worker pool exited with error", "error", err)
		os.Exit(1)
	}
}
