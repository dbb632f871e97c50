// Command coordinator runs the Campaign Coordinator's HTTP ingress: new
// campaign submission, campaign-status polling, cancellation, and the
// generator's completion webhook.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/webleads/ingestion/pkg/campaign"
	"github.com/webleads/ingestion/pkg/config"
	"github.com/webleads/ingestion/pkg/geo"
	"github.com/webleads/ingestion/pkg/httpapi"
	"github.com/webleads/ingestion/pkg/llm"
	"github.com/webleads/ingestion/pkg/logger"
	"github.com/webleads/ingestion/pkg/store"
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
	if cfg.RunMigrations {
		if err := db.Migrate(cfg.PostgresDSN()); err != nil {
			log.Error("run migrations", "error", err)
			os.Exit(1)
		}
	}

	var districtPlanner geo.DistrictPlanner
	if cfg.LLMAPIKey != "" {
		districtPlanner = llm.NewDistrictPlanner(anthropic.Model(cfg.LLMModel), cfg.LLMMaxTokens)
	}
	planner := geo.New(geo.DefaultGazetteer, districtPlanner)
	coordinator := campaign.New(db, planner)

	server := httpapi.NewServer(coordinator, db, db, httpapi.Config{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RatePerSecond:  cfg.IngressRatePerSecond,
		Burst:          cfg.IngressBurst,
		WebhookSecret:  cfg.GeneratorWebhookSecret,
	}, log)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("coordinator listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("coordinator shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
