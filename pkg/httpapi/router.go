// Package httpapi wires the Campaign Coordinator's ingress endpoints, the
// Generation Submitter's webhook callback, and process health/metrics onto
// one chi router. Structured like controlcenter/internal/server: a single
// Server holding the router and its dependencies, routes grouped under
// setupRoutes, CORS handled by its own middleware.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/webleads/ingestion/pkg/campaign"
	"github.com/webleads/ingestion/pkg/generation"
	"github.com/webleads/ingestion/pkg/model"
)

// Coordinator is the Campaign Coordinator seam this router serves.
type Coordinator interface {
	Submit(ctx context.Context, req campaign.Request) (*model.Campaign, []*model.Zone, error)
	GetProgress(ctx context.Context, campaignID uuid.UUID) (*campaign.Progress, error)
	Cancel(ctx context.Context, campaignID uuid.UUID) error
}

// WebhookStore is the Generation Submitter store seam the webhook route
// needs.
type WebhookStore = generation.Store

// HealthChecker reports whether a dependency the process needs is
// currently reachable, used by /readyz.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Config configures the Server's ingress behavior.
type Config struct {
	// AllowedOrigins is the CORS allowlist for the campaign endpoints.
	AllowedOrigins []string
	// RatePerSecond and Burst bound requests per client IP.
	RatePerSecond float64
	Burst         int
	// WebhookSecret verifies the generator's completion callback.
	WebhookSecret string
}

// Server holds the router and everything it dispatches to.
type Server struct {
	router      *chi.Mux
	coordinator Coordinator
	webhookStore WebhookStore
	health      HealthChecker
	cfg         Config
	log         *slog.Logger
	limiters    *ipRateLimiter
}

// NewServer builds a Server with routes and middleware installed.
func NewServer(coordinator Coordinator, webhookStore WebhookStore, health HealthChecker, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	s := &Server{
		router:       chi.NewRouter(),
		coordinator:  coordinator,
		webhookStore: webhookStore,
		health:       health,
		cfg:          cfg,
		log:          log,
		limiters:     newIPRateLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root http.Handler, for wiring into an http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Webhook-Timestamp", "X-Webhook-Signature"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/campaigns", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/", s.handleSubmitCampaign)
		r.Get("/{id}", s.handleCampaignStatus)
		r.Post("/{id}/cancel", s.handleCancelCampaign)
	})

	s.router.Post("/webhooks/generation", s.handleGenerationWebhook)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := s.limiters.allowWithRetry(clientIP(r))
		if !allowed {
			retrySeconds := int(retryAfter.Seconds())
			if retrySeconds < 1 {
				retrySeconds = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retrySeconds))
			writeJSON(w, http.StatusTooManyRequests, rateLimitError{
				Error:      "rate_limit_exceeded",
				Message:    "too many requests, please slow down",
				RetryAfter: retrySeconds,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "dependency unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitCampaignRequest struct {
	Country  string `json:"country"`
	Region   string `json:"region"`
	City     string `json:"city"`
	Category string `json:"category"`
	Mode     string `json:"mode"`
}

func (s *Server) handleSubmitCampaign(w http.ResponseWriter, r *http.Request) {
	var req submitCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Country == "" || req.City == "" || req.Category == "" {
		writeError(w, http.StatusBadRequest, "country, city, and category are required")
		return
	}
	mode := model.ModeLive
	if req.Mode == string(model.ModeDraft) {
		mode = model.ModeDraft
	}

	c, zones, err := s.coordinator.Submit(r.Context(), campaign.Request{
		Country: req.Country, Region: req.Region, City: req.City, Category: req.Category, Mode: mode,
	})
	var dup *campaign.DuplicateCampaignError
	if errors.As(err, &dup) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":              "campaign already active",
			"existing_campaign": dup.Existing,
		})
		return
	}
	if err != nil {
		s.log.Error("submit campaign failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to submit campaign")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"campaign": c, "zones": zones})
}

func (s *Server) handleCampaignStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	progress, err := s.coordinator.GetProgress(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "campaign not found")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleCancelCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	if err := s.coordinator.Cancel(r.Context(), id); err != nil {
		s.log.Error("cancel campaign failed", "campaign_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel campaign")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleGenerationWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if err := generation.HandleWebhook(r.Context(), s.webhookStore, r, body, s.cfg.WebhookSecret, time.Now()); err != nil {
		s.log.Warn("generation webhook rejected", "error", err)
		writeError(w, http.StatusBadRequest, "invalid webhook")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
