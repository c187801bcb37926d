package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/dmflow/internal/campaign"
	"github.com/onnwee/dmflow/internal/health"
	"github.com/onnwee/dmflow/internal/live"
	"github.com/onnwee/dmflow/internal/middleware"
)

// DefaultAPIPrefix is where resource routes are mounted unless configured.
const DefaultAPIPrefix = "/api"

// RouterConfig collects the dependencies of the HTTP API. Optional
// integrations are left as untyped nil when disabled; their endpoints then
// answer 503.
type RouterConfig struct {
	Store campaign.Store

	// Optional integrations.
	Spotify SpotifyClient
	Uploads ThumbnailPresigner
	Hub     *live.Hub

	ReadyChecks []health.Check

	// Metrics and Gatherer enable request metrics and GET /metrics.
	Metrics  *middleware.Metrics
	Gatherer prometheus.Gatherer

	// RateLimitStore backs the /spotify limits; an in-memory store is used
	// when nil.
	RateLimitStore middleware.RateLimitStore
	SpotifyLimit   *middleware.RateLimitConfig

	// Profiling exposes /debug/pprof outside production.
	Profiling middleware.ProfilingConfig

	APIPrefix   string
	FrontendURL string
	ServiceName string
	Logger      *slog.Logger
}

// NewRouter builds the HTTP handler serving the whole API.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = DefaultAPIPrefix
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "dmflow-api"
	}
	if cfg.RateLimitStore == nil {
		cfg.RateLimitStore = middleware.NewInMemoryRateLimitStore()
	}
	spotifyLimit := middleware.DefaultSpotifyLimit()
	if cfg.SpotifyLimit != nil {
		spotifyLimit = *cfg.SpotifyLimit
	}

	// A nil *live.Hub must not end up inside a non-nil interface.
	var publisher live.Publisher
	if cfg.Hub != nil {
		publisher = cfg.Hub
	}

	campaigns := NewCampaignHandlers(cfg.Store, publisher)
	flow := NewFlowHandlers(cfg.Store, publisher)
	encounters := NewEncounterHandlers(cfg.Store, publisher)
	drawings := NewDrawingHandlers(cfg.Store, cfg.Uploads, publisher)
	spotifyHandlers := NewSpotifyHandlers(cfg.Spotify, cfg.FrontendURL)
	liveHandlers := NewLiveHandlers(cfg.Store, cfg.Hub, cfg.FrontendURL)
	healthHandlers := NewHealthHandlers(cfg.ReadyChecks)

	r := chi.NewRouter()

	// Global middleware stack, outermost first.
	r.Use(middleware.Profiling(cfg.Profiling))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	if cfg.Metrics != nil {
		r.Use(middleware.HTTPMetrics(cfg.Metrics))
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(middleware.FrontendCORS(cfg.FrontendURL)))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeCode(w, r, ErrCodeNotFound, "The requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	})

	r.Get("/health", healthHandlers.Health)
	r.Get("/ready", healthHandlers.Ready)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route(cfg.APIPrefix, func(r chi.Router) {
		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", campaigns.ListCampaigns)
			r.Post("/", campaigns.CreateCampaign)
			r.Get("/{id}", campaigns.GetCampaign)
			r.Put("/{id}", campaigns.UpdateCampaign)
			r.Patch("/{id}", campaigns.UpdateCampaign)
			r.Delete("/{id}", campaigns.DeleteCampaign)
			r.Get("/{id}/live", liveHandlers.Subscribe)
		})

		r.Route("/flow", func(r chi.Router) {
			r.Get("/campaigns/{campaignId}", flow.GetFlow)
			r.Post("/campaigns/{campaignId}/nodes", flow.CreateNode)
			r.Post("/campaigns/{campaignId}/edges", flow.CreateEdge)
			r.Put("/campaigns/{campaignId}/bulk", flow.BulkUpdatePositions)

			r.Put("/nodes/{id}", flow.UpdateNode)
			r.Patch("/nodes/{id}", flow.UpdateNode)
			r.Delete("/nodes/{id}", flow.DeleteNode)

			r.Put("/edges/{id}", flow.UpdateEdge)
			r.Patch("/edges/{id}", flow.UpdateEdge)
			r.Delete("/edges/{id}", flow.DeleteEdge)
		})

		r.Route("/encounters", func(r chi.Router) {
			r.Post("/campaigns/{campaignId}", encounters.CreateEncounter)

			r.Put("/enemies/{id}", encounters.UpdateEnemy)
			r.Patch("/enemies/{id}", encounters.UpdateEnemy)
			r.Delete("/enemies/{id}", encounters.DeleteEnemy)

			r.Put("/loot/{id}", encounters.UpdateLoot)
			r.Patch("/loot/{id}", encounters.UpdateLoot)
			r.Delete("/loot/{id}", encounters.DeleteLoot)

			r.Get("/{id}", encounters.GetEncounter)
			r.Put("/{id}", encounters.UpdateEncounter)
			r.Patch("/{id}", encounters.UpdateEncounter)
			r.Delete("/{id}", encounters.DeleteEncounter)
			r.Post("/{id}/enemies", encounters.AddEnemy)
			r.Post("/{id}/loot", encounters.AddLoot)
		})

		r.Route("/drawings/nodes/{nodeId}", func(r chi.Router) {
			r.Get("/", drawings.GetDrawing)
			r.Post("/", drawings.SaveDrawing)
			r.Put("/", drawings.SaveDrawing)
			r.Delete("/", drawings.DeleteDrawing)
			r.Post("/thumbnail", drawings.PresignThumbnail)
		})

		r.Route("/spotify", func(r chi.Router) {
			r.Use(middleware.RateLimiter(cfg.RateLimitStore, spotifyLimit, middleware.IPKeyFunc(), cfg.Metrics))

			r.Get("/auth", spotifyHandlers.Auth)
			r.Get("/callback", spotifyHandlers.Callback)
			r.Get("/status", spotifyHandlers.Status)
			r.Get("/playback", spotifyHandlers.Playback)
			r.Put("/play", spotifyHandlers.Play)
			r.Put("/pause", spotifyHandlers.Pause)
			r.Put("/track", spotifyHandlers.PlayTrack)
			r.With(middleware.RateLimiter(cfg.RateLimitStore, middleware.DefaultSearchLimit(), middleware.IPKeyFunc(), cfg.Metrics)).
				Get("/search", spotifyHandlers.Search)
		})
	})

	return r
}
