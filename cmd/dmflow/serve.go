package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/onnwee/dmflow/internal/api"
	"github.com/onnwee/dmflow/internal/health"
	"github.com/onnwee/dmflow/internal/live"
	"github.com/onnwee/dmflow/internal/middleware"
	"github.com/onnwee/dmflow/internal/spotify"
	"github.com/onnwee/dmflow/internal/tracing"
	"github.com/onnwee/dmflow/internal/upload"
)

const (
	serviceName     = "dmflow-api"
	shutdownTimeout = 10 * time.Second
	cleanupInterval = time.Minute
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporterType,
		OTLPEndpoint:   cfg.TracingEndpoint,
		SamplingRate:   cfg.TracingSampleRate,
		InsecureMode:   cfg.TracingInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	store, conn, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if conn != nil {
		defer conn.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := middleware.NewMetrics()
	spotifyMetrics := spotify.NewMetrics()
	liveMetrics := live.NewMetrics()
	for _, m := range []interface{ Register(prometheus.Registerer) error }{httpMetrics, spotifyMetrics, liveMetrics} {
		if err := m.Register(reg); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	routerCfg := api.RouterConfig{
		Store:       store,
		Metrics:     httpMetrics,
		Gatherer:    reg,
		APIPrefix:   cfg.APIPrefix,
		FrontendURL: cfg.FrontendURL,
		ServiceName: serviceName,
		Logger:      logger,
		Profiling: middleware.ProfilingConfig{
			Enabled:     cfg.ProfilingEnabled,
			Environment: cfg.Env,
		},
	}

	var readyChecks []health.Check
	if conn != nil {
		readyChecks = append(readyChecks, health.Check{Name: "database", Checker: health.NewDBChecker(conn)})
	}

	if cfg.SpotifyEnabled() {
		var tokens spotify.TokenStore = spotify.NewInMemoryTokenStore()
		if conn != nil {
			tokens = spotify.NewPostgresTokenStore(conn)
		}
		client, err := spotify.NewClient(spotify.Config{
			ClientID:     cfg.SpotifyClientID,
			ClientSecret: cfg.SpotifyClientSecret,
			RedirectURI:  cfg.SpotifyRedirectURI,
			StateSecret:  cfg.OAuthStateSecret,
		}, tokens, spotifyMetrics, logger)
		if err != nil {
			return err
		}
		routerCfg.Spotify = client
	} else {
		logger.Info("Spotify not configured, /spotify routes answer 503")
	}

	if cfg.R2Enabled() {
		uploads, err := upload.NewService(upload.ServiceConfig{
			BucketName:      cfg.R2BucketName,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Endpoint:        cfg.R2Endpoint,
			PublicURL:       cfg.R2PublicURL,
			URLExpiry:       upload.DefaultURLExpiry,
		})
		if err != nil {
			return err
		}
		routerCfg.Uploads = uploads
		readyChecks = append(readyChecks, health.Check{Name: "object_storage", Checker: health.NewHTTPChecker(uploads.PublicURL()), Optional: true})
	}

	spotifyLimit := middleware.DefaultSpotifyLimit()
	spotifyLimit.RequestsPerWindow = cfg.SpotifyRatePerMinute
	routerCfg.SpotifyLimit = &spotifyLimit

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		routerCfg.RateLimitStore = middleware.NewRedisRateLimitStore(rdb).WithMetrics(httpMetrics)
		readyChecks = append(readyChecks, health.Check{Name: "redis", Checker: health.NewRedisChecker(rdb), Optional: true})
	} else {
		limiter := middleware.NewInMemoryRateLimitStore()
		go limiter.RunCleanup(ctx, cleanupInterval)
		routerCfg.RateLimitStore = limiter
	}
	routerCfg.ReadyChecks = readyChecks

	hub := live.NewHub(liveMetrics, logger)
	routerCfg.Hub = hub

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "api_prefix", cfg.APIPrefix)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		hub.Close()
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server...")
	hub.Close()

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
