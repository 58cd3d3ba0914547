package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/propsight/propsight/pkg/analytics"
	"github.com/propsight/propsight/pkg/api"
	"github.com/propsight/propsight/pkg/config"
	"github.com/propsight/propsight/pkg/events"
	"github.com/propsight/propsight/pkg/observability"
	"github.com/propsight/propsight/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting PropSight analytics API")

	store, err := postgres.NewAggregateStore(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to PostgreSQL")
		os.Exit(1)
	}

	cache, err := postgres.NewStatsCache(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}

	upstreamLog := logrus.New()
	upstreamLog.SetFormatter(&logrus.JSONFormatter{})
	source := events.NewClient(cfg.Upstream.ClientConfig(), upstreamLog)

	service := analytics.NewService(source, store, cache, logger)
	service.SetMaxLookbackDays(cfg.Analytics.MaxLookbackDays)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
		service.SetMetrics(metrics)
	}

	health := observability.NewHealthChecker(map[string]observability.Pinger{
		"postgres": store,
		"cache":    cache,
	})

	server := api.NewServer(service, logger, metrics, health)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Separate listener for k8s probes and scraping.
	healthServer := newHealthServer(cfg.Server, health, metrics)

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return cache.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return store.Close()
	})

	go func() {
		logger.Infof("Health server listening on :%s", cfg.Server.HealthPort)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.Infof("API server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		os.Exit(1)
	}
}

func newHealthServer(cfg config.ServerConfig, health *observability.HealthChecker, metrics *observability.Metrics) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", health.Liveness).Methods("GET")
	r.HandleFunc("/readyz", health.Readiness).Methods("GET")
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	return &http.Server{
		Addr:         cfg.Host + ":" + cfg.HealthPort,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
