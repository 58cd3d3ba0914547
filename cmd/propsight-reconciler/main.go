package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/propsight/propsight/pkg/analytics"
	"github.com/propsight/propsight/pkg/buckets"
	"github.com/propsight/propsight/pkg/config"
	"github.com/propsight/propsight/pkg/events"
	"github.com/propsight/propsight/pkg/observability"
	"github.com/propsight/propsight/pkg/storage/postgres"
)

var (
	runOnce = flag.Bool("run-once", false, "Run reconciliation once and exit (for testing or backfilling)")
	endDate = flag.String("date", "", "Last date to reconcile (YYYY-MM-DD). If empty, reconciles up to yesterday. Only used with --run-once")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if len(cfg.Reconciler.Owners) == 0 {
		logger.Error("No owners configured; set reconciler.owners in the config file")
		os.Exit(1)
	}

	store, err := postgres.NewAggregateStore(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to PostgreSQL")
		os.Exit(1)
	}
	defer store.Close()

	cache, err := postgres.NewStatsCache(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}
	defer cache.Close()

	upstreamLog := logrus.New()
	upstreamLog.SetFormatter(&logrus.JSONFormatter{})
	source := events.NewClient(cfg.Upstream.ClientConfig(), upstreamLog)

	metrics := observability.NewMetrics(nil)
	service := analytics.NewService(source, store, cache, logger)
	service.SetMaxLookbackDays(cfg.Analytics.MaxLookbackDays)
	service.SetMetrics(metrics)

	// Run once mode (for testing or backfilling)
	if *runOnce {
		end := time.Now().UTC().AddDate(0, 0, -1)
		if *endDate != "" {
			end, err = time.Parse(buckets.DateLayout, *endDate)
			if err != nil {
				logger.Errorf("Invalid date format: %v", err)
				os.Exit(1)
			}
		}

		if err := reconcileAll(context.Background(), service, cfg.Reconciler, metrics, logger, end); err != nil {
			logger.WithError(err).Error("Reconciliation failed")
			os.Exit(1)
		}
		logger.Info("Reconciliation completed successfully")
		return
	}

	// Scheduled mode
	c := cron.New()
	_, err = c.AddFunc(cfg.Reconciler.Schedule, func() {
		end := time.Now().UTC().AddDate(0, 0, -1)
		logger.Infof("Starting scheduled reconciliation through %s", end.Format(buckets.DateLayout))

		if err := reconcileAll(context.Background(), service, cfg.Reconciler, metrics, logger, end); err != nil {
			logger.WithError(err).Error("Scheduled reconciliation failed")
		} else {
			logger.Info("Scheduled reconciliation completed successfully")
		}
	})
	if err != nil {
		logger.Errorf("Failed to schedule reconciliation: %v", err)
		os.Exit(1)
	}

	c.Start()
	logger.Infof("PropSight reconciler started, schedule %q, %d owners", cfg.Reconciler.Schedule, len(cfg.Reconciler.Owners))

	shutdown := observability.NewShutdownManager(logger, nil, 30*time.Second)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		os.Exit(1)
	}
}

// reconcileAll refreshes the durable aggregates for every configured
// owner, fanning out up to Parallelism owners at a time. One owner
// failing does not stop the others; the first error is reported after
// the whole pass.
func reconcileAll(ctx context.Context, service *analytics.Service, cfg config.ReconcilerConfig, metrics *observability.Metrics, logger *observability.Logger, end time.Time) error {
	start := end.AddDate(0, 0, -(cfg.LookbackDays - 1))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallelism)

	var failures atomic.Int64
	for _, owner := range cfg.Owners {
		owner := owner
		g.Go(func() error {
			ownerLog := logger.WithFields(map[string]interface{}{
				"owner_id":   owner.ID,
				"owner_type": owner.Type,
			})

			result, err := service.GetStats(ctx, analytics.StatsRequest{
				OwnerID:   owner.ID,
				OwnerType: owner.Type,
				DateFrom:  start.Format(buckets.DateLayout),
				DateTo:    end.Format(buckets.DateLayout),
				Reconcile: true,
			})
			if err != nil {
				metrics.ReconcileRunsTotal.WithLabelValues("failure").Inc()
				ownerLog.WithError(err).Error("Owner reconciliation failed")
				failures.Add(1)
				return nil
			}

			metrics.ReconcileRunsTotal.WithLabelValues("success").Inc()
			ownerLog.Infof("Reconciled %d data points, total %d", result.Summary.DataPoints, result.Summary.Total)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if n := failures.Load(); n > 0 {
		return fmt.Errorf("%d of %d owners failed to reconcile", n, len(cfg.Owners))
	}
	return nil
}
