// Package main is the entry point for the fieldwatch alert engine.
//
// The engine is a single long-running process: a scheduler evaluates active
// alert definitions against current field observations on a jittered
// interval, and an ops HTTP server exposes health, metrics, and cycle
// statistics alongside it. Notifications are handed off to SQS when a
// dispatch queue is configured; otherwise they are written to the log, which
// is the local development mode.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM):
// the in-flight cycle finishes its dispatch drain, the ops server stops
// accepting requests, and the database pool closes last.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"golang.org/x/sync/errgroup"

	"fieldwatch/internal/cache"
	"fieldwatch/internal/config"
	"fieldwatch/internal/db"
	"fieldwatch/internal/dispatch"
	"fieldwatch/internal/metrics"
	"fieldwatch/internal/ops"
	"fieldwatch/internal/rules"
	"fieldwatch/internal/scheduler"
	"fieldwatch/internal/types"
	"fieldwatch/internal/upstream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("alert engine starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"ops_port", cfg.Ops.Port,
	)

	// An unmapped metric kind would silently skip at evaluation time, so the
	// catalog is checked once here instead.
	if err := types.ValidateMetricCatalog(); err != nil {
		return fmt.Errorf("metric catalog: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	alertRepo := db.NewAlertRepository(pool)
	locationRepo := db.NewLocationRepository(pool)
	checkRepo := db.NewCheckHistoryRepository(pool)
	triggerRepo := db.NewTriggerRepository(pool)
	leaseRepo := db.NewCycleLeaseRepository(pool)
	cycleRepo := db.NewCycleHistoryRepository(pool)

	clock := types.RealClock{}
	weatherCache := cache.NewWeatherCache(cache.WeatherCacheConfig{
		TTL:   cfg.Cache.WeatherTTL,
		Grace: cfg.Cache.WeatherGrace,
		Clock: clock,
	})
	locationCache := cache.NewLocationCache(cfg.Cache.LocationTTL, clock)
	cooldown := cache.NewCooldownTracker(cfg.Cache.Cooldown, clock)
	limiter := cache.NewUpstreamLimiter(cfg.Upstream.RateLimit, cfg.Upstream.RateWindow, clock)
	janitor := cache.NewJanitor(cfg.Cache.SweepInterval, logger, weatherCache, locationCache, cooldown)

	// The HTTP client timeout stays unset; each fetch is bounded by the
	// service's per-request context deadline instead.
	obsClient := upstream.NewObservationClient(&http.Client{}, upstream.ObservationClientConfig{
		BaseURL:    cfg.Upstream.BaseURL,
		APIKey:     cfg.Upstream.APIKey.Unmask(),
		MaxRetries: cfg.Upstream.MaxRetries,
		Logger:     logger,
	})
	obsService := upstream.NewObservationService(obsClient, weatherCache, limiter, cfg.Upstream.Timeout, logger)

	dispatcher, reporter, err := buildDispatch(ctx, cfg, logger)
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	sched := scheduler.NewScheduler(scheduler.SchedulerDeps{
		Config:        cfg.Scheduler,
		Alerts:        alertRepo,
		Locations:     locationRepo,
		LocationCache: locationCache,
		Observations:  obsService,
		Checks:        checkRepo,
		Persistence:   rules.NewPersistenceTracker(checkRepo, logger),
		Policy:        rules.NewNotificationPolicy(clock, checkRepo, cooldown, logger),
		Cooldown:      cooldown,
		Dispatcher:    dispatcher,
		Triggers:      triggerRepo,
		AlertState:    alertRepo,
		Lease:         leaseRepo,
		CycleLog:      cycleRepo,
		Reporter:      reporter,
		HolderID:      hostname,
		Clock:         clock,
		Logger:        logger,
	})

	opsServer := ops.NewServer(cfg.Ops, sched, logger,
		ops.DatabaseProbe{DB: pool},
		ops.UpstreamProbe{Client: obsClient},
		ops.SchedulerProbe{
			Scheduler: sched,
			// Three intervals absorbs jitter, the startup delay, and one
			// slow cycle before the probe reports the loop dead.
			MaxAge: 3 * cfg.Scheduler.Interval,
			Clock:  clock,
		},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		janitor.Run(gctx)
		return nil
	})
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return opsServer.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("engine stopped cleanly")
	return nil
}

// buildDispatch selects the notification transport and the cycle reporter
// from configuration. Without a queue URL notifications go to the log; an
// empty CloudWatch namespace leaves the reporter nil, which the scheduler
// treats as disabled.
func buildDispatch(ctx context.Context, cfg *config.Config, logger *slog.Logger) (types.NotificationDispatcher, scheduler.CycleReporter, error) {
	if cfg.Dispatch.QueueURL == "" && cfg.Dispatch.MetricsNamespace == "" {
		logger.Warn("no dispatch queue configured, notifications will be logged")
		return dispatch.NewLogDispatcher(logger), nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}
	endpoint := cfg.AWS.EndpointURL

	var dispatcher types.NotificationDispatcher
	if cfg.Dispatch.QueueURL != "" {
		sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		dispatcher = dispatch.NewQueueDispatcher(sqsClient, cfg.Dispatch.QueueURL, logger)
	} else {
		logger.Warn("no dispatch queue configured, notifications will be logged")
		dispatcher = dispatch.NewLogDispatcher(logger)
	}

	var reporter scheduler.CycleReporter
	if cfg.Dispatch.MetricsNamespace != "" {
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		reporter = metrics.NewEngineMetrics(cwClient, cfg.Dispatch.MetricsNamespace, logger)
	}

	return dispatcher, reporter, nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
