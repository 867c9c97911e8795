package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/relay-api/internal/api"
	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/delivery"
	"github.com/phrazzld/relay-api/internal/metrics"
	"github.com/phrazzld/relay-api/internal/platform/postgres"
	"github.com/phrazzld/relay-api/internal/platform/upstream"
	"github.com/phrazzld/relay-api/internal/reconcile"
	"github.com/phrazzld/relay-api/internal/store"
	"github.com/phrazzld/relay-api/internal/task"
)

// application holds the wired dependencies for one server process.
type application struct {
	config   *config.Config
	logger   *slog.Logger
	db       *sql.DB
	redis    *redis.Client
	registry *prometheus.Registry

	jobs       store.JobStore
	trigger    task.Trigger
	runner     *task.Runner
	monitor    *reconcile.Monitor
	jobHandler *api.JobHandler
}

// newApplication wires the full dependency graph: storage, upstream client,
// deliverer, worker pool, reconciliation monitor, and HTTP handlers.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := setupDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &application{
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: prometheus.NewRegistry(),
	}
	metrics.MustRegister(app.registry)

	app.jobs = postgres.NewPostgresJobStore(db)
	deliveryLog := postgres.NewPostgresDeliveryLog(db)

	// Rate limiter: shared through Redis when configured, process-local
	// otherwise.
	var limiter delivery.RateLimiter
	if cfg.Redis.Addr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limiter = delivery.NewRedisRateLimiter(app.redis, cfg.Delivery.RateLimitWindow)
		logger.Info("Using Redis-backed delivery rate limiter", "addr", cfg.Redis.Addr)
	} else {
		limiter = delivery.NewLocalRateLimiter(cfg.Delivery.RateLimitWindow)
		logger.Info("Using process-local delivery rate limiter")
	}

	deliverer := delivery.NewDeliverer(limiter, deliveryLog, &http.Client{
		Timeout: cfg.Delivery.Timeout,
	})

	generator, err := upstream.NewClient(upstream.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		APIKey:         cfg.Upstream.APIKey,
		MaxAttempts:    cfg.Upstream.MaxAttempts,
		BaseDelay:      cfg.Upstream.BaseDelay,
		MaxDelay:       cfg.Upstream.MaxDelay,
		AttemptTimeout: cfg.Upstream.AttemptTimeout,
		OverallBudget:  cfg.Upstream.OverallBudget,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	processor := task.NewProcessor(app.jobs, generator, deliverer, cfg.Worker.StaleAfter)

	// Trigger: NSQ for cross-process fan-out when configured, in-process
	// channel otherwise.
	if cfg.NSQ.NSQDAddress != "" {
		trigger, err := task.NewNSQTrigger(task.NSQTriggerConfig{
			NSQDAddress: cfg.NSQ.NSQDAddress,
			Topic:       cfg.NSQ.Topic,
			Channel:     cfg.NSQ.Channel,
			BufferSize:  cfg.Worker.TriggerBuffer,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect NSQ trigger: %w", err)
		}
		app.trigger = trigger
		logger.Info("Using NSQ job trigger",
			"nsqd", cfg.NSQ.NSQDAddress,
			"topic", cfg.NSQ.Topic)
	} else {
		app.trigger = task.NewChannelTrigger(cfg.Worker.TriggerBuffer, logger)
		logger.Info("Using in-process job trigger")
	}

	app.runner = task.NewRunner(processor, app.trigger, app.jobs, task.RunnerConfig{
		WorkerCount:       cfg.Worker.Count,
		RecoveryBatchSize: cfg.Worker.TriggerBuffer,
	}, logger)

	app.monitor = reconcile.NewMonitor(app.jobs, deliverer, reconcile.Config{
		Grace:      cfg.Reconcile.Grace,
		Retention:  cfg.Reconcile.Retention,
		MaxRetries: cfg.Reconcile.MaxRetries,
		BatchSize:  cfg.Reconcile.BatchSize,
		BatchDelay: cfg.Reconcile.BatchDelay,
		RunBudget:  cfg.Reconcile.RunBudget,
	})

	app.jobHandler = api.NewJobHandler(app.jobs, processor, app.trigger, app.monitor)
	return app, nil
}

// run starts the worker pool and the reconciliation schedule, then serves
// HTTP until shutdown.
func (app *application) run(ctx context.Context) error {
	if err := app.runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	reconcileCtx, cancelReconcile := context.WithCancel(ctx)
	go app.monitor.RunEvery(reconcileCtx, app.config.Reconcile.Interval)

	err := app.startHTTPServer(ctx, app.setupRouter())

	cancelReconcile()
	app.cleanup()
	return err
}

// cleanup releases background workers and connections in dependency order.
func (app *application) cleanup() {
	app.runner.Stop()
	app.trigger.Stop()

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Failed to close Redis client", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("Failed to close database connection", "error", err)
	}
}
