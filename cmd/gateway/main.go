package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/quitforge/aigateway/internal/api"
	"github.com/quitforge/aigateway/internal/budget"
	"github.com/quitforge/aigateway/internal/cache"
	"github.com/quitforge/aigateway/internal/config"
	"github.com/quitforge/aigateway/internal/database"
	"github.com/quitforge/aigateway/internal/eventlog"
	"github.com/quitforge/aigateway/internal/events"
	"github.com/quitforge/aigateway/internal/fallback"
	"github.com/quitforge/aigateway/internal/gateway"
	"github.com/quitforge/aigateway/internal/jobs"
	"github.com/quitforge/aigateway/internal/provider"
	"github.com/quitforge/aigateway/internal/ratelimit"
	iredis "github.com/quitforge/aigateway/internal/redis"
	"github.com/quitforge/aigateway/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (optional)
	var natsClient *events.Client
	var publisher *events.Publisher
	if cfg.NATS.Enabled {
		natsClient, err = events.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = events.NewPublisher(natsClient.JetStream())

		// Persist gateway events into ai_events for offline analysis.
		consumer := eventlog.NewConsumer(eventlog.NewRepository(pool), natsClient.JetStream())
		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("event log consumer stopped", "error", err)
			}
		}()
	}

	// Gateway pipeline
	cacheStore := cache.NewStore(redisClient)
	limiter := ratelimit.NewLimiter(redisClient, cfg.RateLimit.Window)
	ledger := budget.NewRepository(pool)
	tracker := budget.NewTracker(ledger, cfg.Budget)
	resolver := fallback.NewResolver()
	providerClient := provider.NewOpenAI(cfg.Provider)

	gw := gateway.New(cacheStore, limiter, tracker, providerClient, resolver, publisher, cfg.RateLimit)
	gatewayHandler := gateway.NewHandler(gw)
	budgetHandler := budget.NewHandler(tracker, ledger)
	ratelimitHandler := ratelimit.NewHandler(limiter, cfg.RateLimit)

	// Job queue
	eventlogHandler := eventlog.NewHandler(eventlog.NewRepository(pool))

	jobRepo := jobs.NewRepository(pool)
	jobHandler := jobs.NewHandler(jobRepo, cfg.Worker)
	worker := jobs.NewWorker(jobRepo, publisher, cfg.Worker)
	worker.Register(jobs.TypeCohortPersonalization, jobs.NewCohortHandler(gw))
	worker.Register(jobs.TypeCacheWarmup, jobs.NewWarmupHandler(gw))
	go worker.Run(ctx)

	// Router
	router := api.NewRouter(pool, redisClient, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
	}, api.HandlerSet{
		Generate: gatewayHandler.Generate,

		BudgetStatus:    budgetHandler.Status,
		UsageList:       budgetHandler.Usage,
		RateLimitStatus: ratelimitHandler.Status,

		EnqueueJob: jobHandler.Enqueue,
		GetJob:     jobHandler.Get,
		ListJobs:   jobHandler.List,

		ListEvents: eventlogHandler.List,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
