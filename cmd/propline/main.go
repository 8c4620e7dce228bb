package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortuna/propline/internal/api/rest"
	"github.com/fortuna/propline/internal/backfill"
	"github.com/fortuna/propline/internal/cache"
	"github.com/fortuna/propline/internal/config"
	"github.com/fortuna/propline/internal/ingest/sgo"
	"github.com/fortuna/propline/internal/logging"
	"github.com/fortuna/propline/internal/publisher"
	"github.com/fortuna/propline/internal/scheduler"
	"github.com/fortuna/propline/internal/store"
	"github.com/fortuna/propline/internal/store/repository"
	"github.com/fortuna/propline/internal/upsert"
)

const (
	serviceName    = "propline"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger().Fatalf("Invalid configuration: %v", err)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logging.For("main")
	log.Infof("Starting %s v%s - prop line ingestion service", serviceName, serviceVersion)

	// Initialize database connection
	db, err := store.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Info("✓ Connected to database")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}
	log.Info("✓ Database migrations applied")

	// Initialize Redis client with retry logic
	var redisCache *cache.RedisCache
	maxRetries := 30
	retryDelay := 2 * time.Second

	log.Info("Connecting to Redis...")
	for i := 0; i < maxRetries; i++ {
		redisCache, err = cache.NewRedisCache(cfg.RedisURL)
		if err == nil {
			break
		}

		if i < maxRetries-1 {
			log.Warnf("Redis connection attempt %d/%d failed: %v (retrying in %v)", i+1, maxRetries, err, retryDelay)
			time.Sleep(retryDelay)
		} else {
			log.Fatalf("Failed to connect to Redis after %d attempts: %v", maxRetries, err)
		}
	}
	defer redisCache.Close()

	log.Info("✓ Connected to Redis")

	streamPublisher := publisher.NewRedisStreamPublisher(redisCache.Client())

	client := sgo.NewClient(sgo.ClientConfig{
		BaseURL:       cfg.Upstream.BaseURL,
		APIKey:        cfg.Upstream.APIKey,
		Limit:         cfg.Upstream.Limit,
		Cache:         redisCache,
		RecentTTL:     cfg.Cache.RecentTTL,
		HistoricalTTL: cfg.Cache.HistoricalTTL,
	})
	if !client.HasAPIKey() {
		log.Warn("⚠️  SGO_API_KEY is not set; ingestion runs will fail until it is configured")
	}

	propRepo := repository.NewPropLineRepository(db)
	writer := upsert.NewWriter(propRepo, repository.NewGameLogRepository(db),
		upsert.WithBatchSizes(cfg.Upsert.PropBatchSize, cfg.Upsert.GameLogBatchSize))

	runner := backfill.NewRunner(client, writer, streamPublisher, backfill.RunnerConfig{
		Leagues:            cfg.Ingest.Leagues,
		ChunkSize:          cfg.Ingest.ChunkSize,
		MinRequestInterval: cfg.Ingest.MinRequestInterval,
		FetchTimeout:       cfg.Ingest.FetchTimeout,
		LeagueConcurrency:  cfg.Ingest.LeagueConcurrency,
		DefaultSportsbook:  cfg.Ingest.DefaultSportsbook,
	})

	// Initialize ingestion job service
	jobService := backfill.NewService(db, runner)
	jobService.Start()

	log.Info("✓ Ingestion job service started")

	var sched *scheduler.Orchestrator
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.NewOrchestrator(runner, &scheduler.Config{
			Spec:       cfg.Scheduler.Spec,
			Timezone:   cfg.Scheduler.Timezone,
			Days:       cfg.Ingest.Days,
			Leagues:    cfg.Ingest.Leagues,
			MaxRetries: cfg.Scheduler.MaxRetries,
			RetryDelay: cfg.Scheduler.RetryDelay,
		})
		if err != nil {
			log.Fatalf("Failed to create scheduler: %v", err)
		}
		sched.Start()
		log.Infof("✓ Scheduler started (next run %s)", sched.Next().Format(time.RFC3339))
	}

	// Initialize REST API server
	restServer := rest.NewServer(cfg.RESTPort, rest.Dependencies{
		Ingest:   jobService,
		Coverage: propRepo,
		Checks: map[string]rest.HealthChecker{
			"postgres": db,
			"redis":    redisCache,
		},
	})
	go func() {
		log.Infof("Starting REST API server on port %s", cfg.RESTPort)
		if err := restServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("REST server error: %v", err)
		}
	}()

	log.Infof("✓ %s v%s started successfully", serviceName, serviceVersion)
	log.Infof("  REST API: http://0.0.0.0:%s", cfg.RESTPort)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := restServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("REST API server shutdown error: %v", err)
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Warnf("Scheduler shutdown error: %v", err)
		}
	}
	if err := jobService.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Job service shutdown error: %v", err)
	}

	log.Infof("%s stopped", serviceName)
}
