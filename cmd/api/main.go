package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/portsight/portsight-back/internal/ai"
	"github.com/portsight/portsight-back/internal/config"
	httpserver "github.com/portsight/portsight-back/internal/http"
	"github.com/portsight/portsight-back/internal/http/handlers"
	"github.com/portsight/portsight-back/internal/queue"
	"github.com/portsight/portsight-back/internal/repository"
	"github.com/portsight/portsight-back/internal/research"
	"github.com/portsight/portsight-back/internal/service"
	"github.com/portsight/portsight-back/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[portsight] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobsRepo, entitiesRepo, usingPostgres, repoCloser := setupRepositories(ctx, cfg, logger)
	defer repoCloser()

	producer, consumer, usingRedis, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	researchClient := ai.NewResearchClient(ai.ResearchClientConfig{
		APIKey:     cfg.ResearchAPIKey,
		BaseURL:    cfg.ResearchBaseURL,
		Timeout:    time.Duration(cfg.ResearchTimeoutMS) * time.Millisecond,
		MaxRetries: cfg.ResearchMaxRetries,
	})
	if !researchClient.Available() {
		logger.Printf("RESEARCH_API_KEY not configured, research jobs will fail per category")
	}

	executor := research.NewExecutor(researchClient, research.ExecutorConfig{
		ModelStandard: cfg.ResearchModelStandard,
		ModelPremium:  cfg.ResearchModelPremium,
		QueryTimeout:  time.Duration(cfg.ResearchTimeoutMS) * time.Millisecond,
		Concurrency:   cfg.ResearchConcurrency,
	}, logger)

	staleWindow := time.Duration(cfg.StaleJobWindowMinutes) * time.Minute
	jobsService := service.NewJobsService(jobsRepo, entitiesRepo, producer, staleWindow, logger)
	applyService := service.NewApplyService(entitiesRepo, logger)

	api := handlers.NewAPI(jobsService, applyService, entitiesRepo)
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API: api,
		Health: handlers.HealthDeps{
			Postgres: usingPostgres,
			Redis:    usingRedis,
			Provider: researchClient.Available(),
			Worker:   cfg.WorkerEnabled,
		},
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	if cfg.WorkerEnabled {
		processor := worker.NewProcessor(
			consumer,
			jobsService,
			entitiesRepo,
			executor,
			time.Duration(cfg.HeartbeatIntervalSeconds)*time.Second,
			logger,
		)
		go processor.Start(ctx)
		logger.Printf("research worker enabled and started")
	} else {
		logger.Printf("research worker disabled by configuration")
	}

	if cfg.ReaperIntervalMinutes > 0 {
		go runReaper(ctx, jobsService, time.Duration(cfg.ReaperIntervalMinutes)*time.Minute, logger)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

// runReaper periodically force-fails stale running jobs so crashed
// workers never leave jobs running forever.
func runReaper(ctx context.Context, jobs *service.JobsService, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := jobs.Reap(ctx)
			if err != nil {
				logger.Printf("reaper pass failed: %v", err)
				continue
			}
			if len(reaped) > 0 {
				logger.Printf("reaper cleaned %d stale jobs", len(reaped))
			}
		}
	}
}

func setupRepositories(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (repository.JobsRepository, repository.EntitiesRepository, bool, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory repositories")
		return repository.NewMemoryJobsRepository(), repository.NewMemoryEntitiesRepository(), false, func() {}
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres, fallback to memory: %v", err)
		return repository.NewMemoryJobsRepository(), repository.NewMemoryEntitiesRepository(), false, func() {}
	}
	logger.Printf("postgres repositories initialized")
	return repository.NewPostgresJobsRepository(pool),
		repository.NewPostgresEntitiesRepository(pool),
		true,
		pool.Close
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (queue.Producer, queue.Consumer, bool, func()) {
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using local queue fallback")
		local := queue.NewLocalQueue(256, 3, logger)
		return local, local, false, func() {}
	}

	streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		Stream:      cfg.RedisStream,
		DLQStream:   cfg.RedisDLQ,
		Group:       cfg.RedisGroup,
		Consumer:    cfg.RedisConsumer,
		MaxAttempts: 3,
	})
	if err != nil {
		logger.Printf("failed to initialize redis streams queue, fallback to local: %v", err)
		local := queue.NewLocalQueue(256, 3, logger)
		return local, local, false, func() {}
	}

	logger.Printf("redis streams queue initialized")
	return streams, streams, true, func() {
		_ = streams.Close()
	}
}
