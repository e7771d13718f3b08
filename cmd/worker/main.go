// File: cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"gpu-notebook-bridge/internal/config"
	"gpu-notebook-bridge/internal/domain/ports/repository"
	"gpu-notebook-bridge/internal/infra/api"
	pg "gpu-notebook-bridge/internal/infra/db/postgres"
	"gpu-notebook-bridge/internal/infra/logging"
	"gpu-notebook-bridge/internal/infra/memory"
	"gpu-notebook-bridge/internal/infra/metrics"
	red "gpu-notebook-bridge/internal/infra/redis"
	"gpu-notebook-bridge/internal/infra/sched"
	"gpu-notebook-bridge/internal/infra/script"
	"gpu-notebook-bridge/internal/infra/security"
	"gpu-notebook-bridge/internal/infra/system"
	"gpu-notebook-bridge/internal/infra/worker"
	"gpu-notebook-bridge/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "", "path to YAML config file (defaults when empty)")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Optional job history sinks ----
	var (
		archives []repository.JobArchive
		history  []repository.JobHistory
		claims   repository.JobClaims
		limiter  api.Limiter
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer rc.Close()
		limiter = red.NewRateLimiter(rc)
		claims = red.NewJobClaims(rc, cfg.Redis.TTL)
		cache := red.NewJobSnapshotCache(rc, cfg.Redis.TTL)
		archives = append(archives, cache)
		history = append(history, cache)
		logger.Info().Str("addr", cfg.Redis.URL).Msg("redis job cache enabled")
	}
	if cfg.Database.URL != "" {
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		repo := pg.NewWorkerJobRepo(pool)
		archives = append(archives, repo)
		history = append(history, repo)
		logger.Info().Msg("postgres job archive enabled")
	}

	// ---- Execution ----
	runner := script.NewRunner(cfg.Worker.ScriptMaxNodes, logging.Component(logger, "script"))
	pool := worker.NewPool(cfg.Worker.PoolSize, cfg.Worker.QueueSize, logging.Component(logger, "pool"))
	// the pool outlives the signal context so running jobs are stopped only
	// after the HTTP server has drained
	pool.Start(context.Background())

	training := usecase.NewTrainingUseCase(
		memory.NewWorkerJobTable(),
		pool,
		runner,
		usecase.TrainingOptions{
			JobTimeout: cfg.Worker.JobTimeout,
			Claims:     claims,
			Archives:   archives,
			History:    history,
		},
		logging.Component(logger, "training"),
	)
	host := usecase.NewHostUseCase(system.NewProbe(cfg.Worker.DiskPath, logging.Component(logger, "probe")))
	sampler := sched.NewResourceSampler(cfg.Worker.SampleInterval, host, logger)
	go func() { _ = sampler.Run(ctx) }()

	// ---- HTTP ----
	shutdownReq := make(chan struct{})
	var once sync.Once
	tokens := security.NewTokenManager(cfg.Auth.Secret, cfg.Auth.TTL)
	handler := api.NewRouter(cfg.Worker, api.Deps{
		Training: training,
		Host:     host,
		Tokens:   tokens,
		Limiter:  limiter,
		KeyFunc:  red.ClientCommandKey,
		Shutdown: func() { once.Do(func() { close(shutdownReq) }) },
	}, logging.Component(logger, "http"))
	server := api.NewHTTPServer(cfg.Worker, handler)

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Bool("auth", tokens.Enabled()).Int("pool", cfg.Worker.PoolSize).Msg("worker listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// ---- Graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info().Msg("signal received")
	case <-shutdownReq:
		logger.Info().Msg("shutdown requested over http")
	case err := <-errc:
		logger.Error().Err(err).Msg("http server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	pool.Stop()
	logger.Info().Msg("worker stopped")
}
