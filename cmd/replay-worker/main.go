package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"celldock/internal/db"
	"celldock/internal/infra"
	"celldock/internal/kernel"
	"celldock/internal/replay"
	"celldock/internal/services"
	"celldock/internal/store"
	"celldock/internal/tasks"
	"celldock/internal/workers"
	"celldock/pkg/graceful"
)

const (
	monitorInterval = time.Minute
	sweepInterval   = 30 * time.Minute
	// Longer than the replay task timeout
	cloneMaxAge = 2 * time.Hour
)

func main() {
	config, err := infra.LoadConfig()
	if err == nil && !config.Redis.Enabled() {
		err = fmt.Errorf("missing required configuration: REDIS_HOST or REDIS_ADDR")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := infra.NewLogger(config.LogLevel, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(config, logger); err != nil {
		logger.Fatal("Replay worker failed", zap.Error(err))
	}
	logger.Info("Replay worker exited")
}

func run(config *infra.Config, logger *zap.Logger) error {
	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := graceful.NewShutdownHandler(logger, 30*time.Second)

	engine, err := services.NewDockerBuildService(services.DockerOptionsFromConfig(config.Docker), logger)
	if err != nil {
		return err
	}
	if err := engine.Ping(ctx); err != nil {
		return fmt.Errorf("docker engine unreachable: %w", err)
	}
	shutdown.Register("docker", graceful.ShutdownFunc(func(context.Context) error {
		return engine.Close()
	}))

	var recorder kernel.StageRecorder
	if config.Postgres.Enabled() {
		pool, err := db.NewDB(ctx, config.Postgres.DSN, logger)
		if err != nil {
			return err
		}
		shutdown.Register("postgres", graceful.ShutdownFunc(func(context.Context) error {
			pool.Close()
			return nil
		}))
		if err := db.RunMigrations(pool, logger); err != nil {
			return err
		}
		recorder = store.NewStageStore(pool, logger)
	}

	runner := replay.NewRunner(engine, replay.Options{
		Marker:   config.Kernel.TriggerMarker,
		Recorder: recorder,
		Logger:   logger,
	})
	handler := tasks.NewTaskHandler(logger, services.NewGitService(logger, config.Git.CloneDir), runner)
	sweeper := workers.NewSweepWorker(services.NewCloneSweeper(config.Git.CloneDir, cloneMaxAge, logger), sweepInterval, logger)

	serverOpts := workers.ServerOptions{
		RedisAddr:     config.Redis.Addr,
		RedisPassword: config.Redis.Password,
		RedisDB:       config.Redis.DB,
		Concurrency:   config.WorkerConcurrency,
	}
	server := workers.NewAsynqServer(serverOpts, logger, handler)
	server.RegisterHandlers()
	monitor := workers.NewQueueMonitor(serverOpts, monitorInterval, logger)

	for _, w := range []workers.Worker{server, monitor, sweeper} {
		shutdown.Register(w.Name(), graceful.ShutdownFunc(w.Stop))
		go func(w workers.Worker) {
			logger.Info("Starting worker", zap.String("worker", w.Name()))
			if err := w.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Worker failed", zap.String("worker", w.Name()), zap.Error(err))
				cancel()
			}
		}(w)
	}

	// Stops first: workers see their context end before Stop is called
	shutdown.Register("worker-context", graceful.ShutdownFunc(func(context.Context) error {
		cancel()
		return nil
	}))

	return shutdown.WaitForShutdown(ctx)
}
