package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"celldock/internal/api"
	"celldock/internal/db"
	"celldock/internal/infra"
	"celldock/internal/kernel"
	"celldock/internal/services"
	"celldock/internal/store"
	"celldock/internal/tasks"
	"celldock/pkg/graceful"
)

func main() {
	// Load configuration (fails fast on missing required configs)
	config, err := infra.LoadConfig()
	if err == nil {
		err = config.RequireJWT()
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

	logger.Info("Configuration loaded successfully",
		zap.String("server_addr", config.Server.Addr),
		zap.String("server_port", config.Server.Port),
		zap.String("docker_host", config.Docker.Host),
		zap.Bool("stage_history", config.Postgres.Enabled()),
		zap.Bool("replay_queue", config.Redis.Enabled()),
	)

	if err := run(config, logger); err != nil {
		logger.Fatal("API server failed", zap.Error(err))
	}
	logger.Info("Server exited")
}

func run(config *infra.Config, logger *zap.Logger) error {
	ctx := context.Background()
	shutdown := graceful.NewShutdownHandler(logger, 30*time.Second)

	engine, err := services.NewDockerBuildService(services.DockerOptionsFromConfig(config.Docker), logger)
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := engine.Ping(pingCtx); err != nil {
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

	var replays api.ReplayQueue
	if config.Redis.Enabled() {
		client := tasks.NewTaskClient(config.Redis.Addr, config.Redis.Password, config.Redis.DB, logger)
		shutdown.Register("task-client", graceful.ShutdownFunc(func(context.Context) error {
			return client.Close()
		}))
		replays = client
	}

	sessions := api.NewSessionManager(func(sessionID string) *kernel.Kernel {
		return kernel.New(engine, kernel.Options{
			SessionID: sessionID,
			Marker:    config.Kernel.TriggerMarker,
			Recorder:  recorder,
			Logger:    logger,
		})
	}, config.Server.MaxSessions, logger)

	jwtService := services.NewJWTService(config.JWT.Secret, logger)
	handlers := api.NewHandlers(logger, sessions, jwtService, config.JWT.Expiration, replays)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", config.Server.Addr, config.Server.Port),
		Handler:           api.Router(logger, handlers, jwtService, config.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	shutdown.Register("http", server)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting API server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	waitCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	go func() {
		if err := <-serverErr; err != nil {
			stop(err)
		}
	}()

	if err := shutdown.WaitForShutdown(waitCtx); err != nil {
		logger.Error("Shutdown finished with errors", zap.Error(err))
	}
	return context.Cause(waitCtx)
}
