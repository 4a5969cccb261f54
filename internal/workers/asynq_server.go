package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	celldockerrors "celldock/internal/errors"
	"celldock/internal/tasks"
)

// AsynqServer wraps Asynq server for replay processing
type AsynqServer struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	logger  *zap.Logger
	handler *tasks.TaskHandler
}

var _ Worker = (*AsynqServer)(nil)

// ServerOptions configures the Asynq server
type ServerOptions struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// NewAsynqServer creates a new Asynq server
func NewAsynqServer(opts ServerOptions, logger *zap.Logger, handler *tasks.TaskHandler) *AsynqServer {
	redisOpt := asynq.RedisClientOpt{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	config := asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			tasks.QueueReplay: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			fields := []zap.Field{
				zap.String("task_type", task.Type()),
				zap.Error(err),
			}
			if code := errorCode(err); code != "" {
				fields = append(fields, zap.String("error_code", code))
			}
			logger.Error("Task processing error", fields...)
		}),
		// A mismatch is a replay result, not a worker failure
		IsFailure: func(err error) bool {
			return err != nil && !celldockerrors.HasCode(err, celldockerrors.ErrorCodeReplayMismatch)
		},
		Logger: newAsynqLogger(logger),
	}

	return &AsynqServer{
		server:  asynq.NewServer(redisOpt, config),
		mux:     asynq.NewServeMux(),
		logger:  logger,
		handler: handler,
	}
}

// RegisterHandlers registers task handlers
func (s *AsynqServer) RegisterHandlers() {
	s.mux.HandleFunc(tasks.TypeReplayDockerfile, s.handler.HandleReplayTask)
}

// Start starts the Asynq server and blocks until ctx is done
func (s *AsynqServer) Start(ctx context.Context) error {
	s.logger.Info("Starting Asynq server")

	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("failed to start Asynq server: %w", err)
	}

	<-ctx.Done()
	return ctx.Err()
}

// Stop gracefully stops the Asynq server
func (s *AsynqServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Asynq server")
	s.server.Shutdown()
	return nil
}

// Name returns the server name
func (s *AsynqServer) Name() string {
	return "asynq-server"
}

func errorCode(err error) string {
	var celldockErr *celldockerrors.CelldockError
	if errors.As(err, &celldockErr) {
		return string(celldockErr.Code)
	}
	return ""
}

// asynqLogger routes asynq's own logging through zap
type asynqLogger struct {
	sugar *zap.SugaredLogger
}

func newAsynqLogger(logger *zap.Logger) *asynqLogger {
	return &asynqLogger{sugar: logger.Named("asynq").Sugar()}
}

func (l *asynqLogger) Debug(args ...any) { l.sugar.Debug(args...) }
func (l *asynqLogger) Info(args ...any)  { l.sugar.Info(args...) }
func (l *asynqLogger) Warn(args ...any)  { l.sugar.Warn(args...) }
func (l *asynqLogger) Error(args ...any) { l.sugar.Error(args...) }
func (l *asynqLogger) Fatal(args ...any) { l.sugar.Fatal(args...) }
