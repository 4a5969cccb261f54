package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TaskClient wraps Asynq client for task enqueueing
type TaskClient struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	logger    *zap.Logger
}

// NewTaskClient creates a new task client
func NewTaskClient(redisAddr, redisPassword string, redisDB int, logger *zap.Logger) *TaskClient {
	redisOpt := asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	}

	return &TaskClient{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		logger:    logger,
	}
}

// Close closes the task client
func (c *TaskClient) Close() error {
	if err := c.inspector.Close(); err != nil {
		c.logger.Warn("Failed to close task inspector", zap.Error(err))
	}
	return c.client.Close()
}

// NewReplayTask builds a replay task. The replay ID doubles as the task ID so
// the same replay is never queued twice.
func NewReplayTask(payload ReplayPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid replay payload: %w", err)
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal replay task payload: %w", err)
	}

	return asynq.NewTask(TypeReplayDockerfile, payloadBytes,
		asynq.TaskID(payload.ReplayID),
		// No retries - a failed replay is a result
		asynq.MaxRetry(0),
		asynq.Timeout(60*time.Minute),
		asynq.Queue(QueueReplay),
		// Keep results for status queries
		asynq.Retention(24*time.Hour),
	), nil
}

// EnqueueReplay enqueues a replay task
func (c *TaskClient) EnqueueReplay(ctx context.Context, payload ReplayPayload) (*asynq.TaskInfo, error) {
	task, err := NewReplayTask(payload)
	if err != nil {
		return nil, err
	}

	taskInfo, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue replay task: %w", err)
	}

	c.logger.Info("Replay task enqueued",
		zap.String("task_id", taskInfo.ID),
		zap.String("session_id", payload.SessionID),
		zap.String("repo_url", payload.RepoURL),
	)

	return taskInfo, nil
}

// ReplayStatus looks up a replay task by its ID
func (c *TaskClient) ReplayStatus(_ context.Context, replayID string) (*asynq.TaskInfo, error) {
	info, err := c.inspector.GetTaskInfo(QueueReplay, replayID)
	if err != nil {
		return nil, fmt.Errorf("failed to get replay task: %w", err)
	}
	return info, nil
}
