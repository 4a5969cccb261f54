package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	celldockerrors "celldock/internal/errors"
	"celldock/internal/replay"
	"celldock/internal/services"
)

// GitService interface for fetching repositories
type GitService interface {
	Clone(ctx context.Context, opts services.CloneOptions) (*services.CloneResult, error)
	Cleanup(clonePath string) error
}

// ReplayRunner interface for executing replays
type ReplayRunner interface {
	Run(ctx context.Context, req replay.Request, out io.Writer) (*replay.Result, error)
}

// TaskHandler handles task processing
type TaskHandler struct {
	logger     *zap.Logger
	gitService GitService
	runner     ReplayRunner
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(logger *zap.Logger, gitService GitService, runner ReplayRunner) *TaskHandler {
	return &TaskHandler{
		logger:     logger,
		gitService: gitService,
		runner:     runner,
	}
}

// replayResult is written back to the task for status queries
type replayResult struct {
	ImageID          string `json:"image_id"`
	WholeFileImageID string `json:"whole_file_image_id,omitempty"`
	Cells            int    `json:"cells"`
	Executed         int    `json:"executed"`
}

// HandleReplayTask processes replay tasks
func (h *TaskHandler) HandleReplayTask(ctx context.Context, t *asynq.Task) error {
	var payload ReplayPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal replay task payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid replay task payload: %v: %w", err, asynq.SkipRetry)
	}

	logger := h.logger.With(zap.String("replay_id", payload.ReplayID))
	logger.Info("Processing replay task",
		zap.String("session_id", payload.SessionID),
		zap.String("request_id", payload.RequestID),
		zap.String("repo_url", payload.RepoURL),
		zap.String("branch", payload.Branch),
	)

	req := replay.Request{
		ID:         payload.ReplayID,
		Dockerfile: payload.Dockerfile,
		Compare:    payload.Compare,
	}

	if payload.RepoURL != "" {
		if h.gitService == nil {
			return fmt.Errorf("git service not configured")
		}
		cloneResult, err := h.gitService.Clone(ctx, services.CloneOptions{
			RepoURL:  payload.RepoURL,
			Branch:   payload.Branch,
			Depth:    1,
			UniqueID: payload.ReplayID,
		})
		if err != nil {
			logger.Error("Repository clone failed", zap.Error(err))
			return fmt.Errorf("failed to clone repository: %w", err)
		}
		defer func() {
			if err := h.gitService.Cleanup(cloneResult.Path); err != nil {
				logger.Warn("Failed to clean up clone", zap.Error(err))
			}
		}()

		dockerfilePath := payload.DockerfilePath()
		req.ContextDir = filepath.Join(cloneResult.Path, filepath.Dir(dockerfilePath))
		req.DockerfileName = filepath.Base(dockerfilePath)
		// A repository always provides a context to compare against
		req.Compare = true
	}

	result, err := h.runner.Run(ctx, req, &logWriter{logger: logger})
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		if celldockErr, ok := celldockerrors.AsCelldockError(err); ok {
			fields = append(fields, zap.String("error_code", string(celldockErr.Code)))
		}
		logger.Error("Replay failed", fields...)
		return err
	}

	logger.Info("Replay completed",
		zap.String("image_id", result.ImageID),
		zap.Int("cells", result.Cells),
	)

	if w := t.ResultWriter(); w != nil {
		out, err := json.Marshal(replayResult{
			ImageID:          result.ImageID,
			WholeFileImageID: result.WholeFileImageID,
			Cells:            result.Cells,
			Executed:         result.Executed,
		})
		if err == nil {
			if _, err := w.Write(out); err != nil {
				logger.Warn("Failed to write replay result", zap.Error(err))
			}
		}
	}
	return nil
}

// logWriter sends relayed build output to the worker log
type logWriter struct {
	logger *zap.Logger
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.logger.Debug("Build output", zap.String("text", strings.TrimRight(string(p), "\n")))
	return len(p), nil
}
