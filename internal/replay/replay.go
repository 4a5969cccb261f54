// Package replay executes a whole Dockerfile cell by cell on a fresh kernel
// and optionally checks the result against a single whole-file build.
package replay

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"celldock/internal/buildlog"
	celldockerrors "celldock/internal/errors"
	"celldock/internal/kernel"
	"celldock/internal/notebook"
)

// Request describes one replay. Dockerfile text wins over DockerfileName,
// which is read from ContextDir.
type Request struct {
	ID             string
	Dockerfile     string
	ContextDir     string
	DockerfileName string
	Compare        bool // also build the whole file in one call
}

// Result is the outcome of a successful replay
type Result struct {
	ID               string
	Cells            int
	Executed         int
	ImageID          string
	WholeFileImageID string
	Stages           []kernel.BuildStage
}

// Options configures a Runner
type Options struct {
	Marker   string
	Recorder kernel.StageRecorder
	Logger   *zap.Logger
}

// Runner replays Dockerfiles against one engine
type Runner struct {
	engine   kernel.Engine
	marker   string
	recorder kernel.StageRecorder
	logger   *zap.Logger
}

// NewRunner creates a new replay runner
func NewRunner(engine kernel.Engine, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		engine:   engine,
		marker:   opts.Marker,
		recorder: opts.Recorder,
		logger:   logger,
	}
}

// Run executes every code cell in order and stops at the first failure.
// Build output of every cell is written to out.
func (r *Runner) Run(ctx context.Context, req Request, out io.Writer) (*Result, error) {
	text, err := dockerfileText(req)
	if err != nil {
		return nil, err
	}

	cells := notebook.Code(notebook.Split(text))
	k := kernel.New(r.engine, kernel.Options{
		SessionID:  req.ID,
		Marker:     r.marker,
		ContextDir: req.ContextDir,
		Recorder:   r.recorder,
		Logger:     r.logger,
	})

	logger := r.logger.With(zap.String("replay_id", req.ID))
	logger.Info("Replaying Dockerfile", zap.Int("cells", len(cells)))

	result := &Result{ID: req.ID, Cells: len(cells)}
	for i, cell := range cells {
		reply, err := k.Execute(ctx, cell, out)
		if err != nil {
			return result, fmt.Errorf("cell %d: %w", i+1, err)
		}
		if reply.Status == kernel.StatusError {
			return result, fmt.Errorf("cell %d: %w", i+1, reply.Error)
		}
		result.Executed++
	}

	info := k.Info()
	result.ImageID = info.ImageID
	result.Stages = k.Stages()

	if !req.Compare {
		return result, nil
	}

	wholeID, err := r.buildWholeFile(ctx, req, text)
	if err != nil {
		return result, fmt.Errorf("whole-file build: %w", err)
	}
	result.WholeFileImageID = wholeID

	if wholeID != result.ImageID {
		logger.Warn("Replay produced a different image",
			zap.String("cell_image_id", result.ImageID),
			zap.String("whole_file_image_id", wholeID),
		)
		return result, celldockerrors.Newf(celldockerrors.ErrorCodeReplayMismatch,
			"cell-wise build produced %s, whole-file build produced %s", result.ImageID, wholeID)
	}

	logger.Info("Replay matches whole-file build", zap.String("image_id", wholeID))
	return result, nil
}

// buildWholeFile builds the Dockerfile in one call and returns its image ID
func (r *Runner) buildWholeFile(ctx context.Context, req Request, text string) (string, error) {
	buildReq := kernel.BuildRequest{ContextDir: req.ContextDir, DockerfileName: req.DockerfileName}
	if req.Dockerfile != "" || req.ContextDir == "" {
		buildReq.Dockerfile = text
	}

	body, err := r.engine.Build(ctx, buildReq)
	if err != nil {
		return "", celldockerrors.Wrap(celldockerrors.ErrorCodeBuildEngineFailure, err)
	}
	defer body.Close()

	outcome, err := buildlog.Drain(buildlog.Decode(body), io.Discard)
	if err != nil {
		return "", err
	}
	if outcome.ImageID == "" {
		return "", celldockerrors.New(celldockerrors.ErrorCodeNoImageProduced, outcome.LastError())
	}
	return outcome.ImageID, nil
}

func dockerfileText(req Request) (string, error) {
	if req.Dockerfile != "" {
		return req.Dockerfile, nil
	}
	if req.ContextDir == "" || req.DockerfileName == "" {
		return "", celldockerrors.New(celldockerrors.ErrorCodeInvalidDockerfile, "no Dockerfile text or file given")
	}
	data, err := os.ReadFile(filepath.Join(req.ContextDir, req.DockerfileName))
	if err != nil {
		return "", celldockerrors.Wrap(celldockerrors.ErrorCodeInvalidDockerfile, err, "reading "+req.DockerfileName)
	}
	return string(data), nil
}
