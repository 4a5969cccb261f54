package kernel

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"celldock/internal/buildlog"
	"celldock/internal/commands"
	celldockerrors "celldock/internal/errors"
)

// Status is the terminal status of an execution
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Reply is what one cell execution returns to the session once its build
// output has been relayed.
type Reply struct {
	Status    Status
	Display   string // display-only text from a command
	NextInput string // proposed replacement text for the cell
	ImageID   string // checkpoint after the execution, empty when none
	Stage     *BuildStage
	Error     *celldockerrors.CelldockError // dispatch error shown to the user
}

// Info summarizes the kernel state
type Info struct {
	SessionID string
	ImageID   string
	Stages    int
}

// Options configures a kernel
type Options struct {
	SessionID  string
	Marker     string
	ContextDir string // build context for COPY and ADD, optional
	Registry   *commands.Registry
	Recorder   StageRecorder
	Clock      Clock
	Logger     *zap.Logger
}

// Kernel executes cells for one session. It owns the session's image chain;
// executions are serialized so at most one build is outstanding per chain.
type Kernel struct {
	mu         sync.Mutex
	sessionID  string
	contextDir string
	engine     Engine
	dispatcher *commands.Dispatcher
	chain      ImageChain
	recorder   StageRecorder
	clock      Clock
	logger     *zap.Logger
}

// New creates a kernel with an empty chain
func New(engine Engine, opts Options) *Kernel {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session_id", opts.SessionID))

	registry := opts.Registry
	if registry == nil {
		registry = commands.NewDefaultRegistry()
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Kernel{
		sessionID:  opts.SessionID,
		contextDir: opts.ContextDir,
		engine:     engine,
		dispatcher: commands.NewDispatcher(registry, opts.Marker, logger),
		recorder:   opts.Recorder,
		clock:      clock,
		logger:     logger,
	}
}

// Execute runs one cell. Build output is written to out while the build
// runs. Dispatch errors come back as a Reply with StatusError; build engine
// failures, malformed logs and builds without an image come back as errors.
// In every non-committing case the chain is left exactly as it was.
func (k *Kernel) Execute(ctx context.Context, cell string, out io.Writer) (*Reply, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var (
		text         string
		instructions []string
		nextInput    string
	)

	if k.dispatcher.IsCommand(cell) {
		result, err := k.dispatcher.Dispatch(ctx, cell, kernelEnv{k})
		if err != nil {
			if celldockErr, ok := celldockerrors.AsCelldockError(err); ok && celldockerrors.IsDispatchError(err) {
				return &Reply{
					Status:  StatusError,
					Display: celldockErr.Display(),
					ImageID: k.checkpoint(),
					Error:   celldockErr,
				}, nil
			}
			return nil, err
		}
		if result.DisplayOnly() {
			return &Reply{
				Status:    StatusOK,
				Display:   result.Display,
				NextInput: result.NextInput,
				ImageID:   k.checkpoint(),
			}, nil
		}
		instructions = result.Instructions
		nextInput = result.NextInput
		text = strings.Join(instructions, "\n")
	} else {
		if strings.TrimSpace(cell) == "" {
			return &Reply{Status: StatusOK, ImageID: k.checkpoint()}, nil
		}
		text = cell
		instructions = strings.Split(strings.TrimRight(cell, "\n"), "\n")
	}

	base, hasBase := k.chain.Checkpoint()
	dockerfile := text
	if hasBase {
		dockerfile = "FROM " + base + "\n" + text
	}

	imageID, err := k.build(ctx, dockerfile, out)
	if err != nil {
		k.logger.Warn("Cell build failed",
			zap.Int("stages", k.chain.Len()),
			zap.Error(err),
		)
		return nil, err
	}

	stage := k.chain.commit(instructions, base, imageID, k.clock())
	k.logger.Info("Stage committed",
		zap.Int("position", stage.Position),
		zap.String("base_image_id", base),
		zap.String("image_id", imageID),
	)
	k.record(ctx, stage)

	return &Reply{
		Status:    StatusOK,
		NextInput: nextInput,
		ImageID:   imageID,
		Stage:     &stage,
	}, nil
}

// build submits one build and drains its log. It returns the image ID only
// when the log announced one.
func (k *Kernel) build(ctx context.Context, dockerfile string, out io.Writer) (string, error) {
	body, err := k.engine.Build(ctx, BuildRequest{Dockerfile: dockerfile, ContextDir: k.contextDir})
	if err != nil {
		return "", celldockerrors.Wrap(celldockerrors.ErrorCodeBuildEngineFailure, err)
	}
	defer body.Close()

	outcome, err := buildlog.Drain(buildlog.Decode(body), out)
	if err != nil {
		return "", err
	}
	if outcome.RelayErr != nil {
		k.logger.Warn("Build output could not be relayed", zap.Error(outcome.RelayErr))
	}
	if outcome.ImageID == "" {
		return "", celldockerrors.New(celldockerrors.ErrorCodeNoImageProduced, outcome.LastError())
	}
	return outcome.ImageID, nil
}

func (k *Kernel) record(ctx context.Context, stage BuildStage) {
	if k.recorder == nil {
		return
	}
	if err := k.recorder.RecordStage(ctx, k.sessionID, stage); err != nil {
		k.logger.Error("Failed to record stage",
			zap.Int("position", stage.Position),
			zap.Error(err),
		)
	}
}

func (k *Kernel) checkpoint() string {
	id, _ := k.chain.Checkpoint()
	return id
}

// Info returns the current checkpoint and chain length
func (k *Kernel) Info() Info {
	k.mu.Lock()
	defer k.mu.Unlock()
	return Info{
		SessionID: k.sessionID,
		ImageID:   k.checkpoint(),
		Stages:    k.chain.Len(),
	}
}

// Stages returns copies of the committed stages
func (k *Kernel) Stages() []BuildStage {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.chain.Stages()
}

// CommandNames returns the registered command names
func (k *Kernel) CommandNames() []string {
	return k.dispatcher.Registry().Names()
}

// kernelEnv is the read-only view commands get. Its methods run while the
// kernel lock is held by Execute.
type kernelEnv struct {
	k *Kernel
}

func (e kernelEnv) Checkpoint() (string, bool) {
	return e.k.chain.Checkpoint()
}

func (e kernelEnv) History() []commands.StageSummary {
	stages := e.k.chain.Stages()
	summaries := make([]commands.StageSummary, len(stages))
	for i, s := range stages {
		summaries[i] = commands.StageSummary{
			Position:     s.Position,
			BaseImageID:  s.BaseImageID,
			ImageID:      s.ImageID,
			Instructions: s.Instructions,
		}
	}
	return summaries
}

func (e kernelEnv) CommandNames() []string {
	return e.k.dispatcher.Registry().Names()
}

func (e kernelEnv) TagImage(ctx context.Context, imageID, ref string) error {
	return e.k.engine.Tag(ctx, imageID, ref)
}
