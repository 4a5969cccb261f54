package kernel

import (
	"context"
	"io"
	"time"
)

// BuildRequest is a build context handed to the engine. Dockerfile holds
// inline instruction text; when it is empty the engine builds DockerfileName
// from ContextDir. ContextDir alone only supplies files for COPY and ADD.
type BuildRequest struct {
	Dockerfile     string
	ContextDir     string
	DockerfileName string
}

// Engine is the build engine boundary. Build returns the engine's JSON log
// stream; intermediate containers are always removed. An error from Build
// itself is a transport or daemon failure.
type Engine interface {
	Build(ctx context.Context, req BuildRequest) (io.ReadCloser, error)
	Tag(ctx context.Context, imageID, ref string) error
}

// StageRecorder receives every committed stage, for history outside the
// process. It never influences the chain.
type StageRecorder interface {
	RecordStage(ctx context.Context, sessionID string, stage BuildStage) error
}

// Clock is swapped in tests
type Clock func() time.Time
