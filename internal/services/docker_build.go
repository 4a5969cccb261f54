package services

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"celldock/internal/infra"
	"celldock/internal/kernel"
)

// inlineDockerfileName is the archive entry for inline Dockerfile text
const inlineDockerfileName = "Dockerfile.celldock"

// DockerOptions configures the Docker Engine connection
type DockerOptions struct {
	Host         string
	APIVersion   string // empty negotiates with the daemon
	TLSEnabled   bool
	CACertPath   string
	CertPath     string
	KeyPath      string
	BuildTimeout time.Duration // zero means no deadline
}

// DockerOptionsFromConfig maps the docker configuration section
func DockerOptionsFromConfig(cfg infra.DockerConfig) DockerOptions {
	return DockerOptions{
		Host:         cfg.Host,
		APIVersion:   cfg.APIVersion,
		TLSEnabled:   cfg.TLSEnabled,
		CACertPath:   cfg.CAPath,
		CertPath:     cfg.CertPath,
		KeyPath:      cfg.KeyPath,
		BuildTimeout: cfg.BuildTimeout,
	}
}

// DockerBuildService runs builds on a Docker Engine. It implements
// kernel.Engine.
type DockerBuildService struct {
	client       *client.Client
	buildTimeout time.Duration
	logger       *zap.Logger
}

var _ kernel.Engine = (*DockerBuildService)(nil)

// NewDockerBuildService creates a new Docker build service
func NewDockerBuildService(opts DockerOptions, logger *zap.Logger) (*DockerBuildService, error) {
	clientOpts := []client.Opt{client.WithHost(opts.Host)}
	if opts.APIVersion != "" {
		clientOpts = append(clientOpts, client.WithVersion(opts.APIVersion))
	} else {
		clientOpts = append(clientOpts, client.WithAPIVersionNegotiation())
	}
	if opts.TLSEnabled {
		clientOpts = append(clientOpts, client.WithTLSClientConfig(opts.CACertPath, opts.CertPath, opts.KeyPath))
	}

	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return &DockerBuildService{
		client:       cli,
		buildTimeout: opts.BuildTimeout,
		logger:       logger,
	}, nil
}

// Ping checks that the daemon is reachable
func (s *DockerBuildService) Ping(ctx context.Context) error {
	if _, err := s.client.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach Docker daemon: %w", err)
	}
	return nil
}

// Close closes the Docker client
func (s *DockerBuildService) Close() error {
	return s.client.Close()
}

// Build submits one build and returns the daemon's JSON log stream.
// Intermediate containers are always removed. A build has no deadline of its
// own unless BuildTimeout is set; either way its context ends when the
// returned body is closed.
func (s *DockerBuildService) Build(ctx context.Context, req kernel.BuildRequest) (io.ReadCloser, error) {
	var (
		buildCtx context.Context
		cancel   context.CancelFunc
	)
	if s.buildTimeout > 0 {
		buildCtx, cancel = context.WithTimeout(ctx, s.buildTimeout)
	} else {
		buildCtx, cancel = context.WithCancel(ctx)
	}

	archive, dockerfile, err := createBuildContext(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create build context: %w", err)
	}

	s.logger.Debug("Submitting Docker build",
		zap.String("context_dir", req.ContextDir),
		zap.String("dockerfile", dockerfile),
	)

	resp, err := s.client.ImageBuild(buildCtx, archive, types.ImageBuildOptions{
		Dockerfile: dockerfile,
		Remove:     true,
		PullParent: false,
		Version:    types.BuilderV1,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start image build: %w", err)
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// Tag gives an image a repository reference
func (s *DockerBuildService) Tag(ctx context.Context, imageID, ref string) error {
	if err := s.client.ImageTag(ctx, imageID, ref); err != nil {
		return fmt.Errorf("failed to tag image: %w", err)
	}
	s.logger.Info("Image tagged", zap.String("image_id", imageID), zap.String("reference", ref))
	return nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// createBuildContext builds the tar archive sent to the daemon and returns
// the Dockerfile path inside it.
func createBuildContext(req kernel.BuildRequest) (io.Reader, string, error) {
	if req.Dockerfile == "" && req.ContextDir == "" {
		return nil, "", fmt.Errorf("build request has neither Dockerfile text nor a context directory")
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	if req.ContextDir != "" {
		if err := addDirectory(tw, req.ContextDir); err != nil {
			return nil, "", err
		}
	}

	dockerfile := req.DockerfileName
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	if req.Dockerfile != "" {
		dockerfile = inlineDockerfileName
		header := &tar.Header{
			Name:    dockerfile,
			Mode:    0o644,
			Size:    int64(len(req.Dockerfile)),
			ModTime: time.Unix(0, 0),
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, "", err
		}
		if _, err := io.WriteString(tw, req.Dockerfile); err != nil {
			return nil, "", err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close tar writer: %w", err)
	}
	return &buf, dockerfile, nil
}

// addDirectory writes contextPath into the archive
func addDirectory(tw *tar.Writer, contextPath string) error {
	return filepath.Walk(contextPath, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if file == contextPath {
			return nil
		}

		// Skip hidden files and directories
		if strings.HasPrefix(fi.Name(), ".") {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if fi.IsDir() && (fi.Name() == "node_modules" || fi.Name() == "vendor") {
			return filepath.SkipDir
		}
		if !fi.IsDir() && !fi.Mode().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(contextPath, file)
		if err != nil {
			return err
		}
		if relPath == inlineDockerfileName {
			return nil
		}

		header, err := tar.FileInfoHeader(fi, fi.Name())
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}

		data, err := os.Open(file)
		if err != nil {
			return err
		}
		defer data.Close()

		_, err = io.Copy(tw, data)
		return err
	})
}
