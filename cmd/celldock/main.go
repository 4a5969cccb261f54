package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"celldock/internal/infra"
	"celldock/internal/kernel"
	"celldock/internal/notebook"
	"celldock/internal/replay"
	"celldock/internal/services"
)

const defaultLogLevel = "warn"

// engineFactory opens a build engine; tests swap it for a fake
type engineFactory func(ctx context.Context, app *app) (kernel.Engine, func() error, error)

type app struct {
	logLevel   string
	dockerHost string
	marker     string
	logger     *zap.Logger
	newEngine  engineFactory
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{newEngine: dockerEngine}
	root := newRootCommand(a)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "celldock",
		Short:         "Build container images one Dockerfile cell at a time",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", defaultLogLevel, "Set log verbosity (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.dockerHost, "docker-host", "unix:///var/run/docker.sock", "Docker Engine address")
	root.PersistentFlags().StringVar(&a.marker, "marker", "%", "Leading text that turns a cell into a command")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if a.marker == "" {
			return fmt.Errorf("--marker must not be empty")
		}
		logger, err := infra.NewLogger(a.logLevel, true)
		if err != nil {
			return err
		}
		a.logger = logger
		return nil
	}

	root.AddCommand(
		newReplCommand(a),
		newRunCommand(a),
		newVerifyCommand(a),
		newCellsCommand(a),
	)
	return root
}

func dockerEngine(ctx context.Context, a *app) (kernel.Engine, func() error, error) {
	engine, err := services.NewDockerBuildService(services.DockerOptions{Host: a.dockerHost}, a.logger)
	if err != nil {
		return nil, nil, err
	}
	if err := engine.Ping(ctx); err != nil {
		engine.Close()
		return nil, nil, fmt.Errorf("docker engine unreachable: %w", err)
	}
	return engine, engine.Close, nil
}

func newReplCommand(a *app) *cobra.Command {
	var contextDir string

	cmd := &cobra.Command{
		Use:   "repl",
		Args:  cobra.NoArgs,
		Short: "Read cells from stdin, separated by blank lines, and build each one on the last",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeEngine, err := a.newEngine(cmd.Context(), a)
			if err != nil {
				return err
			}
			defer closeEngine()

			k := kernel.New(engine, kernel.Options{
				SessionID:  uuid.NewString(),
				Marker:     a.marker,
				ContextDir: contextDir,
				Logger:     a.logger,
			})
			return runRepl(cmd.Context(), k, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&contextDir, "context", "", "Directory supplying files for COPY and ADD")
	return cmd
}

func newRunCommand(a *app) *cobra.Command {
	var contextDir string

	cmd := &cobra.Command{
		Use:   "run <dockerfile>",
		Args:  cobra.ExactArgs(1),
		Short: "Build a Dockerfile cell by cell and print the final image ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if contextDir == "" {
				contextDir = filepath.Dir(args[0])
			}
			return a.replay(cmd, replay.Request{
				ID:         uuid.NewString(),
				Dockerfile: string(text),
				ContextDir: contextDir,
			})
		},
	}

	cmd.Flags().StringVar(&contextDir, "context", "", "Build context directory (defaults to the Dockerfile's directory)")
	return cmd
}

func newVerifyCommand(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "verify <context-dir>",
		Args:  cobra.ExactArgs(1),
		Short: "Build a Dockerfile cell by cell and as a whole, and fail when the images differ",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.replay(cmd, replay.Request{
				ID:             uuid.NewString(),
				ContextDir:     args[0],
				DockerfileName: file,
				Compare:        true,
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "Dockerfile", "Dockerfile path inside the context directory")
	return cmd
}

func (a *app) replay(cmd *cobra.Command, req replay.Request) error {
	engine, closeEngine, err := a.newEngine(cmd.Context(), a)
	if err != nil {
		return err
	}
	defer closeEngine()

	runner := replay.NewRunner(engine, replay.Options{Marker: a.marker, Logger: a.logger})
	result, err := runner.Run(cmd.Context(), req, cmd.ErrOrStderr())
	if result != nil {
		a.logger.Info("Replay finished",
			zap.Int("cells", result.Cells),
			zap.Int("executed", result.Executed),
		)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.ImageID)
	return nil
}

func newCellsCommand(a *app) *cobra.Command {
	var ipynb bool

	cmd := &cobra.Command{
		Use:   "cells <dockerfile>",
		Args:  cobra.ExactArgs(1),
		Short: "Show how a Dockerfile splits into cells",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cells := notebook.Split(string(text))

			out := cmd.OutOrStdout()
			if ipynb {
				data, err := notebook.ToNotebook(cells).MarshalIndent()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}

			for i, c := range cells {
				fmt.Fprintf(out, "--- cell %d (%s)\n%s\n", i+1, c.Kind, c.Source)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ipynb, "ipynb", false, "Write the cells as a Jupyter notebook")
	return cmd
}
