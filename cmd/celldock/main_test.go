package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	celldockerrors "celldock/internal/errors"
	"celldock/internal/kernel"
)

type countingEngine struct {
	builds []kernel.BuildRequest
}

func (e *countingEngine) Build(_ context.Context, req kernel.BuildRequest) (io.ReadCloser, error) {
	e.builds = append(e.builds, req)
	log := `{"stream":"building\n"}` + "\n" + `{"aux":{"ID":"` + digestOf(len(e.builds)) + `"}}` + "\n"
	return io.NopCloser(strings.NewReader(log)), nil
}

func (e *countingEngine) Tag(context.Context, string, string) error {
	return nil
}

func digestOf(n int) string {
	return fmt.Sprintf("sha256:%064x", n)
}

func execute(t *testing.T, engine kernel.Engine, stdin string, args ...string) (string, string, error) {
	t.Helper()
	a := &app{newEngine: func(context.Context, *app) (kernel.Engine, func() error, error) {
		return engine, func() error { return nil }, nil
	}}

	var stdout, stderr bytes.Buffer
	root := newRootCommand(a)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeDockerfile(t *testing.T, text string) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "Dockerfile")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return dir, path
}

func TestCells(t *testing.T) {
	_, path := writeDockerfile(t, "#md Base image\nFROM alpine\n\nRUN apk add git\n")

	stdout, _, err := execute(t, &countingEngine{}, "", "cells", path)
	require.NoError(t, err)
	assert.Equal(t, "--- cell 1 (markdown)\nBase image\nFROM alpine\n--- cell 2 (code)\nRUN apk add git\n", stdout)
}

func TestCells_Notebook(t *testing.T) {
	_, path := writeDockerfile(t, "FROM alpine\n\nRUN true\n")

	stdout, _, err := execute(t, &countingEngine{}, "", "cells", "--ipynb", path)
	require.NoError(t, err)

	var nb struct {
		NBFormat int `json:"nbformat"`
		Cells    []struct {
			CellType string   `json:"cell_type"`
			Source   []string `json:"source"`
		} `json:"cells"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &nb))
	assert.Equal(t, 4, nb.NBFormat)
	require.Len(t, nb.Cells, 2)
	assert.Equal(t, []string{"RUN true"}, nb.Cells[1].Source)
}

func TestRepl(t *testing.T) {
	engine := &countingEngine{}
	stdin := "FROM alpine\n\nRUN echo one\nRUN echo two\n\n%nope\n\n%image\n:q\nRUN never\n"

	stdout, stderr, err := execute(t, engine, stdin, "repl")
	require.NoError(t, err)

	require.Len(t, engine.builds, 2)
	assert.Equal(t, "FROM alpine", engine.builds[0].Dockerfile)
	assert.Equal(t, "FROM "+digestOf(1)+"\nRUN echo one\nRUN echo two", engine.builds[1].Dockerfile)
	assert.Contains(t, stdout, "building\n")
	assert.Contains(t, stdout, digestOf(2))
	assert.Contains(t, stderr, "=> "+digestOf(2))
	assert.Contains(t, stderr, "UNKNOWN_COMMAND: ")
}

func TestRepl_SubmitsLastCellAtEndOfInput(t *testing.T) {
	engine := &countingEngine{}

	_, _, err := execute(t, engine, "FROM alpine", "repl")
	require.NoError(t, err)
	assert.Len(t, engine.builds, 1)
}

func TestRun(t *testing.T) {
	engine := &countingEngine{}
	dir, path := writeDockerfile(t, "FROM alpine\n\n#cellStart\nRUN echo a\n\nRUN echo b\n#cellEnd\n")

	stdout, _, err := execute(t, engine, "", "run", path)
	require.NoError(t, err)
	assert.Equal(t, digestOf(2)+"\n", stdout)
	require.Len(t, engine.builds, 2)
	assert.Equal(t, dir, engine.builds[1].ContextDir)
	assert.Equal(t, "FROM "+digestOf(1)+"\nRUN echo a\n\nRUN echo b", engine.builds[1].Dockerfile)
}

func TestVerify_ReportsMismatch(t *testing.T) {
	engine := &countingEngine{}
	dir, _ := writeDockerfile(t, "FROM alpine\n")

	_, _, err := execute(t, engine, "", "verify", dir)
	require.Error(t, err)
	assert.True(t, celldockerrors.HasCode(err, celldockerrors.ErrorCodeReplayMismatch))
	require.Len(t, engine.builds, 2)
	assert.Equal(t, "Dockerfile", engine.builds[1].DockerfileName)
}

func TestMarkerMustNotBeEmpty(t *testing.T) {
	_, _, err := execute(t, &countingEngine{}, "", "--marker", "", "repl")
	assert.EqualError(t, err, "--marker must not be empty")
}
