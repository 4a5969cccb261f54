package services

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	celldockerrors "celldock/internal/errors"
	"celldock/internal/kernel"
)

func readArchive(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	files := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files
		}
		require.NoError(t, err)
		if header.Typeflag == tar.TypeDir {
			files[header.Name+"/"] = ""
			continue
		}
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[header.Name] = string(data)
	}
}

func TestCreateBuildContext_InlineOnly(t *testing.T) {
	archive, dockerfile, err := createBuildContext(kernel.BuildRequest{Dockerfile: "FROM alpine\nRUN true"})
	require.NoError(t, err)

	assert.Equal(t, inlineDockerfileName, dockerfile)
	assert.Equal(t, map[string]string{inlineDockerfileName: "FROM alpine\nRUN true"}, readArchive(t, archive))
}

func TestCreateBuildContext_DirectoryWithInlineDockerfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "conf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf", "a.ini"), []byte("x=1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".secret"), []byte("no"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))

	archive, dockerfile, err := createBuildContext(kernel.BuildRequest{
		Dockerfile: "FROM sha256:abc\nCOPY app.txt /",
		ContextDir: dir,
	})
	require.NoError(t, err)

	assert.Equal(t, inlineDockerfileName, dockerfile)
	assert.Equal(t, map[string]string{
		"app.txt":            "hello",
		"conf/":              "",
		"conf/a.ini":         "x=1",
		inlineDockerfileName: "FROM sha256:abc\nCOPY app.txt /",
	}, readArchive(t, archive))
}

func TestCreateBuildContext_DirectoryDockerfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.Dockerfile"), []byte("FROM alpine"), 0o644))

	archive, dockerfile, err := createBuildContext(kernel.BuildRequest{
		ContextDir:     dir,
		DockerfileName: "build.Dockerfile",
	})
	require.NoError(t, err)

	assert.Equal(t, "build.Dockerfile", dockerfile)
	assert.Equal(t, map[string]string{"build.Dockerfile": "FROM alpine"}, readArchive(t, archive))
}

func TestCreateBuildContext_EmptyRequest(t *testing.T) {
	_, _, err := createBuildContext(kernel.BuildRequest{})
	require.Error(t, err)
}

func TestCreateBuildContext_MissingDirectory(t *testing.T) {
	_, _, err := createBuildContext(kernel.BuildRequest{ContextDir: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
}

const slowBuildImageID = "sha256:00000000000000000000000000000000000000000000000000000000000000aa"

// newSlowDaemon serves /build by sending one log record, pausing, then
// announcing the image.
func newSlowDaemon(t *testing.T, pause time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/build") {
			http.NotFound(w, r)
			return
		}
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"stream":"Step 1/1 : FROM scratch\n"}`)
		w.(http.Flusher).Flush()
		time.Sleep(pause)
		fmt.Fprintf(w, `{"aux":{"ID":%q}}`+"\n", slowBuildImageID)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestDockerService(t *testing.T, srv *httptest.Server, timeout time.Duration) *DockerBuildService {
	t.Helper()
	svc, err := NewDockerBuildService(DockerOptions{
		Host:         "tcp://" + srv.Listener.Addr().String(),
		APIVersion:   "1.43",
		BuildTimeout: timeout,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestBuild_NoTimeoutRunsToCompletion(t *testing.T) {
	srv := newSlowDaemon(t, 150*time.Millisecond)
	svc := newTestDockerService(t, srv, 0)

	var out bytes.Buffer
	k := kernel.New(svc, kernel.Options{})
	reply, err := k.Execute(context.Background(), "FROM scratch", &out)
	require.NoError(t, err)

	require.NotNil(t, reply.Stage)
	assert.Equal(t, slowBuildImageID, reply.ImageID)
	assert.Equal(t, 1, k.Info().Stages)
	assert.Contains(t, out.String(), "Step 1/1 : FROM scratch")
}

func TestBuild_ConfiguredTimeoutAbortsBuild(t *testing.T) {
	srv := newSlowDaemon(t, 300*time.Millisecond)
	svc := newTestDockerService(t, srv, 50*time.Millisecond)

	k := kernel.New(svc, kernel.Options{})
	_, err := k.Execute(context.Background(), "FROM scratch", io.Discard)
	require.Error(t, err)

	assert.True(t, celldockerrors.HasCode(err, celldockerrors.ErrorCodeBuildEngineFailure))
	assert.Zero(t, k.Info().Stages)
}
