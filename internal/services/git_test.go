package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalizeRepoURL(t *testing.T) {
	assert.Equal(t, "https://github.com/acme/images.git", normalizeRepoURL("git@github.com:acme/images.git"))
	assert.Equal(t, "https://github.com/acme/images", normalizeRepoURL("github.com/acme/images"))
	assert.Equal(t, "/srv/repo", normalizeRepoURL("/srv/repo"))
}

func TestExtractRepoName(t *testing.T) {
	assert.Equal(t, "acme_images", extractRepoName("https://github.com/acme/images.git"))
	assert.Equal(t, "srv_repo", extractRepoName("file:///srv/repo"))
	assert.Equal(t, "repo", extractRepoName("repo"))
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM alpine\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("Dockerfile")
	require.NoError(t, err)
	_, err = wt.Commit("add Dockerfile", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

func TestGitService_CloneLocalRepository(t *testing.T) {
	source := initRepo(t)
	s := NewGitService(zap.NewNop(), t.TempDir())

	result, err := s.Clone(context.Background(), CloneOptions{RepoURL: source, UniqueID: "r1"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(result.Path, "Dockerfile"))
	require.NoError(t, err)
	assert.Equal(t, "FROM alpine\n", string(data))
	assert.Len(t, result.CommitSHA, 40)

	require.NoError(t, s.Cleanup(result.Path))
	_, err = os.Stat(result.Path)
	assert.True(t, os.IsNotExist(err))
}
