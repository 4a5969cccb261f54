package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"
)

// GitService fetches repositories that hold Dockerfiles to replay
type GitService struct {
	logger   *zap.Logger
	cloneDir string // Base directory for cloning repos
}

// NewGitService creates a new Git service
func NewGitService(logger *zap.Logger, cloneDir string) *GitService {
	return &GitService{
		logger:   logger,
		cloneDir: cloneDir,
	}
}

// CloneOptions represents options for cloning a repository
type CloneOptions struct {
	RepoURL  string
	Branch   string
	Depth    int    // 0 clones the full history
	UniqueID string // keeps concurrent clones of one repo apart
}

// CloneResult represents the result of a clone operation
type CloneResult struct {
	Path      string // Path to cloned repository
	CommitSHA string // SHA of the checked out commit
	Branch    string // Branch that was checked out
}

// Clone clones a repository below the clone directory
func (s *GitService) Clone(ctx context.Context, opts CloneOptions) (*CloneResult, error) {
	repoURL := normalizeRepoURL(opts.RepoURL)

	dirName := extractRepoName(repoURL)
	if opts.UniqueID != "" {
		dirName += "_" + opts.UniqueID
	}
	clonePath := filepath.Join(s.cloneDir, dirName)

	// Clean up existing directory if it exists
	if _, err := os.Stat(clonePath); err == nil {
		s.logger.Warn("Clone directory already exists, removing", zap.String("path", clonePath))
		if err := os.RemoveAll(clonePath); err != nil {
			return nil, fmt.Errorf("failed to remove existing directory: %w", err)
		}
	}

	if err := os.MkdirAll(s.cloneDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create clone directory: %w", err)
	}

	gitCloneOpts := &git.CloneOptions{
		URL:   repoURL,
		Depth: opts.Depth,
	}
	if opts.Branch != "" {
		gitCloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
		gitCloneOpts.SingleBranch = true
	}

	s.logger.Info("Cloning repository",
		zap.String("repo_url", repoURL),
		zap.String("branch", opts.Branch),
		zap.Int("depth", opts.Depth),
		zap.String("clone_path", clonePath),
	)

	repo, err := git.PlainCloneContext(ctx, clonePath, false, gitCloneOpts)
	if err != nil {
		_ = os.RemoveAll(clonePath)
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}

	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD reference: %w", err)
	}

	result := &CloneResult{
		Path:      clonePath,
		CommitSHA: ref.Hash().String(),
		Branch:    ref.Name().Short(),
	}

	s.logger.Info("Repository cloned successfully",
		zap.String("clone_path", result.Path),
		zap.String("commit_sha", result.CommitSHA),
		zap.String("branch", result.Branch),
	)

	return result, nil
}

// Cleanup removes a cloned repository
func (s *GitService) Cleanup(clonePath string) error {
	if err := os.RemoveAll(clonePath); err != nil {
		return fmt.Errorf("failed to remove clone directory: %w", err)
	}
	s.logger.Info("Cleaned up clone directory", zap.String("path", clonePath))
	return nil
}

// normalizeRepoURL converts GitHub SSH URLs to HTTPS
func normalizeRepoURL(url string) string {
	if strings.HasPrefix(url, "git@github.com:") {
		url = strings.Replace(url, "git@github.com:", "https://github.com/", 1)
	}
	if strings.HasPrefix(url, "github.com/") {
		url = "https://" + url
	}
	return url
}

var unsafeDirChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// extractRepoName turns a repository URL into a directory name
func extractRepoName(url string) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "file://")
	url = strings.TrimSuffix(url, ".git")
	url = strings.Trim(url, "/")

	// Format: host/owner/repo
	parts := strings.Split(url, "/")
	if len(parts) >= 3 {
		url = parts[len(parts)-2] + "_" + parts[len(parts)-1]
	}
	return strings.Trim(unsafeDirChars.ReplaceAllString(url, "_"), "_")
}
