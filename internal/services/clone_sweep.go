package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// CloneSweeper removes replay clones that outlived their task, such as
// those of a worker that died before its deferred cleanup ran.
type CloneSweeper struct {
	cloneDir string
	maxAge   time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewCloneSweeper creates a sweeper for cloneDir. maxAge must exceed the
// replay task timeout so running replays keep their checkout.
func NewCloneSweeper(cloneDir string, maxAge time.Duration, logger *zap.Logger) *CloneSweeper {
	return &CloneSweeper{
		cloneDir: cloneDir,
		maxAge:   maxAge,
		logger:   logger,
		now:      time.Now,
	}
}

// Sweep removes every clone older than maxAge and returns how many went
func (s *CloneSweeper) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.cloneDir)
	if os.IsNotExist(err) {
		return 0, nil // Nothing cloned yet
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read clone directory: %w", err)
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.cloneDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("Failed to remove stale clone",
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}
		removed++
		s.logger.Debug("Removed stale clone", zap.String("path", path))
	}

	return removed, nil
}
