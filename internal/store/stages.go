package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"celldock/internal/kernel"
)

// DBTX is the subset of a pgx pool the store needs
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// StageStore records committed stages in Postgres. It implements
// kernel.StageRecorder.
type StageStore struct {
	db     DBTX
	logger *zap.Logger
}

var _ kernel.StageRecorder = (*StageStore)(nil)

// NewStageStore creates a new stage store
func NewStageStore(db DBTX, logger *zap.Logger) *StageStore {
	return &StageStore{
		db:     db,
		logger: logger,
	}
}

const insertStageSQL = `INSERT INTO build_stages (session_id, position, base_image_id, image_id, instructions, committed_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (session_id, position) DO UPDATE
SET base_image_id = EXCLUDED.base_image_id, image_id = EXCLUDED.image_id,
    instructions = EXCLUDED.instructions, committed_at = EXCLUDED.committed_at`

// RecordStage stores one committed stage
func (s *StageStore) RecordStage(ctx context.Context, sessionID string, stage kernel.BuildStage) error {
	_, err := s.db.Exec(ctx, insertStageSQL,
		sessionID, stage.Position, stage.BaseImageID, stage.ImageID, stage.Instructions, stage.CommittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record stage %d: %w", stage.Position, err)
	}
	s.logger.Debug("Stage recorded",
		zap.String("session_id", sessionID),
		zap.Int("position", stage.Position),
	)
	return nil
}

const listStagesSQL = `SELECT position, base_image_id, image_id, instructions, committed_at
FROM build_stages WHERE session_id = $1 ORDER BY position`

// ListStages returns the recorded stages of a session in chain order
func (s *StageStore) ListStages(ctx context.Context, sessionID string) ([]kernel.BuildStage, error) {
	rows, err := s.db.Query(ctx, listStagesSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var stages []kernel.BuildStage
	for rows.Next() {
		var stage kernel.BuildStage
		if err := rows.Scan(&stage.Position, &stage.BaseImageID, &stage.ImageID, &stage.Instructions, &stage.CommittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, stage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	return stages, nil
}

// DeleteSession removes the history of a session
func (s *StageStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM build_stages WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete stages: %w", err)
	}
	return nil
}
