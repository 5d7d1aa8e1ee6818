package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rocketDuck/folivora/internal/domain"
)

// SyncStateRepository handles database operations for feed checkpoints.
type SyncStateRepository struct {
	db *sqlx.DB
}

// NewSyncStateRepository creates a new sync state repository.
func NewSyncStateRepository(db *sqlx.DB) *SyncStateRepository {
	return &SyncStateRepository{db: db}
}

// GetOrCreate returns the checkpoint for a feed type, initializing it
// to def on first use. A fresh install starts at "now" so the entire
// upstream history is never replayed.
func (r *SyncStateRepository) GetOrCreate(ctx context.Context, feedType string, def time.Time) (*domain.SyncState, error) {
	insertQuery := `
		INSERT INTO sync_state (type, last_sync)
		VALUES ($1, $2)
		ON CONFLICT (type) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, insertQuery, feedType, def); err != nil {
		return nil, fmt.Errorf("insert sync state: %w", err)
	}

	selectQuery := `SELECT id, type, last_sync FROM sync_state WHERE type = $1`

	var state domain.SyncState
	if err := r.db.GetContext(ctx, &state, selectQuery, feedType); err != nil {
		return nil, fmt.Errorf("select sync state: %w", err)
	}
	return &state, nil
}

// Advance moves the checkpoint from expected to next with a
// compare-and-swap, so two syncs racing on the same window cannot both
// advance it. Regressions are rejected outright.
func (r *SyncStateRepository) Advance(ctx context.Context, feedType string, expected, next time.Time) error {
	if next.Before(expected) {
		return fmt.Errorf("checkpoint for %s may not move backwards", feedType)
	}

	query := `
		UPDATE sync_state
		SET last_sync = $3
		WHERE type = $1 AND last_sync = $2
	`

	result, err := r.db.ExecContext(ctx, query, feedType, expected, next)
	return execRequireRows(result, err, ErrCheckpointConflict)
}

// Reset forces the checkpoint to a given time, creating the row if it
// does not exist. Used by the bootstrap import.
func (r *SyncStateRepository) Reset(ctx context.Context, feedType string, to time.Time) error {
	query := `
		INSERT INTO sync_state (type, last_sync)
		VALUES ($1, $2)
		ON CONFLICT (type) DO UPDATE SET last_sync = EXCLUDED.last_sync
	`

	if _, err := r.db.ExecContext(ctx, query, feedType, to); err != nil {
		return fmt.Errorf("reset sync state: %w", err)
	}
	return nil
}
