package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/rocketDuck/folivora/internal/domain"
)

// LogRepository handles database operations for the append-only event log.
type LogRepository struct {
	db *sqlx.DB
}

// NewLogRepository creates a new log repository.
func NewLogRepository(db *sqlx.DB) *LogRepository {
	return &LogRepository{db: db}
}

// BulkInsert appends log entries in one statement to bound write
// amplification during reconciliation passes.
func (r *LogRepository) BulkInsert(ctx context.Context, entries []domain.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO logs (project_id, package_id, actor, action, data, at)
		VALUES (:project_id, :package_id, :actor, :action, :data, :at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, entries); err != nil {
		return fmt.Errorf("bulk insert log entries: %w", err)
	}
	return nil
}

// ListByProject returns the newest log entries of a project.
func (r *LogRepository) ListByProject(ctx context.Context, projectID int64, limit int) ([]domain.LogEntry, error) {
	query := `
		SELECT id, project_id, package_id, actor, action, data, at
		FROM logs
		WHERE project_id = $1
		ORDER BY at DESC, id DESC
		LIMIT $2
	`

	var entries []domain.LogEntry
	if err := r.db.SelectContext(ctx, &entries, query, projectID, limit); err != nil {
		return nil, fmt.Errorf("list log entries for project %d: %w", projectID, err)
	}
	return entries, nil
}
