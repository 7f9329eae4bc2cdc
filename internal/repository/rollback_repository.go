package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/moneyquiz/routing-gateway/internal/models"
)

// RollbackRepository persists the append-only rollback audit log.
type RollbackRepository struct {
	db *sqlx.DB
}

// NewRollbackRepository instantiates the repository.
func NewRollbackRepository(db *sqlx.DB) *RollbackRepository {
	return &RollbackRepository{db: db}
}

// Insert appends one rollback event.
func (r *RollbackRepository) Insert(ctx context.Context, event *models.RollbackEvent) error {
	query := `INSERT INTO rollback_events
        (id, rollback_type, trigger_type, trigger_details, metrics_snapshot, user_id, timestamp)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.RollbackType,
		event.TriggerType,
		event.TriggerDetails,
		event.MetricsSnapshot,
		event.UserID,
		event.Timestamp,
	); err != nil {
		return fmt.Errorf("insert rollback event: %w", err)
	}
	return nil
}

// History returns the most recent rollback events, newest first.
func (r *RollbackRepository) History(ctx context.Context, limit int) ([]models.RollbackEvent, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT id, rollback_type, trigger_type, trigger_details, metrics_snapshot, user_id, timestamp
        FROM rollback_events
        ORDER BY timestamp DESC
        LIMIT $1`

	var events []models.RollbackEvent
	if err := r.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("query rollback history: %w", err)
	}
	return events, nil
}

// CountBetween returns the number of rollback events inside the bounds.
func (r *RollbackRepository) CountBetween(ctx context.Context, start, end time.Time) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM rollback_events WHERE timestamp >= $1 AND timestamp < $2`
	if err := r.db.GetContext(ctx, &count, query, start, end); err != nil {
		return 0, fmt.Errorf("count rollback events: %w", err)
	}
	return count, nil
}
