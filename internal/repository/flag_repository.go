package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/moneyquiz/routing-gateway/internal/models"
)

// FlagRepository stores per-action rollout fractions.
type FlagRepository struct {
	db *sqlx.DB
}

// NewFlagRepository instantiates the repository.
func NewFlagRepository(db *sqlx.DB) *FlagRepository {
	return &FlagRepository{db: db}
}

// All lists every rollout flag.
func (r *FlagRepository) All(ctx context.Context) ([]models.RolloutFlag, error) {
	query := `SELECT action, fraction, updated_by, updated_at FROM routing_flags ORDER BY action`

	var flags []models.RolloutFlag
	if err := r.db.SelectContext(ctx, &flags, query); err != nil {
		return nil, fmt.Errorf("query routing flags: %w", err)
	}
	return flags, nil
}

// Upsert writes the rollout fraction for one action.
func (r *FlagRepository) Upsert(ctx context.Context, flag *models.RolloutFlag) error {
	query := `INSERT INTO routing_flags (action, fraction, updated_by, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (action) DO UPDATE
        SET fraction = EXCLUDED.fraction,
            updated_by = EXCLUDED.updated_by,
            updated_at = EXCLUDED.updated_at`

	if flag.UpdatedAt.IsZero() {
		flag.UpdatedAt = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, query, flag.Action, flag.Fraction, flag.UpdatedBy, flag.UpdatedAt); err != nil {
		return fmt.Errorf("upsert routing flag %s: %w", flag.Action, err)
	}
	return nil
}

// ZeroAll forces every rollout fraction to zero. Used by the rollback path.
func (r *FlagRepository) ZeroAll(ctx context.Context, updatedBy string) error {
	query := `UPDATE routing_flags SET fraction = 0, updated_by = $1, updated_at = $2`
	if _, err := r.db.ExecContext(ctx, query, updatedBy, time.Now().UTC()); err != nil {
		return fmt.Errorf("zero routing flags: %w", err)
	}
	return nil
}
