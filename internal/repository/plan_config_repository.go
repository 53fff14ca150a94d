package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-api/internal/models"
)

// PlanConfigRepository persists the single logical row of billing parameters.
// The table is keyed by a fixed ID so concurrent upserts stay on one row.
type PlanConfigRepository struct {
	db *sqlx.DB
}

// NewPlanConfigRepository constructs the repository.
func NewPlanConfigRepository(db *sqlx.DB) *PlanConfigRepository {
	return &PlanConfigRepository{db: db}
}

// Get returns the stored configuration, or the built-in defaults when no row
// exists yet. Reading never creates the row; Update does.
func (r *PlanConfigRepository) Get(ctx context.Context) (*models.PlanConfig, error) {
	const query = `SELECT one_time_amount, monthly_amount, installment_amount,
        installment_interval_months, reminder_days, updated_at
        FROM plan_config WHERE id = 1`
	var cfg models.PlanConfig
	if err := r.db.GetContext(ctx, &cfg, query); err != nil {
		if err == sql.ErrNoRows {
			defaults := models.DefaultPlanConfig()
			return &defaults, nil
		}
		return nil, fmt.Errorf("get plan config: %w", err)
	}
	return &cfg, nil
}

// Update upserts the configuration row.
func (r *PlanConfigRepository) Update(ctx context.Context, cfg *models.PlanConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO plan_config (id, one_time_amount, monthly_amount, installment_amount,
        installment_interval_months, reminder_days, updated_at)
        VALUES (1, :one_time_amount, :monthly_amount, :installment_amount,
        :installment_interval_months, :reminder_days, :updated_at)
        ON CONFLICT (id)
        DO UPDATE SET one_time_amount = EXCLUDED.one_time_amount, monthly_amount = EXCLUDED.monthly_amount,
                      installment_amount = EXCLUDED.installment_amount,
                      installment_interval_months = EXCLUDED.installment_interval_months,
                      reminder_days = EXCLUDED.reminder_days, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, cfg); err != nil {
		return fmt.Errorf("update plan config: %w", err)
	}
	return nil
}
