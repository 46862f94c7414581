package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/studyspot/checkin-api/internal/models"
)

// PlanRepository reads the membership plan catalog. Plans are seeded by
// administrators and treated as read-only here.
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository constructs a PlanRepository.
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// List returns plans, optionally limited to active ones, cheapest first.
func (r *PlanRepository) List(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	query := `SELECT id, name, price, duration_days, description, allowed_days, start_hour, end_hour, active, created_at FROM plans`
	if activeOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY price ASC`

	var plans []models.Plan
	if err := r.db.SelectContext(ctx, &plans, query); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// FindByID fetches a single plan.
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*models.Plan, error) {
	const query = `SELECT id, name, price, duration_days, description, allowed_days, start_hour, end_hour, active, created_at
        FROM plans WHERE id = $1`
	var plan models.Plan
	if err := r.db.GetContext(ctx, &plan, query, id); err != nil {
		return nil, err
	}
	return &plan, nil
}
