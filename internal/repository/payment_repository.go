package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyspot/checkin-api/internal/models"
)

// PaymentRepository persists payment records. Status changes go through
// conditional updates keyed on the current status so concurrent webhook
// redeliveries cannot double-apply a transition.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a new pending payment record.
func (r *PaymentRepository) Create(ctx context.Context, record *models.PaymentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO payments (id, access_code, plan_id, amount, method, status, external_ref, failure_reason, confirmed_by, created_at, confirmed_at)
        VALUES (:id, :access_code, :plan_id, :amount, :method, :status, :external_ref, :failure_reason, :confirmed_by, :created_at, :confirmed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// FindByID fetches a payment record by internal id.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.PaymentRecord, error) {
	const query = `SELECT id, access_code, plan_id, amount, method, status, external_ref, failure_reason, confirmed_by, created_at, confirmed_at
        FROM payments WHERE id = $1`
	var record models.PaymentRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByExternalRef fetches a payment record by gateway reference.
func (r *PaymentRepository) FindByExternalRef(ctx context.Context, ref string) (*models.PaymentRecord, error) {
	const query = `SELECT id, access_code, plan_id, amount, method, status, external_ref, failure_reason, confirmed_by, created_at, confirmed_at
        FROM payments WHERE external_ref = $1`
	var record models.PaymentRecord
	if err := r.db.GetContext(ctx, &record, query, ref); err != nil {
		return nil, err
	}
	return &record, nil
}

// SetExternalRef stores the gateway reference before the redirect URL is
// handed to the client, so a later notification can always correlate.
func (r *PaymentRepository) SetExternalRef(ctx context.Context, id, ref string) error {
	const query = `UPDATE payments SET external_ref = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ref); err != nil {
		return fmt.Errorf("set external ref: %w", err)
	}
	return nil
}

// Confirm moves a pending record to confirmed. Returns false when the
// record was not pending, which callers treat as an idempotent replay.
func (r *PaymentRepository) Confirm(ctx context.Context, id string, confirmedBy *string, now time.Time) (bool, error) {
	const query = `UPDATE payments SET status = $2, confirmed_at = $3, confirmed_by = $4
        WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, models.PaymentConfirmed, now, confirmedBy, models.PaymentPending)
	if err != nil {
		return false, fmt.Errorf("confirm payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("confirm payment rows: %w", err)
	}
	return affected > 0, nil
}

// Fail moves a pending record to failed with a reason. Returns false
// when the record was not pending.
func (r *PaymentRepository) Fail(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	const query = `UPDATE payments SET status = $2, failure_reason = $3, confirmed_at = $4
        WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, models.PaymentFailed, reason, now, models.PaymentPending)
	if err != nil {
		return false, fmt.Errorf("fail payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail payment rows: %w", err)
	}
	return affected > 0, nil
}
