package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyspot/checkin-api/internal/models"
)

// StaffRepository manages back-office accounts.
type StaffRepository struct {
	db *sqlx.DB
}

// NewStaffRepository constructs a StaffRepository.
func NewStaffRepository(db *sqlx.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

// FindByEmail fetches a staff account by email.
func (r *StaffRepository) FindByEmail(ctx context.Context, email string) (*models.Staff, error) {
	const query = `SELECT id, email, full_name, password_hash, role, active, created_at, updated_at
        FROM staff WHERE email = $1`
	var staff models.Staff
	if err := r.db.GetContext(ctx, &staff, query, email); err != nil {
		return nil, err
	}
	return &staff, nil
}

// FindByID fetches a staff account by id.
func (r *StaffRepository) FindByID(ctx context.Context, id string) (*models.Staff, error) {
	const query = `SELECT id, email, full_name, password_hash, role, active, created_at, updated_at
        FROM staff WHERE id = $1`
	var staff models.Staff
	if err := r.db.GetContext(ctx, &staff, query, id); err != nil {
		return nil, err
	}
	return &staff, nil
}

// Create inserts a staff account.
func (r *StaffRepository) Create(ctx context.Context, staff *models.Staff) error {
	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = now
	}
	staff.UpdatedAt = now
	const query = `INSERT INTO staff (id, email, full_name, password_hash, role, active, created_at, updated_at)
        VALUES (:id, :email, :full_name, :password_hash, :role, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, staff); err != nil {
		return fmt.Errorf("create staff: %w", err)
	}
	return nil
}
