package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyspot/checkin-api/internal/models"
)

// ErrVisitOpen is returned by Open when the student already has an
// unclosed visit.
var ErrVisitOpen = errors.New("open visit exists")

// VisitRepository is the append-only ledger of check-in/check-out rows.
type VisitRepository struct {
	db *sqlx.DB
}

// NewVisitRepository constructs a VisitRepository.
func NewVisitRepository(db *sqlx.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// FindOpen returns the currently open visit for the code, if any.
func (r *VisitRepository) FindOpen(ctx context.Context, code string) (*models.Visit, error) {
	const query = `SELECT id, access_code, checked_in_at, checked_out_at, created_at
        FROM visits WHERE access_code = $1 AND checked_out_at IS NULL`
	var visit models.Visit
	if err := r.db.GetContext(ctx, &visit, query, code); err != nil {
		return nil, err
	}
	return &visit, nil
}

// Open creates a new visit. The insert runs in a transaction that locks
// any open row for the code first, so two concurrent opens cannot both
// succeed even without the service-level guard.
func (r *VisitRepository) Open(ctx context.Context, code string, now time.Time) (*models.Visit, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin open visit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existing string
	err = tx.GetContext(ctx, &existing, `SELECT id FROM visits WHERE access_code = $1 AND checked_out_at IS NULL FOR UPDATE`, code)
	if err == nil {
		return nil, ErrVisitOpen
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check open visit: %w", err)
	}

	visit := &models.Visit{
		ID:          uuid.NewString(),
		AccessCode:  code,
		CheckedInAt: now,
		CreatedAt:   now,
	}
	const insert = `INSERT INTO visits (id, access_code, checked_in_at, checked_out_at, created_at)
        VALUES ($1, $2, $3, NULL, $4)`
	if _, err := tx.ExecContext(ctx, insert, visit.ID, visit.AccessCode, visit.CheckedInAt, visit.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert visit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit open visit: %w", err)
	}
	return visit, nil
}

// CloseOpen stamps the open visit for the code. The condition on
// checked_out_at makes the close atomic; sql.ErrNoRows signals that no
// visit was open.
func (r *VisitRepository) CloseOpen(ctx context.Context, code string, now time.Time) (*models.Visit, error) {
	const query = `UPDATE visits SET checked_out_at = $2
        WHERE access_code = $1 AND checked_out_at IS NULL
        RETURNING id, access_code, checked_in_at, checked_out_at, created_at`
	var visit models.Visit
	if err := r.db.GetContext(ctx, &visit, query, code, now); err != nil {
		return nil, err
	}
	return &visit, nil
}

// List returns visits matching the filter, newest first.
func (r *VisitRepository) List(ctx context.Context, filter models.VisitFilter) ([]models.Visit, int, error) {
	base := "FROM visits v"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.AccessCode != "" {
		conditions = append(conditions, fmt.Sprintf("v.access_code = $%d", len(args)+1))
		args = append(args, filter.AccessCode)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("v.checked_in_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("v.checked_in_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 100
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT v.id, v.access_code, v.checked_in_at, v.checked_out_at, v.created_at
        %s ORDER BY v.checked_in_at DESC LIMIT %d OFFSET %d`, base, size, offset)

	var visits []models.Visit
	if err := r.db.SelectContext(ctx, &visits, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list visits: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count visits: %w", err)
	}
	return visits, total, nil
}
