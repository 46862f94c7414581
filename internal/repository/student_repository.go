package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyspot/checkin-api/internal/models"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, access_code, full_name, email, phone, institution, career, plan_id, plan_starts_at, plan_ends_at, minutes_used, certificate_submitted, created_at, updated_at)
        VALUES (:id, :access_code, :full_name, :email, :phone, :institution, :career, :plan_id, :plan_starts_at, :plan_ends_at, :minutes_used, :certificate_submitted, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// FindByCode fetches a student by access code.
func (r *StudentRepository) FindByCode(ctx context.Context, code string) (*models.Student, error) {
	const query = `SELECT id, access_code, full_name, email, phone, institution, career, plan_id, plan_starts_at, plan_ends_at, minutes_used, certificate_submitted, created_at, updated_at
        FROM students WHERE access_code = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, code); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByCode checks whether an access code is already assigned.
func (r *StudentRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	const query = `SELECT 1 FROM students WHERE access_code = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, code); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check access code: %w", err)
	}
	return true, nil
}

// AssignPlan sets plan fields on a student. The update only applies
// while no unexpired plan is held, making overlap rejection atomic.
// Returns false when the guard rejected the write.
func (r *StudentRepository) AssignPlan(ctx context.Context, code, planID string, start, end time.Time) (bool, error) {
	const query = `UPDATE students SET plan_id = $2, plan_starts_at = $3, plan_ends_at = $4, updated_at = $5
        WHERE access_code = $1 AND (plan_id IS NULL OR plan_ends_at IS NULL OR plan_ends_at <= $5)`
	res, err := r.db.ExecContext(ctx, query, code, planID, start, end, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("assign plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("assign plan rows: %w", err)
	}
	return affected > 0, nil
}

// AddMinutes accrues visit minutes onto the student counter.
func (r *StudentRepository) AddMinutes(ctx context.Context, code string, minutes int) error {
	const query = `UPDATE students SET minutes_used = minutes_used + $2, updated_at = $3 WHERE access_code = $1`
	if _, err := r.db.ExecContext(ctx, query, code, minutes, time.Now().UTC()); err != nil {
		return fmt.Errorf("add minutes: %w", err)
	}
	return nil
}

// SetCertificateSubmitted flags the enrollment certificate as received.
func (r *StudentRepository) SetCertificateSubmitted(ctx context.Context, code string, submitted bool) error {
	const query = `UPDATE students SET certificate_submitted = $2, updated_at = $3 WHERE access_code = $1`
	if _, err := r.db.ExecContext(ctx, query, code, submitted, time.Now().UTC()); err != nil {
		return fmt.Errorf("set certificate flag: %w", err)
	}
	return nil
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students s"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.full_name) LIKE $%d OR s.access_code LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.HasPlan != nil {
		if *filter.HasPlan {
			conditions = append(conditions, "s.plan_id IS NOT NULL")
		} else {
			conditions = append(conditions, "s.plan_id IS NULL")
		}
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"full_name":   "s.full_name",
		"access_code": "s.access_code",
		"created_at":  "s.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.access_code, s.full_name, s.email, s.phone, s.institution, s.career, s.plan_id, s.plan_starts_at, s.plan_ends_at, s.minutes_used, s.certificate_submitted, s.created_at, s.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}
