package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyspot/checkin-api/internal/models"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
)

type directoryStudentRepository interface {
	Create(ctx context.Context, student *models.Student) error
	FindByCode(ctx context.Context, code string) (*models.Student, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	AssignPlan(ctx context.Context, code, planID string, start, end time.Time) (bool, error)
	SetCertificateSubmitted(ctx context.Context, code string, submitted bool) error
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
}

// RegisterRequest holds the registration payload.
type RegisterRequest struct {
	FullName    string `json:"full_name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"required"`
	Institution string `json:"institution" validate:"required"`
	Career      string `json:"career" validate:"required"`
}

// DirectoryService is the authoritative source of student identity and
// plan state.
type DirectoryService struct {
	repo         directoryStudentRepository
	validator    *validator.Validate
	logger       *zap.Logger
	codeAttempts int
}

// NewDirectoryService constructs the directory service.
func NewDirectoryService(repo directoryStudentRepository, validate *validator.Validate, logger *zap.Logger, codeAttempts int) *DirectoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if codeAttempts <= 0 {
		codeAttempts = 20
	}
	return &DirectoryService{repo: repo, validator: validate, logger: logger, codeAttempts: codeAttempts}
}

// Register validates the profile, generates a unique 5-digit access
// code and creates the student with no plan and zero minutes.
func (s *DirectoryService) Register(ctx context.Context, req RegisterRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	code, err := s.generateAccessCode(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate access code")
	}

	student := &models.Student{
		AccessCode:  code,
		FullName:    req.FullName,
		Email:       req.Email,
		Phone:       req.Phone,
		Institution: req.Institution,
		Career:      req.Career,
		MinutesUsed: 0,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.logger.Info("student registered", zap.String("access_code", student.AccessCode))
	return student, nil
}

// FindByCode resolves a student by access code.
func (s *DirectoryService) FindByCode(ctx context.Context, code string) (*models.Student, error) {
	student, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// AssignPlan sets plan fields on an existing student. Overlapping an
// unexpired plan is rejected with a conflict; the repository guard
// enforces the same condition atomically at the store.
func (s *DirectoryService) AssignPlan(ctx context.Context, code, planID string, start, end time.Time) error {
	student, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.HasActivePlan(time.Now().UTC()) {
		return appErrors.Clone(appErrors.ErrConflict, "student already has an active plan")
	}

	applied, err := s.repo.AssignPlan(ctx, code, planID, start, end)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign plan")
	}
	if !applied {
		return appErrors.Clone(appErrors.ErrConflict, "student already has an active plan")
	}
	return nil
}

// SetCertificateSubmitted flags whether the student has handed in their
// enrollment certificate.
func (s *DirectoryService) SetCertificateSubmitted(ctx context.Context, code string, submitted bool) error {
	if _, err := s.FindByCode(ctx, code); err != nil {
		return err
	}
	if err := s.repo.SetCertificateSubmitted(ctx, code, submitted); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update certificate flag")
	}
	return nil
}

// List returns students and pagination metadata for staff views.
func (s *DirectoryService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// generateAccessCode draws random codes from the 10000-99999 space and
// retries on collision. The space holds 90000 codes, so exhaustion of
// the attempt budget means the deployment has outgrown 5-digit codes.
func (s *DirectoryService) generateAccessCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		n, err := rand.Int(rand.Reader, big.NewInt(90000))
		if err != nil {
			return "", fmt.Errorf("draw access code: %w", err)
		}
		code := fmt.Sprintf("%05d", n.Int64()+10000)

		exists, err := s.repo.ExistsByCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check access code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free access code after %d attempts", s.codeAttempts)
}
