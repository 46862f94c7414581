package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/studyspot/checkin-api/internal/models"
	"github.com/studyspot/checkin-api/internal/repository"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
	"github.com/studyspot/checkin-api/pkg/keyedmutex"
)

type attendanceVisitRepository interface {
	FindOpen(ctx context.Context, code string) (*models.Visit, error)
	Open(ctx context.Context, code string, now time.Time) (*models.Visit, error)
	CloseOpen(ctx context.Context, code string, now time.Time) (*models.Visit, error)
}

type attendanceStudentRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Student, error)
	AddMinutes(ctx context.Context, code string, minutes int) error
}

// AttendanceService derives check-in state from the visit ledger and
// governs the toggle transition. Toggles for the same code are
// serialized by a per-code mutex; the ledger's conditional writes back
// that guard at the store, so two racing toggles can never leave two
// visits open.
type AttendanceService struct {
	visits   attendanceVisitRepository
	students attendanceStudentRepository
	locks    *keyedmutex.KeyedMutex
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(visits attendanceVisitRepository, students attendanceStudentRepository, metrics *MetricsService, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		visits:   visits,
		students: students,
		locks:    keyedmutex.New(),
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Toggle flips the attendance state for the code: it opens a visit when
// none is open and closes the open one otherwise. Exactly one ledger
// row is created or closed per call.
func (s *AttendanceService) Toggle(ctx context.Context, code string) (*models.ToggleResult, error) {
	if !models.AccessCodePattern.MatchString(code) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "access code must be 5 digits")
	}

	s.locks.Lock(code)
	defer s.locks.Unlock(code)

	if _, err := s.students.FindByCode(ctx, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown access code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	now := s.now()

	closed, err := s.visits.CloseOpen(ctx, code, now)
	if err == nil {
		minutes := int(closed.Duration(now).Round(time.Minute) / time.Minute)
		if minutes > 0 {
			if err := s.students.AddMinutes(ctx, code, minutes); err != nil {
				s.logger.Warn("failed to accrue minutes", zap.String("access_code", code), zap.Error(err))
			}
		}
		if s.metrics != nil {
			s.metrics.RecordCheckin(models.StateCheckedOut)
		}
		return &models.ToggleResult{State: models.StateCheckedOut, VisitID: closed.ID}, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close visit")
	}

	opened, err := s.visits.Open(ctx, code, now)
	if err != nil {
		if errors.Is(err, repository.ErrVisitOpen) {
			// Lost a race despite the per-code lock; treat as a conflict
			// rather than opening a second visit.
			return nil, appErrors.Clone(appErrors.ErrConflict, "a visit is already open for this code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open visit")
	}
	if s.metrics != nil {
		s.metrics.RecordCheckin(models.StateCheckedIn)
	}
	return &models.ToggleResult{State: models.StateCheckedIn, VisitID: opened.ID}, nil
}

// Status reports the current state for the code without side effects.
func (s *AttendanceService) Status(ctx context.Context, code string) (*models.AttendanceStatus, error) {
	if !models.AccessCodePattern.MatchString(code) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "access code must be 5 digits")
	}

	student, err := s.students.FindByCode(ctx, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown access code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	status := &models.AttendanceStatus{
		State:       models.StateCheckedOut,
		StudentName: student.FullName,
		MinutesUsed: student.MinutesUsed,
		PlanID:      student.PlanID,
		PlanEndsAt:  student.PlanEndsAt,
	}

	open, err := s.visits.FindOpen(ctx, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return status, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load open visit")
	}

	elapsed := open.Duration(s.now())
	status.State = models.StateCheckedIn
	status.Elapsed = &elapsed
	status.ElapsedMin = int(elapsed / time.Minute)
	return status, nil
}
