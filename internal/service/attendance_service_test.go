package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyspot/checkin-api/internal/models"
	"github.com/studyspot/checkin-api/internal/repository"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
)

type mockVisitRepo struct {
	open    map[string]*models.Visit
	nextID  int
	openErr error
}

func newMockVisitRepo() *mockVisitRepo {
	return &mockVisitRepo{open: make(map[string]*models.Visit)}
}

func (m *mockVisitRepo) FindOpen(ctx context.Context, code string) (*models.Visit, error) {
	visit, ok := m.open[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return visit, nil
}

func (m *mockVisitRepo) Open(ctx context.Context, code string, now time.Time) (*models.Visit, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	if _, ok := m.open[code]; ok {
		return nil, repository.ErrVisitOpen
	}
	m.nextID++
	visit := &models.Visit{
		ID:          fmt.Sprintf("visit-%d", m.nextID),
		AccessCode:  code,
		CheckedInAt: now,
		CreatedAt:   now,
	}
	m.open[code] = visit
	return visit, nil
}

func (m *mockVisitRepo) CloseOpen(ctx context.Context, code string, now time.Time) (*models.Visit, error) {
	visit, ok := m.open[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	delete(m.open, code)
	closed := *visit
	closed.CheckedOutAt = &now
	return &closed, nil
}

type mockStudentDirectory struct {
	students map[string]*models.Student
	minutes  map[string]int
}

func newMockStudentDirectory(codes ...string) *mockStudentDirectory {
	m := &mockStudentDirectory{students: make(map[string]*models.Student), minutes: make(map[string]int)}
	for _, code := range codes {
		m.students[code] = &models.Student{AccessCode: code, FullName: "Student " + code}
	}
	return m
}

func (m *mockStudentDirectory) FindByCode(ctx context.Context, code string) (*models.Student, error) {
	student, ok := m.students[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

func (m *mockStudentDirectory) AddMinutes(ctx context.Context, code string, minutes int) error {
	m.minutes[code] += minutes
	return nil
}

func TestToggleAlternates(t *testing.T) {
	visits := newMockVisitRepo()
	students := newMockStudentDirectory("12345")
	svc := NewAttendanceService(visits, students, nil, zap.NewNop())

	for i := 0; i < 6; i++ {
		result, err := svc.Toggle(context.Background(), "12345")
		require.NoError(t, err)
		if i%2 == 0 {
			assert.Equal(t, models.StateCheckedIn, result.State)
		} else {
			assert.Equal(t, models.StateCheckedOut, result.State)
		}
	}
	assert.Empty(t, visits.open)
}

func TestToggleUnknownCode(t *testing.T) {
	svc := NewAttendanceService(newMockVisitRepo(), newMockStudentDirectory(), nil, zap.NewNop())

	_, err := svc.Toggle(context.Background(), "99999")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestToggleRejectsMalformedCode(t *testing.T) {
	svc := NewAttendanceService(newMockVisitRepo(), newMockStudentDirectory(), nil, zap.NewNop())

	for _, code := range []string{"", "1234", "123456", "12a45", " 1234"} {
		_, err := svc.Toggle(context.Background(), code)
		require.Error(t, err, "code %q", code)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestToggleConflictOnRacingOpen(t *testing.T) {
	visits := newMockVisitRepo()
	visits.openErr = repository.ErrVisitOpen
	svc := NewAttendanceService(visits, newMockStudentDirectory("12345"), nil, zap.NewNop())

	_, err := svc.Toggle(context.Background(), "12345")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestToggleAccruesMinutesOnCheckout(t *testing.T) {
	visits := newMockVisitRepo()
	students := newMockStudentDirectory("12345")
	svc := NewAttendanceService(visits, students, nil, zap.NewNop())

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	_, err := svc.Toggle(context.Background(), "12345")
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(95 * time.Minute) }
	result, err := svc.Toggle(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, models.StateCheckedOut, result.State)
	assert.Equal(t, 95, students.minutes["12345"])
}

func TestStatusReportsOpenVisit(t *testing.T) {
	visits := newMockVisitRepo()
	students := newMockStudentDirectory("12345")
	svc := NewAttendanceService(visits, students, nil, zap.NewNop())

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	_, err := svc.Toggle(context.Background(), "12345")
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(30 * time.Minute) }
	status, err := svc.Status(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, models.StateCheckedIn, status.State)
	assert.Equal(t, 30, status.ElapsedMin)
	assert.Equal(t, "Student 12345", status.StudentName)
}

func TestStatusCheckedOutWhenNoOpenVisit(t *testing.T) {
	svc := NewAttendanceService(newMockVisitRepo(), newMockStudentDirectory("12345"), nil, zap.NewNop())

	status, err := svc.Status(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, models.StateCheckedOut, status.State)
	assert.Nil(t, status.Elapsed)
}
