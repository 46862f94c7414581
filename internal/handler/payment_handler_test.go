package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyspot/checkin-api/internal/middleware"
	"github.com/studyspot/checkin-api/internal/models"
	"github.com/studyspot/checkin-api/internal/service"
)

type fakePaymentRepo struct {
	records map[string]*models.PaymentRecord
}

func (f *fakePaymentRepo) Create(ctx context.Context, record *models.PaymentRecord) error {
	if record.ID == "" {
		record.ID = "pay-1"
	}
	f.records[record.ID] = record
	return nil
}

func (f *fakePaymentRepo) FindByID(ctx context.Context, id string) (*models.PaymentRecord, error) {
	record, ok := f.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return record, nil
}

func (f *fakePaymentRepo) FindByExternalRef(ctx context.Context, ref string) (*models.PaymentRecord, error) {
	for _, record := range f.records {
		if record.ExternalRef != nil && *record.ExternalRef == ref {
			return record, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakePaymentRepo) Confirm(ctx context.Context, id string, confirmedBy *string, now time.Time) (bool, error) {
	record, ok := f.records[id]
	if !ok || record.Status != models.PaymentPending {
		return false, nil
	}
	record.Status = models.PaymentConfirmed
	record.ConfirmedBy = confirmedBy
	record.ConfirmedAt = &now
	return true, nil
}

func (f *fakePaymentRepo) Fail(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	record, ok := f.records[id]
	if !ok || record.Status != models.PaymentPending {
		return false, nil
	}
	record.Status = models.PaymentFailed
	return true, nil
}

type fakePlanCatalog struct{}

func (fakePlanCatalog) FindByID(ctx context.Context, id string) (*models.Plan, error) {
	if id != "plan-1" {
		return nil, sql.ErrNoRows
	}
	return &models.Plan{ID: "plan-1", Name: "Monthly", Price: 850, DurationDays: 30}, nil
}

type fakeDirectory struct{}

func (fakeDirectory) FindByCode(ctx context.Context, code string) (*models.Student, error) {
	return &models.Student{AccessCode: code}, nil
}

func (fakeDirectory) AssignPlan(ctx context.Context, code, planID string, start, end time.Time) error {
	return nil
}

func newPaymentHandler(repo *fakePaymentRepo) *PaymentHandler {
	svc := service.NewPaymentService(repo, fakePlanCatalog{}, fakeDirectory{}, nil, validator.New(), nil, zap.NewNop())
	return NewPaymentHandler(svc, nil)
}

func TestPaymentHandlerCreate(t *testing.T) {
	handler := newPaymentHandler(&fakePaymentRepo{records: make(map[string]*models.PaymentRecord)})

	body := `{"access_code":"12345","plan_id":"plan-1","method":"in_person"}`
	rec := performJSON(handler.Create, http.MethodPost, "/payments", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var envelope struct {
		Data models.PaymentRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, models.PaymentPending, envelope.Data.Status)
	assert.Equal(t, 850.0, envelope.Data.Amount)
}

func TestPaymentHandlerConfirmWithoutClaims(t *testing.T) {
	handler := newPaymentHandler(&fakePaymentRepo{records: make(map[string]*models.PaymentRecord)})

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/payments/pay-1/confirm", nil)
	c.Params = gin.Params{{Key: "id", Value: "pay-1"}}

	handler.Confirm(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPaymentHandlerConfirmRecordsStaff(t *testing.T) {
	repo := &fakePaymentRepo{records: map[string]*models.PaymentRecord{
		"pay-1": {ID: "pay-1", AccessCode: "12345", PlanID: "plan-1", Amount: 850, Method: models.MethodInPerson, Status: models.PaymentPending},
	}}
	handler := newPaymentHandler(repo)

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/payments/pay-1/confirm", nil)
	c.Params = gin.Params{{Key: "id", Value: "pay-1"}}
	c.Set(middleware.ContextStaffKey, &models.JWTClaims{StaffID: "staff-1", Role: models.RoleFrontDesk})

	handler.Confirm(c)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data models.PaymentRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, models.PaymentConfirmed, envelope.Data.Status)
	require.NotNil(t, envelope.Data.ConfirmedBy)
	assert.Equal(t, "staff-1", *envelope.Data.ConfirmedBy)
}

func TestPaymentHandlerGetMissing(t *testing.T) {
	handler := newPaymentHandler(&fakePaymentRepo{records: make(map[string]*models.PaymentRecord)})

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/payments/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
