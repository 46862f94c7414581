package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyspot/checkin-api/internal/models"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
	"github.com/studyspot/checkin-api/pkg/jobs"
)

type mockPaymentRepo struct {
	records map[string]*models.PaymentRecord
	byRef   map[string]string
	nextID  int
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{records: make(map[string]*models.PaymentRecord), byRef: make(map[string]string)}
}

func (m *mockPaymentRepo) Create(ctx context.Context, record *models.PaymentRecord) error {
	m.nextID++
	if record.ID == "" {
		record.ID = fmt.Sprintf("pay-%d", m.nextID)
	}
	stored := *record
	m.records[record.ID] = &stored
	return nil
}

func (m *mockPaymentRepo) FindByID(ctx context.Context, id string) (*models.PaymentRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *record
	return &copied, nil
}

func (m *mockPaymentRepo) FindByExternalRef(ctx context.Context, ref string) (*models.PaymentRecord, error) {
	id, ok := m.byRef[ref]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return m.FindByID(ctx, id)
}

func (m *mockPaymentRepo) SetExternalRef(ctx context.Context, id, ref string) error {
	record, ok := m.records[id]
	if !ok {
		return sql.ErrNoRows
	}
	record.ExternalRef = &ref
	m.byRef[ref] = id
	return nil
}

func (m *mockPaymentRepo) Confirm(ctx context.Context, id string, confirmedBy *string, now time.Time) (bool, error) {
	record, ok := m.records[id]
	if !ok || record.Status != models.PaymentPending {
		return false, nil
	}
	record.Status = models.PaymentConfirmed
	record.ConfirmedBy = confirmedBy
	record.ConfirmedAt = &now
	return true, nil
}

func (m *mockPaymentRepo) Fail(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	record, ok := m.records[id]
	if !ok || record.Status != models.PaymentPending {
		return false, nil
	}
	record.Status = models.PaymentFailed
	record.FailureReason = &reason
	record.ConfirmedAt = &now
	return true, nil
}

type mockPlanCatalog struct {
	plans map[string]*models.Plan
}

func (m *mockPlanCatalog) FindByID(ctx context.Context, id string) (*models.Plan, error) {
	plan, ok := m.plans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return plan, nil
}

type mockPaymentDirectory struct {
	known       map[string]bool
	assignments []string
	assignErr   error
}

func (m *mockPaymentDirectory) FindByCode(ctx context.Context, code string) (*models.Student, error) {
	if !m.known[code] {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return &models.Student{AccessCode: code}, nil
}

func (m *mockPaymentDirectory) AssignPlan(ctx context.Context, code, planID string, start, end time.Time) error {
	if m.assignErr != nil {
		return m.assignErr
	}
	m.assignments = append(m.assignments, code+":"+planID)
	return nil
}

type mockFollowupQueue struct {
	jobs []jobs.Job
}

func (m *mockFollowupQueue) Enqueue(job jobs.Job) error {
	m.jobs = append(m.jobs, job)
	return nil
}

func newPaymentFixture() (*PaymentService, *mockPaymentRepo, *mockPaymentDirectory, *mockFollowupQueue) {
	repo := newMockPaymentRepo()
	plans := &mockPlanCatalog{plans: map[string]*models.Plan{
		"plan-1": {ID: "plan-1", Name: "Monthly", Price: 850, DurationDays: 30},
	}}
	directory := &mockPaymentDirectory{known: map[string]bool{"12345": true}}
	queue := &mockFollowupQueue{}
	svc := NewPaymentService(repo, plans, directory, queue, validator.New(), nil, zap.NewNop())
	return svc, repo, directory, queue
}

func TestRequestPurchaseSnapshotsPlanPrice(t *testing.T) {
	svc, _, _, _ := newPaymentFixture()

	record, err := svc.RequestPurchase(context.Background(), PurchaseRequest{
		AccessCode: "12345", PlanID: "plan-1", Method: models.MethodGateway,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, record.Status)
	assert.Equal(t, 850.0, record.Amount)
	assert.Equal(t, "12345", record.AccessCode)
}

func TestRequestPurchaseUnknownStudent(t *testing.T) {
	svc, _, _, _ := newPaymentFixture()

	_, err := svc.RequestPurchase(context.Background(), PurchaseRequest{
		AccessCode: "99999", PlanID: "plan-1", Method: models.MethodGateway,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRequestPurchaseUnknownPlan(t *testing.T) {
	svc, _, _, _ := newPaymentFixture()

	_, err := svc.RequestPurchase(context.Background(), PurchaseRequest{
		AccessCode: "12345", PlanID: "plan-x", Method: models.MethodInPerson,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRequestPurchaseRejectsBadMethod(t *testing.T) {
	svc, _, _, _ := newPaymentFixture()

	_, err := svc.RequestPurchase(context.Background(), PurchaseRequest{
		AccessCode: "12345", PlanID: "plan-1", Method: "wire",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestConfirmGatewayPaymentActivatesPlan(t *testing.T) {
	svc, repo, directory, queue := newPaymentFixture()

	record, err := svc.RequestPurchase(context.Background(), PurchaseRequest{
		AccessCode: "12345", PlanID: "plan-1", Method: models.MethodGateway,
	})
	require.NoError(t, err)
	require.NoError(t, repo.SetExternalRef(context.Background(), record.ID, "SSPOT-1"))

	confirmed, err := svc.ConfirmGatewayPayment(context.Background(), "SSPOT-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, confirmed.Status)
	assert.NotNil(t, confirmed.ConfirmedAt)
	assert.Equal(t, []string{"12345:plan-1"}, directory.assignments)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "payment_confirmed", queue.jobs[0].Type)
}

func TestConfirmGatewayPaymentIdempotent(t *testing.T) {
	svc, repo, directory, _ := newPaymentFixture()

	record, err := svc.RequestPurchase(context.Background(), PurchaseRequest{
		AccessCode: "12345", PlanID: "plan-1", Method: models.MethodGateway,
	})
	require.NoError(t, err)
	require.NoError(t, repo.SetExternalRef(context.Background(), record.ID, "SSPOT-1"))

	_, err = svc.ConfirmGatewayPayment(context.Background(), "SSPOT-1")
	require.NoError(t, err)

	// Redelivery: same outcome, no second plan assignment.
	again, err := svc.ConfirmGatewayPayment(context.Background(), "SSPOT-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, again.Status)
	assert.Len(t, directory.assignments, 1)
}

func TestConfirmGatewayPaymentUnknownRef(t *testing.T) {
	svc, _, _, _ := newPaymentFixture()

	_, err := svc.ConfirmGatewayPayment(context.Background(), "SSPOT-missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnknownReference.Code, appErrors.FromError(err).Code)
}

func TestConfirmAfterFailureRejected(t *testing.T) {
	svc, repo, _, _ := newPaymentFixture()

	record, err := svc.RequestPurchase(context.Background(), PurchaseRequest{
		AccessCode: "12345", PlanID: "plan-1", Method: models.MethodGateway,
	})
	require.NoError(t, err)
	require.NoError(t, repo.SetExternalRef(context.Background(), record.ID, "SSPOT-1"))

	_, err = svc.MarkFailed(context.Background(), "SSPOT-1", "expire")
	require.NoError(t, err)

	_, err = svc.ConfirmGatewayPayment(context.Background(), "SSPOT-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestMarkFailedIdempotent(t *testing.T) {
	svc, repo, _, _ := newPaymentFixture()

	record, err := svc.RequestPurchase(context.Background(), PurchaseRequest{
		AccessCode: "12345", PlanID: "plan-1", Method: models.MethodGateway,
	})
	require.NoError(t, err)
	require.NoError(t, repo.SetExternalRef(context.Background(), record.ID, "SSPOT-1"))

	first, err := svc.MarkFailed(context.Background(), "SSPOT-1", "deny")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, first.Status)

	second, err := svc.MarkFailed(context.Background(), "SSPOT-1", "deny")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, second.Status)
}

func TestMarkFailedAfterConfirmationRejected(t *testing.T) {
	svc, repo, _, _ := newPaymentFixture()

	record, err := svc.RequestPurchase(context.Background(), PurchaseRequest{
		AccessCode: "12345", PlanID: "plan-1", Method: models.MethodGateway,
	})
	require.NoError(t, err)
	require.NoError(t, repo.SetExternalRef(context.Background(), record.ID, "SSPOT-1"))

	_, err = svc.ConfirmGatewayPayment(context.Background(), "SSPOT-1")
	require.NoError(t, err)

	_, err = svc.MarkFailed(context.Background(), "SSPOT-1", "expire")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestConfirmInPersonRecordsStaff(t *testing.T) {
	svc, _, _, _ := newPaymentFixture()

	record, err := svc.RequestPurchase(context.Background(), PurchaseRequest{
		AccessCode: "12345", PlanID: "plan-1", Method: models.MethodInPerson,
	})
	require.NoError(t, err)

	confirmed, err := svc.ConfirmInPersonPayment(context.Background(), record.ID, "staff-7")
	require.NoError(t, err)
	require.NotNil(t, confirmed.ConfirmedBy)
	assert.Equal(t, "staff-7", *confirmed.ConfirmedBy)
}
