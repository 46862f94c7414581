package service

import (
	"context"
	"crypto/sha512"
	"database/sql"
	"encoding/hex"
	"testing"
	"time"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyspot/checkin-api/internal/models"
	"github.com/studyspot/checkin-api/pkg/config"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
)

type fakeSnapAPI struct {
	lastRequest *snap.Request
	response    *snap.Response
	err         *midtrans.Error
}

func (f *fakeSnapAPI) CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error) {
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type fakeTracker struct {
	confirmed []string
	failed    []string
	err       error
}

func (f *fakeTracker) ConfirmGatewayPayment(ctx context.Context, ref string) (*models.PaymentRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.confirmed = append(f.confirmed, ref)
	return &models.PaymentRecord{Status: models.PaymentConfirmed}, nil
}

func (f *fakeTracker) MarkFailed(ctx context.Context, ref, reason string) (*models.PaymentRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.failed = append(f.failed, ref+":"+reason)
	return &models.PaymentRecord{Status: models.PaymentFailed}, nil
}

type fakeGatewayDirectory struct{}

func (fakeGatewayDirectory) FindByCode(ctx context.Context, code string) (*models.Student, error) {
	if code != "12345" {
		return nil, sql.ErrNoRows
	}
	return &models.Student{AccessCode: code, FullName: "Ana Lopez", Email: "ana@example.com", Phone: "555-0101"}, nil
}

func signNotification(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func newGatewayFixture(snapAPI *fakeSnapAPI, tracker *fakeTracker) (*GatewayService, *mockPaymentRepo) {
	repo := newMockPaymentRepo()
	plans := &mockPlanCatalog{plans: map[string]*models.Plan{
		"plan-1": {ID: "plan-1", Name: "Monthly", Price: 850, DurationDays: 30},
	}}
	cfg := config.GatewayConfig{ServerKey: "sk-test", CallTimeout: time.Second}
	svc := NewGatewayService(snapAPI, repo, tracker, fakeGatewayDirectory{}, plans, cfg, nil, zap.NewNop())
	return svc, repo
}

func pendingGatewayRecord(t *testing.T, repo *mockPaymentRepo) *models.PaymentRecord {
	t.Helper()
	record := &models.PaymentRecord{
		AccessCode: "12345",
		PlanID:     "plan-1",
		Amount:     850,
		Method:     models.MethodGateway,
		Status:     models.PaymentPending,
	}
	require.NoError(t, repo.Create(context.Background(), record))
	return record
}

func TestCreatePreferenceReturnsRedirect(t *testing.T) {
	api := &fakeSnapAPI{response: &snap.Response{Token: "tok", RedirectURL: "https://pay.example/checkout"}}
	svc, repo := newGatewayFixture(api, &fakeTracker{})
	record := pendingGatewayRecord(t, repo)

	result, err := svc.CreatePreference(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, "SSPOT-"+record.ID, result.ExternalRef)
	assert.Equal(t, "https://pay.example/checkout", result.RedirectURL)

	// Reference was persisted before the outbound call.
	stored, err := repo.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ExternalRef)
	assert.Equal(t, result.ExternalRef, *stored.ExternalRef)

	require.NotNil(t, api.lastRequest)
	assert.Equal(t, result.ExternalRef, api.lastRequest.TransactionDetails.OrderID)
	assert.Equal(t, int64(850), api.lastRequest.TransactionDetails.GrossAmt)
}

func TestCreatePreferenceReusesExistingRef(t *testing.T) {
	api := &fakeSnapAPI{response: &snap.Response{Token: "tok", RedirectURL: "https://pay.example/checkout"}}
	svc, repo := newGatewayFixture(api, &fakeTracker{})
	record := pendingGatewayRecord(t, repo)
	require.NoError(t, repo.SetExternalRef(context.Background(), record.ID, "SSPOT-custom"))

	result, err := svc.CreatePreference(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, "SSPOT-custom", result.ExternalRef)
}

func TestCreatePreferenceRejectsInPersonPayment(t *testing.T) {
	svc, repo := newGatewayFixture(&fakeSnapAPI{}, &fakeTracker{})
	record := &models.PaymentRecord{
		AccessCode: "12345", PlanID: "plan-1", Amount: 850,
		Method: models.MethodInPerson, Status: models.PaymentPending,
	}
	require.NoError(t, repo.Create(context.Background(), record))

	_, err := svc.CreatePreference(context.Background(), record.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreatePreferenceRejectsTerminalPayment(t *testing.T) {
	svc, repo := newGatewayFixture(&fakeSnapAPI{}, &fakeTracker{})
	record := &models.PaymentRecord{
		AccessCode: "12345", PlanID: "plan-1", Amount: 850,
		Method: models.MethodGateway, Status: models.PaymentConfirmed,
	}
	require.NoError(t, repo.Create(context.Background(), record))

	_, err := svc.CreatePreference(context.Background(), record.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestCreatePreferenceGatewayError(t *testing.T) {
	api := &fakeSnapAPI{err: &midtrans.Error{Message: "upstream down", StatusCode: 500}}
	svc, repo := newGatewayFixture(api, &fakeTracker{})
	record := pendingGatewayRecord(t, repo)

	_, err := svc.CreatePreference(context.Background(), record.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGateway.Code, appErrors.FromError(err).Code)

	// Record stays pending so the client can retry.
	stored, err := repo.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.Status)
}

func TestCreatePreferenceUnknownPayment(t *testing.T) {
	svc, _ := newGatewayFixture(&fakeSnapAPI{}, &fakeTracker{})

	_, err := svc.CreatePreference(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestHandleNotificationSettlementConfirms(t *testing.T) {
	tracker := &fakeTracker{}
	svc, _ := newGatewayFixture(&fakeSnapAPI{}, tracker)

	payload := NotificationPayload{
		OrderID:           "SSPOT-1",
		TransactionStatus: "settlement",
		StatusCode:        "200",
		GrossAmount:       "850.00",
	}
	payload.SignatureKey = signNotification(payload.OrderID, payload.StatusCode, payload.GrossAmount, "sk-test")

	require.NoError(t, svc.HandleNotification(context.Background(), payload))
	assert.Equal(t, []string{"SSPOT-1"}, tracker.confirmed)
}

func TestHandleNotificationCaptureFraudReviewHeld(t *testing.T) {
	tracker := &fakeTracker{}
	svc, _ := newGatewayFixture(&fakeSnapAPI{}, tracker)

	payload := NotificationPayload{
		OrderID:           "SSPOT-1",
		TransactionStatus: "capture",
		StatusCode:        "200",
		GrossAmount:       "850.00",
		FraudStatus:       "challenge",
	}
	payload.SignatureKey = signNotification(payload.OrderID, payload.StatusCode, payload.GrossAmount, "sk-test")

	require.NoError(t, svc.HandleNotification(context.Background(), payload))
	assert.Empty(t, tracker.confirmed)
}

func TestHandleNotificationFailureStatuses(t *testing.T) {
	for _, status := range []string{"deny", "cancel", "expire", "failure"} {
		tracker := &fakeTracker{}
		svc, _ := newGatewayFixture(&fakeSnapAPI{}, tracker)

		payload := NotificationPayload{
			OrderID:           "SSPOT-1",
			TransactionStatus: status,
			StatusCode:        "202",
			GrossAmount:       "850.00",
		}
		payload.SignatureKey = signNotification(payload.OrderID, payload.StatusCode, payload.GrossAmount, "sk-test")

		require.NoError(t, svc.HandleNotification(context.Background(), payload), status)
		assert.Equal(t, []string{"SSPOT-1:" + status}, tracker.failed)
	}
}

func TestHandleNotificationPendingIsNoop(t *testing.T) {
	tracker := &fakeTracker{}
	svc, _ := newGatewayFixture(&fakeSnapAPI{}, tracker)

	payload := NotificationPayload{
		OrderID:           "SSPOT-1",
		TransactionStatus: "pending",
		StatusCode:        "201",
		GrossAmount:       "850.00",
	}
	payload.SignatureKey = signNotification(payload.OrderID, payload.StatusCode, payload.GrossAmount, "sk-test")

	require.NoError(t, svc.HandleNotification(context.Background(), payload))
	assert.Empty(t, tracker.confirmed)
	assert.Empty(t, tracker.failed)
}

func TestHandleNotificationBadSignature(t *testing.T) {
	tracker := &fakeTracker{}
	svc, _ := newGatewayFixture(&fakeSnapAPI{}, tracker)

	payload := NotificationPayload{
		OrderID:           "SSPOT-1",
		TransactionStatus: "settlement",
		StatusCode:        "200",
		GrossAmount:       "850.00",
		SignatureKey:      "forged",
	}

	err := svc.HandleNotification(context.Background(), payload)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	assert.Empty(t, tracker.confirmed)
}

func TestHandleNotificationUnknownStatusIgnored(t *testing.T) {
	tracker := &fakeTracker{}
	svc, _ := newGatewayFixture(&fakeSnapAPI{}, tracker)

	payload := NotificationPayload{
		OrderID:           "SSPOT-1",
		TransactionStatus: "refund",
		StatusCode:        "200",
		GrossAmount:       "850.00",
	}
	payload.SignatureKey = signNotification(payload.OrderID, payload.StatusCode, payload.GrossAmount, "sk-test")

	require.NoError(t, svc.HandleNotification(context.Background(), payload))
	assert.Empty(t, tracker.confirmed)
	assert.Empty(t, tracker.failed)
}
