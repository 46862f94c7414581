package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/studyspot/checkin-api/internal/models"
	"github.com/studyspot/checkin-api/internal/service"
	"github.com/studyspot/checkin-api/pkg/config"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
)

type fakeTracker struct {
	confirmed  []string
	confirmErr error
}

func (f *fakeTracker) ConfirmGatewayPayment(ctx context.Context, ref string) (*models.PaymentRecord, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	f.confirmed = append(f.confirmed, ref)
	return &models.PaymentRecord{Status: models.PaymentConfirmed}, nil
}

func (f *fakeTracker) MarkFailed(ctx context.Context, ref, reason string) (*models.PaymentRecord, error) {
	return &models.PaymentRecord{Status: models.PaymentFailed}, nil
}

func newWebhookHandler(tracker *fakeTracker) *WebhookHandler {
	// No server key configured: signature verification is skipped.
	gateway := service.NewGatewayService(nil, nil, tracker, nil, nil, config.GatewayConfig{}, nil, zap.NewNop())
	return NewWebhookHandler(gateway, zap.NewNop())
}

func TestWebhookHandlerAppliesSettlement(t *testing.T) {
	tracker := &fakeTracker{}
	handler := newWebhookHandler(tracker)

	body := `{"order_id":"SSPOT-1","transaction_status":"settlement","status_code":"200","gross_amount":"850.00"}`
	rec := performJSON(handler.Midtrans, http.MethodPost, "/webhooks/midtrans", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"SSPOT-1"}, tracker.confirmed)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestWebhookHandlerAcknowledgesUnknownReference(t *testing.T) {
	tracker := &fakeTracker{confirmErr: appErrors.Clone(appErrors.ErrUnknownReference, "no payment matches reference")}
	handler := newWebhookHandler(tracker)

	body := `{"order_id":"SSPOT-x","transaction_status":"settlement","status_code":"200","gross_amount":"850.00"}`
	rec := performJSON(handler.Midtrans, http.MethodPost, "/webhooks/midtrans", body)

	// Processing failed but the gateway still gets a 200 so it stops retrying.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")
}

func TestWebhookHandlerAcknowledgesMalformedBody(t *testing.T) {
	handler := newWebhookHandler(&fakeTracker{})

	rec := performJSON(handler.Midtrans, http.MethodPost, "/webhooks/midtrans", `{not json`)
	assert.Equal(t, http.StatusOK, rec.Code)
}
