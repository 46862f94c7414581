package service

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"go.uber.org/zap"

	"github.com/studyspot/checkin-api/internal/models"
	"github.com/studyspot/checkin-api/pkg/config"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
)

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type gatewayPaymentStore interface {
	FindByID(ctx context.Context, id string) (*models.PaymentRecord, error)
	SetExternalRef(ctx context.Context, id, ref string) error
}

type gatewayPaymentTracker interface {
	ConfirmGatewayPayment(ctx context.Context, externalRef string) (*models.PaymentRecord, error)
	MarkFailed(ctx context.Context, externalRef, reason string) (*models.PaymentRecord, error)
}

type gatewayDirectory interface {
	FindByCode(ctx context.Context, code string) (*models.Student, error)
}

type gatewayPlanCatalog interface {
	FindByID(ctx context.Context, id string) (*models.Plan, error)
}

// PreferenceResult is handed to the client to start hosted checkout.
type PreferenceResult struct {
	PaymentID   string `json:"payment_id"`
	ExternalRef string `json:"external_ref"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// NotificationPayload is the Midtrans HTTP notification body, reduced
// to the fields this service acts on.
type NotificationPayload struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	FraudStatus       string `json:"fraud_status"`
}

// GatewayService translates internal payment requests into Midtrans
// Snap calls and reconciles asynchronous notifications back into
// payment state. Credentials and timeouts come in through the config
// object at construction, never from ambient environment reads.
type GatewayService struct {
	snap      snapAPI
	records   gatewayPaymentStore
	tracker   gatewayPaymentTracker
	directory gatewayDirectory
	plans     gatewayPlanCatalog
	serverKey string
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewSnapClient builds the Midtrans Snap client with a bounded call
// timeout.
func NewSnapClient(cfg config.GatewayConfig) *snap.Client {
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}
	client := &snap.Client{}
	client.New(cfg.ServerKey, env)
	if cfg.CallTimeout > 0 {
		client.HttpClient = &midtrans.HttpClientImplementation{
			HttpClient: &http.Client{Timeout: cfg.CallTimeout},
		}
	}
	return client
}

// NewGatewayService constructs the gateway service.
func NewGatewayService(snapClient snapAPI, records gatewayPaymentStore, tracker gatewayPaymentTracker, directory gatewayDirectory, plans gatewayPlanCatalog, cfg config.GatewayConfig, metrics *MetricsService, logger *zap.Logger) *GatewayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatewayService{
		snap:      snapClient,
		records:   records,
		tracker:   tracker,
		directory: directory,
		plans:     plans,
		serverKey: cfg.ServerKey,
		metrics:   metrics,
		logger:    logger,
	}
}

// CreatePreference creates a hosted-checkout transaction for a pending
// gateway payment and returns the redirect URL. The external reference
// is persisted before the outbound call so a notification can always be
// correlated, and the record stays pending on failure so the client can
// retry with the same payment.
func (s *GatewayService) CreatePreference(ctx context.Context, paymentID string) (*PreferenceResult, error) {
	record, err := s.records.FindByID(ctx, paymentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if record.Method != models.MethodGateway {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment is not a gateway payment")
	}
	if record.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "payment is no longer pending")
	}

	ref := fmt.Sprintf("SSPOT-%s", record.ID)
	if record.ExternalRef != nil && *record.ExternalRef != "" {
		ref = *record.ExternalRef
	} else if err := s.records.SetExternalRef(ctx, record.ID, ref); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist payment reference")
	}

	student, err := s.directory.FindByCode(ctx, record.AccessCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	itemName := "Membership plan"
	if plan, err := s.plans.FindByID(ctx, record.PlanID); err == nil {
		itemName = plan.Name
	}

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  ref,
			GrossAmt: int64(record.Amount),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: student.FullName,
			Email: student.Email,
			Phone: student.Phone,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    record.PlanID,
				Price: int64(record.Amount),
				Qty:   1,
				Name:  itemName,
			},
		},
	}

	start := time.Now()
	resp, merr := s.snap.CreateTransaction(req)
	if s.metrics != nil {
		s.metrics.ObserveGatewayCall(time.Since(start), merr == nil)
	}
	if merr != nil {
		return nil, appErrors.Wrap(merr, appErrors.ErrGateway.Code, appErrors.ErrGateway.Status, "gateway rejected preference creation")
	}
	if resp == nil || resp.RedirectURL == "" {
		return nil, appErrors.Clone(appErrors.ErrGateway, "gateway returned no redirect URL")
	}

	return &PreferenceResult{
		PaymentID:   record.ID,
		ExternalRef: ref,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
	}, nil
}

// HandleNotification applies an asynchronous status notification. The
// caller acknowledges the sender regardless of the returned error; the
// error exists for logging and tests. Redelivered and out-of-order
// notifications are safe because the underlying transitions are
// conditional and monotonic.
func (s *GatewayService) HandleNotification(ctx context.Context, payload NotificationPayload) error {
	if payload.OrderID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "notification missing order id")
	}
	if !s.verifySignature(payload) {
		s.logger.Warn("notification signature mismatch", zap.String("order_id", payload.OrderID))
		return appErrors.Clone(appErrors.ErrUnauthorized, "invalid notification signature")
	}

	switch payload.TransactionStatus {
	case "capture":
		if payload.FraudStatus != "" && payload.FraudStatus != "accept" {
			s.logger.Info("capture held for fraud review", zap.String("order_id", payload.OrderID), zap.String("fraud_status", payload.FraudStatus))
			return nil
		}
		_, err := s.tracker.ConfirmGatewayPayment(ctx, payload.OrderID)
		return err
	case "settlement":
		_, err := s.tracker.ConfirmGatewayPayment(ctx, payload.OrderID)
		return err
	case "pending":
		return nil
	case "deny", "cancel", "expire", "failure":
		_, err := s.tracker.MarkFailed(ctx, payload.OrderID, payload.TransactionStatus)
		return err
	default:
		s.logger.Warn("unhandled transaction status", zap.String("order_id", payload.OrderID), zap.String("status", payload.TransactionStatus))
		return nil
	}
}

// verifySignature checks the Midtrans signature_key: the SHA-512 of
// order_id + status_code + gross_amount + server_key.
func (s *GatewayService) verifySignature(payload NotificationPayload) bool {
	if s.serverKey == "" {
		// No key configured (local development); nothing to verify against.
		return true
	}
	sum := sha512.Sum512([]byte(payload.OrderID + payload.StatusCode + payload.GrossAmount + s.serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(payload.SignatureKey)) == 1
}
