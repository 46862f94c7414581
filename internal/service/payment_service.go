package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyspot/checkin-api/internal/models"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
	"github.com/studyspot/checkin-api/pkg/jobs"
	"github.com/studyspot/checkin-api/pkg/keyedmutex"
)

type paymentRepository interface {
	Create(ctx context.Context, record *models.PaymentRecord) error
	FindByID(ctx context.Context, id string) (*models.PaymentRecord, error)
	FindByExternalRef(ctx context.Context, ref string) (*models.PaymentRecord, error)
	Confirm(ctx context.Context, id string, confirmedBy *string, now time.Time) (bool, error)
	Fail(ctx context.Context, id, reason string, now time.Time) (bool, error)
}

type paymentPlanCatalog interface {
	FindByID(ctx context.Context, id string) (*models.Plan, error)
}

type paymentDirectory interface {
	FindByCode(ctx context.Context, code string) (*models.Student, error)
	AssignPlan(ctx context.Context, code, planID string, start, end time.Time) error
}

type followupQueue interface {
	Enqueue(job jobs.Job) error
}

// PurchaseRequest is the payload for requesting a plan purchase.
type PurchaseRequest struct {
	AccessCode string               `json:"access_code" validate:"required,len=5,numeric"`
	PlanID     string               `json:"plan_id" validate:"required"`
	Method     models.PaymentMethod `json:"method" validate:"required"`
}

// PaymentService tracks plan purchases from request to confirmation.
// Status transitions are monotonic: once confirmed or failed a record
// never changes again, which is what makes webhook redelivery safe.
type PaymentService struct {
	payments  paymentRepository
	plans     paymentPlanCatalog
	directory paymentDirectory
	followups followupQueue
	locks     *keyedmutex.KeyedMutex
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentService constructs the payment service.
func NewPaymentService(payments paymentRepository, plans paymentPlanCatalog, directory paymentDirectory, followups followupQueue, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		payments:  payments,
		plans:     plans,
		directory: directory,
		followups: followups,
		locks:     keyedmutex.New(),
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RequestPurchase creates a pending payment record for the student and
// plan. The amount is snapshotted from the plan at request time.
func (s *PaymentService) RequestPurchase(ctx context.Context, req PurchaseRequest) (*models.PaymentRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid purchase payload")
	}
	if !req.Method.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported payment method")
	}

	if _, err := s.directory.FindByCode(ctx, req.AccessCode); err != nil {
		return nil, err
	}

	plan, err := s.plans.FindByID(ctx, req.PlanID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}

	record := &models.PaymentRecord{
		AccessCode: req.AccessCode,
		PlanID:     plan.ID,
		Amount:     plan.Price,
		Method:     req.Method,
		Status:     models.PaymentPending,
		CreatedAt:  s.now(),
	}
	if err := s.payments.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment")
	}
	return record, nil
}

// Get returns a payment record by id.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.PaymentRecord, error) {
	record, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return record, nil
}

// ConfirmGatewayPayment applies a gateway confirmation for the external
// reference. Redelivered confirmations are a no-op success; a record
// already failed cannot be confirmed.
func (s *PaymentService) ConfirmGatewayPayment(ctx context.Context, externalRef string) (*models.PaymentRecord, error) {
	s.locks.Lock(externalRef)
	defer s.locks.Unlock(externalRef)

	record, err := s.payments.FindByExternalRef(ctx, externalRef)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrUnknownReference, "no payment matches reference")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	return s.confirm(ctx, record, nil)
}

// ConfirmInPersonPayment applies a front-desk confirmation performed by
// the given staff member. Same idempotency contract as the gateway path.
func (s *PaymentService) ConfirmInPersonPayment(ctx context.Context, paymentID, staffID string) (*models.PaymentRecord, error) {
	s.locks.Lock(paymentID)
	defer s.locks.Unlock(paymentID)

	record, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	return s.confirm(ctx, record, &staffID)
}

// MarkFailed moves a pending payment to failed. Terminal: no plan is
// ever assigned from a failed record.
func (s *PaymentService) MarkFailed(ctx context.Context, externalRef, reason string) (*models.PaymentRecord, error) {
	s.locks.Lock(externalRef)
	defer s.locks.Unlock(externalRef)

	record, err := s.payments.FindByExternalRef(ctx, externalRef)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrUnknownReference, "no payment matches reference")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	if record.Status == models.PaymentFailed {
		return record, nil
	}
	if record.Status == models.PaymentConfirmed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "payment already confirmed")
	}

	now := s.now()
	applied, err := s.payments.Fail(ctx, record.ID, reason, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark payment failed")
	}
	if !applied {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "payment left pending state concurrently")
	}

	record.Status = models.PaymentFailed
	record.FailureReason = &reason
	record.ConfirmedAt = &now
	if s.metrics != nil {
		s.metrics.RecordPayment(models.PaymentFailed)
	}
	return record, nil
}

func (s *PaymentService) confirm(ctx context.Context, record *models.PaymentRecord, staffID *string) (*models.PaymentRecord, error) {
	if record.Status == models.PaymentConfirmed {
		return record, nil
	}
	if record.Status == models.PaymentFailed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "payment already failed")
	}

	now := s.now()
	applied, err := s.payments.Confirm(ctx, record.ID, staffID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm payment")
	}
	if !applied {
		// Another delivery won the conditional update; re-read and report
		// whatever terminal state it produced.
		fresh, err := s.payments.FindByID(ctx, record.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload payment")
		}
		if fresh.Status == models.PaymentConfirmed {
			return fresh, nil
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "payment is not pending")
	}

	record.Status = models.PaymentConfirmed
	record.ConfirmedAt = &now
	record.ConfirmedBy = staffID

	plan, err := s.plans.FindByID(ctx, record.PlanID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan for assignment")
	}
	days := plan.DurationDays
	if days <= 0 {
		days = 30
	}
	start := now
	end := start.AddDate(0, 0, days)
	if err := s.directory.AssignPlan(ctx, record.AccessCode, record.PlanID, start, end); err != nil {
		// The payment is confirmed either way; surface the assignment
		// problem to the logs, not the gateway.
		s.logger.Error("plan assignment after confirmation failed",
			zap.String("payment_id", record.ID),
			zap.String("access_code", record.AccessCode),
			zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.RecordPayment(models.PaymentConfirmed)
	}
	if s.followups != nil {
		if err := s.followups.Enqueue(jobs.Job{ID: record.ID, Type: "payment_confirmed", Payload: record}); err != nil {
			s.logger.Warn("failed to enqueue confirmation followup", zap.String("payment_id", record.ID), zap.Error(err))
		}
	}
	return record, nil
}
