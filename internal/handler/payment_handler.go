package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studyspot/checkin-api/internal/middleware"
	"github.com/studyspot/checkin-api/internal/service"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
	"github.com/studyspot/checkin-api/pkg/response"
)

// PaymentHandler exposes payment lifecycle endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
	gateway  *service.GatewayService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService, gateway *service.GatewayService) *PaymentHandler {
	return &PaymentHandler{payments: payments, gateway: gateway}
}

// Create godoc
// @Summary Request a plan purchase
// @Description Creates a pending payment record with the amount snapshotted from the plan
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.PurchaseRequest true "Purchase payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Create(c *gin.Context) {
	var req service.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.payments.RequestPurchase(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Get godoc
// @Summary Get a payment record
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	record, err := h.payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// CreatePreference godoc
// @Summary Create a gateway checkout preference
// @Description Registers the pending payment with the gateway and returns the hosted checkout reference
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /payments/{id}/preference [post]
func (h *PaymentHandler) CreatePreference(c *gin.Context) {
	result, err := h.gateway.CreatePreference(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Confirm godoc
// @Summary Confirm an in-person payment
// @Description Front-desk confirmation; records the confirming staff member and activates the plan
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/{id}/confirm [post]
func (h *PaymentHandler) Confirm(c *gin.Context) {
	claims, ok := middleware.CurrentStaff(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.payments.ConfirmInPersonPayment(c.Request.Context(), c.Param("id"), claims.StaffID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
