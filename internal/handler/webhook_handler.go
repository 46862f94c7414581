package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/studyspot/checkin-api/internal/service"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
)

// WebhookHandler receives asynchronous gateway notifications.
type WebhookHandler struct {
	gateway *service.GatewayService
	logger  *zap.Logger
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(gateway *service.GatewayService, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{gateway: gateway, logger: logger}
}

// Midtrans godoc
// @Summary Midtrans payment notification
// @Description Always acknowledges with 200 so the gateway stops redelivering; processing failures are logged and reconciled out of band
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Router /webhooks/midtrans [post]
func (h *WebhookHandler) Midtrans(c *gin.Context) {
	var payload service.NotificationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("malformed gateway notification", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := h.gateway.HandleNotification(c.Request.Context(), payload); err != nil {
		// Rejecting the delivery only triggers a retry of the same
		// payload, so acknowledge and leave the record for reconciliation.
		h.logger.Error("gateway notification not applied",
			zap.String("order_id", payload.OrderID),
			zap.String("transaction_status", payload.TransactionStatus),
			zap.String("code", appErrors.FromError(err).Code),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
