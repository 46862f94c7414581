package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studyspot/checkin-api/internal/service"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
	"github.com/studyspot/checkin-api/pkg/response"
)

// CheckinHandler exposes the check-in toggle and status endpoints.
type CheckinHandler struct {
	attendance *service.AttendanceService
}

// NewCheckinHandler constructs CheckinHandler.
func NewCheckinHandler(attendance *service.AttendanceService) *CheckinHandler {
	return &CheckinHandler{attendance: attendance}
}

type toggleRequest struct {
	AccessCode string `json:"access_code"`
}

// Toggle godoc
// @Summary Toggle check-in state
// @Description Opens a session for a checked-out student or closes the open one
// @Tags Checkin
// @Accept json
// @Produce json
// @Param payload body toggleRequest true "Access code"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /checkin [post]
func (h *CheckinHandler) Toggle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.attendance.Toggle(c.Request.Context(), req.AccessCode)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Status godoc
// @Summary Current attendance state
// @Tags Checkin
// @Produce json
// @Param code path string true "Access code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /checkin/{code} [get]
func (h *CheckinHandler) Status(c *gin.Context) {
	status, err := h.attendance.Status(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
