package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studyspot/checkin-api/internal/service"
	"github.com/studyspot/checkin-api/pkg/response"
)

// PlanHandler exposes the membership plan catalog.
type PlanHandler struct {
	plans *service.PlanService
}

// NewPlanHandler constructs PlanHandler.
func NewPlanHandler(plans *service.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// List godoc
// @Summary List active plans
// @Description Active plans ordered by price, each labeled with a presentation tier
// @Tags Plans
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /plans [get]
func (h *PlanHandler) List(c *gin.Context) {
	listings, err := h.plans.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, listings, nil)
}
