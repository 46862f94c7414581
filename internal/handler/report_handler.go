package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studyspot/checkin-api/internal/models"
	"github.com/studyspot/checkin-api/internal/service"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
	"github.com/studyspot/checkin-api/pkg/response"
)

// ReportHandler streams visit history exports.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Visits godoc
// @Summary Export visit history
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param code query string false "Filter by access code"
// @Param from query string false "Start of window (RFC3339)"
// @Param to query string false "End of window (RFC3339)"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /reports/visits [get]
func (h *ReportHandler) Visits(c *gin.Context) {
	var filter models.VisitFilter
	filter.AccessCode = c.Query("code")
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from timestamp"))
			return
		}
		filter.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to timestamp"))
			return
		}
		filter.To = &t
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "500")); err == nil {
		filter.PageSize = size
	}

	format := service.ReportFormat(c.DefaultQuery("format", "csv"))
	file, err := h.reports.VisitReport(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Body)
}
