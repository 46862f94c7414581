package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/studyspot/checkin-api/internal/models"
	"github.com/studyspot/checkin-api/internal/service"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
	"github.com/studyspot/checkin-api/pkg/response"
)

// StudentHandler exposes student directory endpoints.
type StudentHandler struct {
	directory *service.DirectoryService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(directory *service.DirectoryService) *StudentHandler {
	return &StudentHandler{directory: directory}
}

// Register godoc
// @Summary Register a student
// @Description Creates a student profile and assigns a unique 5-digit access code
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.RegisterRequest true "Profile payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.directory.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Get godoc
// @Summary Get a student by access code
// @Tags Students
// @Produce json
// @Param code path string true "Access code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{code} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.directory.FindByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

type certificateRequest struct {
	Submitted bool `json:"submitted"`
}

// SetCertificate godoc
// @Summary Update the enrollment certificate flag
// @Tags Students
// @Accept json
// @Produce json
// @Param code path string true "Access code"
// @Param payload body certificateRequest true "Certificate flag"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{code}/certificate [put]
func (h *StudentHandler) SetCertificate(c *gin.Context) {
	var req certificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.directory.SetCertificateSubmitted(c.Request.Context(), c.Param("code"), req.Submitted); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name or email"
// @Param hasPlan query bool false "Filter by plan presence"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	var filter models.StudentFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if hasPlan := c.Query("hasPlan"); hasPlan != "" {
		if hasPlan == "true" {
			v := true
			filter.HasPlan = &v
		} else if hasPlan == "false" {
			v := false
			filter.HasPlan = &v
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	students, pagination, err := h.directory.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}
