package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repense-api/internal/models"
	"github.com/noah-isme/repense-api/internal/service"
	"github.com/noah-isme/repense-api/pkg/response"
)

type classService interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error)
	ListForTeacher(ctx context.Context, teacherID string) ([]models.ClassDetail, error)
	Get(ctx context.Context, id string) (*models.ClassDetail, error)
	Create(ctx context.Context, req service.ClassRequest) (*models.ClassDetail, error)
	Update(ctx context.Context, id string, req service.ClassRequest) (*models.ClassDetail, error)
	SetActive(ctx context.Context, id string, req service.SetActiveRequest) (*models.ClassDetail, error)
	Archive(ctx context.Context, id string) (*models.ClassDetail, error)
	Unarchive(ctx context.Context, id string) (*models.ClassDetail, error)
	BatchArchive(ctx context.Context, req service.BatchArchiveRequest) ([]models.ArchiveResult, error)
	SubmitFinalReport(ctx context.Context, actor service.Actor, classID string, req service.FinalReportRequest) (*models.ClassDetail, error)
	Roster(ctx context.Context, actor service.Actor, classID string) ([]models.RosterEntry, error)
}

// ClassHandler exposes class administration endpoints.
type ClassHandler struct {
	service classService
}

// NewClassHandler constructs a class handler.
func NewClassHandler(svc classService) *ClassHandler {
	return &ClassHandler{service: svc}
}

// List godoc
// @Summary List classes
// @Tags Classes
// @Produce json
// @Param grupo query string false "Filter by grupo (igreja, espiritualidade, evangelho)"
// @Param modality query string false "Filter by modality"
// @Param city query string false "Filter by city"
// @Param teacherId query string false "Filter by facilitator"
// @Param active query bool false "Filter by active flag"
// @Param archived query bool false "Filter by archived flag"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	var filter models.ClassFilter
	filter.Grupo = models.Grupo(strings.ToLower(c.Query("grupo")))
	filter.Modality = models.Modality(strings.ToLower(c.Query("modality")))
	filter.City = strings.TrimSpace(c.Query("city"))
	filter.TeacherID = c.Query("teacherId")
	filter.Active = optionalBool(c, "active")
	filter.Archived = optionalBool(c, "archived")
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	classes, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, pagination)
}

// Get godoc
// @Summary Get class detail
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /admin/classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	class, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, class)
}

// Create godoc
// @Summary Create class
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body service.ClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Router /admin/classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	var req service.ClassRequest
	if !bindJSON(c, &req) {
		return
	}
	class, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// Update godoc
// @Summary Update class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.ClassRequest true "Class payload"
// @Success 200 {object} response.Envelope
// @Router /admin/classes/{id} [put]
func (h *ClassHandler) Update(c *gin.Context) {
	var req service.ClassRequest
	if !bindJSON(c, &req) {
		return
	}
	class, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, class)
}

// SetActive godoc
// @Summary Toggle class activation
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.SetActiveRequest true "Active flag"
// @Success 200 {object} response.Envelope
// @Router /admin/classes/{id}/active [put]
func (h *ClassHandler) SetActive(c *gin.Context) {
	var req service.SetActiveRequest
	if !bindJSON(c, &req) {
		return
	}
	class, err := h.service.SetActive(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, class)
}

// Archive godoc
// @Summary Archive class
// @Description Requires a final report after the last session and no open session.
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /admin/classes/{id}/archive [post]
func (h *ClassHandler) Archive(c *gin.Context) {
	class, err := h.service.Archive(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, class)
}

// Unarchive godoc
// @Summary Unarchive class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /admin/classes/{id}/unarchive [post]
func (h *ClassHandler) Unarchive(c *gin.Context) {
	class, err := h.service.Unarchive(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, class)
}

// BatchArchive godoc
// @Summary Archive several classes
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body service.BatchArchiveRequest true "Class IDs"
// @Success 200 {object} response.Envelope
// @Router /admin/classes/batch/archive [post]
func (h *ClassHandler) BatchArchive(c *gin.Context) {
	var req service.BatchArchiveRequest
	if !bindJSON(c, &req) {
		return
	}
	results, err := h.service.BatchArchive(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, results)
}

// SubmitFinalReport godoc
// @Summary Record the closing report of a class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.FinalReportRequest true "Report"
// @Success 200 {object} response.Envelope
// @Router /admin/classes/{id}/final-report [post]
// @Router /teacher/classes/{id}/final-report [post]
func (h *ClassHandler) SubmitFinalReport(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.FinalReportRequest
	if !bindJSON(c, &req) {
		return
	}
	class, err := h.service.SubmitFinalReport(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, class)
}

// Roster godoc
// @Summary List active students of a class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /admin/classes/{id}/roster [get]
// @Router /teacher/classes/{id}/roster [get]
func (h *ClassHandler) Roster(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	roster, err := h.service.Roster(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, roster)
}

// TeacherClasses godoc
// @Summary Classes assigned to the authenticated facilitator
// @Tags Teacher
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teacher/classes [get]
func (h *ClassHandler) TeacherClasses(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	classes, err := h.service.ListForTeacher(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, classes)
}
