package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repense-api/internal/dto"
	"github.com/noah-isme/repense-api/internal/models"
	"github.com/noah-isme/repense-api/internal/service"
	"github.com/noah-isme/repense-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Student, error)
	Update(ctx context.Context, id string, req service.UpdateStudentRequest) (*models.Student, error)
	History(ctx context.Context, id string) (*dto.StudentHistory, error)
}

type transferService interface {
	TransferEnrolled(ctx context.Context, req service.MoveStudentRequest) (*dto.TransferResult, error)
	TransferFromPriorityList(ctx context.Context, studentID string, req service.PriorityTransferRequest) (*dto.TransferResult, error)
	PriorityList(ctx context.Context, grupo models.Grupo) ([]models.Student, error)
}

// StudentHandler exposes student administration and transfer endpoints.
type StudentHandler struct {
	students  studentService
	transfers transferService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService, transfers transferService) *StudentHandler {
	return &StudentHandler{students: students, transfers: transfers}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name, CPF or phone"
// @Param city query string false "Filter by city"
// @Param priorityList query bool false "Only waitlisted students"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/students [get]
func (h *StudentHandler) List(c *gin.Context) {
	var filter models.StudentFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.City = strings.TrimSpace(c.Query("city"))
	filter.PriorityList = optionalBool(c, "priorityList")
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	students, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /admin/students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /admin/students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.UpdateStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, student)
}

// History godoc
// @Summary Enrollment, attendance and observation history of a student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /admin/students/{id}/history [get]
func (h *StudentHandler) History(c *gin.Context) {
	history, err := h.students.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, history)
}

// TransferPriority godoc
// @Summary Enroll a waitlisted student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.PriorityTransferRequest true "Destination class"
// @Success 200 {object} response.Envelope
// @Router /admin/students/{id}/transfer-priority [post]
func (h *StudentHandler) TransferPriority(c *gin.Context) {
	var req service.PriorityTransferRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.transfers.TransferFromPriorityList(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// PriorityList godoc
// @Summary Waitlist of a grupo in arrival order
// @Tags Students
// @Produce json
// @Param grupo query string false "Grupo (igreja, espiritualidade, evangelho)"
// @Success 200 {object} response.Envelope
// @Router /admin/priority-list [get]
func (h *StudentHandler) PriorityList(c *gin.Context) {
	grupo := models.Grupo(strings.ToLower(strings.TrimSpace(c.Query("grupo"))))
	students, err := h.transfers.PriorityList(c.Request.Context(), grupo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, students)
}

// MoveStudent godoc
// @Summary Move an active student to another class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Source class ID"
// @Param payload body service.MoveStudentRequest true "Student and destination class"
// @Success 200 {object} response.Envelope
// @Router /admin/classes/{id}/move-student [post]
func (h *StudentHandler) MoveStudent(c *gin.Context) {
	var req service.MoveStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	req.FromClassID = c.Param("id")
	result, err := h.transfers.TransferEnrolled(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
