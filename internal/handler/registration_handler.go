package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repense-api/internal/dto"
	"github.com/noah-isme/repense-api/internal/service"
	"github.com/noah-isme/repense-api/pkg/response"
)

type registrationService interface {
	Register(ctx context.Context, req service.RegisterRequest) (*dto.RegisterResponse, error)
	ConfirmCourseChange(ctx context.Context, req service.ConfirmCourseChangeRequest) (*dto.TransferResult, error)
}

type waitlistService interface {
	AddToPriorityList(ctx context.Context, req service.PriorityListRequest) (*dto.PriorityListResponse, error)
}

// RegistrationHandler serves the unauthenticated registration form.
type RegistrationHandler struct {
	registrations registrationService
	waitlist      waitlistService
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registrations registrationService, waitlist waitlistService) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations, waitlist: waitlist}
}

// Register godoc
// @Summary Public registration
// @Description Enrolls the registrant, or returns a course change proposal with a change_token when they already study in another class.
// @Tags Registration
// @Accept json
// @Produce json
// @Param payload body service.RegisterRequest true "Registration form"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /register [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.registrations.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if result.RequiresCourseChange {
		status = http.StatusOK
	}
	response.JSON(c, status, result, nil)
}

// ConfirmCourseChange godoc
// @Summary Confirm a proposed course change
// @Tags Registration
// @Accept json
// @Produce json
// @Param payload body service.ConfirmCourseChangeRequest true "Change token"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /register/change-course [post]
func (h *RegistrationHandler) ConfirmCourseChange(c *gin.Context) {
	var req service.ConfirmCourseChangeRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.registrations.ConfirmCourseChange(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// JoinPriorityList godoc
// @Summary Join the waitlist of a grupo
// @Tags Registration
// @Accept json
// @Produce json
// @Param payload body service.PriorityListRequest true "Registrant and grupo"
// @Success 201 {object} response.Envelope
// @Router /students/priority-list [post]
func (h *RegistrationHandler) JoinPriorityList(c *gin.Context) {
	var req service.PriorityListRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.waitlist.AddToPriorityList(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
