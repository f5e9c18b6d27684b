package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repense-api/internal/models"
	"github.com/noah-isme/repense-api/internal/service"
	"github.com/noah-isme/repense-api/pkg/response"
)

type sessionService interface {
	Open(ctx context.Context, teacherID string, req service.OpenSessionRequest) (*models.SessionDetail, bool, error)
	RecordAttendance(ctx context.Context, teacherID, sessionID string, req service.RecordAttendanceRequest) (*models.SessionDetail, error)
	Finalize(ctx context.Context, teacherID, sessionID string, req service.FinalizeSessionRequest) (*models.SessionDetail, error)
	Current(ctx context.Context, teacherID string) (*models.SessionDetail, error)
	Get(ctx context.Context, actor service.Actor, sessionID string) (*models.SessionDetail, error)
	ListByClass(ctx context.Context, classID string) ([]models.Session, error)
	AtRisk(ctx context.Context, teacherID string) ([]models.AtRiskStudent, error)
}

// SessionHandler exposes meeting and attendance endpoints.
type SessionHandler struct {
	sessions sessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions sessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Open godoc
// @Summary Open the next session of a class
// @Description Returns 200 with the existing session when the facilitator already has it open.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.OpenSessionRequest true "Class"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teacher/sessions [post]
func (h *SessionHandler) Open(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.OpenSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, created, err := h.sessions.Open(c.Request.Context(), actor.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.JSON(c, status, session, nil)
}

// Current godoc
// @Summary Open session of the authenticated facilitator
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teacher/sessions/current [get]
func (h *SessionHandler) Current(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	session, err := h.sessions.Current(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// Get godoc
// @Summary Get session with its check-in roster
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /teacher/sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	session, err := h.sessions.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// Finalize godoc
// @Summary Close a session
// @Description Every active student needs a check-in before the session can close.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.FinalizeSessionRequest false "Session report"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /teacher/sessions/{id} [put]
func (h *SessionHandler) Finalize(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.FinalizeSessionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	session, err := h.sessions.Finalize(c.Request.Context(), actor.ID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// RecordAttendance godoc
// @Summary Record check-ins for a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.RecordAttendanceRequest true "Check-ins"
// @Success 200 {object} response.Envelope
// @Router /teacher/sessions/{id}/attendance [post]
func (h *SessionHandler) RecordAttendance(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.RecordAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.RecordAttendance(c.Request.Context(), actor.ID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// AtRisk godoc
// @Summary Students of the facilitator close to the absence limit
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teacher/at-risk [get]
func (h *SessionHandler) AtRisk(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	students, err := h.sessions.AtRisk(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, students)
}

// ClassSessions godoc
// @Summary Sessions of a class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /admin/classes/{id}/sessions [get]
func (h *SessionHandler) ClassSessions(c *gin.Context) {
	sessions, err := h.sessions.ListByClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sessions)
}
