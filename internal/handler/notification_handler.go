package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repense-api/internal/dto"
	"github.com/noah-isme/repense-api/internal/models"
	"github.com/noah-isme/repense-api/internal/service"
	"github.com/noah-isme/repense-api/pkg/response"
)

type notificationService interface {
	AdminFeed(ctx context.Context) (*dto.AdminFeed, error)
	TeacherFeed(ctx context.Context, teacherID string) (*dto.TeacherFeed, error)
	MarkRead(ctx context.Context, actor service.Actor, req service.MarkReadRequest) (*dto.MarkReadResult, error)
	SendToTeacher(ctx context.Context, adminID, teacherID string, req service.SendMessageRequest) (*models.Message, error)
	SendToAdmin(ctx context.Context, teacherID string, req service.SendMessageRequest) (*models.Message, error)
	Conversation(ctx context.Context, teacherID string) ([]models.Message, error)
	TeacherConversation(ctx context.Context, teacherID string) ([]models.Message, error)
}

// NotificationHandler exposes feeds and admin/facilitator messaging.
type NotificationHandler struct {
	notifications notificationService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications notificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// AdminFeed godoc
// @Summary Unread admin notifications grouped by type
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/notifications [get]
func (h *NotificationHandler) AdminFeed(c *gin.Context) {
	feed, err := h.notifications.AdminFeed(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, feed)
}

// TeacherFeed godoc
// @Summary Unread leader messages of the facilitator
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teacher/notifications [get]
func (h *NotificationHandler) TeacherFeed(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	feed, err := h.notifications.TeacherFeed(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, feed)
}

// MarkRead godoc
// @Summary Mark notifications as read
// @Description Select by ids or by type and reference_id. Repeated calls are no-ops.
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body service.MarkReadRequest true "Selection"
// @Success 200 {object} response.Envelope
// @Router /admin/notifications/mark-read [post]
// @Router /teacher/notifications/mark-read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.MarkReadRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.notifications.MarkRead(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// TeacherMessages godoc
// @Summary Conversation with a facilitator
// @Tags Messages
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /admin/teachers/{id}/messages [get]
func (h *NotificationHandler) TeacherMessages(c *gin.Context) {
	messages, err := h.notifications.TeacherConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, messages)
}

// SendToTeacher godoc
// @Summary Send a message to a facilitator
// @Tags Messages
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body service.SendMessageRequest true "Message"
// @Success 201 {object} response.Envelope
// @Router /admin/teachers/{id}/messages [post]
func (h *NotificationHandler) SendToTeacher(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	message, err := h.notifications.SendToTeacher(c.Request.Context(), actor.ID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, message)
}

// MyMessages godoc
// @Summary Conversation of the facilitator with the coordination
// @Tags Messages
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teacher/messages [get]
func (h *NotificationHandler) MyMessages(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	messages, err := h.notifications.Conversation(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, messages)
}

// SendToAdmin godoc
// @Summary Send a message to the coordination
// @Tags Messages
// @Accept json
// @Produce json
// @Param payload body service.SendMessageRequest true "Message"
// @Success 201 {object} response.Envelope
// @Router /teacher/messages [post]
func (h *NotificationHandler) SendToAdmin(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	message, err := h.notifications.SendToAdmin(c.Request.Context(), actor.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, message)
}
