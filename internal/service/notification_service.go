package service

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/dto"
	"github.com/noah-isme/repense-api/internal/models"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
)

type notificationFeedStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, notification *models.Notification) error
	ListUnread(ctx context.Context, role models.UserRole, teacherID string, types []models.NotificationType) ([]models.Notification, error)
	MarkReadByIDs(ctx context.Context, role models.UserRole, teacherID string, ids []string) (int64, error)
	MarkReadByReference(ctx context.Context, role models.UserRole, teacherID string, notificationType models.NotificationType, referenceID string) (int64, error)
}

type conversationStore interface {
	EnsureConversation(ctx context.Context, exec sqlx.ExtContext, teacherID string) (*models.Conversation, error)
	CreateMessage(ctx context.Context, exec sqlx.ExtContext, message *models.Message) error
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Message, error)
}

// MarkReadRequest selects notifications either by id or by thread.
type MarkReadRequest struct {
	IDs         []string                `json:"ids" validate:"omitempty,max=200,dive,required"`
	Type        models.NotificationType `json:"type" validate:"omitempty,oneof=OBSERVATION SESSION_REPORT FINAL_REPORT LEADER_MESSAGE"`
	ReferenceID string                  `json:"reference_id" validate:"required_with=Type"`
}

// SendMessageRequest carries a conversation message body.
type SendMessageRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

// NotificationService aggregates feeds and the admin/teacher conversation.
type NotificationService struct {
	db            txProvider
	notifications notificationFeedStore
	messages      conversationStore
	teachers      teacherLookup
	cache         cacheInvalidator
	validator     structValidator
	logger        *zap.Logger
}

// NotificationServiceParams groups constructor dependencies.
type NotificationServiceParams struct {
	DB            txProvider
	Notifications notificationFeedStore
	Messages      conversationStore
	Teachers      teacherLookup
	Cache         cacheInvalidator
	Validator     structValidator
	Logger        *zap.Logger
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(params NotificationServiceParams) *NotificationService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		db:            params.DB,
		notifications: params.Notifications,
		messages:      params.Messages,
		teachers:      params.Teachers,
		cache:         params.Cache,
		validator:     defaultValidator(params.Validator),
		logger:        logger,
	}
}

// AdminFeed returns unread admin notifications grouped by type.
func (s *NotificationService) AdminFeed(ctx context.Context) (*dto.AdminFeed, error) {
	items, err := s.notifications.ListUnread(ctx, models.RoleAdmin, "", nil)
	if err != nil {
		return nil, internalError(err, "failed to load notifications")
	}
	feed := &dto.AdminFeed{
		Observations:   []models.Notification{},
		SessionReports: []models.Notification{},
		FinalReports:   []models.Notification{},
		LeaderMessages: []models.Notification{},
		Unread:         len(items),
	}
	for _, item := range items {
		switch item.Type {
		case models.NotificationObservation:
			feed.Observations = append(feed.Observations, item)
		case models.NotificationSessionReport:
			feed.SessionReports = append(feed.SessionReports, item)
		case models.NotificationFinalReport:
			feed.FinalReports = append(feed.FinalReports, item)
		case models.NotificationLeaderMessage:
			feed.LeaderMessages = append(feed.LeaderMessages, item)
		}
	}
	return feed, nil
}

// TeacherFeed returns the unread leader messages addressed to the teacher.
func (s *NotificationService) TeacherFeed(ctx context.Context, teacherID string) (*dto.TeacherFeed, error) {
	items, err := s.notifications.ListUnread(ctx, models.RoleTeacher, teacherID, []models.NotificationType{models.NotificationLeaderMessage})
	if err != nil {
		return nil, internalError(err, "failed to load notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return &dto.TeacherFeed{LeaderMessages: items, Unread: len(items)}, nil
}

// MarkRead flags notifications read for the actor. Repeating the call is a
// successful no-op.
func (s *NotificationService) MarkRead(ctx context.Context, actor Actor, req MarkReadRequest) (*dto.MarkReadResult, error) {
	if err := validate(s.validator, req, "invalid mark read payload"); err != nil {
		return nil, err
	}
	byIDs := len(req.IDs) > 0
	byReference := req.Type != ""
	if byIDs == byReference {
		return nil, appErrors.Clone(appErrors.ErrValidation, "provide either ids or type with reference_id")
	}

	teacherID := ""
	if !actor.IsAdmin() {
		teacherID = actor.ID
	}

	var (
		marked int64
		err    error
	)
	if byIDs {
		marked, err = s.notifications.MarkReadByIDs(ctx, actor.Role, teacherID, req.IDs)
	} else {
		marked, err = s.notifications.MarkReadByReference(ctx, actor.Role, teacherID, req.Type, strings.TrimSpace(req.ReferenceID))
	}
	if err != nil {
		return nil, internalError(err, "failed to mark notifications read")
	}
	if marked > 0 && actor.IsAdmin() {
		invalidateDashboard(ctx, s.cache)
	}
	return &dto.MarkReadResult{Marked: marked}, nil
}

// SendToTeacher appends an admin message to the teacher's conversation and
// notifies the teacher.
func (s *NotificationService) SendToTeacher(ctx context.Context, adminID, teacherID string, req SendMessageRequest) (*models.Message, error) {
	if _, err := s.teachers.FindByID(ctx, teacherID); err != nil {
		return nil, lookupError(err, "teacher")
	}
	message, err := s.send(ctx, teacherID, models.RoleAdmin, adminID, models.RoleTeacher, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("leader message sent", zap.String("teacher_id", teacherID), zap.String("direction", "to_teacher"))
	return message, nil
}

// SendToAdmin appends a teacher message to their conversation and notifies
// the admins.
func (s *NotificationService) SendToAdmin(ctx context.Context, teacherID string, req SendMessageRequest) (*models.Message, error) {
	message, err := s.send(ctx, teacherID, models.RoleTeacher, teacherID, models.RoleAdmin, req)
	if err != nil {
		return nil, err
	}
	invalidateDashboard(ctx, s.cache)
	s.logger.Info("leader message sent", zap.String("teacher_id", teacherID), zap.String("direction", "to_admin"))
	return message, nil
}

func (s *NotificationService) send(ctx context.Context, teacherID string, sender models.UserRole, senderID string, recipient models.UserRole, req SendMessageRequest) (*models.Message, error) {
	if err := validate(s.validator, req, "invalid message payload"); err != nil {
		return nil, err
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message body must not be blank")
	}

	var message *models.Message
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		conversation, err := s.messages.EnsureConversation(ctx, tx, teacherID)
		if err != nil {
			return internalError(err, "failed to open conversation")
		}
		message = &models.Message{
			ConversationID: conversation.ID,
			SenderRole:     sender,
			SenderID:       senderID,
			Body:           body,
		}
		if err := s.messages.CreateMessage(ctx, tx, message); err != nil {
			return internalError(err, "failed to store message")
		}
		tid := teacherID
		notification := &models.Notification{
			Type:          models.NotificationLeaderMessage,
			RecipientRole: recipient,
			ReferenceID:   conversation.ID,
			TeacherID:     &tid,
			Title:         messageTitle(sender),
			Body:          body,
		}
		if err := s.notifications.Create(ctx, tx, notification); err != nil {
			return internalError(err, "failed to notify message")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

func messageTitle(sender models.UserRole) string {
	if sender == models.RoleAdmin {
		return "Nova mensagem da coordenação"
	}
	return "Nova mensagem do líder"
}

// Conversation returns the teacher's message history, oldest first.
func (s *NotificationService) Conversation(ctx context.Context, teacherID string) ([]models.Message, error) {
	messages, err := s.messages.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, internalError(err, "failed to load conversation")
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// TeacherConversation returns the history after checking the teacher exists.
func (s *NotificationService) TeacherConversation(ctx context.Context, teacherID string) ([]models.Message, error) {
	if _, err := s.teachers.FindByID(ctx, teacherID); err != nil {
		return nil, lookupError(err, "teacher")
	}
	return s.Conversation(ctx, teacherID)
}

