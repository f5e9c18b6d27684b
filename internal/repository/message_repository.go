package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/repense-api/internal/models"
)

// MessageRepository stores the admin and teacher conversation threads.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs a MessageRepository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// EnsureConversation returns the teacher's conversation, creating it on first use.
func (r *MessageRepository) EnsureConversation(ctx context.Context, exec sqlx.ExtContext, teacherID string) (*models.Conversation, error) {
	target := exec
	if target == nil {
		target = r.db
	}
	const query = `INSERT INTO conversations (id, teacher_id, created_at, updated_at) VALUES ($1, $2, $3, $3)
        ON CONFLICT (teacher_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
        RETURNING id, teacher_id, created_at, updated_at`
	var conversation models.Conversation
	if err := sqlx.GetContext(ctx, target, &conversation, query, uuid.NewString(), teacherID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}
	return &conversation, nil
}

// CreateMessage appends a message to a conversation.
func (r *MessageRepository) CreateMessage(ctx context.Context, exec sqlx.ExtContext, message *models.Message) error {
	target := exec
	if target == nil {
		target = r.db
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	message.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO messages (id, conversation_id, sender_role, sender_id, body, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := target.ExecContext(ctx, query, message.ID, message.ConversationID, message.SenderRole, message.SenderID, message.Body, message.CreatedAt); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListByTeacher returns the teacher's conversation history, oldest first.
func (r *MessageRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.Message, error) {
	const query = `SELECT m.id, m.conversation_id, m.sender_role, m.sender_id, m.body, m.created_at
        FROM messages m
        JOIN conversations c ON c.id = m.conversation_id
        WHERE c.teacher_id = $1
        ORDER BY m.created_at ASC`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, teacherID); err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	return messages, nil
}
