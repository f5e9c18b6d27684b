package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/repense-api/internal/models"
)

const notificationColumns = `id, type, recipient_role, reference_id, class_id, teacher_id, student_id, title, body,
        lida_por_admin, lida_por_teacher, created_at`

// NotificationRepository stores feed items and their read flags.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create appends a notification.
func (r *NotificationRepository) Create(ctx context.Context, exec sqlx.ExtContext, notification *models.Notification) error {
	target := exec
	if target == nil {
		target = r.db
	}
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	notification.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO notifications (id, type, recipient_role, reference_id, class_id, teacher_id, student_id, title, body, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := target.ExecContext(ctx, query,
		notification.ID, notification.Type, notification.RecipientRole, notification.ReferenceID,
		notification.ClassID, notification.TeacherID, notification.StudentID,
		notification.Title, notification.Body, notification.CreatedAt,
	); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// recipientScope returns the read column and the WHERE fragment limiting rows
// to what the recipient may see. Placeholders start at $1.
func recipientScope(role models.UserRole, teacherID string) (string, string, []interface{}) {
	if role == models.RoleTeacher {
		return "lida_por_teacher", "recipient_role = $1 AND teacher_id = $2", []interface{}{models.RoleTeacher, teacherID}
	}
	return "lida_por_admin", "recipient_role = $1", []interface{}{models.RoleAdmin}
}

// ListUnread returns unread notifications for the recipient, newest first.
func (r *NotificationRepository) ListUnread(ctx context.Context, role models.UserRole, teacherID string, types []models.NotificationType) ([]models.Notification, error) {
	readColumn, scope, args := recipientScope(role, teacherID)
	query := fmt.Sprintf("SELECT %s FROM notifications WHERE %s AND NOT %s", notificationColumns, scope, readColumn)
	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			args = append(args, t)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ", "))
	}
	query += " ORDER BY created_at DESC"

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("list unread notifications: %w", err)
	}
	return notifications, nil
}

// MarkReadByIDs flags the given notifications read for the recipient. Unknown,
// foreign, malformed or already read ids are ignored.
func (r *NotificationRepository) MarkReadByIDs(ctx context.Context, role models.UserRole, teacherID string, ids []string) (int64, error) {
	ids = parseableIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	readColumn, scope, args := recipientScope(role, teacherID)
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf("UPDATE notifications SET %s = TRUE WHERE %s AND NOT %s AND id IN (%s)",
		readColumn, scope, readColumn, strings.Join(placeholders, ", "))
	return r.execAffected(ctx, query, args)
}

// MarkReadByReference flags every notification of a thread read.
func (r *NotificationRepository) MarkReadByReference(ctx context.Context, role models.UserRole, teacherID string, notificationType models.NotificationType, referenceID string) (int64, error) {
	readColumn, scope, args := recipientScope(role, teacherID)
	args = append(args, notificationType, referenceID)
	query := fmt.Sprintf("UPDATE notifications SET %s = TRUE WHERE %s AND NOT %s AND type = $%d AND reference_id = $%d",
		readColumn, scope, readColumn, len(args)-1, len(args))
	return r.execAffected(ctx, query, args)
}

func (r *NotificationRepository) execAffected(ctx context.Context, query string, args []interface{}) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return affected, nil
}

func parseableIDs(ids []string) []string {
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			kept = append(kept, id)
		}
	}
	return kept
}
