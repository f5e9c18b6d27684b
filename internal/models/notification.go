package models

import "time"

// NotificationType groups feed items.
type NotificationType string

const (
	NotificationObservation   NotificationType = "OBSERVATION"
	NotificationSessionReport NotificationType = "SESSION_REPORT"
	NotificationFinalReport   NotificationType = "FINAL_REPORT"
	NotificationLeaderMessage NotificationType = "LEADER_MESSAGE"
)

// Valid reports whether t is a known type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationObservation, NotificationSessionReport, NotificationFinalReport, NotificationLeaderMessage:
		return true
	}
	return false
}

// Notification is an append-only alert. Only the read flags change.
type Notification struct {
	ID             string           `db:"id" json:"id"`
	Type           NotificationType `db:"type" json:"type"`
	RecipientRole  UserRole         `db:"recipient_role" json:"recipient_role"`
	ReferenceID    string           `db:"reference_id" json:"reference_id"`
	ClassID        *string          `db:"class_id" json:"class_id,omitempty"`
	TeacherID      *string          `db:"teacher_id" json:"teacher_id,omitempty"`
	StudentID      *string          `db:"student_id" json:"student_id,omitempty"`
	Title          string           `db:"title" json:"title"`
	Body           string           `db:"body" json:"body"`
	LidaPorAdmin   bool             `db:"lida_por_admin" json:"lida_por_admin"`
	LidaPorTeacher bool             `db:"lida_por_teacher" json:"lida_por_teacher"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}
