package models

import "time"

// Observation is an append-only note a teacher leaves about a student.
type Observation struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	SessionID *string   `db:"session_id" json:"session_id,omitempty"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
