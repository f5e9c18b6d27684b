package models

import "time"

// Attendance is the presence of a student in a session. It belongs to the
// enrollment active when it was taken.
type Attendance struct {
	ID           string    `db:"id" json:"id"`
	SessionID    string    `db:"session_id" json:"session_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	Present      bool      `db:"present" json:"present"`
	Observation  string    `db:"observation" json:"observation,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AttendanceHistoryEntry is one attendance line in a student history.
type AttendanceHistoryEntry struct {
	SessionID     string    `db:"session_id" json:"session_id"`
	SessionNumber int       `db:"session_number" json:"session_number"`
	ClassID       string    `db:"class_id" json:"class_id"`
	ClassName     string    `db:"class_name" json:"class_name"`
	EnrollmentID  string    `db:"enrollment_id" json:"enrollment_id"`
	Present       bool      `db:"present" json:"present"`
	Observation   string    `db:"observation" json:"observation,omitempty"`
	StartedAt     time.Time `db:"started_at" json:"started_at"`
}

// AttendanceExportRow is one line of the class attendance export.
type AttendanceExportRow struct {
	StudentID     string `db:"student_id"`
	StudentName   string `db:"student_name"`
	SessionNumber int    `db:"session_number"`
	Present       bool   `db:"present"`
}
