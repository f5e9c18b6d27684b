package models

import "time"

// SessionStatus is the state of a class meeting.
type SessionStatus string

const (
	SessionStatusOpen   SessionStatus = "open"
	SessionStatusClosed SessionStatus = "closed"
)

// Session is one numbered meeting of a class.
type Session struct {
	ID        string        `db:"id" json:"id"`
	ClassID   string        `db:"class_id" json:"class_id"`
	TeacherID string        `db:"teacher_id" json:"teacher_id"`
	Number    int           `db:"number" json:"number"`
	Status    SessionStatus `db:"status" json:"status"`
	Report    *string       `db:"report" json:"report,omitempty"`
	StartedAt time.Time     `db:"started_at" json:"started_at"`
	ClosedAt  *time.Time    `db:"closed_at" json:"closed_at,omitempty"`
}

// SessionCheckIn is a roster line for an open session.
type SessionCheckIn struct {
	EnrollmentID string  `db:"enrollment_id" json:"enrollment_id"`
	StudentID    string  `db:"student_id" json:"student_id"`
	StudentName  string  `db:"student_name" json:"student_name"`
	Present      *bool   `db:"present" json:"present"`
	Observation  *string `db:"observation" json:"observation,omitempty"`
}

// CheckedIn reports whether attendance was recorded for the line.
func (c SessionCheckIn) CheckedIn() bool {
	return c.Present != nil
}

// SessionDetail is a session with its class name and check-in roster.
type SessionDetail struct {
	Session
	ClassName string           `json:"class_name"`
	Roster    []SessionCheckIn `json:"roster"`
	Missing   int              `json:"missing"`
}

// AtRiskStudent is a student whose active enrollment accumulated absences.
type AtRiskStudent struct {
	StudentID    string `db:"student_id" json:"student_id"`
	StudentName  string `db:"student_name" json:"student_name"`
	Phone        string `db:"phone" json:"phone"`
	ClassID      string `db:"class_id" json:"class_id"`
	ClassName    string `db:"class_name" json:"class_name"`
	EnrollmentID string `db:"enrollment_id" json:"enrollment_id"`
	Absences     int    `db:"absences" json:"absences"`
}
