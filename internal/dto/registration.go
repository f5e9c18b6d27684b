package dto

import "time"

// ClassRef names a class in registration payloads.
type ClassRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Grupo string `json:"grupo"`
}

// CurrentEnrollment describes the enrollment a course change would replace.
type CurrentEnrollment struct {
	EnrollmentID string   `json:"enrollment_id"`
	Class        ClassRef `json:"class"`
}

// RegisterResponse is returned by the public registration endpoint. Either
// EnrollmentID is set or RequiresCourseChange is true with a change token.
type RegisterResponse struct {
	StudentID            string             `json:"student_id"`
	EnrollmentID         string             `json:"enrollment_id,omitempty"`
	RequiresCourseChange bool               `json:"requires_course_change"`
	CurrentEnrollment    *CurrentEnrollment `json:"current_enrollment,omitempty"`
	RequestedClass       *ClassRef          `json:"requested_class,omitempty"`
	ChangeToken          string             `json:"change_token,omitempty"`
	ChangeTokenExpiresAt *time.Time         `json:"change_token_expires_at,omitempty"`
}

// PriorityListResponse confirms a waitlist placement.
type PriorityListResponse struct {
	StudentID string    `json:"student_id"`
	Grupo     string    `json:"grupo"`
	Position  int       `json:"position"`
	JoinedAt  time.Time `json:"joined_at"`
}
