package models

import "time"

// Student is a registrant. Students are never hard deleted.
type Student struct {
	ID                   string     `db:"id" json:"id"`
	FullName             string     `db:"full_name" json:"full_name"`
	CPF                  string     `db:"cpf" json:"cpf"`
	Phone                string     `db:"phone" json:"phone"`
	Email                string     `db:"email" json:"email"`
	Gender               string     `db:"gender" json:"gender"`
	BirthDate            *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	City                 string     `db:"city" json:"city"`
	PriorityList         bool       `db:"priority_list" json:"priority_list"`
	PriorityListCourseID *Grupo     `db:"priority_list_course_id" json:"priority_list_course_id,omitempty"`
	PriorityListAt       *time.Time `db:"priority_list_at" json:"priority_list_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentFilter defines filters for listing students.
type StudentFilter struct {
	Search       string
	City         string
	PriorityList *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
