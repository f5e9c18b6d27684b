package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusAtivo       EnrollmentStatus = "ativo"
	EnrollmentStatusConcluido   EnrollmentStatus = "concluido"
	EnrollmentStatusCancelado   EnrollmentStatus = "cancelado"
	EnrollmentStatusTransferido EnrollmentStatus = "transferido"
)

// Enrollment joins a student to a class.
type Enrollment struct {
	ID                   string           `db:"id" json:"id"`
	StudentID            string           `db:"student_id" json:"student_id"`
	ClassID              string           `db:"class_id" json:"class_id"`
	Status               EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt           time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt          *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt          *time.Time       `db:"cancelled_at" json:"cancelled_at,omitempty"`
	TransferredAt        *time.Time       `db:"transferred_at" json:"transferred_at,omitempty"`
	TransferredToClassID *string          `db:"transferred_to_class_id" json:"transferred_to_class_id,omitempty"`
	CreatedAt            time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and class info.
type EnrollmentDetail struct {
	Enrollment
	StudentName     string `db:"student_name" json:"student_name"`
	StudentCPF      string `db:"student_cpf" json:"student_cpf"`
	ClassName       string `db:"class_name" json:"class_name"`
	ClassGrupo      Grupo  `db:"class_grupo" json:"class_grupo"`
	AttendanceCount int    `db:"attendance_count" json:"attendance_count"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	ClassID   string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
