package models

import "time"

// Grupo is the fixed small-group category of a class.
type Grupo string

const (
	GrupoIgreja          Grupo = "igreja"
	GrupoEspiritualidade Grupo = "espiritualidade"
	GrupoEvangelho       Grupo = "evangelho"
)

// Grupos lists every category in display order.
var Grupos = []Grupo{GrupoIgreja, GrupoEspiritualidade, GrupoEvangelho}

// Valid reports whether g is one of the known categories.
func (g Grupo) Valid() bool {
	for _, known := range Grupos {
		if g == known {
			return true
		}
	}
	return false
}

// Modality is the delivery mode of a class.
type Modality string

const (
	ModalityOnline     Modality = "online"
	ModalityPresencial Modality = "presencial"
)

// Class is a PG offering.
type Class struct {
	ID              string     `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	Grupo           Grupo      `db:"grupo" json:"grupo"`
	Modality        Modality   `db:"modality" json:"modality"`
	Capacidade      int        `db:"capacidade" json:"capacidade"`
	NumeroInscritos int        `db:"numero_inscritos" json:"numero_inscritos"`
	Active          bool       `db:"active" json:"active"`
	Archived        bool       `db:"archived" json:"archived"`
	ArchivedAt      *time.Time `db:"archived_at" json:"archived_at,omitempty"`
	StartDate       *time.Time `db:"start_date" json:"start_date,omitempty"`
	TotalSessions   int        `db:"total_sessions" json:"total_sessions"`
	City            string     `db:"city" json:"city"`
	TeacherID       *string    `db:"teacher_id" json:"teacher_id,omitempty"`
	FinalReport     *string    `db:"final_report" json:"final_report,omitempty"`
	FinalReportAt   *time.Time `db:"final_report_at" json:"final_report_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Available reports whether the class accepts enrollments at all.
func (c Class) Available() bool {
	return c.Active && !c.Archived
}

// HasFinalReport reports whether a non empty final report was recorded.
func (c Class) HasFinalReport() bool {
	return c.FinalReport != nil && *c.FinalReport != ""
}

// ClassDetail adds teacher and session progress to Class.
type ClassDetail struct {
	Class
	TeacherName    *string `db:"teacher_name" json:"teacher_name,omitempty"`
	ClosedSessions int     `db:"closed_sessions" json:"closed_sessions"`
	HasOpenSession bool    `db:"has_open_session" json:"has_open_session"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Grupo     Grupo
	Modality  Modality
	City      string
	TeacherID string
	Active    *bool
	Archived  *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// RosterEntry is an active enrollment with its attendance tallies.
type RosterEntry struct {
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	StudentName  string    `db:"student_name" json:"student_name"`
	Phone        string    `db:"phone" json:"phone"`
	EnrolledAt   time.Time `db:"enrolled_at" json:"enrolled_at"`
	Presences    int       `db:"presences" json:"presences"`
	Absences     int       `db:"absences" json:"absences"`
}

// ArchiveResult is the per class outcome of a batch archive.
type ArchiveResult struct {
	ClassID  string `json:"class_id"`
	Archived bool   `json:"archived"`
	Code     string `json:"code,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
