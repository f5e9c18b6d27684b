package dto

import "github.com/noah-isme/repense-api/internal/models"

// StudentHistory bundles every enrollment, attendance and observation of a student.
type StudentHistory struct {
	Student      models.Student                  `json:"student"`
	Enrollments  []models.EnrollmentDetail       `json:"enrollments"`
	Attendance   []models.AttendanceHistoryEntry `json:"attendance"`
	Observations []models.Observation            `json:"observations"`
}
