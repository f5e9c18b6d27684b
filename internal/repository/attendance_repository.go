package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/repense-api/internal/models"
)

// AttendanceRepository stores per session presence.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert records presence for (session, student), overwriting a previous entry.
func (r *AttendanceRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, attendance *models.Attendance) error {
	target := exec
	if target == nil {
		target = r.db
	}
	now := time.Now().UTC()
	if attendance.ID == "" {
		attendance.ID = uuid.NewString()
	}
	attendance.CreatedAt = now
	attendance.UpdatedAt = now
	const query = `INSERT INTO attendances (id, session_id, student_id, enrollment_id, present, observation, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
        ON CONFLICT (session_id, student_id) DO UPDATE SET
            enrollment_id = EXCLUDED.enrollment_id,
            present = EXCLUDED.present,
            observation = EXCLUDED.observation,
            updated_at = EXCLUDED.updated_at`
	if _, err := target.ExecContext(ctx, query,
		attendance.ID, attendance.SessionID, attendance.StudentID, attendance.EnrollmentID,
		attendance.Present, attendance.Observation, now,
	); err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// CountByEnrollment returns how many attendance entries an enrollment holds.
func (r *AttendanceRepository) CountByEnrollment(ctx context.Context, enrollmentID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM attendances WHERE enrollment_id = $1", enrollmentID); err != nil {
		return 0, fmt.Errorf("count enrollment attendance: %w", err)
	}
	return count, nil
}

// HistoryByStudent lists every attendance entry of a student across enrollments.
func (r *AttendanceRepository) HistoryByStudent(ctx context.Context, studentID string) ([]models.AttendanceHistoryEntry, error) {
	const query = `SELECT a.session_id, se.number AS session_number, se.class_id, c.name AS class_name, a.enrollment_id,
        a.present, a.observation, se.started_at
        FROM attendances a
        JOIN sessions se ON se.id = a.session_id
        JOIN classes c ON c.id = se.class_id
        WHERE a.student_id = $1
        ORDER BY se.started_at ASC`
	var entries []models.AttendanceHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, studentID); err != nil {
		return nil, fmt.Errorf("student attendance history: %w", err)
	}
	return entries, nil
}

// AtRisk lists students of the teacher's active classes whose ativo
// enrollment has at least threshold absences.
func (r *AttendanceRepository) AtRisk(ctx context.Context, teacherID string, threshold int) ([]models.AtRiskStudent, error) {
	const query = `SELECT e.student_id, s.full_name AS student_name, s.phone, c.id AS class_id, c.name AS class_name,
        e.id AS enrollment_id, COUNT(a.id) AS absences
        FROM enrollments e
        JOIN classes c ON c.id = e.class_id
        JOIN students s ON s.id = e.student_id
        JOIN attendances a ON a.enrollment_id = e.id AND NOT a.present
        WHERE c.teacher_id = $1 AND e.status = $2 AND NOT c.archived
        GROUP BY e.student_id, s.full_name, s.phone, c.id, c.name, e.id
        HAVING COUNT(a.id) >= $3
        ORDER BY absences DESC, s.full_name ASC`
	var students []models.AtRiskStudent
	if err := r.db.SelectContext(ctx, &students, query, teacherID, models.EnrollmentStatusAtivo, threshold); err != nil {
		return nil, fmt.Errorf("at risk students: %w", err)
	}
	return students, nil
}

// ExportRows returns attendance of the class's ativo enrollments for export.
func (r *AttendanceRepository) ExportRows(ctx context.Context, classID string) ([]models.AttendanceExportRow, error) {
	const query = `SELECT a.student_id, s.full_name AS student_name, se.number AS session_number, a.present
        FROM attendances a
        JOIN enrollments e ON e.id = a.enrollment_id
        JOIN students s ON s.id = a.student_id
        JOIN sessions se ON se.id = a.session_id
        WHERE e.class_id = $1 AND e.status = $2
        ORDER BY s.full_name ASC, se.number ASC`
	var rows []models.AttendanceExportRow
	if err := r.db.SelectContext(ctx, &rows, query, classID, models.EnrollmentStatusAtivo); err != nil {
		return nil, fmt.Errorf("attendance export rows: %w", err)
	}
	return rows, nil
}
