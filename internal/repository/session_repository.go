package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/repense-api/internal/models"
)

const sessionColumns = "id, class_id, teacher_id, number, status, report, started_at, closed_at"

// SessionRepository persists class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a session. Inside a transaction the row is locked.
func (r *SessionRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE id = $1"
	if exec != nil {
		query += " FOR UPDATE"
	}
	var session models.Session
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindOpenByTeacher returns the teacher's open session or sql.ErrNoRows.
func (r *SessionRepository) FindOpenByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) (*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE teacher_id = $1 AND status = $2"
	var session models.Session
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, teacherID, models.SessionStatusOpen); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindOpenByClass returns the class's open session or sql.ErrNoRows.
func (r *SessionRepository) FindOpenByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE class_id = $1 AND status = $2 ORDER BY number DESC LIMIT 1"
	var session models.Session
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, classID, models.SessionStatusOpen); err != nil {
		return nil, err
	}
	return &session, nil
}

// CountClosed returns how many sessions of the class were closed.
func (r *SessionRepository) CountClosed(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, "SELECT COUNT(*) FROM sessions WHERE class_id = $1 AND status = $2", classID, models.SessionStatusClosed); err != nil {
		return 0, fmt.Errorf("count closed sessions: %w", err)
	}
	return count, nil
}

// Create inserts an open session numbered after the class's last session.
func (r *SessionRepository) Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	target := r.exec(exec)
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.Status = models.SessionStatusOpen
	session.StartedAt = time.Now().UTC()

	if err := sqlx.GetContext(ctx, target, &session.Number, "SELECT COALESCE(MAX(number), 0) + 1 FROM sessions WHERE class_id = $1", session.ClassID); err != nil {
		return fmt.Errorf("next session number: %w", err)
	}

	const query = `INSERT INTO sessions (id, class_id, teacher_id, number, status, started_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := target.ExecContext(ctx, query, session.ID, session.ClassID, session.TeacherID, session.Number, session.Status, session.StartedAt); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Close finalizes an open session with an optional report. It reports false
// when the session was not open.
func (r *SessionRepository) Close(ctx context.Context, exec sqlx.ExtContext, id string, report *string) (bool, error) {
	const query = `UPDATE sessions SET status = $2, report = $3, closed_at = $4 WHERE id = $1 AND status = $5`
	res, err := r.exec(exec).ExecContext(ctx, query, id, models.SessionStatusClosed, report, time.Now().UTC(), models.SessionStatusOpen)
	if err != nil {
		return false, fmt.Errorf("close session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close session: %w", err)
	}
	return affected == 1, nil
}

// ListByClass returns the sessions of a class in order.
func (r *SessionRepository) ListByClass(ctx context.Context, classID string) ([]models.Session, error) {
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, "SELECT "+sessionColumns+" FROM sessions WHERE class_id = $1 ORDER BY number ASC", classID); err != nil {
		return nil, fmt.Errorf("list class sessions: %w", err)
	}
	return sessions, nil
}

// CheckIns returns one line per ativo enrollment of the session's class with
// the attendance recorded in this session, if any.
func (r *SessionRepository) CheckIns(ctx context.Context, exec sqlx.ExtContext, sessionID, classID string) ([]models.SessionCheckIn, error) {
	const query = `SELECT e.id AS enrollment_id, e.student_id, s.full_name AS student_name, a.present, a.observation
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        LEFT JOIN attendances a ON a.session_id = $1 AND a.enrollment_id = e.id
        WHERE e.class_id = $2 AND e.status = $3
        ORDER BY s.full_name`
	var lines []models.SessionCheckIn
	if err := sqlx.SelectContext(ctx, r.exec(exec), &lines, query, sessionID, classID, models.EnrollmentStatusAtivo); err != nil {
		return nil, fmt.Errorf("session check-ins: %w", err)
	}
	return lines, nil
}
