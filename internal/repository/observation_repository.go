package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/repense-api/internal/models"
)

// ObservationRepository appends teacher notes about students.
type ObservationRepository struct {
	db *sqlx.DB
}

// NewObservationRepository constructs an ObservationRepository.
func NewObservationRepository(db *sqlx.DB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// Create appends an observation.
func (r *ObservationRepository) Create(ctx context.Context, exec sqlx.ExtContext, observation *models.Observation) error {
	target := exec
	if target == nil {
		target = r.db
	}
	if observation.ID == "" {
		observation.ID = uuid.NewString()
	}
	observation.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO observations (id, student_id, class_id, session_id, teacher_id, body, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := target.ExecContext(ctx, query,
		observation.ID, observation.StudentID, observation.ClassID, observation.SessionID,
		observation.TeacherID, observation.Body, observation.CreatedAt,
	); err != nil {
		return fmt.Errorf("create observation: %w", err)
	}
	return nil
}

// ListByStudent returns a student's observations, oldest first.
func (r *ObservationRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Observation, error) {
	const query = `SELECT id, student_id, class_id, session_id, teacher_id, body, created_at
        FROM observations WHERE student_id = $1 ORDER BY created_at ASC`
	var observations []models.Observation
	if err := r.db.SelectContext(ctx, &observations, query, studentID); err != nil {
		return nil, fmt.Errorf("list student observations: %w", err)
	}
	return observations, nil
}
