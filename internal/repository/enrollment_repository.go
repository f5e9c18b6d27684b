package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/repense-api/internal/models"
)

const enrollmentColumns = `e.id, e.student_id, e.class_id, e.status, e.enrolled_at, e.completed_at, e.cancelled_at,
        e.transferred_at, e.transferred_to_class_id, e.created_at, e.updated_at`

const enrollmentDetailColumns = enrollmentColumns + `,
        s.full_name AS student_name, s.cpf AS student_cpf, c.name AS class_name, c.grupo AS class_grupo,
        (SELECT COUNT(*) FROM attendances a WHERE a.enrollment_id = e.id) AS attendance_count`

// transitionColumns maps a terminal status to the timestamp column it stamps.
var transitionColumns = map[models.EnrollmentStatus]string{
	models.EnrollmentStatusConcluido:   "completed_at",
	models.EnrollmentStatusCancelado:   "cancelled_at",
	models.EnrollmentStatusTransferido: "transferred_at",
}

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN classes c ON c.id = e.class_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "s.full_name",
		"class_name":   "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d`, enrollmentDetailColumns, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID. Inside a transaction the row is
// locked until commit.
func (r *EnrollmentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments e WHERE e.id = $1`
	if exec != nil {
		query += " FOR UPDATE"
	}
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := `SELECT ` + enrollmentDetailColumns + `
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN classes c ON c.id = e.class_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActive returns the ativo enrollment for a student in a class or
// sql.ErrNoRows.
func (r *EnrollmentRepository) FindActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments e WHERE e.student_id = $1 AND e.class_id = $2 AND e.status = $3`
	if exec != nil {
		query += " FOR UPDATE"
	}
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, studentID, classID, models.EnrollmentStatusAtivo); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ExistsActive reports whether the student holds an ativo enrollment in the class.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (bool, error) {
	if _, err := r.FindActive(ctx, exec, studentID, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// ListActiveByStudent returns every ativo enrollment of a student.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.EnrollmentDetail, error) {
	query := `SELECT ` + enrollmentDetailColumns + `
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN classes c ON c.id = e.class_id
        WHERE e.student_id = $1 AND e.status = $2
        ORDER BY e.enrolled_at`
	var enrollments []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, r.exec(exec), &enrollments, query, studentID, models.EnrollmentStatusAtivo); err != nil {
		return nil, fmt.Errorf("list student active enrollments: %w", err)
	}
	return enrollments, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	now := time.Now().UTC()
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusAtivo
	}
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, class_id, status, enrolled_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.exec(exec).ExecContext(ctx, query,
		enrollment.ID, enrollment.StudentID, enrollment.ClassID, enrollment.Status,
		enrollment.EnrolledAt, enrollment.CreatedAt, enrollment.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Transition moves an ativo enrollment to a terminal status and stamps the
// matching timestamp. It reports false when the enrollment was no longer ativo.
func (r *EnrollmentRepository) Transition(ctx context.Context, exec sqlx.ExtContext, id string, to models.EnrollmentStatus, at time.Time, transferredTo *string) (bool, error) {
	column, ok := transitionColumns[to]
	if !ok {
		return false, fmt.Errorf("unsupported enrollment transition to %s", to)
	}
	query := fmt.Sprintf(`UPDATE enrollments SET status = $2, %s = $3, transferred_to_class_id = $4, updated_at = $3
        WHERE id = $1 AND status = $5`, column)
	res, err := r.exec(exec).ExecContext(ctx, query, id, to, at, transferredTo, models.EnrollmentStatusAtivo)
	if err != nil {
		return false, fmt.Errorf("transition enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition enrollment: %w", err)
	}
	return affected == 1, nil
}
