package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/repense-api/internal/models"
)

const classColumns = `c.id, c.name, c.grupo, c.modality, c.capacidade, c.numero_inscritos, c.active, c.archived, c.archived_at,
        c.start_date, c.total_sessions, c.city, c.teacher_id, c.final_report, c.final_report_at, c.created_at, c.updated_at`

const classDetailColumns = classColumns + `,
        t.full_name AS teacher_name,
        (SELECT COUNT(*) FROM sessions s WHERE s.class_id = c.id AND s.status = 'closed') AS closed_sessions,
        EXISTS (SELECT 1 FROM sessions s WHERE s.class_id = c.id AND s.status = 'open') AS has_open_session`

// ClassRepository persists PG offerings and their occupancy counter.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns classes with teacher and session progress.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	base := `FROM classes c LEFT JOIN teachers t ON t.id = c.teacher_id`
	var conditions []string
	var args []interface{}

	if filter.Grupo != "" {
		conditions = append(conditions, fmt.Sprintf("c.grupo = $%d", len(args)+1))
		args = append(args, filter.Grupo)
	}
	if filter.Modality != "" {
		conditions = append(conditions, fmt.Sprintf("c.modality = $%d", len(args)+1))
		args = append(args, filter.Modality)
	}
	if filter.City != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(c.city) = LOWER($%d)", len(args)+1))
		args = append(args, filter.City)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("c.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("c.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Archived != nil {
		conditions = append(conditions, fmt.Sprintf("c.archived = $%d", len(args)+1))
		args = append(args, *filter.Archived)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("c.name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "c.name",
		"start_date": "c.start_date",
		"created_at": "c.created_at",
		"grupo":      "c.grupo",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d`, classDetailColumns, base+clause, orderBy, order, size, offset)
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a class by id.
func (r *ClassRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes c WHERE c.id = $1`
	var class models.Class
	if err := sqlx.GetContext(ctx, r.exec(exec), &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindDetailByID returns a class with teacher and session progress.
func (r *ClassRepository) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	query := `SELECT ` + classDetailColumns + ` FROM classes c LEFT JOIN teachers t ON t.id = c.teacher_id WHERE c.id = $1`
	var detail models.ClassDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a class. The counter always starts at zero.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	now := time.Now().UTC()
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	class.NumeroInscritos = 0
	class.CreatedAt = now
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, grupo, modality, capacidade, numero_inscritos, active, archived, start_date, total_sessions, city, teacher_id, created_at, updated_at)
        VALUES (:id, :name, :grupo, :modality, :capacidade, :numero_inscritos, :active, :archived, :start_date, :total_sessions, :city, :teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update stores editable class attributes. The counter and lifecycle flags
// are left untouched.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, grupo = :grupo, modality = :modality, capacidade = :capacidade,
        start_date = :start_date, total_sessions = :total_sessions, city = :city, teacher_id = :teacher_id, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// SetActive toggles the activation flag.
func (r *ClassRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE classes SET active = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set class active: %w", err)
	}
	return nil
}

// SetArchived archives or restores a class.
func (r *ClassRepository) SetArchived(ctx context.Context, id string, archived bool) error {
	now := time.Now().UTC()
	var archivedAt *time.Time
	if archived {
		archivedAt = &now
	}
	const query = `UPDATE classes SET archived = $2, archived_at = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, archived, archivedAt, now); err != nil {
		return fmt.Errorf("set class archived: %w", err)
	}
	return nil
}

// SaveFinalReport records the class level final report.
func (r *ClassRepository) SaveFinalReport(ctx context.Context, exec sqlx.ExtContext, id, report string) error {
	now := time.Now().UTC()
	const query = `UPDATE classes SET final_report = $2, final_report_at = $3, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, report, now); err != nil {
		return fmt.Errorf("save final report: %w", err)
	}
	return nil
}

// ClaimSeat increments numero_inscritos when the class is available and has
// room. It reports false when no seat could be claimed.
func (r *ClassRepository) ClaimSeat(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	const query = `UPDATE classes SET numero_inscritos = numero_inscritos + 1, updated_at = $2
        WHERE id = $1 AND active AND NOT archived AND numero_inscritos < capacidade`
	res, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim class seat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim class seat: %w", err)
	}
	return affected == 1, nil
}

// ReleaseSeat decrements numero_inscritos, never below zero.
func (r *ClassRepository) ReleaseSeat(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE classes SET numero_inscritos = numero_inscritos - 1, updated_at = $2
        WHERE id = $1 AND numero_inscritos > 0`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("release class seat: %w", err)
	}
	return nil
}

// Roster returns the active enrollments of a class with attendance tallies
// scoped to each enrollment.
func (r *ClassRepository) Roster(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	const query = `SELECT e.id AS enrollment_id, e.student_id, s.full_name AS student_name, s.phone, e.enrolled_at,
        COUNT(a.id) FILTER (WHERE a.present) AS presences,
        COUNT(a.id) FILTER (WHERE NOT a.present) AS absences
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        LEFT JOIN attendances a ON a.enrollment_id = e.id
        WHERE e.class_id = $1 AND e.status = 'ativo'
        GROUP BY e.id, e.student_id, s.full_name, s.phone, e.enrolled_at
        ORDER BY s.full_name`
	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, classID); err != nil {
		return nil, fmt.Errorf("class roster: %w", err)
	}
	return roster, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
