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

const studentColumns = `id, full_name, cpf, phone, email, gender, birth_date, city, priority_list, priority_list_course_id,
        priority_list_at, created_at, updated_at`

// StudentRepository manages student persistence. Students are never deleted.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns students filtered by search, city and waitlist flag.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(full_name ILIKE $%d OR cpf LIKE $%d OR email ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.City != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(city) = LOWER($%d)", len(args)+1))
		args = append(args, filter.City)
	}
	if filter.PriorityList != nil {
		conditions = append(conditions, fmt.Sprintf("priority_list = $%d", len(args)+1))
		args = append(args, *filter.PriorityList)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"full_name":  "full_name",
		"created_at": "created_at",
		"city":       "city",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "full_name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM students%s ORDER BY %s %s LIMIT %d OFFSET %d", studentColumns, clause, orderBy, order, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by id.
func (r *StudentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE id = $1"
	if exec != nil {
		query += " FOR UPDATE"
	}
	var student models.Student
	if err := sqlx.GetContext(ctx, r.exec(exec), &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByCPF fetches a student by normalised CPF.
func (r *StudentRepository) FindByCPF(ctx context.Context, cpf string) (*models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE cpf = $1"
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, cpf); err != nil {
		return nil, err
	}
	return &student, nil
}

// UpsertByCPF inserts the registrant or refreshes the contact data of the
// existing student with the same CPF. Waitlist state is preserved.
func (r *StudentRepository) UpsertByCPF(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	now := time.Now().UTC()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	const query = `INSERT INTO students (id, full_name, cpf, phone, email, gender, birth_date, city, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
        ON CONFLICT (cpf) DO UPDATE SET
            full_name = EXCLUDED.full_name,
            phone = COALESCE(NULLIF(EXCLUDED.phone, ''), students.phone),
            email = COALESCE(NULLIF(EXCLUDED.email, ''), students.email),
            gender = COALESCE(NULLIF(EXCLUDED.gender, ''), students.gender),
            birth_date = COALESCE(EXCLUDED.birth_date, students.birth_date),
            city = COALESCE(NULLIF(EXCLUDED.city, ''), students.city),
            updated_at = EXCLUDED.updated_at
        RETURNING ` + studentColumns
	row := r.exec(exec).QueryRowxContext(ctx, query,
		student.ID, student.FullName, student.CPF, student.Phone, student.Email,
		student.Gender, student.BirthDate, student.City, now,
	)
	if err := row.StructScan(student); err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

// Update stores admin edits to a student's identity and contact data.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET full_name = :full_name, cpf = :cpf, phone = :phone, email = :email, gender = :gender,
        birth_date = :birth_date, city = :city, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// JoinPriorityList flags the student as waiting for a class of the grupo.
// The original queue position is kept when the student is already waiting.
func (r *StudentRepository) JoinPriorityList(ctx context.Context, exec sqlx.ExtContext, id string, grupo models.Grupo) error {
	now := time.Now().UTC()
	const query = `UPDATE students SET priority_list = TRUE, priority_list_course_id = $2,
        priority_list_at = CASE WHEN priority_list AND priority_list_course_id = $2 THEN priority_list_at ELSE $3 END,
        updated_at = $3
        WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, grupo, now); err != nil {
		return fmt.Errorf("join priority list: %w", err)
	}
	return nil
}

// LeavePriorityList clears the waitlist flag. It reports false when the
// student was not waiting.
func (r *StudentRepository) LeavePriorityList(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	const query = `UPDATE students SET priority_list = FALSE, priority_list_course_id = NULL, priority_list_at = NULL, updated_at = $2
        WHERE id = $1 AND priority_list`
	res, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("leave priority list: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("leave priority list: %w", err)
	}
	return affected == 1, nil
}

// PriorityList returns waiting students in arrival order, optionally for one grupo.
func (r *StudentRepository) PriorityList(ctx context.Context, grupo models.Grupo) ([]models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE priority_list"
	var args []interface{}
	if grupo != "" {
		query += " AND priority_list_course_id = $1"
		args = append(args, grupo)
	}
	query += " ORDER BY priority_list_at ASC, full_name ASC"
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list priority list: %w", err)
	}
	return students, nil
}
