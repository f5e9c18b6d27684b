package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/dto"
	"github.com/noah-isme/repense-api/internal/models"
	"github.com/noah-isme/repense-api/pkg/database"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
	"github.com/noah-isme/repense-api/pkg/validation"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error)
	FindByCPF(ctx context.Context, cpf string) (*models.Student, error)
	Update(ctx context.Context, student *models.Student) error
}

type enrollmentHistory interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type attendanceHistory interface {
	HistoryByStudent(ctx context.Context, studentID string) ([]models.AttendanceHistoryEntry, error)
}

type observationHistory interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.Observation, error)
}

// UpdateStudentRequest holds the admin editable student fields.
type UpdateStudentRequest struct {
	FullName  string `json:"full_name" validate:"required,min=3,max=150"`
	CPF       string `json:"cpf" validate:"required,cpf"`
	Phone     string `json:"phone" validate:"required,min=8,max=20"`
	Email     string `json:"email" validate:"omitempty,email"`
	Gender    string `json:"gender" validate:"omitempty,max=20"`
	BirthDate string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	City      string `json:"city" validate:"omitempty,max=100"`
}

// StudentService handles student administration. Students are never deleted.
type StudentService struct {
	repo         studentRepository
	enrollments  enrollmentHistory
	attendance   attendanceHistory
	observations observationHistory
	validator    structValidator
	logger       *zap.Logger
}

// StudentServiceParams groups constructor dependencies.
type StudentServiceParams struct {
	Repo         studentRepository
	Enrollments  enrollmentHistory
	Attendance   attendanceHistory
	Observations observationHistory
	Validator    structValidator
	Logger       *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(params StudentServiceParams) *StudentService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:         params.Repo,
		enrollments:  params.Enrollments,
		attendance:   params.Attendance,
		observations: params.Observations,
		validator:    defaultValidator(params.Validator),
		logger:       logger,
	}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list students")
	}
	return students, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "student")
	}
	return student, nil
}

// Update modifies identity and contact data. The CPF stays unique.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := validate(s.validator, req, "invalid student payload"); err != nil {
		return nil, err
	}
	student, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "student")
	}

	cpf := validation.DigitsOnly(req.CPF)
	if cpf != student.CPF {
		other, err := s.repo.FindByCPF(ctx, cpf)
		switch {
		case err == nil && other.ID != id:
			return nil, appErrors.Clone(appErrors.ErrConflict, "cpf already registered")
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return nil, internalError(err, "failed to validate cpf")
		}
	}

	student.FullName = strings.TrimSpace(req.FullName)
	student.CPF = cpf
	student.Phone = strings.TrimSpace(req.Phone)
	student.Email = strings.TrimSpace(req.Email)
	student.Gender = strings.TrimSpace(req.Gender)
	student.City = strings.TrimSpace(req.City)
	student.BirthDate = nil
	if req.BirthDate != "" {
		if parsed, err := time.Parse("2006-01-02", req.BirthDate); err == nil {
			student.BirthDate = &parsed
		}
	}
	if err := s.repo.Update(ctx, student); err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrConflict, "cpf already registered")
		}
		return nil, internalError(err, "failed to update student")
	}
	s.logger.Info("student updated", zap.String("student_id", id))
	return student, nil
}

// History bundles every enrollment, attendance line and observation of a
// student, including finished and transferred enrollments.
func (s *StudentService) History(ctx context.Context, id string) (*dto.StudentHistory, error) {
	student, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "student")
	}
	enrollments, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{StudentID: id, PageSize: 100, SortBy: "enrolled_at", SortOrder: "desc"})
	if err != nil {
		return nil, internalError(err, "failed to load enrollments")
	}
	attendance, err := s.attendance.HistoryByStudent(ctx, id)
	if err != nil {
		return nil, internalError(err, "failed to load attendance")
	}
	observations, err := s.observations.ListByStudent(ctx, id)
	if err != nil {
		return nil, internalError(err, "failed to load observations")
	}

	history := &dto.StudentHistory{
		Student:      *student,
		Enrollments:  enrollments,
		Attendance:   attendance,
		Observations: observations,
	}
	if history.Enrollments == nil {
		history.Enrollments = []models.EnrollmentDetail{}
	}
	if history.Attendance == nil {
		history.Attendance = []models.AttendanceHistoryEntry{}
	}
	if history.Observations == nil {
		history.Observations = []models.Observation{}
	}
	return history, nil
}
