package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/models"
	"github.com/noah-isme/repense-api/pkg/database"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	SetActive(ctx context.Context, id string, active bool) error
}

// TeacherRequest represents payload for creating or updating teachers.
type TeacherRequest struct {
	FullName string `json:"full_name" validate:"required,min=3,max=150"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,max=20"`
	Active   *bool  `json:"eh_ativo"`
}

// TeacherService orchestrates teacher operations.
type TeacherService struct {
	repo      teacherRepository
	validator structValidator
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(repo teacherRepository, validate structValidator, logger *zap.Logger) *TeacherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, validator: defaultValidator(validate), logger: logger}
}

// List returns teachers with pagination metadata.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list teachers")
	}
	return teachers, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "teacher")
	}
	return teacher, nil
}

// Create registers a teacher. New teachers are active unless told otherwise.
func (s *TeacherService) Create(ctx context.Context, req TeacherRequest) (*models.Teacher, error) {
	if err := validate(s.validator, req, "invalid teacher payload"); err != nil {
		return nil, err
	}
	teacher := &models.Teacher{
		FullName: strings.TrimSpace(req.FullName),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:    strings.TrimSpace(req.Phone),
		EhAtivo:  true,
	}
	if req.Active != nil {
		teacher.EhAtivo = *req.Active
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, internalError(err, "failed to create teacher")
	}
	s.logger.Info("teacher created", zap.String("teacher_id", teacher.ID))
	return teacher, nil
}

// Update modifies teacher identity and, when provided, activation.
func (s *TeacherService) Update(ctx context.Context, id string, req TeacherRequest) (*models.Teacher, error) {
	if err := validate(s.validator, req, "invalid teacher payload"); err != nil {
		return nil, err
	}
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "teacher")
	}
	teacher.FullName = strings.TrimSpace(req.FullName)
	teacher.Email = strings.ToLower(strings.TrimSpace(req.Email))
	teacher.Phone = strings.TrimSpace(req.Phone)
	if err := s.repo.Update(ctx, teacher); err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, internalError(err, "failed to update teacher")
	}
	if req.Active != nil && *req.Active != teacher.EhAtivo {
		if err := s.repo.SetActive(ctx, id, *req.Active); err != nil {
			return nil, internalError(err, "failed to update teacher status")
		}
		teacher.EhAtivo = *req.Active
	}
	return teacher, nil
}

// SetActive toggles eh_ativo. Inactive teachers keep their classes but are
// refused by teacher routes and cannot receive new assignments.
func (s *TeacherService) SetActive(ctx context.Context, id string, req SetActiveRequest) (*models.Teacher, error) {
	if err := validate(s.validator, req, "invalid status payload"); err != nil {
		return nil, err
	}
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "teacher")
	}
	if teacher.EhAtivo == *req.Active {
		return teacher, nil
	}
	if err := s.repo.SetActive(ctx, id, *req.Active); err != nil {
		return nil, internalError(err, "failed to update teacher status")
	}
	teacher.EhAtivo = *req.Active
	s.logger.Info("teacher status changed", zap.String("teacher_id", id), zap.Bool("eh_ativo", teacher.EhAtivo))
	return teacher, nil
}

// EnsureActive resolves the teacher behind a token. Unknown ids are treated as
// unauthenticated and inactive teachers are refused.
func (s *TeacherService) EnsureActive(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || database.IsInvalidText(err) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "teacher not found")
		}
		return nil, internalError(err, "failed to load teacher")
	}
	if !teacher.EhAtivo {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "teacher is inactive")
	}
	return teacher, nil
}
