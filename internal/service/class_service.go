package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/models"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
)

type classStore interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	SetActive(ctx context.Context, id string, active bool) error
	SetArchived(ctx context.Context, id string, archived bool) error
	SaveFinalReport(ctx context.Context, exec sqlx.ExtContext, id, report string) error
	Roster(ctx context.Context, classID string) ([]models.RosterEntry, error)
}

// ClassRequest captures the editable attributes of a class.
type ClassRequest struct {
	Name          string          `json:"name" validate:"required,min=2,max=150"`
	Grupo         models.Grupo    `json:"grupo" validate:"required,oneof=igreja espiritualidade evangelho"`
	Modality      models.Modality `json:"modality" validate:"required,oneof=online presencial"`
	Capacidade    int             `json:"capacidade" validate:"required,gt=0"`
	TotalSessions int             `json:"total_sessions" validate:"required,gt=0"`
	StartDate     string          `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	City          string          `json:"city" validate:"omitempty,max=100"`
	TeacherID     *string         `json:"teacher_id"`
	Active        *bool           `json:"active"`
}

// SetActiveRequest toggles a class or teacher.
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// BatchArchiveRequest archives several classes at once.
type BatchArchiveRequest struct {
	ClassIDs []string `json:"class_ids" validate:"required,min=1,max=100,dive,required"`
}

// FinalReportRequest carries the class closing report.
type FinalReportRequest struct {
	Report string `json:"report" validate:"required,max=10000"`
}

// ClassService coordinates class administration.
type ClassService struct {
	db            txProvider
	repo          classStore
	teachers      teacherLookup
	notifications notificationWriter
	cache         cacheInvalidator
	validator     structValidator
	logger        *zap.Logger
}

// ClassServiceParams groups constructor dependencies.
type ClassServiceParams struct {
	DB            txProvider
	Repo          classStore
	Teachers      teacherLookup
	Notifications notificationWriter
	Cache         cacheInvalidator
	Validator     structValidator
	Logger        *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(params ClassServiceParams) *ClassService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{
		db:            params.DB,
		repo:          params.Repo,
		teachers:      params.Teachers,
		notifications: params.Notifications,
		cache:         params.Cache,
		validator:     defaultValidator(params.Validator),
		logger:        logger,
	}
}

// List returns classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	if filter.Grupo != "" && !filter.Grupo.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid grupo")
	}
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list classes")
	}
	return classes, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// ListForTeacher returns the non archived classes led by the teacher.
func (s *ClassService) ListForTeacher(ctx context.Context, teacherID string) ([]models.ClassDetail, error) {
	archived := false
	classes, _, err := s.repo.List(ctx, models.ClassFilter{TeacherID: teacherID, Archived: &archived, PageSize: 100})
	if err != nil {
		return nil, internalError(err, "failed to list classes")
	}
	return classes, nil
}

// Get returns class detail.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassDetail, error) {
	class, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "class")
	}
	return class, nil
}

// Create registers a new class. Classes start active unless told otherwise.
func (s *ClassService) Create(ctx context.Context, req ClassRequest) (*models.ClassDetail, error) {
	if err := validate(s.validator, req, "invalid class payload"); err != nil {
		return nil, err
	}
	if err := s.ensureAssignable(ctx, req.TeacherID); err != nil {
		return nil, err
	}
	class := &models.Class{Active: true}
	if req.Active != nil {
		class.Active = *req.Active
	}
	applyClassRequest(class, req)
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, internalError(err, "failed to create class")
	}
	invalidateDashboard(ctx, s.cache)
	s.logger.Info("class created", zap.String("class_id", class.ID), zap.String("grupo", string(class.Grupo)))
	return s.Get(ctx, class.ID)
}

// Update modifies class attributes. Capacity cannot drop below the number of
// enrolled students.
func (s *ClassService) Update(ctx context.Context, id string, req ClassRequest) (*models.ClassDetail, error) {
	if err := validate(s.validator, req, "invalid class payload"); err != nil {
		return nil, err
	}
	class, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, "class")
	}
	if req.Capacidade < class.NumeroInscritos {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrConflict, "capacity below current enrollment"),
			map[string]int{"numero_inscritos": class.NumeroInscritos},
		)
	}
	changedTeacher := req.TeacherID != nil && (class.TeacherID == nil || *class.TeacherID != *req.TeacherID)
	if changedTeacher {
		if err := s.ensureAssignable(ctx, req.TeacherID); err != nil {
			return nil, err
		}
	}
	applyClassRequest(class, req)
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, internalError(err, "failed to update class")
	}
	if req.Active != nil && *req.Active != class.Active {
		if err := s.repo.SetActive(ctx, id, *req.Active); err != nil {
			return nil, internalError(err, "failed to update class status")
		}
	}
	invalidateDashboard(ctx, s.cache)
	return s.Get(ctx, id)
}

func applyClassRequest(class *models.Class, req ClassRequest) {
	class.Name = strings.TrimSpace(req.Name)
	class.Grupo = req.Grupo
	class.Modality = req.Modality
	class.Capacidade = req.Capacidade
	class.TotalSessions = req.TotalSessions
	class.City = strings.TrimSpace(req.City)
	class.TeacherID = trimmedOrNil(req.TeacherID)
	class.StartDate = nil
	if req.StartDate != "" {
		if parsed, err := time.Parse("2006-01-02", req.StartDate); err == nil {
			class.StartDate = &parsed
		}
	}
}

func (s *ClassService) ensureAssignable(ctx context.Context, teacherID *string) error {
	id := trimmedOrNil(teacherID)
	if id == nil {
		return nil
	}
	teacher, err := s.teachers.FindByID(ctx, *id)
	if err != nil {
		return lookupError(err, "teacher")
	}
	if !teacher.EhAtivo {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "teacher is inactive")
	}
	return nil
}

// SetActive toggles whether a class accepts enrollments.
func (s *ClassService) SetActive(ctx context.Context, id string, req SetActiveRequest) (*models.ClassDetail, error) {
	if err := validate(s.validator, req, "invalid status payload"); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindByID(ctx, nil, id); err != nil {
		return nil, lookupError(err, "class")
	}
	if err := s.repo.SetActive(ctx, id, *req.Active); err != nil {
		return nil, internalError(err, "failed to update class status")
	}
	invalidateDashboard(ctx, s.cache)
	return s.Get(ctx, id)
}

// Archive hides a class. It is refused while a session is open and, once the
// class held all of its sessions, until a final report exists.
func (s *ClassService) Archive(ctx context.Context, id string) (*models.ClassDetail, error) {
	class, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "class")
	}
	if class.Archived {
		return class, nil
	}
	if class.HasOpenSession {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "class has an open session")
	}
	if class.ClosedSessions >= class.TotalSessions && !class.HasFinalReport() {
		return nil, appErrors.Clone(appErrors.ErrFinalReportMissing, "")
	}
	if err := s.repo.SetArchived(ctx, id, true); err != nil {
		return nil, internalError(err, "failed to archive class")
	}
	invalidateDashboard(ctx, s.cache)
	s.logger.Info("class archived", zap.String("class_id", id))
	return s.Get(ctx, id)
}

// Unarchive restores an archived class.
func (s *ClassService) Unarchive(ctx context.Context, id string) (*models.ClassDetail, error) {
	class, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "class")
	}
	if !class.Archived {
		return class, nil
	}
	if err := s.repo.SetArchived(ctx, id, false); err != nil {
		return nil, internalError(err, "failed to unarchive class")
	}
	invalidateDashboard(ctx, s.cache)
	return s.Get(ctx, id)
}

// BatchArchive archives each class independently and reports per class outcomes.
func (s *ClassService) BatchArchive(ctx context.Context, req BatchArchiveRequest) ([]models.ArchiveResult, error) {
	if err := validate(s.validator, req, "invalid batch payload"); err != nil {
		return nil, err
	}
	results := make([]models.ArchiveResult, 0, len(req.ClassIDs))
	for _, id := range req.ClassIDs {
		result := models.ArchiveResult{ClassID: id}
		if _, err := s.Archive(ctx, id); err != nil {
			var appErr *appErrors.Error
			if !errors.As(err, &appErr) || appErr.Status >= 500 {
				return nil, err
			}
			result.Code = appErr.Code
			result.Reason = appErr.Message
		} else {
			result.Archived = true
		}
		results = append(results, result)
	}
	return results, nil
}

// SubmitFinalReport stores the closing report of a class. Teachers may only
// report on their own classes.
func (s *ClassService) SubmitFinalReport(ctx context.Context, actor Actor, classID string, req FinalReportRequest) (*models.ClassDetail, error) {
	if err := validate(s.validator, req, "invalid final report payload"); err != nil {
		return nil, err
	}
	report := strings.TrimSpace(req.Report)
	if report == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "report must not be blank")
	}

	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		class, err := s.repo.FindByID(ctx, tx, classID)
		if err != nil {
			return lookupError(err, "class")
		}
		if !actor.IsAdmin() && (class.TeacherID == nil || *class.TeacherID != actor.ID) {
			return appErrors.Clone(appErrors.ErrForbidden, "class is not assigned to this teacher")
		}
		if err := s.repo.SaveFinalReport(ctx, tx, classID, report); err != nil {
			return internalError(err, "failed to save final report")
		}
		if actor.IsAdmin() {
			return nil
		}
		teacherID := actor.ID
		notification := &models.Notification{
			Type:          models.NotificationFinalReport,
			RecipientRole: models.RoleAdmin,
			ReferenceID:   classID,
			ClassID:       &class.ID,
			TeacherID:     &teacherID,
			Title:         fmt.Sprintf("Relatório final: %s", class.Name),
			Body:          report,
		}
		if err := s.notifications.Create(ctx, tx, notification); err != nil {
			return internalError(err, "failed to notify final report")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, classID)
}

// Roster returns the active enrollments of a class with attendance tallies.
func (s *ClassService) Roster(ctx context.Context, actor Actor, classID string) ([]models.RosterEntry, error) {
	class, err := s.repo.FindByID(ctx, nil, classID)
	if err != nil {
		return nil, lookupError(err, "class")
	}
	if !actor.IsAdmin() && (class.TeacherID == nil || *class.TeacherID != actor.ID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class is not assigned to this teacher")
	}
	roster, err := s.repo.Roster(ctx, classID)
	if err != nil {
		return nil, internalError(err, "failed to load roster")
	}
	if roster == nil {
		roster = []models.RosterEntry{}
	}
	return roster, nil
}
