package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/models"
	"github.com/noah-isme/repense-api/pkg/database"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
)

const activeEnrollmentConstraint = "enrollments_one_active_idx"

type enrollmentStore interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	FindActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.Enrollment, error)
	ExistsActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (bool, error)
	ListActiveByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.EnrollmentDetail, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	Transition(ctx context.Context, exec sqlx.ExtContext, id string, to models.EnrollmentStatus, at time.Time, transferredTo *string) (bool, error)
}

type classSeatStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error)
	ClaimSeat(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
	ReleaseSeat(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type studentLookup interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error)
}

// CreateEnrollmentRequest describes an admin enrollment.
type CreateEnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
}

// EnrollmentService orchestrates the enrollment lifecycle.
type EnrollmentService struct {
	db        txProvider
	repo      enrollmentStore
	classes   classSeatStore
	students  studentLookup
	cache     cacheInvalidator
	metrics   *MetricsService
	validator structValidator
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(db txProvider, repo enrollmentStore, classes classSeatStore, students studentLookup, cache cacheInvalidator, metrics *MetricsService, validate structValidator, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		db:        db,
		repo:      repo,
		classes:   classes,
		students:  students,
		cache:     cache,
		metrics:   metrics,
		validator: defaultValidator(validate),
		logger:    logger,
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list enrollments")
	}
	return enrollments, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a single enrollment with student and class info.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "enrollment")
	}
	return detail, nil
}

// Create enrolls a student into a class, claiming one seat.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := validate(s.validator, req, "invalid enrollment payload"); err != nil {
		return nil, err
	}

	var enrollment *models.Enrollment
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := s.students.FindByID(ctx, tx, req.StudentID); err != nil {
			return lookupError(err, "student")
		}
		created, err := enrollStudent(ctx, tx, s.repo, s.classes, req.StudentID, req.ClassID)
		if err != nil {
			return err
		}
		enrollment = created
		return nil
	})
	if err != nil {
		observeRejection(s.metrics, err)
		return nil, err
	}

	s.metrics.RecordEnrollmentTransition(models.EnrollmentStatusAtivo)
	invalidateDashboard(ctx, s.cache)
	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.String("class_id", enrollment.ClassID),
	)
	return s.Get(ctx, enrollment.ID)
}

// Complete marks an ativo enrollment as concluido and frees its seat.
func (s *EnrollmentService) Complete(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	return s.finish(ctx, id, models.EnrollmentStatusConcluido)
}

// Cancel marks an ativo enrollment as cancelado and frees its seat.
func (s *EnrollmentService) Cancel(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	return s.finish(ctx, id, models.EnrollmentStatusCancelado)
}

func (s *EnrollmentService) finish(ctx context.Context, id string, to models.EnrollmentStatus) (*models.EnrollmentDetail, error) {
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		enrollment, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return lookupError(err, "enrollment")
		}
		if enrollment.Status != models.EnrollmentStatusAtivo {
			return invalidEnrollmentState(enrollment.Status, to)
		}
		ok, err := s.repo.Transition(ctx, tx, id, to, time.Now().UTC(), nil)
		if err != nil {
			return internalError(err, "failed to update enrollment status")
		}
		if !ok {
			return invalidEnrollmentState(enrollment.Status, to)
		}
		if err := s.classes.ReleaseSeat(ctx, tx, enrollment.ClassID); err != nil {
			return internalError(err, "failed to release class seat")
		}
		return nil
	})
	if err != nil {
		observeRejection(s.metrics, err)
		return nil, err
	}

	s.metrics.RecordEnrollmentTransition(to)
	invalidateDashboard(ctx, s.cache)
	return s.Get(ctx, id)
}

func invalidEnrollmentState(from, to models.EnrollmentStatus) error {
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrInvalidState, "enrollment is not active"),
		map[string]string{"status": string(from), "requested": string(to)},
	)
}

// enrollStudent claims a seat in classID and inserts an ativo enrollment.
// The class read is not locked; the conditional ClaimSeat update is what
// keeps numero_inscritos within capacidade.
func enrollStudent(ctx context.Context, tx *sqlx.Tx, enrollments enrollmentStore, classes classSeatStore, studentID, classID string) (*models.Enrollment, error) {
	class, err := classes.FindByID(ctx, tx, classID)
	if err != nil {
		return nil, lookupError(err, "class")
	}
	if !class.Available() {
		return nil, appErrors.Clone(appErrors.ErrClassUnavailable, "")
	}

	exists, err := enrollments.ExistsActive(ctx, tx, studentID, classID)
	if err != nil {
		return nil, internalError(err, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	}

	claimed, err := classes.ClaimSeat(ctx, tx, classID)
	if err != nil {
		return nil, internalError(err, "failed to claim class seat")
	}
	if !claimed {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrClassFull, ""), map[string]int{
			"capacidade": class.Capacidade,
		})
	}

	enrollment := &models.Enrollment{StudentID: studentID, ClassID: classID, Status: models.EnrollmentStatusAtivo}
	if err := enrollments.Create(ctx, tx, enrollment); err != nil {
		if database.IsUniqueViolation(err, activeEnrollmentConstraint) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
		}
		return nil, internalError(err, "failed to create enrollment")
	}
	return enrollment, nil
}
