package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/dto"
	"github.com/noah-isme/repense-api/internal/models"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
	"github.com/noah-isme/repense-api/pkg/validation"
)

type waitlistStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error)
	UpsertByCPF(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error
	JoinPriorityList(ctx context.Context, exec sqlx.ExtContext, id string, grupo models.Grupo) error
	LeavePriorityList(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
	PriorityList(ctx context.Context, grupo models.Grupo) ([]models.Student, error)
}

// RegistrantRequest carries the identity fields of a public registrant.
type RegistrantRequest struct {
	FullName  string `json:"full_name" validate:"required,min=3,max=150"`
	CPF       string `json:"cpf" validate:"required,cpf"`
	Phone     string `json:"phone" validate:"required,min=8,max=20"`
	Email     string `json:"email" validate:"omitempty,email"`
	Gender    string `json:"gender" validate:"omitempty,max=20"`
	BirthDate string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	City      string `json:"city" validate:"omitempty,max=100"`
}

func (r RegistrantRequest) toStudent() *models.Student {
	student := &models.Student{
		FullName: r.FullName,
		CPF:      validation.DigitsOnly(r.CPF),
		Phone:    r.Phone,
		Email:    r.Email,
		Gender:   r.Gender,
		City:     r.City,
	}
	if r.BirthDate != "" {
		if parsed, err := time.Parse("2006-01-02", r.BirthDate); err == nil {
			student.BirthDate = &parsed
		}
	}
	return student
}

// PriorityListRequest places a registrant on the waitlist of a grupo.
type PriorityListRequest struct {
	RegistrantRequest
	Grupo models.Grupo `json:"grupo" validate:"required,oneof=igreja espiritualidade evangelho"`
}

// MoveStudentRequest moves an ativo enrollment to another class.
type MoveStudentRequest struct {
	StudentID   string `json:"student_id" validate:"required"`
	FromClassID string `json:"-" validate:"required"`
	ToClassID   string `json:"to_class_id" validate:"required,nefield=FromClassID"`
}

// PriorityTransferRequest enrolls a waitlisted student.
type PriorityTransferRequest struct {
	ToClassID string `json:"to_class_id" validate:"required"`
}

// TransferService moves students between classes and off the waitlist.
type TransferService struct {
	db          txProvider
	enrollments enrollmentStore
	classes     classSeatStore
	students    waitlistStore
	cache       cacheInvalidator
	metrics     *MetricsService
	validator   structValidator
	logger      *zap.Logger
}

// NewTransferService constructs TransferService.
func NewTransferService(db txProvider, enrollments enrollmentStore, classes classSeatStore, students waitlistStore, cache cacheInvalidator, metrics *MetricsService, validate structValidator, logger *zap.Logger) *TransferService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferService{
		db:          db,
		enrollments: enrollments,
		classes:     classes,
		students:    students,
		cache:       cache,
		metrics:     metrics,
		validator:   defaultValidator(validate),
		logger:      logger,
	}
}

// TransferEnrolled closes the student's ativo enrollment in the source class
// as transferido and opens a new one in the destination. Attendance history
// stays with the old enrollment.
func (s *TransferService) TransferEnrolled(ctx context.Context, req MoveStudentRequest) (*dto.TransferResult, error) {
	if err := validate(s.validator, req, "invalid transfer payload"); err != nil {
		return nil, err
	}

	result := &dto.TransferResult{}
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		source, err := s.enrollments.FindActive(ctx, tx, req.StudentID, req.FromClassID)
		if err != nil {
			return lookupError(err, "active enrollment in source class")
		}
		target, err := enrollStudent(ctx, tx, s.enrollments, s.classes, req.StudentID, req.ToClassID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		ok, err := s.enrollments.Transition(ctx, tx, source.ID, models.EnrollmentStatusTransferido, now, &req.ToClassID)
		if err != nil {
			return internalError(err, "failed to close source enrollment")
		}
		if !ok {
			return invalidEnrollmentState(source.Status, models.EnrollmentStatusTransferido)
		}
		if err := s.classes.ReleaseSeat(ctx, tx, req.FromClassID); err != nil {
			return internalError(err, "failed to release source seat")
		}

		source.Status = models.EnrollmentStatusTransferido
		source.TransferredAt = &now
		source.TransferredToClassID = &req.ToClassID
		result.From = source
		result.To = target
		return nil
	})
	if err != nil {
		observeRejection(s.metrics, err)
		return nil, err
	}

	s.metrics.RecordEnrollmentTransition(models.EnrollmentStatusTransferido)
	invalidateDashboard(ctx, s.cache)
	s.logger.Info("student transferred",
		zap.String("student_id", req.StudentID),
		zap.String("from_class_id", req.FromClassID),
		zap.String("to_class_id", req.ToClassID),
		zap.String("enrollment_id", result.To.ID),
	)
	return result, nil
}

// TransferFromPriorityList enrolls a waitlisted student and clears the flag.
func (s *TransferService) TransferFromPriorityList(ctx context.Context, studentID string, req PriorityTransferRequest) (*dto.TransferResult, error) {
	if err := validate(s.validator, req, "invalid transfer payload"); err != nil {
		return nil, err
	}

	result := &dto.TransferResult{}
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		student, err := s.students.FindByID(ctx, tx, studentID)
		if err != nil {
			return lookupError(err, "student")
		}
		if !student.PriorityList {
			return appErrors.Clone(appErrors.ErrInvalidState, "student is not on the priority list")
		}
		target, err := enrollStudent(ctx, tx, s.enrollments, s.classes, studentID, req.ToClassID)
		if err != nil {
			return err
		}
		left, err := s.students.LeavePriorityList(ctx, tx, studentID)
		if err != nil {
			return internalError(err, "failed to clear priority list flag")
		}
		if !left {
			return appErrors.Clone(appErrors.ErrInvalidState, "student is not on the priority list")
		}
		result.To = target
		return nil
	})
	if err != nil {
		observeRejection(s.metrics, err)
		return nil, err
	}

	s.metrics.RecordEnrollmentTransition(models.EnrollmentStatusAtivo)
	invalidateDashboard(ctx, s.cache)
	return result, nil
}

// AddToPriorityList upserts the registrant and queues them for the grupo.
func (s *TransferService) AddToPriorityList(ctx context.Context, req PriorityListRequest) (*dto.PriorityListResponse, error) {
	if err := validate(s.validator, req, "invalid priority list payload"); err != nil {
		return nil, err
	}

	student := req.toStudent()
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.students.UpsertByCPF(ctx, tx, student); err != nil {
			return internalError(err, "failed to save student")
		}
		active, err := s.enrollments.ListActiveByStudent(ctx, tx, student.ID)
		if err != nil {
			return internalError(err, "failed to load active enrollments")
		}
		if len(active) > 0 {
			return appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrAlreadyEnrolled, "student already holds an active enrollment"),
				map[string]string{"enrollment_id": active[0].ID, "class_id": active[0].ClassID},
			)
		}
		if err := s.students.JoinPriorityList(ctx, tx, student.ID, req.Grupo); err != nil {
			return internalError(err, "failed to join priority list")
		}
		return nil
	})
	if err != nil {
		observeRejection(s.metrics, err)
		return nil, err
	}
	invalidateDashboard(ctx, s.cache)

	queue, err := s.students.PriorityList(ctx, req.Grupo)
	if err != nil {
		return nil, internalError(err, "failed to load priority list")
	}
	resp := &dto.PriorityListResponse{StudentID: student.ID, Grupo: string(req.Grupo)}
	for i, waiting := range queue {
		if waiting.ID != student.ID {
			continue
		}
		resp.Position = i + 1
		if waiting.PriorityListAt != nil {
			resp.JoinedAt = *waiting.PriorityListAt
		}
		break
	}
	return resp, nil
}

// PriorityList returns the waitlist in arrival order, optionally for one grupo.
func (s *TransferService) PriorityList(ctx context.Context, grupo models.Grupo) ([]models.Student, error) {
	if grupo != "" && !grupo.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid grupo")
	}
	students, err := s.students.PriorityList(ctx, grupo)
	if err != nil {
		return nil, internalError(err, "failed to load priority list")
	}
	return students, nil
}
