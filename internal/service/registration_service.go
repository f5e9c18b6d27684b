package service

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/dto"
	"github.com/noah-isme/repense-api/internal/models"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
	"github.com/noah-isme/repense-api/pkg/signing"
)

type courseChangeSigner interface {
	Generate(change signing.CourseChange) (string, time.Time, error)
	Parse(token string) (*signing.CourseChange, error)
}

type courseTransferrer interface {
	TransferEnrolled(ctx context.Context, req MoveStudentRequest) (*dto.TransferResult, error)
}

// RegisterRequest is the public registration form.
type RegisterRequest struct {
	RegistrantRequest
	ClassID string `json:"class_id" validate:"required"`
}

// ConfirmCourseChangeRequest carries the token returned by Register.
type ConfirmCourseChangeRequest struct {
	ChangeToken string `json:"change_token" validate:"required"`
}

// RegistrationService handles self registration with the two step course change.
type RegistrationService struct {
	db          txProvider
	students    waitlistStore
	enrollments enrollmentStore
	classes     classSeatStore
	transfers   courseTransferrer
	signer      courseChangeSigner
	cache       cacheInvalidator
	metrics     *MetricsService
	validator   structValidator
	logger      *zap.Logger
}

// RegistrationServiceParams groups constructor dependencies.
type RegistrationServiceParams struct {
	DB          txProvider
	Students    waitlistStore
	Enrollments enrollmentStore
	Classes     classSeatStore
	Transfers   courseTransferrer
	Signer      courseChangeSigner
	Cache       cacheInvalidator
	Metrics     *MetricsService
	Validator   structValidator
	Logger      *zap.Logger
}

// NewRegistrationService constructs RegistrationService.
func NewRegistrationService(params RegistrationServiceParams) *RegistrationService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		db:          params.DB,
		students:    params.Students,
		enrollments: params.Enrollments,
		classes:     params.Classes,
		transfers:   params.Transfers,
		signer:      params.Signer,
		cache:       params.Cache,
		metrics:     params.Metrics,
		validator:   defaultValidator(params.Validator),
		logger:      logger,
	}
}

// Register upserts the registrant by CPF and enrolls them. A registrant who
// already studies in another class gets a course change proposal instead.
func (s *RegistrationService) Register(ctx context.Context, req RegisterRequest) (*dto.RegisterResponse, error) {
	if err := validate(s.validator, req, "invalid registration payload"); err != nil {
		return nil, err
	}

	resp := &dto.RegisterResponse{}
	var current *models.EnrollmentDetail
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		student := req.toStudent()
		if err := s.students.UpsertByCPF(ctx, tx, student); err != nil {
			return internalError(err, "failed to save student")
		}
		resp.StudentID = student.ID

		active, err := s.enrollments.ListActiveByStudent(ctx, tx, student.ID)
		if err != nil {
			return internalError(err, "failed to load active enrollments")
		}
		for _, enrollment := range active {
			if enrollment.ClassID == req.ClassID {
				return appErrors.WithDetails(appErrors.Clone(appErrors.ErrAlreadyEnrolled, ""),
					map[string]string{"enrollment_id": enrollment.ID})
			}
		}
		if len(active) > 0 {
			current = &active[0]
			return nil
		}

		enrollment, err := enrollStudent(ctx, tx, s.enrollments, s.classes, student.ID, req.ClassID)
		if err != nil {
			return err
		}
		resp.EnrollmentID = enrollment.ID

		if student.PriorityList {
			if _, err := s.students.LeavePriorityList(ctx, tx, student.ID); err != nil {
				return internalError(err, "failed to clear priority list flag")
			}
		}
		return nil
	})
	if err != nil {
		observeRejection(s.metrics, err)
		return nil, err
	}

	if current != nil {
		if err := s.proposeCourseChange(ctx, resp, current, req.ClassID); err != nil {
			observeRejection(s.metrics, err)
			return nil, err
		}
		return resp, nil
	}

	s.metrics.RecordEnrollmentTransition(models.EnrollmentStatusAtivo)
	invalidateDashboard(ctx, s.cache)
	s.logger.Info("public registration enrolled student",
		zap.String("student_id", resp.StudentID),
		zap.String("enrollment_id", resp.EnrollmentID),
	)
	return resp, nil
}

func (s *RegistrationService) proposeCourseChange(ctx context.Context, resp *dto.RegisterResponse, current *models.EnrollmentDetail, classID string) error {
	requested, err := s.classes.FindByID(ctx, nil, classID)
	if err != nil {
		return lookupError(err, "class")
	}
	if !requested.Available() {
		return appErrors.Clone(appErrors.ErrClassUnavailable, "")
	}
	if requested.NumeroInscritos >= requested.Capacidade {
		return appErrors.Clone(appErrors.ErrClassFull, "")
	}

	token, expiresAt, err := s.signer.Generate(signing.CourseChange{
		StudentID:    resp.StudentID,
		EnrollmentID: current.ID,
		FromClassID:  current.ClassID,
		ToClassID:    requested.ID,
	})
	if err != nil {
		return internalError(err, "failed to sign course change")
	}

	resp.RequiresCourseChange = true
	resp.CurrentEnrollment = &dto.CurrentEnrollment{
		EnrollmentID: current.ID,
		Class:        dto.ClassRef{ID: current.ClassID, Name: current.ClassName, Grupo: string(current.ClassGrupo)},
	}
	resp.RequestedClass = &dto.ClassRef{ID: requested.ID, Name: requested.Name, Grupo: string(requested.Grupo)}
	resp.ChangeToken = token
	resp.ChangeTokenExpiresAt = &expiresAt
	return nil
}

// ConfirmCourseChange applies a proposed course change after verifying the
// token and that the proposal still matches the student's enrollment.
func (s *RegistrationService) ConfirmCourseChange(ctx context.Context, req ConfirmCourseChangeRequest) (*dto.TransferResult, error) {
	if err := validate(s.validator, req, "invalid course change payload"); err != nil {
		return nil, err
	}

	change, err := s.signer.Parse(req.ChangeToken)
	if err != nil {
		reason := "malformed"
		switch {
		case errors.Is(err, signing.ErrExpired):
			reason = "expired"
		case errors.Is(err, signing.ErrSignature):
			reason = "signature"
		}
		observeRejection(s.metrics, appErrors.ErrInvalidChangeToken)
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidChangeToken, ""), map[string]string{"reason": reason})
	}

	enrollment, err := s.enrollments.FindByID(ctx, nil, change.EnrollmentID)
	if err != nil {
		return nil, lookupError(err, "enrollment")
	}
	if enrollment.StudentID != change.StudentID || enrollment.ClassID != change.FromClassID || enrollment.Status != models.EnrollmentStatusAtivo {
		observeRejection(s.metrics, appErrors.ErrInvalidState)
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "enrollment changed since the course change was proposed")
	}

	return s.transfers.TransferEnrolled(ctx, MoveStudentRequest{
		StudentID:   change.StudentID,
		FromClassID: change.FromClassID,
		ToClassID:   change.ToClassID,
	})
}
