package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/models"
	"github.com/noah-isme/repense-api/pkg/database"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
)

const openSessionConstraint = "sessions_one_open_per_teacher_idx"

type sessionStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error)
	FindOpenByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) (*models.Session, error)
	FindOpenByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (*models.Session, error)
	CountClosed(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error)
	Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error
	Close(ctx context.Context, exec sqlx.ExtContext, id string, report *string) (bool, error)
	ListByClass(ctx context.Context, classID string) ([]models.Session, error)
	CheckIns(ctx context.Context, exec sqlx.ExtContext, sessionID, classID string) ([]models.SessionCheckIn, error)
}

type attendanceStore interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, attendance *models.Attendance) error
	AtRisk(ctx context.Context, teacherID string, threshold int) ([]models.AtRiskStudent, error)
}

type observationWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, observation *models.Observation) error
}

type notificationWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, notification *models.Notification) error
}

type teacherLookup interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type classLookup interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error)
}

// OpenSessionRequest starts (or resumes) a meeting of a class.
type OpenSessionRequest struct {
	ClassID string `json:"class_id" validate:"required"`
}

// AttendanceEntry is the check-in of one student.
type AttendanceEntry struct {
	StudentID   string  `json:"student_id" validate:"required"`
	Present     *bool   `json:"present" validate:"required"`
	Observation *string `json:"observation" validate:"omitempty,max=2000"`
}

// RecordAttendanceRequest carries a batch of check-ins.
type RecordAttendanceRequest struct {
	Entries []AttendanceEntry `json:"entries" validate:"required,min=1,dive"`
}

// FinalizeSessionRequest closes a session with an optional report.
type FinalizeSessionRequest struct {
	Report *string `json:"report" validate:"omitempty,max=5000"`
}

// MissingCheckIn names an enrolled student without attendance.
type MissingCheckIn struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
}

// SessionServiceConfig tunes attendance derived signals.
type SessionServiceConfig struct {
	AtRiskAbsences int
}

// SessionService records class meetings and attendance.
type SessionService struct {
	db            txProvider
	sessions      sessionStore
	attendance    attendanceStore
	observations  observationWriter
	notifications notificationWriter
	teachers      teacherLookup
	classes       classLookup
	metrics       *MetricsService
	validator     structValidator
	logger        *zap.Logger
	cfg           SessionServiceConfig
}

// SessionServiceParams groups constructor dependencies.
type SessionServiceParams struct {
	DB            txProvider
	Sessions      sessionStore
	Attendance    attendanceStore
	Observations  observationWriter
	Notifications notificationWriter
	Teachers      teacherLookup
	Classes       classLookup
	Metrics       *MetricsService
	Validator     structValidator
	Logger        *zap.Logger
	Config        SessionServiceConfig
}

// NewSessionService constructs SessionService.
func NewSessionService(params SessionServiceParams) *SessionService {
	cfg := params.Config
	if cfg.AtRiskAbsences <= 0 {
		cfg.AtRiskAbsences = 3
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		db:            params.DB,
		sessions:      params.Sessions,
		attendance:    params.Attendance,
		observations:  params.Observations,
		notifications: params.Notifications,
		teachers:      params.Teachers,
		classes:       params.Classes,
		metrics:       params.Metrics,
		validator:     defaultValidator(params.Validator),
		logger:        logger,
		cfg:           cfg,
	}
}

// Open starts the next session of a class for its teacher. The class's open
// session is returned unchanged when one exists; created reports which case
// happened.
func (s *SessionService) Open(ctx context.Context, teacherID string, req OpenSessionRequest) (detail *models.SessionDetail, created bool, err error) {
	if err := validate(s.validator, req, "invalid session payload"); err != nil {
		return nil, false, err
	}
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		return nil, false, lookupError(err, "teacher")
	}
	if !teacher.EhAtivo {
		return nil, false, appErrors.Clone(appErrors.ErrInactiveAccount, "teacher is inactive")
	}

	var session *models.Session
	err = withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		class, err := s.classes.FindByID(ctx, tx, req.ClassID)
		if err != nil {
			return lookupError(err, "class")
		}
		if class.TeacherID == nil || *class.TeacherID != teacherID {
			return appErrors.Clone(appErrors.ErrForbidden, "class is not assigned to this teacher")
		}
		if !class.Available() {
			return appErrors.Clone(appErrors.ErrClassUnavailable, "")
		}

		existing, err := s.sessions.FindOpenByClass(ctx, tx, class.ID)
		switch {
		case err == nil:
			if existing.TeacherID != teacherID {
				return appErrors.Clone(appErrors.ErrConflict, "class has an open session led by another teacher")
			}
			session = existing
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return internalError(err, "failed to load open session")
		}

		elsewhere, err := s.sessions.FindOpenByTeacher(ctx, tx, teacherID)
		switch {
		case err == nil:
			return appErrors.WithDetails(appErrors.Clone(appErrors.ErrSessionAlreadyOpen, ""),
				map[string]string{"session_id": elsewhere.ID, "class_id": elsewhere.ClassID})
		case !errors.Is(err, sql.ErrNoRows):
			return internalError(err, "failed to load open session")
		}

		closed, err := s.sessions.CountClosed(ctx, tx, class.ID)
		if err != nil {
			return internalError(err, "failed to count closed sessions")
		}
		if closed >= class.TotalSessions {
			return appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidState, "class already held all of its sessions"),
				map[string]int{"closed_sessions": closed, "total_sessions": class.TotalSessions})
		}

		session = &models.Session{ClassID: class.ID, TeacherID: teacherID}
		if err := s.sessions.Create(ctx, tx, session); err != nil {
			if database.IsUniqueViolation(err, openSessionConstraint) {
				return appErrors.Clone(appErrors.ErrSessionAlreadyOpen, "")
			}
			if database.IsUniqueViolation(err, "") {
				return appErrors.Clone(appErrors.ErrConflict, "session number already taken, retry")
			}
			return internalError(err, "failed to open session")
		}
		created = true
		return nil
	})
	if err != nil {
		observeRejection(s.metrics, err)
		return nil, false, err
	}

	if created {
		s.metrics.RecordSessionEvent("opened")
		s.logger.Info("session opened",
			zap.String("session_id", session.ID),
			zap.String("class_id", session.ClassID),
			zap.Int("number", session.Number),
		)
	}
	detail, err = s.detail(ctx, session)
	if err != nil {
		return nil, false, err
	}
	return detail, created, nil
}

// RecordAttendance upserts check-ins for students of the session's class.
// New observations are appended and surfaced to the admin feed.
func (s *SessionService) RecordAttendance(ctx context.Context, teacherID, sessionID string, req RecordAttendanceRequest) (*models.SessionDetail, error) {
	if err := validate(s.validator, req, "invalid attendance payload"); err != nil {
		return nil, err
	}

	var session *models.Session
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		session, err = s.lockOwnedOpenSession(ctx, tx, teacherID, sessionID)
		if err != nil {
			return err
		}
		lines, err := s.sessions.CheckIns(ctx, tx, session.ID, session.ClassID)
		if err != nil {
			return internalError(err, "failed to load session roster")
		}
		roster := make(map[string]models.SessionCheckIn, len(lines))
		for _, line := range lines {
			roster[line.StudentID] = line
		}

		var unknown []string
		for _, entry := range req.Entries {
			if _, ok := roster[entry.StudentID]; !ok {
				unknown = append(unknown, entry.StudentID)
			}
		}
		if len(unknown) > 0 {
			return appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrValidation, "students without an active enrollment in this class"),
				map[string][]string{"student_ids": unknown},
			)
		}

		for _, entry := range req.Entries {
			line := roster[entry.StudentID]
			observation := trimmedOrNil(entry.Observation)
			record := &models.Attendance{
				SessionID:    session.ID,
				StudentID:    entry.StudentID,
				EnrollmentID: line.EnrollmentID,
				Present:      *entry.Present,
			}
			if observation != nil {
				record.Observation = *observation
			}
			if err := s.attendance.Upsert(ctx, tx, record); err != nil {
				return internalError(err, "failed to record attendance")
			}
			if observation == nil || (line.Observation != nil && *line.Observation == *observation) {
				continue
			}
			if err := s.appendObservation(ctx, tx, session, line, *observation); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		observeRejection(s.metrics, err)
		return nil, err
	}
	return s.detail(ctx, session)
}

func (s *SessionService) appendObservation(ctx context.Context, tx *sqlx.Tx, session *models.Session, line models.SessionCheckIn, body string) error {
	sessionID := session.ID
	observation := &models.Observation{
		StudentID: line.StudentID,
		ClassID:   session.ClassID,
		SessionID: &sessionID,
		TeacherID: session.TeacherID,
		Body:      body,
	}
	if err := s.observations.Create(ctx, tx, observation); err != nil {
		return internalError(err, "failed to save observation")
	}
	notification := &models.Notification{
		Type:          models.NotificationObservation,
		RecipientRole: models.RoleAdmin,
		ReferenceID:   line.StudentID,
		ClassID:       &observation.ClassID,
		TeacherID:     &observation.TeacherID,
		StudentID:     &observation.StudentID,
		Title:         fmt.Sprintf("Observação sobre %s", line.StudentName),
		Body:          body,
	}
	if err := s.notifications.Create(ctx, tx, notification); err != nil {
		return internalError(err, "failed to notify observation")
	}
	return nil
}

// Finalize closes an open session once every enrolled student checked in.
func (s *SessionService) Finalize(ctx context.Context, teacherID, sessionID string, req FinalizeSessionRequest) (*models.SessionDetail, error) {
	if err := validate(s.validator, req, "invalid session payload"); err != nil {
		return nil, err
	}
	report := trimmedOrNil(req.Report)

	var session *models.Session
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		session, err = s.lockOwnedOpenSession(ctx, tx, teacherID, sessionID)
		if err != nil {
			return err
		}
		lines, err := s.sessions.CheckIns(ctx, tx, session.ID, session.ClassID)
		if err != nil {
			return internalError(err, "failed to load session roster")
		}
		var missing []MissingCheckIn
		for _, line := range lines {
			if !line.CheckedIn() {
				missing = append(missing, MissingCheckIn{StudentID: line.StudentID, StudentName: line.StudentName})
			}
		}
		if len(missing) > 0 {
			return appErrors.WithDetails(appErrors.Clone(appErrors.ErrCheckInRequired, ""), map[string][]MissingCheckIn{"missing": missing})
		}

		closed, err := s.sessions.Close(ctx, tx, session.ID, report)
		if err != nil {
			return internalError(err, "failed to close session")
		}
		if !closed {
			return appErrors.Clone(appErrors.ErrInvalidState, "session is already closed")
		}
		session.Status = models.SessionStatusClosed
		session.Report = report

		if report == nil {
			return nil
		}
		classID, teacher := session.ClassID, session.TeacherID
		notification := &models.Notification{
			Type:          models.NotificationSessionReport,
			RecipientRole: models.RoleAdmin,
			ReferenceID:   session.ID,
			ClassID:       &classID,
			TeacherID:     &teacher,
			Title:         fmt.Sprintf("Relatório do encontro %d", session.Number),
			Body:          *report,
		}
		if err := s.notifications.Create(ctx, tx, notification); err != nil {
			return internalError(err, "failed to notify session report")
		}
		return nil
	})
	if err != nil {
		observeRejection(s.metrics, err)
		return nil, err
	}

	s.metrics.RecordSessionEvent("closed")
	s.logger.Info("session closed", zap.String("session_id", session.ID), zap.Bool("with_report", report != nil))
	return s.detail(ctx, session)
}

func (s *SessionService) lockOwnedOpenSession(ctx context.Context, tx *sqlx.Tx, teacherID, sessionID string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, tx, sessionID)
	if err != nil {
		return nil, lookupError(err, "session")
	}
	if session.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another teacher")
	}
	if session.Status != models.SessionStatusOpen {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "session is already closed")
	}
	return session, nil
}

// Current returns the teacher's open session with its check-in roster.
func (s *SessionService) Current(ctx context.Context, teacherID string) (*models.SessionDetail, error) {
	session, err := s.sessions.FindOpenByTeacher(ctx, nil, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no open session")
		}
		return nil, internalError(err, "failed to load open session")
	}
	return s.detail(ctx, session)
}

// Get returns a session. Teachers only see their own sessions.
func (s *SessionService) Get(ctx context.Context, actor Actor, sessionID string) (*models.SessionDetail, error) {
	session, err := s.sessions.FindByID(ctx, nil, sessionID)
	if err != nil {
		return nil, lookupError(err, "session")
	}
	if !actor.IsAdmin() && session.TeacherID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another teacher")
	}
	return s.detail(ctx, session)
}

// ListByClass returns every session of a class in order.
func (s *SessionService) ListByClass(ctx context.Context, classID string) ([]models.Session, error) {
	if _, err := s.classes.FindByID(ctx, nil, classID); err != nil {
		return nil, lookupError(err, "class")
	}
	sessions, err := s.sessions.ListByClass(ctx, classID)
	if err != nil {
		return nil, internalError(err, "failed to list sessions")
	}
	return sessions, nil
}

// AtRisk lists students of the teacher's classes whose active enrollment
// reached the absence threshold.
func (s *SessionService) AtRisk(ctx context.Context, teacherID string) ([]models.AtRiskStudent, error) {
	students, err := s.attendance.AtRisk(ctx, teacherID, s.cfg.AtRiskAbsences)
	if err != nil {
		return nil, internalError(err, "failed to load at-risk students")
	}
	return students, nil
}

func (s *SessionService) detail(ctx context.Context, session *models.Session) (*models.SessionDetail, error) {
	class, err := s.classes.FindByID(ctx, nil, session.ClassID)
	if err != nil {
		return nil, lookupError(err, "class")
	}
	lines, err := s.sessions.CheckIns(ctx, nil, session.ID, session.ClassID)
	if err != nil {
		return nil, internalError(err, "failed to load session roster")
	}
	detail := &models.SessionDetail{Session: *session, ClassName: class.Name, Roster: lines}
	if detail.Roster == nil {
		detail.Roster = []models.SessionCheckIn{}
	}
	if session.Status == models.SessionStatusOpen {
		for _, line := range lines {
			if !line.CheckedIn() {
				detail.Missing++
			}
		}
	}
	return detail, nil
}
