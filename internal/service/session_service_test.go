package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/models"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
)

type fakeSessionStore struct {
	sessions   map[string]*models.Session
	roster     map[string][]models.SessionCheckIn
	attendance *fakeAttendanceStore
	seq        int
}

func (f *fakeSessionStore) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessionStore) findOpen(match func(*models.Session) bool) (*models.Session, error) {
	for _, s := range f.sessions {
		if s.Status == models.SessionStatusOpen && match(s) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeSessionStore) FindOpenByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) (*models.Session, error) {
	return f.findOpen(func(s *models.Session) bool { return s.TeacherID == teacherID })
}

func (f *fakeSessionStore) FindOpenByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (*models.Session, error) {
	return f.findOpen(func(s *models.Session) bool { return s.ClassID == classID })
}

func (f *fakeSessionStore) CountClosed(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	count := 0
	for _, s := range f.sessions {
		if s.ClassID == classID && s.Status == models.SessionStatusClosed {
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionStore) Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	f.seq++
	session.ID = fmt.Sprintf("ses-new-%d", f.seq)
	session.Status = models.SessionStatusOpen
	session.StartedAt = time.Now().UTC()
	number := 0
	for _, s := range f.sessions {
		if s.ClassID == session.ClassID && s.Number > number {
			number = s.Number
		}
	}
	session.Number = number + 1
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeSessionStore) Close(ctx context.Context, exec sqlx.ExtContext, id string, report *string) (bool, error) {
	s, ok := f.sessions[id]
	if !ok || s.Status != models.SessionStatusOpen {
		return false, nil
	}
	now := time.Now().UTC()
	s.Status = models.SessionStatusClosed
	s.Report = report
	s.ClosedAt = &now
	return true, nil
}

func (f *fakeSessionStore) ListByClass(ctx context.Context, classID string) ([]models.Session, error) {
	var out []models.Session
	for _, s := range f.sessions {
		if s.ClassID == classID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) CheckIns(ctx context.Context, exec sqlx.ExtContext, sessionID, classID string) ([]models.SessionCheckIn, error) {
	var out []models.SessionCheckIn
	for _, line := range f.roster[classID] {
		if record, ok := f.attendance.records[sessionID+"/"+line.StudentID]; ok {
			present := record.Present
			line.Present = &present
			if record.Observation != "" {
				observation := record.Observation
				line.Observation = &observation
			}
		}
		out = append(out, line)
	}
	return out, nil
}

type fakeAttendanceStore struct {
	records map[string]models.Attendance
	atRisk  []models.AtRiskStudent
	lastMin int
}

func (f *fakeAttendanceStore) Upsert(ctx context.Context, exec sqlx.ExtContext, attendance *models.Attendance) error {
	f.records[attendance.SessionID+"/"+attendance.StudentID] = *attendance
	return nil
}

func (f *fakeAttendanceStore) AtRisk(ctx context.Context, teacherID string, threshold int) ([]models.AtRiskStudent, error) {
	f.lastMin = threshold
	return f.atRisk, nil
}

type fakeObservationStore struct {
	created []models.Observation
}

func (f *fakeObservationStore) Create(ctx context.Context, exec sqlx.ExtContext, observation *models.Observation) error {
	observation.ID = fmt.Sprintf("obs-%d", len(f.created)+1)
	f.created = append(f.created, *observation)
	return nil
}

func (f *fakeObservationStore) ListByStudent(ctx context.Context, studentID string) ([]models.Observation, error) {
	var out []models.Observation
	for _, o := range f.created {
		if o.StudentID == studentID {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeNotificationStore struct {
	created []models.Notification
}

func (f *fakeNotificationStore) Create(ctx context.Context, exec sqlx.ExtContext, notification *models.Notification) error {
	notification.ID = fmt.Sprintf("ntf-%d", len(f.created)+1)
	f.created = append(f.created, *notification)
	return nil
}

type fakeTeacherStore struct {
	teachers map[string]*models.Teacher
	findErr  error
}

func newFakeTeacherStore(teachers ...models.Teacher) *fakeTeacherStore {
	store := &fakeTeacherStore{teachers: map[string]*models.Teacher{}}
	for i := range teachers {
		t := teachers[i]
		store.teachers[t.ID] = &t
	}
	return store
}

func (f *fakeTeacherStore) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	var out []models.Teacher
	for _, t := range f.teachers {
		out = append(out, *t)
	}
	return out, len(out), nil
}

func (f *fakeTeacherStore) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	t, ok := f.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *t
	return &copied, nil
}

func (f *fakeTeacherStore) Create(ctx context.Context, teacher *models.Teacher) error {
	teacher.ID = fmt.Sprintf("tch-new-%d", len(f.teachers)+1)
	copied := *teacher
	f.teachers[teacher.ID] = &copied
	return nil
}

func (f *fakeTeacherStore) Update(ctx context.Context, teacher *models.Teacher) error {
	copied := *teacher
	f.teachers[teacher.ID] = &copied
	return nil
}

func (f *fakeTeacherStore) SetActive(ctx context.Context, id string, active bool) error {
	f.teachers[id].EhAtivo = active
	return nil
}

type sessionFixture struct {
	svc           *SessionService
	sessions      *fakeSessionStore
	attendance    *fakeAttendanceStore
	observations  *fakeObservationStore
	notifications *fakeNotificationStore
	classes       *fakeClassStore
	teachers      *fakeTeacherStore
	expect        func(commit bool)
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	db, mock := newTxProviderMock(t)
	attendance := &fakeAttendanceStore{records: map[string]models.Attendance{}}

	classA := openClass("class-a", 10)
	classA.TeacherID = strPtr("tch-1")
	classA.TotalSessions = 2
	classB := openClass("class-b", 10)
	classB.TeacherID = strPtr("tch-1")
	classC := openClass("class-c", 10)
	classC.TeacherID = strPtr("tch-2")

	fx := &sessionFixture{
		sessions: &fakeSessionStore{
			sessions: map[string]*models.Session{},
			roster: map[string][]models.SessionCheckIn{
				"class-a": {
					{EnrollmentID: "enr-1", StudentID: "stu-1", StudentName: "Ana"},
					{EnrollmentID: "enr-2", StudentID: "stu-2", StudentName: "Bruno"},
				},
			},
			attendance: attendance,
		},
		attendance:    attendance,
		observations:  &fakeObservationStore{},
		notifications: &fakeNotificationStore{},
		classes:       newFakeClassStore(classA, classB, classC),
		teachers: newFakeTeacherStore(
			models.Teacher{ID: "tch-1", FullName: "Carla", EhAtivo: true},
			models.Teacher{ID: "tch-2", FullName: "Davi", EhAtivo: true},
			models.Teacher{ID: "tch-off", FullName: "Eva"},
		),
	}
	fx.svc = NewSessionService(SessionServiceParams{
		DB:            db,
		Sessions:      fx.sessions,
		Attendance:    fx.attendance,
		Observations:  fx.observations,
		Notifications: fx.notifications,
		Teachers:      fx.teachers,
		Classes:       fx.classes,
		Logger:        zap.NewNop(),
	})
	fx.expect = func(commit bool) {
		mock.ExpectBegin()
		if commit {
			mock.ExpectCommit()
		} else {
			mock.ExpectRollback()
		}
	}
	return fx
}

func (fx *sessionFixture) open(t *testing.T, teacherID, classID string) *models.SessionDetail {
	t.Helper()
	fx.expect(true)
	detail, _, err := fx.svc.Open(context.Background(), teacherID, OpenSessionRequest{ClassID: classID})
	require.NoError(t, err)
	return detail
}

func TestSessionServiceOpen(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	fx.expect(true)
	first, created, err := fx.svc.Open(ctx, "tch-1", OpenSessionRequest{ClassID: "class-a"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, first.Number)
	assert.Equal(t, "Turma class-a", first.ClassName)
	assert.Equal(t, 2, first.Missing)

	fx.expect(true)
	again, created, err := fx.svc.Open(ctx, "tch-1", OpenSessionRequest{ClassID: "class-a"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	fx.expect(false)
	_, _, err = fx.svc.Open(ctx, "tch-1", OpenSessionRequest{ClassID: "class-b"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSessionAlreadyOpen.Code, appErr.Code)
	assert.Equal(t, map[string]string{"session_id": first.ID, "class_id": "class-a"}, appErr.Details)
}

func TestSessionServiceOpen_Rejections(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	_, _, err := fx.svc.Open(ctx, "tch-off", OpenSessionRequest{ClassID: "class-a"})
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, errorCode(err))

	fx.expect(false)
	_, _, err = fx.svc.Open(ctx, "tch-1", OpenSessionRequest{ClassID: "class-c"})
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	fx.classes.classes["class-b"].Archived = true
	fx.expect(false)
	_, _, err = fx.svc.Open(ctx, "tch-1", OpenSessionRequest{ClassID: "class-b"})
	assert.Equal(t, appErrors.ErrClassUnavailable.Code, errorCode(err))

	fx.sessions.sessions["old-1"] = &models.Session{ID: "old-1", ClassID: "class-a", TeacherID: "tch-1", Number: 1, Status: models.SessionStatusClosed}
	fx.sessions.sessions["old-2"] = &models.Session{ID: "old-2", ClassID: "class-a", TeacherID: "tch-1", Number: 2, Status: models.SessionStatusClosed}
	fx.expect(false)
	_, _, err = fx.svc.Open(ctx, "tch-1", OpenSessionRequest{ClassID: "class-a"})
	assert.Equal(t, appErrors.ErrInvalidState.Code, errorCode(err))
}

func TestSessionServiceRecordAttendance(t *testing.T) {
	fx := newSessionFixture(t)
	session := fx.open(t, "tch-1", "class-a")
	ctx := context.Background()

	fx.expect(true)
	detail, err := fx.svc.RecordAttendance(ctx, "tch-1", session.ID, RecordAttendanceRequest{Entries: []AttendanceEntry{
		{StudentID: "stu-1", Present: boolPtr(true), Observation: strPtr("  chegou atrasada  ")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, detail.Missing)
	require.Len(t, fx.observations.created, 1)
	assert.Equal(t, "chegou atrasada", fx.observations.created[0].Body)
	require.Len(t, fx.notifications.created, 1)
	assert.Equal(t, models.NotificationObservation, fx.notifications.created[0].Type)
	assert.Equal(t, models.RoleAdmin, fx.notifications.created[0].RecipientRole)
	assert.Equal(t, "enr-1", fx.attendance.records[session.ID+"/stu-1"].EnrollmentID)

	fx.expect(true)
	_, err = fx.svc.RecordAttendance(ctx, "tch-1", session.ID, RecordAttendanceRequest{Entries: []AttendanceEntry{
		{StudentID: "stu-1", Present: boolPtr(false), Observation: strPtr("chegou atrasada")},
	}})
	require.NoError(t, err)
	assert.False(t, fx.attendance.records[session.ID+"/stu-1"].Present)
	assert.Len(t, fx.observations.created, 1)
}

func TestSessionServiceRecordAttendance_Rejections(t *testing.T) {
	fx := newSessionFixture(t)
	session := fx.open(t, "tch-1", "class-a")
	ctx := context.Background()

	fx.expect(false)
	_, err := fx.svc.RecordAttendance(ctx, "tch-1", session.ID, RecordAttendanceRequest{Entries: []AttendanceEntry{
		{StudentID: "stu-9", Present: boolPtr(true)},
	}})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, map[string][]string{"student_ids": {"stu-9"}}, appErr.Details)
	assert.Empty(t, fx.attendance.records)

	fx.expect(false)
	_, err = fx.svc.RecordAttendance(ctx, "tch-2", session.ID, RecordAttendanceRequest{Entries: []AttendanceEntry{
		{StudentID: "stu-1", Present: boolPtr(true)},
	}})
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	_, err = fx.svc.RecordAttendance(ctx, "tch-1", session.ID, RecordAttendanceRequest{Entries: []AttendanceEntry{{StudentID: "stu-1"}}})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
}

func TestSessionServiceFinalize_RequiresFullCheckIn(t *testing.T) {
	fx := newSessionFixture(t)
	session := fx.open(t, "tch-1", "class-a")
	ctx := context.Background()

	fx.expect(true)
	_, err := fx.svc.RecordAttendance(ctx, "tch-1", session.ID, RecordAttendanceRequest{Entries: []AttendanceEntry{
		{StudentID: "stu-1", Present: boolPtr(true)},
	}})
	require.NoError(t, err)

	fx.expect(false)
	_, err = fx.svc.Finalize(ctx, "tch-1", session.ID, FinalizeSessionRequest{Report: strPtr("bom encontro")})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCheckInRequired.Code, appErr.Code)
	assert.Equal(t, map[string][]MissingCheckIn{"missing": {{StudentID: "stu-2", StudentName: "Bruno"}}}, appErr.Details)
	assert.Equal(t, models.SessionStatusOpen, fx.sessions.sessions[session.ID].Status)
	assert.Empty(t, fx.notifications.created)

	fx.expect(true)
	_, err = fx.svc.RecordAttendance(ctx, "tch-1", session.ID, RecordAttendanceRequest{Entries: []AttendanceEntry{
		{StudentID: "stu-2", Present: boolPtr(false)},
	}})
	require.NoError(t, err)

	fx.expect(true)
	closed, err := fx.svc.Finalize(ctx, "tch-1", session.ID, FinalizeSessionRequest{Report: strPtr("bom encontro")})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusClosed, closed.Status)
	assert.Zero(t, closed.Missing)
	require.Len(t, fx.notifications.created, 1)
	assert.Equal(t, models.NotificationSessionReport, fx.notifications.created[0].Type)
	assert.Equal(t, session.ID, fx.notifications.created[0].ReferenceID)

	fx.expect(false)
	_, err = fx.svc.Finalize(ctx, "tch-1", session.ID, FinalizeSessionRequest{})
	assert.Equal(t, appErrors.ErrInvalidState.Code, errorCode(err))

	fx.expect(true)
	next, created, err := fx.svc.Open(ctx, "tch-1", OpenSessionRequest{ClassID: "class-a"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, next.Number)
}

func TestSessionServiceFinalize_WithoutReportSkipsNotification(t *testing.T) {
	fx := newSessionFixture(t)
	session := fx.open(t, "tch-1", "class-b")

	fx.expect(true)
	closed, err := fx.svc.Finalize(context.Background(), "tch-1", session.ID, FinalizeSessionRequest{Report: strPtr("   ")})
	require.NoError(t, err)
	assert.Nil(t, closed.Report)
	assert.Empty(t, fx.notifications.created)
}

func TestSessionServiceCurrentGetAndAtRisk(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Current(ctx, "tch-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))

	session := fx.open(t, "tch-1", "class-a")
	current, err := fx.svc.Current(ctx, "tch-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, current.ID)
	assert.Len(t, current.Roster, 2)

	_, err = fx.svc.Get(ctx, Actor{ID: "tch-2", Role: models.RoleTeacher}, session.ID)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))
	_, err = fx.svc.Get(ctx, Actor{ID: "adm-1", Role: models.RoleAdmin}, session.ID)
	assert.NoError(t, err)

	sessions, err := fx.svc.ListByClass(ctx, "class-a")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	_, err = fx.svc.ListByClass(ctx, "class-x")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))

	fx.attendance.atRisk = []models.AtRiskStudent{{StudentID: "stu-2", Absences: 3}}
	atRisk, err := fx.svc.AtRisk(ctx, "tch-1")
	require.NoError(t, err)
	assert.Len(t, atRisk, 1)
	assert.Equal(t, 3, fx.attendance.lastMin)
}
