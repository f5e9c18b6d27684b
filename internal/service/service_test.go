package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/repense-api/internal/models"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func errorCode(err error) string {
	return appErrors.FromError(err).Code
}

func strPtr(v string) *string { return &v }

func boolPtr(v bool) *bool { return &v }

// fakeClassStore keeps classes in memory and mimics the seat counter rules.
type fakeClassStore struct {
	classes map[string]*models.Class
	closed  map[string]int
	open    map[string]bool
	roster  map[string][]models.RosterEntry
	seq     int
}

func newFakeClassStore(classes ...models.Class) *fakeClassStore {
	store := &fakeClassStore{classes: map[string]*models.Class{}, closed: map[string]int{}, open: map[string]bool{}, roster: map[string][]models.RosterEntry{}}
	for i := range classes {
		c := classes[i]
		store.classes[c.ID] = &c
	}
	return store
}

func (f *fakeClassStore) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	var out []models.ClassDetail
	for _, c := range f.classes {
		if filter.TeacherID != "" && (c.TeacherID == nil || *c.TeacherID != filter.TeacherID) {
			continue
		}
		if filter.Archived != nil && c.Archived != *filter.Archived {
			continue
		}
		out = append(out, models.ClassDetail{Class: *c, ClosedSessions: f.closed[c.ID], HasOpenSession: f.open[c.ID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (f *fakeClassStore) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error) {
	c, ok := f.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (f *fakeClassStore) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	c, ok := f.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.ClassDetail{Class: *c, ClosedSessions: f.closed[id], HasOpenSession: f.open[id]}, nil
}

func (f *fakeClassStore) Create(ctx context.Context, class *models.Class) error {
	f.seq++
	if class.ID == "" {
		class.ID = fmt.Sprintf("class-new-%d", f.seq)
	}
	class.NumeroInscritos = 0
	copied := *class
	f.classes[class.ID] = &copied
	return nil
}

func (f *fakeClassStore) Update(ctx context.Context, class *models.Class) error {
	copied := *class
	f.classes[class.ID] = &copied
	return nil
}

func (f *fakeClassStore) SetActive(ctx context.Context, id string, active bool) error {
	f.classes[id].Active = active
	return nil
}

func (f *fakeClassStore) SetArchived(ctx context.Context, id string, archived bool) error {
	f.classes[id].Archived = archived
	return nil
}

func (f *fakeClassStore) SaveFinalReport(ctx context.Context, exec sqlx.ExtContext, id, report string) error {
	now := time.Now().UTC()
	f.classes[id].FinalReport = &report
	f.classes[id].FinalReportAt = &now
	return nil
}

func (f *fakeClassStore) ClaimSeat(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	c, ok := f.classes[id]
	if !ok || !c.Available() || c.NumeroInscritos >= c.Capacidade {
		return false, nil
	}
	c.NumeroInscritos++
	return true, nil
}

func (f *fakeClassStore) ReleaseSeat(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if c, ok := f.classes[id]; ok && c.NumeroInscritos > 0 {
		c.NumeroInscritos--
	}
	return nil
}

func (f *fakeClassStore) Roster(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	return f.roster[classID], nil
}

// fakeEnrollmentStore holds enrollments and applies the ativo-only transition rule.
type fakeEnrollmentStore struct {
	enrollments map[string]*models.Enrollment
	attendance  map[string]int
	createErr   error
	findErr     error
	seq         int
}

func newFakeEnrollmentStore(enrollments ...models.Enrollment) *fakeEnrollmentStore {
	store := &fakeEnrollmentStore{enrollments: map[string]*models.Enrollment{}, attendance: map[string]int{}}
	for i := range enrollments {
		e := enrollments[i]
		store.enrollments[e.ID] = &e
	}
	return store
}

func (f *fakeEnrollmentStore) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range f.enrollments {
		if filter.ClassID != "" && e.ClassID != filter.ClassID {
			continue
		}
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		out = append(out, models.EnrollmentDetail{Enrollment: *e})
	}
	return out, len(out), nil
}

func (f *fakeEnrollmentStore) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	e, ok := f.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *e
	return &copied, nil
}

func (f *fakeEnrollmentStore) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	e, ok := f.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.EnrollmentDetail{Enrollment: *e, AttendanceCount: f.attendance[id]}, nil
}

func (f *fakeEnrollmentStore) FindActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.Enrollment, error) {
	for _, e := range f.enrollments {
		if e.StudentID == studentID && e.ClassID == classID && e.Status == models.EnrollmentStatusAtivo {
			copied := *e
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollmentStore) ExistsActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (bool, error) {
	_, err := f.FindActive(ctx, exec, studentID, classID)
	return err == nil, nil
}

func (f *fakeEnrollmentStore) ListActiveByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.EnrollmentDetail, error) {
	var out []models.EnrollmentDetail
	for _, e := range f.enrollments {
		if e.StudentID == studentID && e.Status == models.EnrollmentStatusAtivo {
			out = append(out, models.EnrollmentDetail{Enrollment: *e, ClassName: "Turma " + e.ClassID})
		}
	}
	return out, nil
}

func (f *fakeEnrollmentStore) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.seq++
	if enrollment.ID == "" {
		enrollment.ID = fmt.Sprintf("enr-new-%d", f.seq)
	}
	enrollment.EnrolledAt = time.Now().UTC()
	copied := *enrollment
	f.enrollments[enrollment.ID] = &copied
	return nil
}

func (f *fakeEnrollmentStore) Transition(ctx context.Context, exec sqlx.ExtContext, id string, to models.EnrollmentStatus, at time.Time, transferredTo *string) (bool, error) {
	e, ok := f.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusAtivo {
		return false, nil
	}
	e.Status = to
	switch to {
	case models.EnrollmentStatusConcluido:
		e.CompletedAt = &at
	case models.EnrollmentStatusCancelado:
		e.CancelledAt = &at
	case models.EnrollmentStatusTransferido:
		e.TransferredAt = &at
		e.TransferredToClassID = transferredTo
	}
	return true, nil
}

func (f *fakeEnrollmentStore) activeCount(classID string) int {
	count := 0
	for _, e := range f.enrollments {
		if e.ClassID == classID && e.Status == models.EnrollmentStatusAtivo {
			count++
		}
	}
	return count
}

// fakeStudentStore keys students by id and cpf.
type fakeStudentStore struct {
	students map[string]*models.Student
	seq      int
}

func newFakeStudentStore(students ...models.Student) *fakeStudentStore {
	store := &fakeStudentStore{students: map[string]*models.Student{}}
	for i := range students {
		s := students[i]
		store.students[s.ID] = &s
	}
	return store
}

func (f *fakeStudentStore) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var out []models.Student
	for _, s := range f.students {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (f *fakeStudentStore) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error) {
	s, ok := f.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStudentStore) FindByCPF(ctx context.Context, cpf string) (*models.Student, error) {
	for _, s := range f.students {
		if s.CPF == cpf {
			copied := *s
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStudentStore) UpsertByCPF(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	for _, s := range f.students {
		if s.CPF == student.CPF {
			s.FullName = student.FullName
			s.Phone = student.Phone
			s.Email = student.Email
			s.City = student.City
			*student = *s
			return nil
		}
	}
	f.seq++
	student.ID = fmt.Sprintf("stu-new-%d", f.seq)
	copied := *student
	f.students[student.ID] = &copied
	return nil
}

func (f *fakeStudentStore) Update(ctx context.Context, student *models.Student) error {
	copied := *student
	f.students[student.ID] = &copied
	return nil
}

func (f *fakeStudentStore) JoinPriorityList(ctx context.Context, exec sqlx.ExtContext, id string, grupo models.Grupo) error {
	s := f.students[id]
	if !s.PriorityList {
		now := time.Now().UTC().Add(time.Duration(f.seq) * time.Millisecond)
		f.seq++
		s.PriorityListAt = &now
	}
	s.PriorityList = true
	s.PriorityListCourseID = &grupo
	return nil
}

func (f *fakeStudentStore) LeavePriorityList(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	s, ok := f.students[id]
	if !ok || !s.PriorityList {
		return false, nil
	}
	s.PriorityList = false
	s.PriorityListCourseID = nil
	s.PriorityListAt = nil
	return true, nil
}

func (f *fakeStudentStore) PriorityList(ctx context.Context, grupo models.Grupo) ([]models.Student, error) {
	var out []models.Student
	for _, s := range f.students {
		if !s.PriorityList {
			continue
		}
		if grupo != "" && (s.PriorityListCourseID == nil || *s.PriorityListCourseID != grupo) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriorityListAt.Before(*out[j].PriorityListAt) })
	return out, nil
}

type recordingInvalidator struct {
	keys []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, keys ...string) {
	r.keys = append(r.keys, keys...)
}
