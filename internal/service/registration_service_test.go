package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/models"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
	"github.com/noah-isme/repense-api/pkg/signing"
)

type registrationFixture struct {
	svc         *RegistrationService
	enrollments *fakeEnrollmentStore
	classes     *fakeClassStore
	students    *fakeStudentStore
	expect      func(commit bool)
}

func newRegistrationFixture(t *testing.T, classes []models.Class, students []models.Student, enrollments ...models.Enrollment) *registrationFixture {
	t.Helper()
	db, mock := newTxProviderMock(t)
	fx := &registrationFixture{
		enrollments: newFakeEnrollmentStore(enrollments...),
		classes:     newFakeClassStore(classes...),
		students:    newFakeStudentStore(students...),
	}
	transfers := NewTransferService(db, fx.enrollments, fx.classes, fx.students, nil, nil, nil, zap.NewNop())
	fx.svc = NewRegistrationService(RegistrationServiceParams{
		DB:          db,
		Students:    fx.students,
		Enrollments: fx.enrollments,
		Classes:     fx.classes,
		Transfers:   transfers,
		Signer:      signing.NewCourseChangeSigner("test-secret", time.Minute),
		Logger:      zap.NewNop(),
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

func registration(cpf, classID string) RegisterRequest {
	return RegisterRequest{
		RegistrantRequest: RegistrantRequest{FullName: "Ana Souza", CPF: cpf, Phone: "11999990000", BirthDate: "1990-05-17", City: "Campinas"},
		ClassID:           classID,
	}
}

func TestRegistrationServiceRegister_NewStudentEnrolls(t *testing.T) {
	fx := newRegistrationFixture(t, []models.Class{openClass("class-a", 3)}, nil)

	fx.expect(true)
	resp, err := fx.svc.Register(context.Background(), registration("529.982.247-25", "class-a"))
	require.NoError(t, err)
	assert.False(t, resp.RequiresCourseChange)
	assert.NotEmpty(t, resp.EnrollmentID)
	assert.Equal(t, 1, fx.classes.classes["class-a"].NumeroInscritos)

	student := fx.students.students[resp.StudentID]
	require.NotNil(t, student)
	assert.Equal(t, "52998224725", student.CPF)
	require.NotNil(t, student.BirthDate)
	assert.Equal(t, 1990, student.BirthDate.Year())
}

func TestRegistrationServiceRegister_ClearsWaitlist(t *testing.T) {
	waitingSince := time.Now()
	fx := newRegistrationFixture(t,
		[]models.Class{openClass("class-a", 3)},
		[]models.Student{{ID: "stu-1", CPF: "52998224725", PriorityList: true, PriorityListAt: &waitingSince}},
	)

	fx.expect(true)
	resp, err := fx.svc.Register(context.Background(), registration("52998224725", "class-a"))
	require.NoError(t, err)
	assert.Equal(t, "stu-1", resp.StudentID)
	assert.False(t, fx.students.students["stu-1"].PriorityList)
}

func TestRegistrationServiceRegister_SameClassIsAlreadyEnrolled(t *testing.T) {
	fx := newRegistrationFixture(t,
		[]models.Class{openClass("class-a", 3)},
		[]models.Student{{ID: "stu-1", CPF: "52998224725"}},
		models.Enrollment{ID: "enr-1", StudentID: "stu-1", ClassID: "class-a", Status: models.EnrollmentStatusAtivo},
	)

	fx.expect(false)
	_, err := fx.svc.Register(context.Background(), registration("52998224725", "class-a"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, errorCode(err))
}

func TestRegistrationServiceRegister_FullClassRejected(t *testing.T) {
	full := openClass("class-a", 1)
	full.NumeroInscritos = 1
	fx := newRegistrationFixture(t, []models.Class{full}, nil)

	fx.expect(false)
	_, err := fx.svc.Register(context.Background(), registration("52998224725", "class-a"))
	assert.Equal(t, appErrors.ErrClassFull.Code, errorCode(err))
}

func TestRegistrationServiceCourseChangeRoundTrip(t *testing.T) {
	source := openClass("class-a", 3)
	source.NumeroInscritos = 1
	fx := newRegistrationFixture(t,
		[]models.Class{source, openClass("class-b", 3)},
		[]models.Student{{ID: "stu-1", CPF: "52998224725"}},
		models.Enrollment{ID: "enr-1", StudentID: "stu-1", ClassID: "class-a", Status: models.EnrollmentStatusAtivo},
	)
	ctx := context.Background()

	fx.expect(true)
	resp, err := fx.svc.Register(ctx, registration("52998224725", "class-b"))
	require.NoError(t, err)
	require.True(t, resp.RequiresCourseChange)
	assert.Empty(t, resp.EnrollmentID)
	assert.Equal(t, "enr-1", resp.CurrentEnrollment.EnrollmentID)
	assert.Equal(t, "class-b", resp.RequestedClass.ID)
	require.NotEmpty(t, resp.ChangeToken)
	assert.Equal(t, 0, fx.classes.classes["class-b"].NumeroInscritos)

	fx.expect(true)
	result, err := fx.svc.ConfirmCourseChange(ctx, ConfirmCourseChangeRequest{ChangeToken: resp.ChangeToken})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusTransferido, result.From.Status)
	assert.Equal(t, "class-b", result.To.ClassID)
	assert.Equal(t, 0, fx.classes.classes["class-a"].NumeroInscritos)
	assert.Equal(t, 1, fx.classes.classes["class-b"].NumeroInscritos)

	_, err = fx.svc.ConfirmCourseChange(ctx, ConfirmCourseChangeRequest{ChangeToken: resp.ChangeToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, errorCode(err))
}

func TestRegistrationServiceConfirmCourseChange_TamperedToken(t *testing.T) {
	fx := newRegistrationFixture(t, nil, nil)
	signer := signing.NewCourseChangeSigner("test-secret", time.Minute)
	token, _, err := signer.Generate(signing.CourseChange{StudentID: "stu-1", EnrollmentID: "enr-1", FromClassID: "class-a", ToClassID: "class-b"})
	require.NoError(t, err)

	tampered := strings.Replace(token, "class-b", "class-c", 1)
	_, err = fx.svc.ConfirmCourseChange(context.Background(), ConfirmCourseChangeRequest{ChangeToken: tampered})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidChangeToken.Code, appErr.Code)
	assert.Equal(t, map[string]string{"reason": "signature"}, appErr.Details)

	_, err = fx.svc.ConfirmCourseChange(context.Background(), ConfirmCourseChangeRequest{ChangeToken: "garbage"})
	assert.Equal(t, appErrors.ErrInvalidChangeToken.Code, errorCode(err))
}
