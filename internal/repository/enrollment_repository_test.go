package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/repense-api/internal/models"
)

var enrollmentRowColumns = []string{"id", "student_id", "class_id", "status", "enrolled_at", "completed_at", "cancelled_at",
	"transferred_at", "transferred_to_class_id", "created_at", "updated_at"}

func TestEnrollmentRepositoryFindByIDLocksInsideTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM enrollments e WHERE e.id = \\$1 FOR UPDATE").
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).
			AddRow("enr-1", "stu-1", "class-1", "ativo", now, nil, nil, nil, nil, now, now))
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	enrollment, err := repo.FindByID(context.Background(), tx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusAtivo, enrollment.Status)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	query := regexp.QuoteMeta("FROM enrollments e WHERE e.student_id = $1 AND e.class_id = $2 AND e.status = $3")
	mock.ExpectQuery(query).
		WithArgs("stu-1", "class-1", models.EnrollmentStatusAtivo).
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).
			AddRow("enr-1", "stu-1", "class-1", "ativo", now, nil, nil, nil, nil, now, now))
	mock.ExpectQuery(query).
		WithArgs("stu-2", "class-1", models.EnrollmentStatusAtivo).
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsActive(context.Background(), nil, "stu-1", "class-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsActive(context.Background(), nil, "stu-2", "class-1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateDefaultsToAtivo(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "stu-1", "class-1", models.EnrollmentStatusAtivo, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{StudentID: "stu-1", ClassID: "class-1"}
	require.NoError(t, repo.Create(context.Background(), nil, enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusAtivo, enrollment.Status)
	assert.False(t, enrollment.EnrolledAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryTransition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, cancelled_at = $3")).
		WithArgs("enr-1", models.EnrollmentStatusCancelado, at, nil, models.EnrollmentStatusAtivo).
		WillReturnResult(sqlmock.NewResult(0, 1))
	target := "class-2"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, transferred_at = $3")).
		WithArgs("enr-2", models.EnrollmentStatusTransferido, at, target, models.EnrollmentStatusAtivo).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Transition(context.Background(), nil, "enr-1", models.EnrollmentStatusCancelado, at, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Transition(context.Background(), nil, "enr-2", models.EnrollmentStatusTransferido, at, &target)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Transition(context.Background(), nil, "enr-3", models.EnrollmentStatusAtivo, at, nil)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListIncludesAttendanceCount(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	cols := append(append([]string{}, enrollmentRowColumns...), "student_name", "student_cpf", "class_name", "class_grupo", "attendance_count")
	mock.ExpectQuery("(?s)SELECT .+attendance_count.+WHERE e.class_id = \\$1 AND e.status = \\$2 ORDER BY e.enrolled_at DESC LIMIT 20 OFFSET 0").
		WithArgs("class-1", models.EnrollmentStatusAtivo).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("enr-1", "stu-1", "class-1", "ativo", now, nil, nil, nil, nil, now, now, "Maria", "52998224725", "PG Centro", "igreja", 0))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM enrollments e").
		WithArgs("class-1", models.EnrollmentStatusAtivo).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{ClassID: "class-1", Status: models.EnrollmentStatusAtivo})
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, enrollments[0].AttendanceCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
