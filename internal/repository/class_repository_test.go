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

var classRowColumns = []string{"id", "name", "grupo", "modality", "capacidade", "numero_inscritos", "active", "archived", "archived_at",
	"start_date", "total_sessions", "city", "teacher_id", "final_report", "final_report_at", "created_at", "updated_at"}

func TestClassRepositoryClaimSeat(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE classes SET numero_inscritos = numero_inscritos + 1")).
		WithArgs("class-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND active AND NOT archived AND numero_inscritos < capacidade")).
		WithArgs("class-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	claimed, err := repo.ClaimSeat(context.Background(), tx, "class-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.ClaimSeat(context.Background(), tx, "class-1")
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryReleaseSeatNeverNegative(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("numero_inscritos = numero_inscritos - 1") + "(?s).+" + regexp.QuoteMeta("WHERE id = $1 AND numero_inscritos > 0")).
		WithArgs("class-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ReleaseSeat(context.Background(), nil, "class-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery("(?s)SELECT .+ FROM classes c WHERE c.id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), nil, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	active := true
	cols := append(append([]string{}, classRowColumns...), "teacher_name", "closed_sessions", "has_open_session")
	rows := sqlmock.NewRows(cols).
		AddRow("class-1", "PG Centro", "igreja", "presencial", 10, 4, true, false, nil, now, 8, "Recife", "t-1", nil, nil, now, now, "Ana", 2, false)

	mock.ExpectQuery("(?s)SELECT .+ FROM classes c LEFT JOIN teachers t ON t.id = c.teacher_id WHERE c.grupo = \\$1 AND c.active = \\$2 ORDER BY c.name ASC LIMIT 10 OFFSET 10").
		WithArgs(models.GrupoIgreja, true).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM classes c LEFT JOIN teachers t ON t.id = c.teacher_id WHERE c.grupo = $1 AND c.active = $2")).
		WithArgs(models.GrupoIgreja, true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	classes, total, err := repo.List(context.Background(), models.ClassFilter{
		Grupo: models.GrupoIgreja, Active: &active, Page: 2, PageSize: 10, SortBy: "name", SortOrder: "asc",
	})
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, 11, total)
	assert.Equal(t, 4, classes[0].NumeroInscritos)
	assert.Equal(t, 2, classes[0].ClosedSessions)
	require.NotNil(t, classes[0].TeacherName)
	assert.Equal(t, "Ana", *classes[0].TeacherName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryRoster(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	rows := sqlmock.NewRows([]string{"enrollment_id", "student_id", "student_name", "phone", "enrolled_at", "presences", "absences"}).
		AddRow("enr-1", "stu-1", "Maria", "81999990000", time.Now(), 3, 1)
	mock.ExpectQuery("FROM enrollments e\\s+JOIN students s ON s.id = e.student_id\\s+LEFT JOIN attendances a ON a.enrollment_id = e.id").
		WithArgs("class-1").
		WillReturnRows(rows)

	roster, err := repo.Roster(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, 1, roster[0].Absences)
	assert.NoError(t, mock.ExpectationsWereMet())
}
