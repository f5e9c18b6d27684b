package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardRepositoryGroupSummaries(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDashboardRepository(db)

	mock.ExpectQuery("FROM \\(VALUES \\('igreja'\\), \\('espiritualidade'\\), \\('evangelho'\\)\\) AS g\\(grupo\\)").
		WillReturnRows(sqlmock.NewRows([]string{"grupo", "classes", "active_classes", "capacity", "enrolled", "waiting"}).
			AddRow("espiritualidade", 0, 0, 0, 0, 2).
			AddRow("evangelho", 1, 1, 12, 5, 0).
			AddRow("igreja", 2, 1, 30, 18, 4))

	summaries, err := repo.GroupSummaries(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, 18, summaries[2].Enrolled)
	assert.Equal(t, 2, summaries[0].Waiting)
	assert.NoError(t, mock.ExpectationsWereMet())
}
