package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/repense-api/internal/models"
)

func TestMessageRepositoryEnsureConversationUpserts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (teacher_id) DO UPDATE SET updated_at = EXCLUDED.updated_at")).
		WithArgs(sqlmock.AnyArg(), "t-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "teacher_id", "created_at", "updated_at"}).AddRow("conv-1", "t-1", now, now))

	conversation, err := repo.EnsureConversation(context.Background(), nil, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", conversation.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepositoryCreateMessage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectExec("INSERT INTO messages").
		WithArgs(sqlmock.AnyArg(), "conv-1", models.RoleAdmin, "admin-1", "Bem-vindo", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	message := &models.Message{ConversationID: "conv-1", SenderRole: models.RoleAdmin, SenderID: "admin-1", Body: "Bem-vindo"}
	require.NoError(t, repo.CreateMessage(context.Background(), nil, message))
	assert.NotEmpty(t, message.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
