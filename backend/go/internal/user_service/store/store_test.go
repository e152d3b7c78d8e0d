package store

import (
	"context"
	"regexp"
	"testing"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)
	return NewStore(gdb), mock
}

func TestGetUserByEmailNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `users` WHERE email = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}))

	_, err := s.GetUserByEmail(context.Background(), "a@example.com")
	assert.True(t, apperr.Is(apperr.FromDB(err), apperr.NotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserRollsBackWithoutMemberRole(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `users`")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `roles` WHERE name = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	mock.ExpectRollback()

	err := s.CreateUser(context.Background(), &models.User{Email: "a@example.com", Username: "a", Provider: "email", ProviderID: "a@example.com"})
	assert.ErrorIs(t, err, ErrDefaultRoleMissing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailTakenCountsEmailOrUsername(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `users` WHERE (email = ? OR username = ?)")).
		WithArgs("a@example.com", "ada").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(1))

	taken, err := s.EmailTaken(context.Background(), "a@example.com", "ada")
	require.NoError(t, err)
	assert.True(t, taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}
