package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stanstork/waterwatch-api/internal/apperrors"
	"github.com/stanstork/waterwatch-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var userRowColumns = []string{"id", "name", "email", "phone", "role", "password_hash", "created_at"}

func TestUserRepository_ListByRole(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	now := time.Now()

	mock.ExpectQuery("FROM users WHERE role = \\$1").
		WithArgs("leader").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u-1", "Asha Devi", "a@x.org", "+911111111111", "leader", "h", now).
			AddRow("u-2", "Ravi", "r@x.org", nil, "leader", "h", now))

	users, err := repo.ListByRole(context.Background(), models.RoleLeader)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.True(t, users[0].HasPhone())
	assert.False(t, users[1].HasPhone())
	assert.Equal(t, models.RoleLeader, users[1].Role)
}

func TestUserRepository_AuthenticateUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("FROM users WHERE email = \\$1").
		WithArgs("asha@x.org").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u-1", "Asha", "asha@x.org", nil, "asha", string(hash), time.Now()))

	user, err := repo.AuthenticateUser(context.Background(), " Asha@X.org ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, models.RoleASHA, user.Role)
}

func TestUserRepository_AuthenticateUserWrongPassword(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("FROM users").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u-1", "Asha", "asha@x.org", nil, "asha", string(hash), time.Now()))

	_, err = repo.AuthenticateUser(context.Background(), "asha@x.org", "guess")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserRepository_AuthenticateUnknownEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery("FROM users").WillReturnError(sql.ErrNoRows)

	_, err := repo.AuthenticateUser(context.Background(), "ghost@x.org", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserRepository_CreateUserRejectsRole(t *testing.T) {
	db, _ := newMock(t)
	repo := NewUserRepository(db)

	_, err := repo.CreateUser(context.Background(), "x", "x@x.org", "pw", nil, "superuser")
	assert.True(t, apperrors.IsValidation(err))
}

func TestUserRepository_CreateUserDefaultsToPublic(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("Meera", "meera@x.org", nil, "public", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u-5", "Meera", "meera@x.org", nil, "public", "hash", time.Now()))

	user, err := repo.CreateUser(context.Background(), " Meera ", "Meera@X.org", "pw", nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.RolePublic, user.Role)
}

func TestUserRepository_CreateUserDuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("Ravi", "ravi@x.org", sqlmock.AnyArg(), "public", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := repo.CreateUser(context.Background(), "Ravi", "Ravi@x.org", "pw", nil, "")
	require.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "email already registered", err.Error())
}
