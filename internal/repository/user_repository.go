package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/stanstork/waterwatch-api/internal/apperrors"
	"github.com/stanstork/waterwatch-api/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const uniqueViolation = "23505"

type UserRepository interface {
	CreateUser(ctx context.Context, name, email, password string, phone *string, role models.UserRole) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
	ListAll(ctx context.Context) ([]models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, name, email, phone, role, password_hash, created_at`

func (u *userRepository) CreateUser(ctx context.Context, name, email, password string, phone *string, role models.UserRole) (models.User, error) {
	if role == "" {
		role = models.RolePublic
	}
	if !models.IsValidRole(role) {
		return models.User{}, apperrors.Validation("invalid role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	query := `
		INSERT INTO users (name, email, phone, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns
	user, err := scanUser(u.db.QueryRowContext(ctx, query,
		strings.TrimSpace(name),
		strings.ToLower(strings.TrimSpace(email)),
		phone,
		string(role),
		string(hash),
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.User{}, apperrors.Validation("email already registered")
		}
		return models.User{}, apperrors.Persistence(err, "insert user")
	}
	return user, nil
}

func (u *userRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(u.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, apperrors.Persistence(err, "get user by email")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (u *userRepository) ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 ORDER BY created_at`
	return u.list(ctx, query, string(role))
}

func (u *userRepository) ListAll(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`
	return u.list(ctx, query)
}

func (u *userRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.User, error) {
	rows, err := u.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Persistence(err, "list users")
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, apperrors.Persistence(err, "scan user")
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence(err, "iterate users")
	}
	return users, nil
}

func scanUser(scanner interface {
	Scan(dest ...interface{}) error
}) (models.User, error) {
	var (
		user  models.User
		phone sql.NullString
		role  string
	)
	if err := scanner.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&phone,
		&role,
		&user.PasswordHash,
		&user.CreatedAt,
	); err != nil {
		return models.User{}, err
	}
	user.Role = models.UserRole(role)
	if phone.Valid {
		v := phone.String
		user.Phone = &v
	}
	return user, nil
}
