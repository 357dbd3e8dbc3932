// Package identity implements the authentication service: durable user
// accounts, credential verification, signed access tokens, and the
// transactional staging of registration events.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	ErrDuplicateUser      = errors.New("email or username already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const pqUniqueViolation = "23505"

// User is one stored account. PasswordHash never leaves the package.
type User struct {
	ID           string
	Username     string
	Email        string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
}

// Store persists users in PostgreSQL.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates the users table. Safe to run at every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			role          TEXT NOT NULL DEFAULT 'user',
			password_hash TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("init users schema: %w", err)
	}
	return nil
}

// CreateTx inserts a user inside the caller's transaction so the account
// and its staged registration event commit or roll back together.
func (s *Store) CreateTx(ctx context.Context, tx *sql.Tx, user User) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, username, email, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Username, user.Email, user.Role, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateUser
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByEmail returns the user with the given email, or ErrUserNotFound.
func (s *Store) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, role, password_hash, created_at
		FROM users WHERE email = $1`, email))
}

// FindByID returns the user with the given id, or ErrUserNotFound.
func (s *Store) FindByID(ctx context.Context, id string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, role, password_hash, created_at
		FROM users WHERE id = $1`, id))
}

func (s *Store) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Role, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}
