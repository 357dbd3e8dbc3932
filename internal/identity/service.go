package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/shopmesh/shopmesh/internal/events"
	"github.com/shopmesh/shopmesh/internal/ids"
	"github.com/shopmesh/shopmesh/internal/jsoncodec"
	"github.com/shopmesh/shopmesh/internal/outbox"
)

// RegisterInput is the already-validated registration request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

// Service implements the identity operations. Registration writes the
// user row and the staged event in one transaction; the drainer owns
// actually reaching the broker.
type Service struct {
	db     *sql.DB
	users  *Store
	outbox *outbox.Store
	tokens *TokenIssuer
	logger *slog.Logger
}

func NewService(db *sql.DB, users *Store, outboxStore *outbox.Store, tokens *TokenIssuer, logger *slog.Logger) *Service {
	return &Service{db: db, users: users, outbox: outboxStore, tokens: tokens, logger: logger}
}

// Register creates the account and stages its registration event
// atomically. A commit here guarantees the event will eventually be
// published; a rollback guarantees it never will.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	role := in.Role
	if role == "" {
		role = "user"
	}
	user := User{
		ID:           ids.NewULID(),
		Username:     in.Username,
		Email:        in.Email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	payload, err := jsoncodec.Marshal(events.UserRegistered{
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
		Role:     user.Role,
	})
	if err != nil {
		return User{}, fmt.Errorf("encode registration event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("begin registration tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.users.CreateTx(ctx, tx, user); err != nil {
		return User{}, err
	}
	eventID, err := s.outbox.AppendTx(ctx, tx, events.Envelope{
		Topic:        events.TopicUserRegistered,
		PartitionKey: user.ID,
		EventType:    events.EventTypeUserRegistered,
		Payload:      payload,
		ProducedAt:   user.CreatedAt,
	})
	if err != nil {
		return User{}, err
	}
	if err := tx.Commit(); err != nil {
		return User{}, fmt.Errorf("commit registration tx: %w", err)
	}

	s.logger.Info("user registered",
		"user_id", user.ID,
		"username", user.Username,
		"event_id", eventID)
	return user, nil
}

// Login verifies credentials and issues an access token. Unknown email
// and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (User, string, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return User{}, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return User{}, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return User{}, "", err
	}
	return user, token, nil
}

// Profile returns the account behind a verified token subject.
func (s *Service) Profile(ctx context.Context, userID string) (User, error) {
	return s.users.FindByID(ctx, userID)
}
