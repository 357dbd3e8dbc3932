package identity

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopmesh/shopmesh/internal/envelope"
	"github.com/shopmesh/shopmesh/internal/jsoncodec"
)

// BrokerStatus reports whether staged events are reaching the broker.
// Implemented by the outbox drainer.
type BrokerStatus interface {
	BrokerHealthy() bool
}

type handler struct {
	service     *Service
	tokens      *TokenIssuer
	broker      BrokerStatus
	logger      *slog.Logger
	development bool
}

// NewHandler builds the identity HTTP surface. The gateway strips the
// /api/auth prefix, so routes are served at the root.
func NewHandler(service *Service, tokens *TokenIssuer, broker BrokerStatus, logger *slog.Logger, development bool) http.Handler {
	h := &handler{service: service, tokens: tokens, broker: broker, logger: logger, development: development}

	mux := chi.NewRouter()
	mux.Post("/register", h.register)
	mux.Post("/login", h.login)
	mux.Get("/profile", h.profile)
	mux.Get("/health", h.health)
	return mux
}

type userView struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

func viewOf(user User) userView {
	return userView{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := jsoncodec.ReadBody(r, &in); err != nil {
		envelope.WriteKind(w, envelope.KindValidation, "Invalid request body", err, h.development)
		return
	}

	user, err := h.service.Register(r.Context(), RegisterInput(in))
	if err != nil {
		h.writeError(w, err, "register")
		return
	}
	token, err := h.tokens.Issue(user)
	if err != nil {
		h.writeError(w, err, "register")
		return
	}
	envelope.WriteSuccess(w, http.StatusCreated, "User registered successfully", map[string]any{
		"token": token,
		"user":  viewOf(user),
	})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := jsoncodec.ReadBody(r, &in); err != nil {
		envelope.WriteKind(w, envelope.KindValidation, "Invalid request body", err, h.development)
		return
	}

	user, token, err := h.service.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		h.writeError(w, err, "login")
		return
	}
	envelope.WriteSuccess(w, http.StatusOK, "Login successful", map[string]any{
		"token": token,
		"user":  viewOf(user),
	})
}

func (h *handler) profile(w http.ResponseWriter, r *http.Request) {
	claims, err := BearerClaims(r, h.tokens)
	if err != nil {
		envelope.WriteKind(w, envelope.KindUnauthenticated, "", err, h.development)
		return
	}

	user, err := h.service.Profile(r.Context(), claims.UserID)
	if err != nil {
		h.writeError(w, err, "profile")
		return
	}
	envelope.WriteSuccess(w, http.StatusOK, "Profile retrieved", map[string]any{
		"user": viewOf(user),
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	broker := h.broker == nil || h.broker.BrokerHealthy()
	envelope.WriteSuccess(w, http.StatusOK, "Auth service is healthy", map[string]any{
		"broker_connected": broker,
	})
}

func (h *handler) writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrDuplicateUser):
		envelope.WriteKind(w, envelope.KindConflict, "Email or username already in use", err, h.development)
	case errors.Is(err, ErrInvalidCredentials):
		envelope.WriteKind(w, envelope.KindUnauthenticated, "Invalid email or password", err, h.development)
	case errors.Is(err, ErrUserNotFound):
		envelope.WriteKind(w, envelope.KindNotFound, "User not found", err, h.development)
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		envelope.WriteKind(w, envelope.KindInternal, "", err, h.development)
	}
}

// BearerClaims extracts and verifies the Authorization bearer token.
// Shared with other services that trust the same signing secret.
func BearerClaims(r *http.Request, tokens *TokenIssuer) (Claims, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return Claims{}, ErrInvalidToken
	}
	raw, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	return tokens.Verify(raw)
}
