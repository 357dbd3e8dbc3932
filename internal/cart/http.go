package cart

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopmesh/shopmesh/internal/envelope"
	"github.com/shopmesh/shopmesh/internal/identity"
)

// BrokerStatus reports whether the consumer is connected to the broker.
type BrokerStatus interface {
	IsRunning() bool
}

type handler struct {
	store       *Store
	tokens      *identity.TokenIssuer
	broker      BrokerStatus
	logger      *slog.Logger
	development bool
}

// NewHandler builds the cart read API.
func NewHandler(store *Store, tokens *identity.TokenIssuer, broker BrokerStatus, logger *slog.Logger, development bool) http.Handler {
	h := &handler{store: store, tokens: tokens, broker: broker, logger: logger, development: development}

	mux := chi.NewRouter()
	mux.Get("/carts/{ownerID}", h.getCart)
	mux.Get("/health", h.health)
	return mux
}

// getCart returns the owner's cart. Only the owner or an admin may read
// it.
func (h *handler) getCart(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	claims, err := identity.BearerClaims(r, h.tokens)
	if err != nil {
		envelope.WriteKind(w, envelope.KindUnauthenticated, "", err, h.development)
		return
	}
	if claims.UserID != ownerID && claims.Role != "admin" {
		envelope.WriteKind(w, envelope.KindForbidden, "Not your cart", nil, h.development)
		return
	}

	cart, err := h.store.FindByOwner(r.Context(), ownerID)
	if errors.Is(err, ErrCartNotFound) {
		envelope.WriteKind(w, envelope.KindNotFound, "Cart not found", err, h.development)
		return
	}
	if err != nil {
		h.logger.Error("cart lookup failed", "owner_id", ownerID, "error", err)
		envelope.WriteKind(w, envelope.KindInternal, "", err, h.development)
		return
	}
	envelope.WriteSuccess(w, http.StatusOK, "Cart retrieved", map[string]any{
		"cart": cart,
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	consuming := h.broker == nil || h.broker.IsRunning()
	envelope.WriteSuccess(w, http.StatusOK, "Cart service is healthy", map[string]any{
		"consumer_running": consuming,
	})
}
