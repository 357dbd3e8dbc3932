package catalog

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopmesh/shopmesh/internal/envelope"
	"github.com/shopmesh/shopmesh/internal/identity"
	"github.com/shopmesh/shopmesh/internal/jsoncodec"
)

type handler struct {
	store       *Store
	tokens      *identity.TokenIssuer
	logger      *slog.Logger
	development bool
}

// NewHandler builds the product HTTP surface. The gateway preserves the
// /api/products prefix, so routes are served under it.
func NewHandler(store *Store, tokens *identity.TokenIssuer, logger *slog.Logger, development bool) http.Handler {
	h := &handler{store: store, tokens: tokens, logger: logger, development: development}

	mux := chi.NewRouter()
	mux.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/addproduct", h.add)
		r.Get("/{id}", h.get)
	})
	mux.Get("/health", h.health)
	return mux
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("list products failed", "error", err)
		envelope.WriteKind(w, envelope.KindInternal, "", err, h.development)
		return
	}
	envelope.WriteSuccess(w, http.StatusOK, "Products retrieved", map[string]any{
		"products": products,
		"count":    len(products),
	})
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	product, err := h.store.FindByID(r.Context(), id)
	if errors.Is(err, ErrProductNotFound) {
		envelope.WriteKind(w, envelope.KindNotFound, "Product not found", err, h.development)
		return
	}
	if err != nil {
		h.logger.Error("get product failed", "id", id, "error", err)
		envelope.WriteKind(w, envelope.KindInternal, "", err, h.development)
		return
	}
	envelope.WriteSuccess(w, http.StatusOK, "Product retrieved", map[string]any{
		"product": product,
	})
}

// add creates a product. Admin only: the gateway validates the payload
// shape, authorization stays with the service owning the data.
func (h *handler) add(w http.ResponseWriter, r *http.Request) {
	claims, err := identity.BearerClaims(r, h.tokens)
	if err != nil {
		envelope.WriteKind(w, envelope.KindUnauthenticated, "", err, h.development)
		return
	}
	if claims.Role != "admin" {
		envelope.WriteKind(w, envelope.KindForbidden, "Admin role required", nil, h.development)
		return
	}

	var in NewProductInput
	if err := jsoncodec.ReadBody(r, &in); err != nil {
		envelope.WriteKind(w, envelope.KindValidation, "Invalid request body", err, h.development)
		return
	}

	product, err := h.store.Create(r.Context(), in)
	if err != nil {
		h.logger.Error("create product failed", "error", err)
		envelope.WriteKind(w, envelope.KindInternal, "", err, h.development)
		return
	}
	envelope.WriteSuccess(w, http.StatusCreated, "Product created", map[string]any{
		"product": product,
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	envelope.WriteSuccess(w, http.StatusOK, "Product service is healthy", nil)
}
