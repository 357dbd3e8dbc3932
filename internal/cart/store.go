// Package cart implements cart provisioning: a consumer that turns
// registration events into empty carts exactly once per user, and the
// read API over them.
package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopmesh/shopmesh/internal/ids"
	"github.com/shopmesh/shopmesh/internal/jsoncodec"
)

// ErrCartNotFound is returned when an owner has no cart yet.
var ErrCartNotFound = errors.New("cart not found")

// Item is one cart line.
type Item struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Cart is one user's cart. Items are stored as a JSONB document.
type Cart struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Items      []Item    `json:"items"`
	TotalPrice float64   `json:"total_price"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists carts in PostgreSQL.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates the carts table. Safe to run at every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS carts (
			id          TEXT PRIMARY KEY,
			owner_id    TEXT NOT NULL UNIQUE,
			items       JSONB NOT NULL DEFAULT '[]',
			total_price NUMERIC NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("init carts schema: %w", err)
	}
	return nil
}

// ProvisionForOwner creates an empty cart for the owner. The conflict
// clause makes redelivered events no-ops in a single statement, so no
// read-then-write race exists. Returns false when the cart already
// existed.
func (s *Store) ProvisionForOwner(ctx context.Context, ownerID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO carts (id, owner_id)
		VALUES ($1, $2)
		ON CONFLICT (owner_id) DO NOTHING
	`, ids.NewULID(), ownerID)
	if err != nil {
		return false, fmt.Errorf("provision cart for %s: %w", ownerID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("provision cart for %s: %w", ownerID, err)
	}
	return affected == 1, nil
}

// FindByOwner returns the owner's cart, or ErrCartNotFound.
func (s *Store) FindByOwner(ctx context.Context, ownerID string) (Cart, error) {
	var (
		cart     Cart
		itemsRaw []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, items, total_price, created_at
		FROM carts WHERE owner_id = $1
	`, ownerID).Scan(&cart.ID, &cart.OwnerID, &itemsRaw, &cart.TotalPrice, &cart.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Cart{}, ErrCartNotFound
	}
	if err != nil {
		return Cart{}, fmt.Errorf("find cart for %s: %w", ownerID, err)
	}

	cart.Items = []Item{}
	if len(itemsRaw) > 0 {
		if err := jsoncodec.Unmarshal(itemsRaw, &cart.Items); err != nil {
			return Cart{}, fmt.Errorf("decode cart items for %s: %w", ownerID, err)
		}
	}
	return cart, nil
}
