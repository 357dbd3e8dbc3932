// Package catalog implements the product service: the durable product
// listing and the HTTP surface the gateway forwards to with its path
// prefix preserved.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopmesh/shopmesh/internal/ids"
	"github.com/shopmesh/shopmesh/internal/jsoncodec"
)

// ErrProductNotFound is returned for unknown product ids.
var ErrProductNotFound = errors.New("product not found")

// FAQItem is one question/answer pair attached to a product.
type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Product is one catalog entry. FAQ is stored as a JSONB document.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	SoldCount int       `json:"sold_count"`
	Discount  float64   `json:"discount"`
	DaysValid int       `json:"days_valid"`
	FAQ       []FAQItem `json:"faq"`
	CreatedAt time.Time `json:"created_at"`
}

// NewProductInput are the fields a create request supplies.
type NewProductInput struct {
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	SoldCount int       `json:"sold_count"`
	Discount  float64   `json:"discount"`
	DaysValid int       `json:"days_valid"`
	FAQ       []FAQItem `json:"faq"`
}

// Store persists products in PostgreSQL.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates the products table. Safe to run at every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			avatar_url TEXT NOT NULL,
			price      NUMERIC NOT NULL,
			quantity   INTEGER NOT NULL DEFAULT 0,
			sold_count INTEGER NOT NULL DEFAULT 0,
			discount   NUMERIC NOT NULL DEFAULT 0,
			days_valid INTEGER NOT NULL DEFAULT 1,
			faq        JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("init products schema: %w", err)
	}
	return nil
}

// Create inserts a product and returns it with its generated id.
func (s *Store) Create(ctx context.Context, in NewProductInput) (Product, error) {
	product := Product{
		ID:        ids.NewHexID(),
		Name:      in.Name,
		AvatarURL: in.AvatarURL,
		Price:     in.Price,
		Quantity:  in.Quantity,
		SoldCount: in.SoldCount,
		Discount:  in.Discount,
		DaysValid: in.DaysValid,
		FAQ:       in.FAQ,
		CreatedAt: time.Now().UTC(),
	}
	if product.DaysValid == 0 {
		product.DaysValid = 1
	}
	if product.FAQ == nil {
		product.FAQ = []FAQItem{}
	}

	faq, err := jsoncodec.Marshal(product.FAQ)
	if err != nil {
		return Product{}, fmt.Errorf("encode product faq: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, avatar_url, price, quantity, sold_count, discount, days_valid, faq, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		product.ID, product.Name, product.AvatarURL, product.Price, product.Quantity,
		product.SoldCount, product.Discount, product.DaysValid, faq, product.CreatedAt)
	if err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return product, nil
}

// List returns all products, newest first.
func (s *Store) List(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, avatar_url, price, quantity, sold_count, discount, days_valid, faq, created_at
		FROM products ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var (
			p      Product
			faqRaw []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.AvatarURL, &p.Price, &p.Quantity,
			&p.SoldCount, &p.Discount, &p.DaysValid, &faqRaw, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if err := decodeFAQ(faqRaw, &p); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// FindByID returns one product, or ErrProductNotFound.
func (s *Store) FindByID(ctx context.Context, id string) (Product, error) {
	var (
		p      Product
		faqRaw []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, avatar_url, price, quantity, sold_count, discount, days_valid, faq, created_at
		FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.AvatarURL, &p.Price, &p.Quantity,
			&p.SoldCount, &p.Discount, &p.DaysValid, &faqRaw, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("find product %s: %w", id, err)
	}
	if err := decodeFAQ(faqRaw, &p); err != nil {
		return Product{}, err
	}
	return p, nil
}

func decodeFAQ(raw []byte, p *Product) error {
	p.FAQ = []FAQItem{}
	if len(raw) == 0 {
		return nil
	}
	if err := jsoncodec.Unmarshal(raw, &p.FAQ); err != nil {
		return fmt.Errorf("decode product faq for %s: %w", p.ID, err)
	}
	return nil
}
