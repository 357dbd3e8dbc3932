package catalog

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/shopmesh/shopmesh/internal/envelope"
	"github.com/shopmesh/shopmesh/internal/identity"
	"github.com/shopmesh/shopmesh/internal/jsoncodec"
)

var productColumns = []string{"id", "name", "avatar_url", "price", "quantity", "sold_count", "discount", "days_valid", "faq", "created_at"}

func newTestHandler(t *testing.T) (http.Handler, sqlmock.Sqlmock, *identity.TokenIssuer) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tokens := identity.NewTokenIssuer("test-secret", time.Hour)
	handler := NewHandler(NewStore(db), tokens, slog.New(slog.DiscardHandler), false)
	return handler, mock, tokens
}

func decodeEnvelope(t *testing.T, body []byte) envelope.Response {
	t.Helper()
	var resp envelope.Response
	if err := jsoncodec.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, body)
	}
	return resp
}

func TestListProducts(t *testing.T) {
	handler, mock, _ := newTestHandler(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products ORDER BY")).
		WillReturnRows(sqlmock.NewRows(productColumns).
			AddRow("665f1c2a9b3e4d5f6a7b8c9d", "mug", "https://cdn.example.com/mug.png", 9.5, 10, 0, 0.0, 30, []byte(`[]`), time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.Bytes())
	}
	resp := decodeEnvelope(t, rec.Body.Bytes())
	data, ok := resp.Data.(map[string]any)
	if !ok || data["count"] != float64(1) {
		t.Fatalf("data = %v", resp.Data)
	}
}

func TestGetProductNotFound(t *testing.T) {
	handler, mock, _ := newTestHandler(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id")).
		WithArgs("665f1c2a9b3e4d5f6a7b8c9d").
		WillReturnRows(sqlmock.NewRows(productColumns))

	req := httptest.NewRequest(http.MethodGet, "/api/products/665f1c2a9b3e4d5f6a7b8c9d", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAddProductRequiresToken(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/products/addproduct", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAddProductRejectsNonAdmin(t *testing.T) {
	handler, _, tokens := newTestHandler(t)

	token, err := tokens.Issue(identity.User{ID: "u1", Role: "user"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/products/addproduct", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestAddProductAsAdmin(t *testing.T) {
	handler, mock, tokens := newTestHandler(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO products")).
		WithArgs(sqlmock.AnyArg(), "mug", "https://cdn.example.com/mug.png", 9.5, 10, 0, 0.0, 30, []byte(`[]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	token, err := tokens.Issue(identity.User{ID: "admin-1", Role: "admin"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	body := `{"name":"mug","avatar_url":"https://cdn.example.com/mug.png","price":9.5,"quantity":10,"days_valid":30}`
	req := httptest.NewRequest(http.MethodPost, "/api/products/addproduct", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.Bytes())
	}
	resp := decodeEnvelope(t, rec.Body.Bytes())
	data := resp.Data.(map[string]any)
	product := data["product"].(map[string]any)
	id, _ := product["id"].(string)
	if len(id) != 24 {
		t.Fatalf("product id = %q, want 24 hex chars", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
