package cart

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/shopmesh/shopmesh/internal/identity"
)

func newTestHandler(t *testing.T) (http.Handler, sqlmock.Sqlmock, *identity.TokenIssuer) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tokens := identity.NewTokenIssuer("test-secret", time.Hour)
	handler := NewHandler(NewStore(db), tokens, nil, slog.New(slog.DiscardHandler), false)
	return handler, mock, tokens
}

func TestGetCartRequiresToken(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/carts/user-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGetCartForbiddenForOtherUser(t *testing.T) {
	handler, _, tokens := newTestHandler(t)

	token, err := tokens.Issue(identity.User{ID: "user-2", Role: "user"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/carts/user-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestGetCartAsOwner(t *testing.T) {
	handler, mock, tokens := newTestHandler(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM carts WHERE owner_id")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "items", "total_price", "created_at"}).
			AddRow("c1", "user-1", []byte(`[]`), 0.0, time.Now()))

	token, err := tokens.Issue(identity.User{ID: "user-1", Role: "user"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/carts/user-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.Bytes())
	}
}

func TestGetCartAsAdmin(t *testing.T) {
	handler, mock, tokens := newTestHandler(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM carts WHERE owner_id")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "items", "total_price", "created_at"}).
			AddRow("c1", "user-1", []byte(`[]`), 0.0, time.Now()))

	token, err := tokens.Issue(identity.User{ID: "admin-1", Role: "admin"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/carts/user-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
