package gateway

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopmesh/shopmesh/internal/config"
	"github.com/shopmesh/shopmesh/internal/envelope"
	"github.com/shopmesh/shopmesh/internal/jsoncodec"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testConfig(authURL, productURL string) config.Gateway {
	return config.Gateway{
		Port:              3000,
		AuthServiceURL:    authURL,
		ProductServiceURL: productURL,
		CartServiceURL:    "http://localhost:3003",
		CORSOrigin:        "*",
		RateLimitWindow:   time.Minute,
		RateLimitMax:      1000,
	}
}

func decodeEnvelope(t *testing.T, body []byte) envelope.Response {
	t.Helper()
	var resp envelope.Response
	if err := jsoncodec.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, body)
	}
	return resp
}

func TestGatewayForwardsRegisterWithStrippedPrefix(t *testing.T) {
	var gotPath, gotRequestID string
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Header().Set("Access-Control-Allow-Origin", "http://internal")
		envelope.WriteSuccess(w, http.StatusCreated, "User registered successfully", map[string]any{"id": "x"})
	}))
	defer auth.Close()

	handler := NewServer(testConfig(auth.URL, "http://localhost:3002"), testLogger())

	body := `{"username":"alice","email":"alice@example.com","password":"secret1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.Bytes())
	}
	if gotPath != "/register" {
		t.Fatalf("downstream path = %q, want /register", gotPath)
	}
	if gotRequestID == "" {
		t.Fatalf("downstream received no request id")
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Fatalf("response missing request id")
	}
	if got := rec.Header().Get("X-Response-Time"); got == "" {
		t.Fatalf("response missing response time")
	}
	// CORS is owned by the edge: the downstream's value must be replaced.
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
	resp := decodeEnvelope(t, rec.Body.Bytes())
	if !resp.Success {
		t.Fatalf("expected success envelope, got %+v", resp)
	}
}

func TestGatewayValidationFailureSkipsDownstream(t *testing.T) {
	downstreamHit := false
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downstreamHit = true
	}))
	defer auth.Close()

	handler := NewServer(testConfig(auth.URL, "http://localhost:3002"), testLogger())

	body := `{"username":"ab","email":"bad","password":"123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if downstreamHit {
		t.Fatalf("downstream contacted despite validation failure")
	}
	resp := decodeEnvelope(t, rec.Body.Bytes())
	if resp.Success {
		t.Fatalf("validation failure reported success")
	}
	if resp.Message != "Validation failed" {
		t.Fatalf("message = %q", resp.Message)
	}
	errs, ok := resp.Error.([]any)
	if !ok {
		t.Fatalf("error payload is %T, want list", resp.Error)
	}
	if len(errs) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(errs), errs)
	}
}

func TestGatewayInvalidProductIDRejected(t *testing.T) {
	handler := NewServer(testConfig("http://localhost:3001", "http://localhost:3002"), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/products/not-a-hex-id", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeEnvelope(t, rec.Body.Bytes())
	errs, ok := resp.Error.([]any)
	if !ok || len(errs) != 1 {
		t.Fatalf("error payload = %v", resp.Error)
	}
	fieldErr, ok := errs[0].(map[string]any)
	if !ok {
		t.Fatalf("error entry is %T", errs[0])
	}
	if fieldErr["location"] != "params" || fieldErr["field"] != "id" {
		t.Fatalf("error entry = %v", fieldErr)
	}
	if fieldErr["received"] != "not-a-hex-id" {
		t.Fatalf("received = %v", fieldErr["received"])
	}
}

func TestGatewayUnknownRouteReturns404Envelope(t *testing.T) {
	handler := NewServer(testConfig("http://localhost:3001", "http://localhost:3002"), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decodeEnvelope(t, rec.Body.Bytes())
	if resp.Success || resp.Message != "Route not found" {
		t.Fatalf("envelope = %+v", resp)
	}
}

func TestRouterTimeoutMapsTo504(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()

	routes := []RouteEntry{{
		Method:  http.MethodGet,
		Pattern: "/api/slow",
		Target:  Target{Name: "slow", BaseURL: slow.URL},
		Timeout: 20 * time.Millisecond,
	}}
	rt := NewRouter(routes, NewRewriter(nil), NewProxy(testLogger()), testLogger(), false)

	req := httptest.NewRequest(http.MethodGet, "/api/slow", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	resp := decodeEnvelope(t, rec.Body.Bytes())
	if resp.Message != "Gateway timeout - service did not respond" {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestRouterConnectionFailureMapsTo503(t *testing.T) {
	// Reserve a port and close it so the dial is refused.
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	routes := []RouteEntry{{
		Method:  http.MethodGet,
		Pattern: "/api/dead",
		Target:  Target{Name: "dead", BaseURL: deadURL},
		Timeout: time.Second,
	}}
	rt := NewRouter(routes, NewRewriter(nil), NewProxy(testLogger()), testLogger(), false)

	req := httptest.NewRequest(http.MethodGet, "/api/dead", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	resp := decodeEnvelope(t, rec.Body.Bytes())
	if resp.Message != "Service temporarily unavailable" {
		t.Fatalf("message = %q", resp.Message)
	}
	// Outside development mode the raw dial error must stay internal.
	if resp.Error != nil {
		t.Fatalf("error detail leaked: %v", resp.Error)
	}
}

func TestRouterPreservesDownstreamStatusAndBody(t *testing.T) {
	product := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/products" {
			t.Errorf("downstream path = %q", r.URL.Path)
		}
		envelope.WriteFailure(w, http.StatusNotFound, "Product not found", nil)
	}))
	defer product.Close()

	handler := NewServer(testConfig("http://localhost:3001", product.URL), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want downstream 404", rec.Code)
	}
	resp := decodeEnvelope(t, rec.Body.Bytes())
	if resp.Message != "Product not found" {
		t.Fatalf("message = %q", resp.Message)
	}
}
