package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopmesh/shopmesh/internal/config"
	"github.com/shopmesh/shopmesh/internal/envelope"
	"github.com/shopmesh/shopmesh/internal/metrics"
)

// NewServer assembles the full edge handler: operational endpoints on
// the chi mux, everything else through the route table.
func NewServer(cfg config.Gateway, logger *slog.Logger) http.Handler {
	proxy := NewProxy(logger)
	router := NewRouter(Routes(cfg), NewRewriter(RewriteRules()), proxy, logger, cfg.Development)
	limiter := NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)

	mux := chi.NewRouter()
	mux.Use(RequestID)
	mux.Use(AccessLog(logger))
	mux.Use(CORS(cfg.CORSOrigin))
	mux.Use(limiter.Middleware)

	mux.Get("/", func(w http.ResponseWriter, r *http.Request) {
		envelope.WriteSuccess(w, http.StatusOK, "ShopMesh API gateway", map[string]any{
			"endpoints": []string{"/api/auth", "/api/products", "/health", "/metrics"},
		})
	})
	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		envelope.WriteSuccess(w, http.StatusOK, "Gateway is healthy", map[string]any{
			"uptime_seconds": int(time.Since(started).Seconds()),
			"services": map[string]string{
				"auth":    cfg.AuthServiceURL,
				"product": cfg.ProductServiceURL,
				"cart":    cfg.CartServiceURL,
			},
		})
	})
	mux.Method(http.MethodGet, "/metrics", metrics.Handler())

	mux.NotFound(router.ServeHTTP)
	mux.MethodNotAllowed(router.ServeHTTP)

	return mux
}

var started = time.Now()
