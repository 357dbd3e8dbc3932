package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopmesh/shopmesh/internal/envelope"
	"github.com/shopmesh/shopmesh/internal/jsoncodec"
	"github.com/shopmesh/shopmesh/internal/metrics"
	"github.com/shopmesh/shopmesh/internal/validate"
)

// Router walks the route table in declaration order, validates the
// request against the matched entry's schema, rewrites the path and
// forwards through the proxy adapter. Requests that fail validation
// never reach a downstream.
type Router struct {
	routes      []RouteEntry
	rewriter    *Rewriter
	proxy       *Proxy
	logger      *slog.Logger
	development bool
}

func NewRouter(routes []RouteEntry, rewriter *Rewriter, proxy *Proxy, logger *slog.Logger, development bool) *Router {
	return &Router{
		routes:      routes,
		rewriter:    rewriter,
		proxy:       proxy,
		logger:      logger,
		development: development,
	}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	entry, params, ok := rt.match(r.Method, r.URL.Path)
	if !ok {
		rt.observe(r.URL.Path, r.Method, http.StatusNotFound, start)
		envelope.WriteFailure(w, http.StatusNotFound, "Route not found", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, jsoncodec.MaxBodyBytes))
	if err != nil {
		rt.observe(entry.Pattern, r.Method, http.StatusBadRequest, start)
		envelope.WriteFailure(w, http.StatusBadRequest, "Request body unreadable", nil)
		return
	}

	if entry.Schema != nil {
		errs, bad := rt.validateRequest(entry, body, params, r)
		if bad {
			rt.observe(entry.Pattern, r.Method, http.StatusBadRequest, start)
			envelope.WriteFailure(w, http.StatusBadRequest, "Request body is not valid JSON", nil)
			return
		}
		if len(errs) > 0 {
			rt.observe(entry.Pattern, r.Method, http.StatusBadRequest, start)
			envelope.WriteFailure(w, http.StatusBadRequest, "Validation failed", errs)
			return
		}
	}

	downstream := rt.rewriter.Rewrite(r.URL.Path)
	if r.URL.RawQuery != "" {
		downstream += "?" + r.URL.RawQuery
	}

	requestID := RequestIDFrom(r.Context())
	resp, err := rt.proxy.Forward(r.Context(), entry.Target, ProxiedRequest{
		Method:    r.Method,
		Path:      downstream,
		Header:    r.Header,
		Body:      body,
		RequestID: requestID,
		ClientIP:  clientIP(r),
	}, entry.Timeout)
	if err != nil {
		kind := envelope.KindOf(err)
		rt.logger.Error("downstream call failed",
			"target", entry.Target.Name,
			"path", downstream,
			"request_id", requestID,
			"error", err)
		metrics.GatewayProxyFailures.WithLabelValues(entry.Target.Name, failureReason(kind)).Inc()
		rt.observe(entry.Pattern, r.Method, kind.Status(), start)
		envelope.WriteKind(w, kind, "", err, rt.development)
		return
	}

	rt.writeProxied(w, resp, requestID, start)
	rt.observe(entry.Pattern, r.Method, resp.StatusCode, start)
}

func (rt *Router) match(method, path string) (RouteEntry, map[string]any, bool) {
	for _, entry := range rt.routes {
		if params, ok := entry.Match(method, path); ok {
			return entry, params, true
		}
	}
	return RouteEntry{}, nil, false
}

// validateRequest runs the entry's schema over body, params and query.
// The second return is true when a body was required but not valid JSON.
func (rt *Router) validateRequest(entry RouteEntry, body []byte, params map[string]any, r *http.Request) ([]validate.FieldError, bool) {
	var bodyMap map[string]any
	if entry.Schema.Body != nil {
		bodyMap = map[string]any{}
		if len(body) > 0 {
			if err := jsoncodec.Unmarshal(body, &bodyMap); err != nil {
				return nil, true
			}
		}
	}

	var queryMap map[string]any
	if entry.Schema.Query != nil {
		queryMap = map[string]any{}
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				queryMap[key] = values[0]
			}
		}
	}

	return validate.Request(bodyMap, params, queryMap, *entry.Schema), false
}

// writeProxied relays the downstream response verbatim, except that CORS
// headers are owned by the edge and downstream copies are dropped.
func (rt *Router) writeProxied(w http.ResponseWriter, resp *ProxiedResponse, requestID string, start time.Time) {
	header := w.Header()
	for key, values := range resp.Header {
		if strings.HasPrefix(key, "Access-Control-") {
			continue
		}
		for _, value := range values {
			header.Add(key, value)
		}
	}
	header.Set("X-Request-ID", requestID)
	header.Set("X-Response-Time", strconv.FormatInt(time.Since(start).Milliseconds(), 10)+"ms")
	header.Set("Content-Length", strconv.Itoa(len(resp.Body)))

	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func (rt *Router) observe(route, method string, status int, start time.Time) {
	metrics.GatewayRequestDuration.
		WithLabelValues(route, method, strconv.Itoa(status)).
		Observe(time.Since(start).Seconds())
}

func failureReason(kind envelope.Kind) string {
	if kind == envelope.KindGatewayTimeout {
		return "timeout"
	}
	return "unreachable"
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}
