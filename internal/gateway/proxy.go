package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/shopmesh/shopmesh/internal/envelope"
)

// ProxiedRequest is the per-request snapshot handed to the proxy adapter.
// It is owned exclusively by the handling context and discarded once the
// response is sent.
type ProxiedRequest struct {
	Method    string
	Path      string
	Header    http.Header
	Body      []byte
	RequestID string
	ClientIP  string
}

// ProxiedResponse carries the downstream reply back to the router
// unmodified.
type ProxiedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Proxy forwards one inbound request to one downstream target. The HTTP
// client's transport pools connections and is shared by all requests; a
// circuit breaker per target sheds load from a downstream that keeps
// failing.
type Proxy struct {
	client *http.Client
	logger *slog.Logger

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker
}

func NewProxy(logger *slog.Logger) *Proxy {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Proxy{
		// Per-call deadlines come from the request context; the client
		// itself carries no timeout so route budgets stay authoritative.
		client:   &http.Client{Transport: transport},
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Forward sends req to target and returns the downstream response, or an
// error tagged envelope.ErrGatewayTimeout / envelope.ErrServiceUnavailable.
func (p *Proxy) Forward(ctx context.Context, target Target, req ProxiedRequest, timeout time.Duration) (*ProxiedResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outbound, err := http.NewRequestWithContext(callCtx, req.Method, target.BaseURL+req.Path, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build downstream request: %w", err)
	}
	// Body was possibly re-serialised, so the length is recomputed here
	// rather than trusted from the inbound request.
	outbound.ContentLength = int64(len(req.Body))
	copyProxyHeaders(outbound.Header, req.Header)
	if req.ClientIP != "" {
		outbound.Header.Set("X-Forwarded-For", req.ClientIP)
	}
	outbound.Header.Set("X-Request-ID", req.RequestID)

	result, err := p.breaker(target.Name).Execute(func() (any, error) {
		resp, err := p.client.Do(outbound)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &ProxiedResponse{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
		}, nil
	})
	if err != nil {
		return nil, p.classify(target, err)
	}
	return result.(*ProxiedResponse), nil
}

func (p *Proxy) classify(target Target, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("proxy %s: %w", target.Name, envelope.ErrGatewayTimeout)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("proxy %s: circuit open: %w", target.Name, envelope.ErrServiceUnavailable)
	default:
		// Connection refused, reset, DNS failure. The raw cause is kept
		// in the chain for logs but never reaches clients.
		return fmt.Errorf("proxy %s: %v: %w", target.Name, err, envelope.ErrServiceUnavailable)
	}
}

func (p *Proxy) breaker(name string) *gobreaker.CircuitBreaker {
	p.breakersMu.Lock()
	defer p.breakersMu.Unlock()

	cb, ok := p.breakers[name]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				p.logger.Warn("downstream breaker state change",
					"target", name, "from", from.String(), "to", to.String())
			},
		})
		p.breakers[name] = cb
	}
	return cb
}

// hop-by-hop headers are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func copyProxyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
	for _, key := range hopHeaders {
		dst.Del(key)
	}
	// Content-Length is set explicitly from the forwarded body.
	dst.Del("Content-Length")
}
