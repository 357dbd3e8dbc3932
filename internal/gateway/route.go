// Package gateway implements the public edge: an ordered route table, a
// prefix-rewriting proxy adapter with per-route timeouts, and the
// cross-cutting request handling (CORS, rate limiting, uniform error
// envelope) composed around them.
package gateway

import (
	"strings"
	"time"

	"github.com/shopmesh/shopmesh/internal/validate"
)

// Target identifies one downstream service.
type Target struct {
	Name    string
	BaseURL string
}

// RouteEntry maps an inbound method+path pattern onto a downstream target
// with an optional validation schema and a per-call timeout. The table is
// immutable after startup and matched first-to-last.
type RouteEntry struct {
	Method  string
	Pattern string // path pattern, ":name" segments bind params
	Target  Target
	Schema  *validate.RequestSchema
	Timeout time.Duration
}

// Match reports whether the entry matches the method and path, binding
// any pattern params.
func (e RouteEntry) Match(method, path string) (map[string]any, bool) {
	if !strings.EqualFold(method, e.Method) {
		return nil, false
	}

	patternParts := splitPath(e.Pattern)
	pathParts := splitPath(path)
	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	var params map[string]any
	for i, part := range patternParts {
		if strings.HasPrefix(part, ":") {
			if params == nil {
				params = make(map[string]any)
			}
			params[part[1:]] = pathParts[i]
			continue
		}
		if part != pathParts[i] {
			return nil, false
		}
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, true
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
