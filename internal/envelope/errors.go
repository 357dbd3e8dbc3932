package envelope

import (
	"errors"
	"net/http"
)

// Kind classifies every failure the public surface can report. Components
// return typed errors; HTTP handlers translate them through this taxonomy
// so no raw internal error text reaches a client outside development mode.
type Kind int

const (
	KindValidation Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindServiceUnavailable
	KindGatewayTimeout
	KindInternal
)

// Sentinel errors for the transport-level failure modes; the proxy adapter
// tags downstream failures with these so the gateway can map them.
var (
	ErrGatewayTimeout     = errors.New("downstream exceeded its time budget")
	ErrServiceUnavailable = errors.New("downstream unreachable")
)

func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) DefaultMessage() string {
	switch k {
	case KindValidation:
		return "Invalid request data"
	case KindUnauthenticated:
		return "Authentication required"
	case KindForbidden:
		return "Access denied"
	case KindNotFound:
		return "Resource not found"
	case KindConflict:
		return "Resource already exists"
	case KindServiceUnavailable:
		return "Service temporarily unavailable"
	case KindGatewayTimeout:
		return "Gateway timeout - service did not respond"
	default:
		return "Internal server error"
	}
}

// KindOf maps a tagged error onto its failure kind. Unrecognised errors
// are internal.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrGatewayTimeout):
		return KindGatewayTimeout
	case errors.Is(err, ErrServiceUnavailable):
		return KindServiceUnavailable
	default:
		return KindInternal
	}
}
