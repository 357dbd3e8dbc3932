package gateway

import (
	"net/http"
	"regexp"
	"time"

	"github.com/shopmesh/shopmesh/internal/config"
	"github.com/shopmesh/shopmesh/internal/validate"
)

const (
	authTimeout    = 15 * time.Second
	productTimeout = 10 * time.Second
)

var hexIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

var registerSchema = &validate.RequestSchema{
	Body: validate.Schema{
		{Name: "username", Rule: validate.Rule{
			Type: validate.TypeString, Required: true, MinLength: 3, MaxLength: 50,
		}},
		{Name: "email", Rule: validate.Rule{
			Type: validate.TypeString, Required: true, Format: validate.FormatEmail,
		}},
		{Name: "password", Rule: validate.Rule{
			Type: validate.TypeString, Required: true, MinLength: 6,
		}},
		{Name: "role", Rule: validate.Rule{
			Type: validate.TypeString, Enum: []any{"user", "admin"},
		}},
	},
}

var loginSchema = &validate.RequestSchema{
	Body: validate.Schema{
		{Name: "email", Rule: validate.Rule{
			Type: validate.TypeString, Required: true, Format: validate.FormatEmail,
		}},
		{Name: "password", Rule: validate.Rule{
			Type: validate.TypeString, Required: true,
		}},
	},
}

var productIDSchema = &validate.RequestSchema{
	Params: validate.Schema{
		{Name: "id", Rule: validate.Rule{
			Type: validate.TypeString, Required: true, Pattern: hexIDPattern,
		}},
	},
}

var addProductSchema = &validate.RequestSchema{
	Body: validate.Schema{
		{Name: "name", Rule: validate.Rule{
			Type: validate.TypeString, Required: true, MinLength: 1, MaxLength: 200,
		}},
		{Name: "avatar_url", Rule: validate.Rule{
			Type: validate.TypeString, Required: true, Format: validate.FormatURL,
		}},
		{Name: "price", Rule: validate.Rule{
			Type: validate.TypeNumber, Required: true, Min: validate.Float(0),
		}},
		{Name: "quantity", Rule: validate.Rule{
			Type: validate.TypeNumber, Required: true, Min: validate.Float(0),
		}},
		{Name: "sold_count", Rule: validate.Rule{
			Type: validate.TypeNumber, Min: validate.Float(0),
		}},
		{Name: "discount", Rule: validate.Rule{
			Type: validate.TypeNumber, Min: validate.Float(0), Max: validate.Float(100),
		}},
		{Name: "days_valid", Rule: validate.Rule{
			Type: validate.TypeNumber, Min: validate.Float(1),
		}},
	},
}

// Routes builds the edge route table from the gateway config. Order
// matters: the first matching entry wins.
func Routes(cfg config.Gateway) []RouteEntry {
	auth := Target{Name: "auth", BaseURL: cfg.AuthServiceURL}
	product := Target{Name: "product", BaseURL: cfg.ProductServiceURL}

	return []RouteEntry{
		{Method: http.MethodPost, Pattern: "/api/auth/register", Target: auth, Schema: registerSchema, Timeout: authTimeout},
		{Method: http.MethodPost, Pattern: "/api/auth/login", Target: auth, Schema: loginSchema, Timeout: authTimeout},
		{Method: http.MethodGet, Pattern: "/api/auth/profile", Target: auth, Timeout: authTimeout},

		{Method: http.MethodGet, Pattern: "/api/products", Target: product, Timeout: productTimeout},
		{Method: http.MethodPost, Pattern: "/api/products/addproduct", Target: product, Schema: addProductSchema, Timeout: productTimeout},
		{Method: http.MethodGet, Pattern: "/api/products/:id", Target: product, Schema: productIDSchema, Timeout: productTimeout},
	}
}

// RewriteRules declares the downstream path mapping. The auth service
// serves its routes at the root, the product service keeps the full
// prefix.
func RewriteRules() []RewriteRule {
	return []RewriteRule{
		{Prefix: "/api/auth", Replacement: ""},
		{Prefix: "/api/products", Replacement: "/api/products"},
	}
}
