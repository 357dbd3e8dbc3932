// Package validate implements schema-driven request validation for the
// gateway: a pure function from (payload, schema) to a list of field
// errors, with no side effects and deterministic output.
package validate

import "regexp"

// Type names a JSON payload type a rule can require.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Format names a semantic string format checked beyond the raw type.
type Format string

const (
	FormatEmail Format = "email"
	FormatURL   Format = "url"
)

// Rule is the per-field validation contract. Zero values disable a check;
// Min/Max use pointers so zero bounds stay expressible.
type Rule struct {
	Type      Type
	Required  bool
	MinLength int
	MaxLength int
	Min       *float64
	Max       *float64
	Pattern   *regexp.Regexp
	Enum      []any
	Format    Format
}

// Field pairs a payload field name with its rule. Schemas are ordered so
// validation output is deterministic.
type Field struct {
	Name string
	Rule Rule
}

// Schema is an ordered set of field rules, authored per route and
// immutable after startup.
type Schema []Field

// RequestSchema groups the schemas for the three request locations.
type RequestSchema struct {
	Body   Schema
	Params Schema
	Query  Schema
}

// FieldError describes one violation. Received echoes the raw input value
// for debuggability.
type FieldError struct {
	Location string `json:"location"`
	Field    string `json:"field"`
	Message  string `json:"message"`
	Received any    `json:"received,omitempty"`
}

// Float returns a pointer for Min/Max bounds in schema literals.
func Float(v float64) *float64 { return &v }
