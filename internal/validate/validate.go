package validate

import (
	"fmt"
	"net/url"
	"regexp"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validate checks payload against schema and returns every violation
// found. Required-field failures short-circuit the remaining checks for
// that field only; errors accumulate across fields.
func Validate(payload map[string]any, schema Schema, location string) []FieldError {
	var errs []FieldError

	for _, field := range schema {
		value, present := payload[field.Name]
		rule := field.Rule

		missing := !present || value == nil || value == ""
		if rule.Required && missing {
			errs = append(errs, FieldError{
				Location: location,
				Field:    field.Name,
				Message:  fmt.Sprintf("%s is required", field.Name),
				Received: value,
			})
			continue
		}
		if !rule.Required && (!present || value == nil) {
			continue
		}

		if rule.Type != "" && !hasType(value, rule.Type) {
			errs = append(errs, FieldError{
				Location: location,
				Field:    field.Name,
				Message:  fmt.Sprintf("%s must be a %s", field.Name, rule.Type),
				Received: value,
			})
		}

		if rule.Type == TypeString {
			if s, ok := value.(string); ok {
				errs = append(errs, checkString(field.Name, s, rule, location)...)
			}
		}
		if rule.Type == TypeNumber {
			if n, ok := asNumber(value); ok {
				errs = append(errs, checkNumber(field.Name, n, rule, location)...)
			}
		}

		// The enum check runs against the raw value even on a type
		// mismatch, matching the accumulate-everything contract.
		if len(rule.Enum) > 0 && !inEnum(value, rule.Enum) {
			errs = append(errs, FieldError{
				Location: location,
				Field:    field.Name,
				Message:  fmt.Sprintf("%s must be one of the allowed values", field.Name),
				Received: value,
			})
		}
	}

	return errs
}

// Request validates body, params, and query in one pass and returns the
// flat, aggregated error list the 400 envelope carries.
func Request(body, params, query map[string]any, schema RequestSchema) []FieldError {
	var errs []FieldError
	if len(schema.Body) > 0 {
		errs = append(errs, Validate(body, schema.Body, "body")...)
	}
	if len(schema.Params) > 0 {
		errs = append(errs, Validate(params, schema.Params, "params")...)
	}
	if len(schema.Query) > 0 {
		errs = append(errs, Validate(query, schema.Query, "query")...)
	}
	return errs
}

func checkString(name, value string, rule Rule, location string) []FieldError {
	var errs []FieldError

	if rule.MinLength > 0 && len(value) < rule.MinLength {
		errs = append(errs, FieldError{
			Location: location,
			Field:    name,
			Message:  fmt.Sprintf("%s must be at least %d characters", name, rule.MinLength),
			Received: value,
		})
	}
	if rule.MaxLength > 0 && len(value) > rule.MaxLength {
		errs = append(errs, FieldError{
			Location: location,
			Field:    name,
			Message:  fmt.Sprintf("%s must be at most %d characters", name, rule.MaxLength),
			Received: value,
		})
	}
	if rule.Pattern != nil && !rule.Pattern.MatchString(value) {
		errs = append(errs, FieldError{
			Location: location,
			Field:    name,
			Message:  fmt.Sprintf("%s has an invalid format", name),
			Received: value,
		})
	}
	switch rule.Format {
	case FormatEmail:
		if !emailPattern.MatchString(value) {
			errs = append(errs, FieldError{
				Location: location,
				Field:    name,
				Message:  fmt.Sprintf("%s is not a valid email", name),
				Received: value,
			})
		}
	case FormatURL:
		if !isValidURL(value) {
			errs = append(errs, FieldError{
				Location: location,
				Field:    name,
				Message:  fmt.Sprintf("%s is not a valid URL", name),
				Received: value,
			})
		}
	}

	return errs
}

func checkNumber(name string, value float64, rule Rule, location string) []FieldError {
	var errs []FieldError

	if rule.Min != nil && value < *rule.Min {
		errs = append(errs, FieldError{
			Location: location,
			Field:    name,
			Message:  fmt.Sprintf("%s must be greater than or equal to %v", name, *rule.Min),
			Received: value,
		})
	}
	if rule.Max != nil && value > *rule.Max {
		errs = append(errs, FieldError{
			Location: location,
			Field:    name,
			Message:  fmt.Sprintf("%s must be less than or equal to %v", name, *rule.Max),
			Received: value,
		})
	}

	return errs
}

func hasType(value any, typ Type) bool {
	switch typ {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeNumber:
		_, ok := asNumber(value)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeArray:
		_, ok := value.([]any)
		return ok
	case TypeObject:
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func inEnum(value any, allowed []any) bool {
	for _, candidate := range allowed {
		if candidate == value {
			return true
		}
	}
	return false
}

func isValidURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil {
		return false
	}
	return parsed.Scheme != "" && parsed.Host != ""
}
