package validate

import (
	"regexp"
	"testing"
)

func registerSchema() Schema {
	return Schema{
		{Name: "username", Rule: Rule{Type: TypeString, Required: true, MinLength: 3, MaxLength: 50}},
		{Name: "email", Rule: Rule{Type: TypeString, Required: true, Format: FormatEmail}},
		{Name: "password", Rule: Rule{Type: TypeString, Required: true, MinLength: 6}},
		{Name: "role", Rule: Rule{Type: TypeString, Enum: []any{"user", "admin"}}},
	}
}

func TestValidateMissingRequiredShortCircuitsPerField(t *testing.T) {
	errs := Validate(map[string]any{}, registerSchema(), "body")

	if len(errs) != 3 {
		t.Fatalf("expected 3 errors for 3 missing required fields, got %d: %#v", len(errs), errs)
	}
	for _, fe := range errs {
		if fe.Location != "body" {
			t.Fatalf("unexpected location: %q", fe.Location)
		}
		// Short-circuit means exactly one error per missing field, no
		// follow-on length or format errors.
	}
	fields := map[string]int{}
	for _, fe := range errs {
		fields[fe.Field]++
	}
	for _, name := range []string{"username", "email", "password"} {
		if fields[name] != 1 {
			t.Fatalf("expected exactly one error for %s, got %d", name, fields[name])
		}
	}
}

func TestValidateAccumulatesAcrossFields(t *testing.T) {
	payload := map[string]any{
		"username": "ab",
		"email":    "bad",
		"password": "123",
	}

	errs := Validate(payload, registerSchema(), "body")

	if len(errs) != 3 {
		t.Fatalf("expected 3 accumulated errors, got %d: %#v", len(errs), errs)
	}
	if errs[0].Field != "username" || errs[1].Field != "email" || errs[2].Field != "password" {
		t.Fatalf("expected deterministic schema order, got %#v", errs)
	}
	if errs[1].Received != "bad" {
		t.Fatalf("expected raw value echoed, got %#v", errs[1].Received)
	}
}

func TestValidateOptionalAbsentSkipped(t *testing.T) {
	payload := map[string]any{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "hunter2",
	}

	errs := Validate(payload, registerSchema(), "body")
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %#v", errs)
	}
}

func TestValidateEnumRunsAgainstRawValueOnTypeMismatch(t *testing.T) {
	schema := Schema{
		{Name: "role", Rule: Rule{Type: TypeString, Required: true, Enum: []any{"user", "admin"}}},
	}

	errs := Validate(map[string]any{"role": 42.0}, schema, "body")

	var sawType, sawEnum bool
	for _, fe := range errs {
		switch fe.Message {
		case "role must be a string":
			sawType = true
		case "role must be one of the allowed values":
			sawEnum = true
		}
	}
	if !sawType || !sawEnum {
		t.Fatalf("expected both type and enum errors, got %#v", errs)
	}
}

func TestValidateStringChecksAreIndependent(t *testing.T) {
	schema := Schema{
		{Name: "code", Rule: Rule{
			Type:      TypeString,
			Required:  true,
			MinLength: 10,
			Pattern:   regexp.MustCompile(`^[a-z]+$`),
			Format:    FormatEmail,
		}},
	}

	errs := Validate(map[string]any{"code": "AB1"}, schema, "body")
	if len(errs) != 3 {
		t.Fatalf("expected length, pattern, and format errors, got %#v", errs)
	}
}

func TestValidateNumberBoundsInclusive(t *testing.T) {
	schema := Schema{
		{Name: "discount", Rule: Rule{Type: TypeNumber, Min: Float(0), Max: Float(100)}},
	}

	if errs := Validate(map[string]any{"discount": 0.0}, schema, "body"); len(errs) != 0 {
		t.Fatalf("0 should satisfy an inclusive min of 0: %#v", errs)
	}
	if errs := Validate(map[string]any{"discount": 100.0}, schema, "body"); len(errs) != 0 {
		t.Fatalf("100 should satisfy an inclusive max of 100: %#v", errs)
	}
	if errs := Validate(map[string]any{"discount": 101.0}, schema, "body"); len(errs) != 1 {
		t.Fatalf("expected one max violation, got %#v", errs)
	}
	if errs := Validate(map[string]any{"discount": -1.0}, schema, "body"); len(errs) != 1 {
		t.Fatalf("expected one min violation, got %#v", errs)
	}
}

func TestValidateURLFormat(t *testing.T) {
	schema := Schema{
		{Name: "avatar_url", Rule: Rule{Type: TypeString, Required: true, Format: FormatURL}},
	}

	if errs := Validate(map[string]any{"avatar_url": "https://cdn.example.com/a.png"}, schema, "body"); len(errs) != 0 {
		t.Fatalf("expected valid url, got %#v", errs)
	}
	if errs := Validate(map[string]any{"avatar_url": "not-a-url"}, schema, "body"); len(errs) != 1 {
		t.Fatalf("expected url violation, got %#v", errs)
	}
}

func TestRequestAggregatesLocations(t *testing.T) {
	schema := RequestSchema{
		Body: Schema{
			{Name: "name", Rule: Rule{Type: TypeString, Required: true}},
		},
		Params: Schema{
			{Name: "id", Rule: Rule{Type: TypeString, Required: true, Pattern: regexp.MustCompile(`^[0-9a-fA-F]{24}$`)}},
		},
	}

	errs := Request(
		map[string]any{},
		map[string]any{"id": "not-a-hex-id"},
		nil,
		schema,
	)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors across locations, got %#v", errs)
	}
	if errs[0].Location != "body" || errs[1].Location != "params" {
		t.Fatalf("unexpected locations: %#v", errs)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	payload := map[string]any{"username": "ab", "email": "bad", "password": "123"}
	first := Validate(payload, registerSchema(), "body")
	for i := 0; i < 10; i++ {
		again := Validate(payload, registerSchema(), "body")
		if len(again) != len(first) {
			t.Fatalf("validation output changed between runs")
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("validation output changed between runs: %#v vs %#v", again[j], first[j])
			}
		}
	}
}
