package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
)

var (
	// ErrSchemaValidation is matched by every *ValidationError.
	ErrSchemaValidation = errors.New("schema validation failed")
	// ErrUnvalidatedInput is returned when an EngineInput that did not come
	// from the validator is handed to the brain.
	ErrUnvalidatedInput = errors.New("engine input was not validated")
)

// Issue is one contract violation. Path is a JSON pointer into the payload;
// the root object is "".
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	path := i.Path
	if path == "" {
		path = "/"
	}
	return path + ": " + i.Message
}

// ValidationError lists every violation found in a payload.
type ValidationError struct {
	Subject string // "input" or "output"
	Issues  []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("%s %s: %s", e.Subject, ErrSchemaValidation, strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrSchemaValidation) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrSchemaValidation
}

// Paths returns the path of every issue.
func (e *ValidationError) Paths() []string {
	out := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		out[i] = issue.Path
	}
	return out
}

// HasPath reports whether any issue is at path.
func (e *ValidationError) HasPath(path string) bool {
	return slices.Contains(e.Paths(), path)
}

// ValidateInput checks a raw EngineInput payload against the strict input
// contract, fills defaults for absent optional fields and decodes it.
// On failure the error is a *ValidationError naming every violated field.
func ValidateInput(raw []byte) (*EngineInput, error) {
	doc, err := decodeObject("input", raw)
	if err != nil {
		return nil, err
	}
	return ValidateInputValue(doc)
}

// ValidateInputValue is ValidateInput for an already decoded JSON object.
// doc is not modified.
func ValidateInputValue(doc map[string]any) (*EngineInput, error) {
	in, _, err := resolved()
	if err != nil {
		return nil, fmt.Errorf("resolve input schema: %w", err)
	}

	var out EngineInput
	if err := validateInto("input", in, doc, &out); err != nil {
		return nil, err
	}
	out.validated = true
	return &out, nil
}

// ValidateOutput checks a raw EngineResponse payload against the strict
// output contract. Callers substitute SafeFallbackResponse on failure.
func ValidateOutput(raw []byte) (*EngineResponse, error) {
	doc, err := decodeObject("output", raw)
	if err != nil {
		return nil, err
	}
	return ValidateOutputValue(doc)
}

// ValidateOutputValue is ValidateOutput for an already decoded JSON object.
func ValidateOutputValue(doc map[string]any) (*EngineResponse, error) {
	_, out, err := resolved()
	if err != nil {
		return nil, fmt.Errorf("resolve output schema: %w", err)
	}

	var resp EngineResponse
	if err := validateInto("output", out, doc, &resp); err != nil {
		return nil, err
	}
	normalizeResponse(&resp)
	return &resp, nil
}

func decodeObject(subject string, raw []byte) (map[string]any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&v); err != nil {
		return nil, &ValidationError{Subject: subject, Issues: []Issue{{Message: "invalid JSON: " + err.Error()}}}
	}
	if dec.More() {
		return nil, &ValidationError{Subject: subject, Issues: []Issue{{Message: "trailing data after JSON object"}}}
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, &ValidationError{Subject: subject, Issues: []Issue{{Message: "expected object, got " + jsonTypeOf(v)}}}
	}
	return doc, nil
}

// validateInto collects every violation of doc against rs, applies the
// schema defaults and decodes the result into dst.
func validateInto(subject string, rs *jsonschema.Resolved, doc map[string]any, dst any) error {
	var issues []Issue
	walk(rs.Schema(), "", doc, &issues)
	if len(issues) == 0 {
		// Anything the walker does not model is still enforced by the
		// full validator.
		if err := rs.Validate(doc); err != nil {
			issues = append(issues, Issue{Message: err.Error()})
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Subject: subject, Issues: issues}
	}

	filled := cloneJSON(doc)
	if err := rs.ApplyDefaults(&filled); err != nil {
		return fmt.Errorf("apply %s defaults: %w", subject, err)
	}
	data, err := json.Marshal(filled)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &ValidationError{Subject: subject, Issues: []Issue{{Message: err.Error()}}}
	}
	return nil
}

// walk checks v against s and appends every violation. It descends into
// objects and arrays whose own type is correct, so one bad field never hides
// another.
func walk(s *jsonschema.Schema, path string, v any, issues *[]Issue) {
	report := func(format string, args ...any) {
		*issues = append(*issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	got := jsonTypeOf(v)
	if want := allowedTypes(s); len(want) > 0 && !typeAllowed(want, got) {
		report("expected %s, got %s", strings.Join(want, " or "), got)
		return
	}

	switch val := v.(type) {
	case nil:
		return

	case string:
		if s.Enum != nil && !slices.Contains(s.Enum, any(val)) {
			report("must be one of %v, got %q", s.Enum, val)
		}
		if s.MinLength != nil && utf8.RuneCountInString(val) < *s.MinLength {
			if *s.MinLength == 1 {
				report("must not be empty")
			} else {
				report("must be at least %d characters", *s.MinLength)
			}
		}
		if s.Format == "uuid" && !isUUID(val) {
			report("must be a UUID, got %q", val)
		}

	case float64:
		if s.Minimum != nil && val < *s.Minimum {
			report("must be at least %v, got %v", *s.Minimum, val)
		}

	case []any:
		if s.MaxItems != nil && len(val) > *s.MaxItems {
			report("must contain at most %d items, got %d", *s.MaxItems, len(val))
		}
		if s.UniqueItems {
			seen := make(map[string]int, len(val))
			for i, item := range val {
				key := fmt.Sprintf("%T:%v", item, item)
				if first, dup := seen[key]; dup {
					*issues = append(*issues, Issue{
						Path:    fmt.Sprintf("%s/%d", path, i),
						Message: fmt.Sprintf("duplicates item %d", first),
					})
					continue
				}
				seen[key] = i
			}
		}
		if s.Items != nil {
			for i, item := range val {
				walk(s.Items, fmt.Sprintf("%s/%d", path, i), item, issues)
			}
		}

	case map[string]any:
		for _, name := range s.Required {
			if _, ok := val[name]; !ok {
				*issues = append(*issues, Issue{Path: path + "/" + name, Message: "is required"})
			}
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := path + "/" + escapePointer(k)
			sub, ok := s.Properties[k]
			if !ok {
				if rejectsExtra(s) {
					*issues = append(*issues, Issue{Path: child, Message: "unknown field"})
				}
				continue
			}
			walk(sub, child, val[k], issues)
		}
	}
}

func allowedTypes(s *jsonschema.Schema) []string {
	if s.Type != "" {
		return []string{s.Type}
	}
	return s.Types
}

func typeAllowed(want []string, got string) bool {
	for _, w := range want {
		if w == got || (w == "number" && got == "integer") {
			return true
		}
	}
	return false
}

func rejectsExtra(s *jsonschema.Schema) bool {
	ap := s.AdditionalProperties
	return ap != nil && ap.Not != nil && ap.Not.Type == "" && ap.Not.Properties == nil
}

func jsonTypeOf(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64:
		if _, frac := math.Modf(val); frac == 0 {
			return "integer"
		}
		return "number"
	case json.Number:
		if _, err := val.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// isUUID accepts only the canonical 8-4-4-4-12 hex form.
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func escapePointer(s string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(s)
}

// cloneJSON deep-copies a decoded JSON object.
func cloneJSON(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneJSON(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

// normalizeResponse replaces nil lists with empty ones so the response
// always encodes with arrays, never null.
func normalizeResponse(r *EngineResponse) {
	if r.Nudges == nil {
		r.Nudges = []string{}
	}
	if r.ContextToast != nil && r.ContextToast.Bullets == nil {
		r.ContextToast.Bullets = []string{}
	}
	u := &r.UsedUpdates
	for _, list := range []*[]string{&u.ValuePropsUsed, &u.DifferentiatorsUsed, &u.ObjectionResponsesUsed, &u.QuestionsAsked} {
		if *list == nil {
			*list = []string{}
		}
	}
}
