package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrMalformedModelOutput is returned when no JSON object can be recovered
// from model text.
var ErrMalformedModelOutput = errors.New("malformed model output")

const fence = "```"

// ExtractJSON recovers the first JSON object from free-form model text.
//
// It tries, in order: the body of a markdown code fence, the first balanced
// {...} object found by a string-aware scanner, and a repair of an object
// that was cut off before its closing brace. It never panics.
func ExtractJSON(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrMalformedModelOutput)
	}

	if body, ok := fencedBody(text); ok {
		if obj, ok := validObject(body); ok {
			return obj, nil
		}
		if obj, err := scanObject(body); err == nil {
			return obj, nil
		}
	}
	return scanObject(text)
}

// DecodeModelJSON extracts the first JSON object from text into v.
func DecodeModelJSON(text string, v any) error {
	obj, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(obj, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedModelOutput, err)
	}
	return nil
}

// RecoverJSON decodes the first JSON object in text as T, or returns
// fallback when nothing usable can be recovered.
func RecoverJSON[T any](text string, fallback T) T {
	var v T
	if err := DecodeModelJSON(text, &v); err != nil {
		return fallback
	}
	return v
}

// ParseModelResponse recovers and validates an EngineResponse from model text.
func ParseModelResponse(text string) (*EngineResponse, error) {
	obj, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	return ValidateOutput(obj)
}

// ResponseOrFallback is ParseModelResponse for the live path: it always
// returns a valid response. usedFallback is set, and cause explains why,
// when SafeFallbackResponse was substituted.
func ResponseOrFallback(text string) (resp *EngineResponse, usedFallback bool, cause error) {
	resp, err := ParseModelResponse(text)
	if err != nil {
		return SafeFallbackResponse(), true, err
	}
	return resp, false, nil
}

// fencedBody returns the contents of the first markdown code fence. An
// unterminated fence runs to the end of text.
func fencedBody(text string) (string, bool) {
	start := strings.Index(text, fence)
	if start < 0 {
		return "", false
	}
	body := text[start+len(fence):]
	// Skip the info string, e.g. ```json
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		if info := strings.TrimSpace(body[:nl]); !strings.ContainsAny(info, "{[") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body), true
}

func validObject(s string) ([]byte, bool) {
	if !strings.HasPrefix(s, "{") || !json.Valid([]byte(s)) {
		return nil, false
	}
	return []byte(s), true
}

// scanObject returns the first {...} span of text that is valid JSON. Braces
// inside strings are ignored. A brace that never closes is skipped unless it
// opens like a JSON object ({" or {}), in which case it is taken as a cut-off
// object and handed to jsonrepair. Prose such as "{ here is" is never
// repaired.
func scanObject(text string) ([]byte, error) {
	truncated := false
	for offset := 0; offset < len(text); {
		rel := strings.IndexByte(text[offset:], '{')
		if rel < 0 {
			break
		}
		start := offset + rel
		offset = start + 1

		end, closed := matchBrace(text, start)
		if closed {
			if obj, ok := validObject(text[start : end+1]); ok {
				return obj, nil
			}
			continue
		}
		if !opensObject(text[start+1:]) {
			continue
		}
		truncated = true
		repaired, err := jsonrepair.JSONRepair(text[start:])
		if err != nil {
			continue
		}
		if obj, ok := validObject(strings.TrimSpace(repaired)); ok {
			return obj, nil
		}
	}
	if truncated {
		return nil, fmt.Errorf("%w: unterminated object", ErrMalformedModelOutput)
	}
	return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedModelOutput)
}

// opensObject reports whether rest, the text after a '{', starts like the
// body of a JSON object.
func opensObject(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	return rest != "" && (rest[0] == '"' || rest[0] == '}')
}

// matchBrace returns the index of the brace closing the one at start.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return -1, false
}
