package engine

import (
	"encoding/json"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// The schemas are composed from per-object builders. Every call returns a
// fresh tree: jsonschema requires that no subschema appears twice.

func falseSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Not: &jsonschema.Schema{}}
}

// strictObject declares an object that rejects undeclared keys.
func strictObject(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: falseSchema(),
	}
}

func nullable(s *jsonschema.Schema) *jsonschema.Schema {
	s.Types = []string{s.Type, "null"}
	s.Type = ""
	return s
}

func withDefault(s *jsonschema.Schema, v string) *jsonschema.Schema {
	s.Default = json.RawMessage(v)
	return s
}

func stringSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string"}
}

func nonEmptyString() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", MinLength: jsonschema.Ptr(1)}
}

func uuidSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Format: "uuid"}
}

func enumSchema(values ...string) *jsonschema.Schema {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &jsonschema.Schema{Type: "string", Enum: enum}
}

func arrayOf(items *jsonschema.Schema, maxItems int) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "array", Items: items}
	if maxItems > 0 {
		s.MaxItems = jsonschema.Ptr(maxItems)
	}
	return s
}

func stringList() *jsonschema.Schema {
	return arrayOf(stringSchema(), 0)
}

// uniqueStringList is a memory list: insertion-ordered, no repeats.
func uniqueStringList() *jsonschema.Schema {
	s := stringList()
	s.UniqueItems = true
	return s
}

func companyBriefSchema() *jsonschema.Schema {
	return strictObject(map[string]*jsonschema.Schema{
		"companyName":    stringSchema(),
		"whatWeSell":     stringSchema(),
		"targetCustomer": stringSchema(),
	}, "companyName", "whatWeSell", "targetCustomer")
}

func ragChunkSchema() *jsonschema.Schema {
	return strictObject(map[string]*jsonschema.Schema{
		"field": stringSchema(),
		"text":  stringSchema(),
		"score": {Type: "number"},
	}, "field", "text", "score")
}

func transcriptTurnSchema() *jsonschema.Schema {
	return strictObject(map[string]*jsonschema.Schema{
		"speaker": enumSchema(string(SpeakerRep), string(SpeakerProspect)),
		"text":    stringSchema(),
	}, "speaker", "text")
}

func coachMemorySchema() *jsonschema.Schema {
	return strictObject(map[string]*jsonschema.Schema{
		"used_value_props":           uniqueStringList(),
		"used_differentiators":       uniqueStringList(),
		"used_objection_responses":   uniqueStringList(),
		"questions_asked":            uniqueStringList(),
		"last_5_primary_suggestions": arrayOf(stringSchema(), 5),
	}, "used_value_props", "used_differentiators", "used_objection_responses",
		"questions_asked", "last_5_primary_suggestions")
}

func usedUpdatesSchema() *jsonschema.Schema {
	return strictObject(map[string]*jsonschema.Schema{
		"value_props_used":         stringList(),
		"differentiators_used":     stringList(),
		"objection_responses_used": stringList(),
		"questions_asked":          stringList(),
	}, "value_props_used", "differentiators_used", "objection_responses_used", "questions_asked")
}

func contextToastSchema() *jsonschema.Schema {
	return nullable(strictObject(map[string]*jsonschema.Schema{
		"title":   stringSchema(),
		"bullets": stringList(),
	}, "title", "bullets"))
}

// InputSchema returns the strict schema of an EngineInput.
func InputSchema() *jsonschema.Schema {
	modes := make([]string, len(CallModes))
	for i, m := range CallModes {
		modes[i] = string(m)
	}

	s := strictObject(map[string]*jsonschema.Schema{
		"orgId":                 uuidSchema(),
		"callId":                uuidSchema(),
		"callMode":              enumSchema(modes...),
		"callType":              stringSchema(),
		"guidanceLevel":         stringSchema(),
		"companyBrief":          companyBriefSchema(),
		"ragChunks":             arrayOf(ragChunkSchema(), MaxRAGChunks),
		"agentPromptDelta":      withDefault(stringSchema(), `""`),
		"strategy":              withDefault(stringSchema(), `""`),
		"currentStage":          stringSchema(),
		"stageChecklist":        withDefault(stringList(), `[]`),
		"transcriptWindow":      arrayOf(transcriptTurnSchema(), MaxTranscriptWindow),
		"prospectLastUtterance": stringSchema(),
		"objectionType":         nullable(stringSchema()),
		"detectedEntities":      withDefault(stringList(), `[]`),
		"intent":                nullable(stringSchema()),
		"coachMemory":           coachMemorySchema(),
		"notes":                 withDefault(nullable(stringSchema()), `null`),
		"suggestionCount":       withDefault(&jsonschema.Schema{Type: "integer", Minimum: jsonschema.Ptr(1.0)}, `3`),
	}, "orgId", "callId", "callMode", "callType", "guidanceLevel", "companyBrief", "ragChunks",
		"currentStage", "transcriptWindow", "prospectLastUtterance", "coachMemory")
	s.Title = "EngineInput"
	return s
}

// OutputSchema returns the strict schema of an EngineResponse.
func OutputSchema() *jsonschema.Schema {
	s := strictObject(map[string]*jsonschema.Schema{
		"say":           nonEmptyString(),
		"intent":        stringSchema(),
		"reason":        stringSchema(),
		"nudges":        arrayOf(stringSchema(), MaxNudges),
		"context_toast": contextToastSchema(),
		"ask":           nullable(stringSchema()),
		"used_updates":  usedUpdatesSchema(),
	}, "say", "intent", "reason", "nudges", "used_updates")
	s.Title = "EngineResponse"
	return s
}

var (
	resolveOnce    sync.Once
	inputResolved  *jsonschema.Resolved
	outputResolved *jsonschema.Resolved
	resolveErr     error
)

// resolved returns the resolved input and output schemas. Both are built
// once and are read-only afterwards, so they are safe for concurrent use.
func resolved() (in, out *jsonschema.Resolved, err error) {
	resolveOnce.Do(func() {
		opts := &jsonschema.ResolveOptions{ValidateDefaults: true}
		inputResolved, resolveErr = InputSchema().Resolve(opts)
		if resolveErr != nil {
			return
		}
		outputResolved, resolveErr = OutputSchema().Resolve(opts)
	})
	return inputResolved, outputResolved, resolveErr
}
