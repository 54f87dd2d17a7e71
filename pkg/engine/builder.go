package engine

import (
	"encoding/json"
	"fmt"

	"github.com/realtime-ai/realtime-coach/pkg/memory"
)

// TurnState is everything about a coaching turn except the call mode. Every
// transport (real call, practice call, AI caller) fills a TurnState and goes
// through BuildInput, so the brain sees one input shape for all modes.
type TurnState struct {
	OrgID                 string
	CallID                string
	CallType              string
	GuidanceLevel         string
	CompanyBrief          CompanyBrief
	RAGChunks             []RAGChunk
	AgentPromptDelta      string
	Strategy              string
	CurrentStage          string
	StageChecklist        []string
	TranscriptWindow      []TranscriptTurn
	ProspectLastUtterance string
	ObjectionType         *string
	DetectedEntities      []string
	Intent                *string
	CoachMemory           memory.CoachMemory
	Notes                 *string
	// SuggestionCount of zero means DefaultSuggestionCount.
	SuggestionCount int
}

// BuildInput is the only constructor of EngineInput for live turns. It lays
// out the wire document for mode and state and runs it through the
// validator, so bounds and unknown-field rules apply to every mode alike.
func BuildInput(mode CallMode, state TurnState) (*EngineInput, error) {
	doc, err := wireDocument(mode, state)
	if err != nil {
		return nil, err
	}
	return ValidateInputValue(doc)
}

func wireDocument(mode CallMode, state TurnState) (map[string]any, error) {
	suggestions := state.SuggestionCount
	if suggestions == 0 {
		suggestions = DefaultSuggestionCount
	}

	wire := EngineInput{
		OrgID:                 state.OrgID,
		CallID:                state.CallID,
		CallMode:              mode,
		CallType:              state.CallType,
		GuidanceLevel:         state.GuidanceLevel,
		CompanyBrief:          state.CompanyBrief,
		RAGChunks:             orEmpty(state.RAGChunks),
		AgentPromptDelta:      state.AgentPromptDelta,
		Strategy:              state.Strategy,
		CurrentStage:          state.CurrentStage,
		StageChecklist:        orEmpty(state.StageChecklist),
		TranscriptWindow:      orEmpty(state.TranscriptWindow),
		ProspectLastUtterance: state.ProspectLastUtterance,
		ObjectionType:         state.ObjectionType,
		DetectedEntities:      orEmpty(state.DetectedEntities),
		Intent:                state.Intent,
		CoachMemory:           state.CoachMemory,
		Notes:                 state.Notes,
		SuggestionCount:       suggestions,
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode engine input: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode engine input: %w", err)
	}
	return doc, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
