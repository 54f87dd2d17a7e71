package engine

import (
	"encoding/json"

	"github.com/realtime-ai/realtime-coach/pkg/memory"
)

const (
	fallbackSay    = "That's a great point. Could you tell me a bit more about what matters most to you here?"
	fallbackIntent = "clarify"
	fallbackReason = "Fallback suggestion: the coaching engine could not produce a valid response for this turn."
)

// SafeFallbackResponse returns a fresh copy of the response substituted
// whenever the brain's output cannot be trusted. Its used_updates lists are
// empty so a fallback never marks content as delivered.
func SafeFallbackResponse() *EngineResponse {
	return &EngineResponse{
		Say:    fallbackSay,
		Intent: fallbackIntent,
		Reason: fallbackReason,
		Nudges: []string{},
		UsedUpdates: memory.UsedUpdates{
			ValuePropsUsed:         []string{},
			DifferentiatorsUsed:    []string{},
			ObjectionResponsesUsed: []string{},
			QuestionsAsked:         []string{},
		},
	}
}

// SafeFallbackJSON returns the wire form of SafeFallbackResponse.
func SafeFallbackJSON() []byte {
	data, _ := json.Marshal(SafeFallbackResponse())
	return data
}
