package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys used throughout the application
const (
	// Call attributes
	AttrCallID   = "call.id"
	AttrCallMode = "call.mode"
	AttrStage    = "call.stage"

	// Coaching attributes
	AttrFallbackUsed     = "coach.fallback_used"
	AttrFallbackCause    = "coach.fallback_cause"
	AttrValidationIssues = "coach.validation_issues"
	AttrMemoryItems      = "coach.memory_items"

	// Audio attributes
	AttrAudioDirection   = "audio.direction"
	AttrAudioInputBytes  = "audio.input_bytes"
	AttrAudioOutputBytes = "audio.output_bytes"

	// Media stream attributes
	AttrStreamSid     = "stream.sid"
	AttrStreamCallSid = "stream.call_sid"
	AttrStreamEvent   = "stream.event"

	// AI/LLM attributes
	AttrLLMProvider         = "llm.provider"
	AttrLLMModel            = "llm.model"
	AttrLLMPromptTokens     = "llm.prompt_tokens"
	AttrLLMCompletionTokens = "llm.completion_tokens"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// CallAttrs creates attributes identifying a coached call
func CallAttrs(callID, mode string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCallID, callID),
		attribute.String(AttrCallMode, mode),
	}
}

// StreamAttrs creates attributes for a telephony media stream
func StreamAttrs(streamSid, callSid string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrStreamSid, streamSid),
		attribute.String(AttrStreamCallSid, callSid),
	}
}

// LLMAttrs creates attributes for LLM operations
func LLMAttrs(provider, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrLLMProvider, provider),
		attribute.String(AttrLLMModel, model),
	}
}

// ErrorAttrs creates attributes for errors
func ErrorAttrs(errType, errMsg string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, errMsg),
	}
}
