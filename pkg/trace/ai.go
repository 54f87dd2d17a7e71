package trace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentCoachTurn creates the span wrapping one coaching turn
func InstrumentCoachTurn(ctx context.Context, callID, mode, stage string) (context.Context, trace.Span) {
	attrs := CallAttrs(callID, mode)
	attrs = append(attrs, attribute.String(AttrStage, stage))
	return StartSpan(ctx, "coach.turn", trace.WithAttributes(attrs...))
}

// RecordTurnOutcome annotates a coach.turn span with how the turn ended
func RecordTurnOutcome(span trace.Span, usedFallback bool, cause error, memoryItems int) {
	attrs := []attribute.KeyValue{
		attribute.Bool(AttrFallbackUsed, usedFallback),
		attribute.Int(AttrMemoryItems, memoryItems),
	}
	if cause != nil {
		attrs = append(attrs, attribute.String(AttrFallbackCause, cause.Error()))
	}
	span.SetAttributes(attrs...)
}

// RecordValidationIssues sets how many contract violations made a turn fall back
func RecordValidationIssues(span trace.Span, issues int) {
	span.SetAttributes(attribute.Int(AttrValidationIssues, issues))
}

// InstrumentLLMRequest creates a span for LLM requests
func InstrumentLLMRequest(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return StartSpan(ctx, "llm.request",
		trace.WithAttributes(
			LLMAttrs(provider, model)...,
		),
	)
}

// RecordLLMUsage sets token accounting on an llm.request span
func RecordLLMUsage(span trace.Span, model string, promptTokens, completionTokens int64) {
	span.SetAttributes(
		attribute.String(AttrLLMModel, model),
		attribute.Int64(AttrLLMPromptTokens, promptTokens),
		attribute.Int64(AttrLLMCompletionTokens, completionTokens),
	)
}

// InstrumentAudioTranscode creates a span for codec bridge conversions
func InstrumentAudioTranscode(ctx context.Context, direction string, inputSize, outputSize int) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("audio.%s", direction),
		trace.WithAttributes(
			attribute.String(AttrAudioDirection, direction),
			attribute.Int(AttrAudioInputBytes, inputSize),
			attribute.Int(AttrAudioOutputBytes, outputSize),
		),
	)
}
