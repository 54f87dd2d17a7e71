package trace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentStreamStarted creates a span for a media stream start event
func InstrumentStreamStarted(ctx context.Context, streamSid, callSid string) (context.Context, trace.Span) {
	attrs := StreamAttrs(streamSid, callSid)
	attrs = append(attrs, attribute.String(AttrStreamEvent, "start"))
	return StartSpan(ctx, "stream.started", trace.WithAttributes(attrs...))
}

// InstrumentStreamError creates a span for media stream errors
func InstrumentStreamError(ctx context.Context, streamSid string, err error) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String(AttrStreamSid, streamSid)}
	if err != nil {
		attrs = append(attrs, ErrorAttrs(fmt.Sprintf("%T", err), err.Error())...)
	}
	ctx, span := StartSpan(ctx, "stream.error", trace.WithAttributes(attrs...))

	RecordError(span, err)
	return ctx, span
}

// InstrumentStreamClosed creates a span for media stream closure
func InstrumentStreamClosed(ctx context.Context, streamSid, callSid string) (context.Context, trace.Span) {
	attrs := StreamAttrs(streamSid, callSid)
	attrs = append(attrs, attribute.String(AttrStreamEvent, "stop"))
	return StartSpan(ctx, "stream.closed", trace.WithAttributes(attrs...))
}
