package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrOperation  = "registry.operation"
	AttrEntityID   = "registry.entity.id"
	AttrParentID   = "registry.parent.id"
	AttrIndex      = "registry.index"
	AttrGeneration = "registry.generation"
	AttrChanged    = "registry.changed"
	AttrGroupDepth = "registry.group.depth"
	AttrSender     = "notify.sender"
	AttrSeq        = "notify.seq"

	AttrErrorMessage = "error.message"
)

// Span name prefixes.
const (
	SpanPrefixRegistry = "registry."
	SpanPrefixRepo     = "repo."
)

// Event names.
const (
	EventNoticeReceived   = "notice.received"
	EventBroadcastQueued  = "broadcast.queued"
	EventDiscoveryQueued  = "discovery.queued"
	EventProviderConflict = "discovery.conflict"
)

// RecordError marks span as failed with err. A nil err leaves the span alone.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
}

// Start opens an internal span named prefix+name on tracer.
func Start(ctx context.Context, tracer trace.Tracer, prefix, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, prefix+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}
