package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrConversationID = "conversation.id"
	AttrProjectPath    = "project.path"
	AttrGitBranch      = "git.branch"
	AttrWorkflowName   = "workflow.name"
	AttrPhase          = "phase.current"
	AttrTargetPhase    = "phase.target"
	AttrIsModeled      = "transition.modeled"
	AttrBootstrap      = "transition.bootstrap"
	AttrMCPToolName    = "mcp.tool.name"
	AttrMCPRequestID   = "mcp.request.id"
	AttrErrorMessage   = "error.message"
	AttrErrorType      = "error.type"
)

// Span name prefixes.
const (
	SpanPrefixGuide = "guide."
	SpanPrefixMCP   = "mcp.tool."
)

// Event names.
const (
	EventConversationCreated = "conversation.created"
	EventPlanFileCreated     = "plan_file.created"
	EventErrorOccurred       = "error.occurred"
)

// StartSpan starts an internal span. tracer may be nil, in which case a
// non-recording span is returned and ctx is left unchanged.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
}

// EndSpan records err (if any) on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
		span.AddEvent(EventErrorOccurred)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
