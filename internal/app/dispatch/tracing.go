package dispatch

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span naming mirrors the convention in
// internal/domain/agent/react/tracing.go: a package-scoped tracer name,
// dotted span names, and a small set of attribute keys reused across every
// span this package emits.
const (
	traceScope = "dispatch"

	traceSpanCreateTask     = "dispatch.create_task"
	traceSpanLeaseNextTask  = "dispatch.lease_next_task"
	traceSpanReportProgress = "dispatch.report_progress"
	traceSpanOAuthLogin     = "dispatch.oauth_login"

	traceAttrTaskID  = "dispatch.task_id"
	traceAttrOwnerID = "dispatch.owner_id"
	traceAttrStatus  = "dispatch.status"
)

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(traceScope).Start(ctx, name, trace.WithAttributes(attrs...))
}

// markSpanResult records err's outcome on span. Callers still call span.End()
// themselves — this only sets status, keeping the defer-block-then-End()
// sequencing so the span stays open for attributes set between the call
// site and the deferred block.
func markSpanResult(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
