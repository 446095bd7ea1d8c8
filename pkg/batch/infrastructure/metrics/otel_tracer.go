package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
)

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer from provider.
func NewOpenTelemetryTracer(provider trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: provider.Tracer(instrumentationName)}
}

// StartJobSpan starts a root span named "job <name>".
func (t *OpenTelemetryTracer) StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "job "+execution.JobName, trace.WithAttributes(
		attribute.String("batch.job.name", execution.JobName),
		attribute.String("batch.job.execution_id", execution.ID),
		attribute.Int("batch.job.restart_count", execution.RestartCount),
	))
	return ctx, func() {
		span.SetAttributes(attribute.String("batch.job.status", execution.Status.String()))
		if execution.Status == model.BatchStatusFailed {
			span.SetStatus(codes.Error, "job failed")
		}
		span.End()
	}
}

// StartStepSpan starts a span named "step <name>".
func (t *OpenTelemetryTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "step "+execution.StepName, trace.WithAttributes(
		attribute.String("batch.step.name", execution.StepName),
		attribute.String("batch.step.execution_id", execution.ID),
	))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("batch.step.status", execution.Status.String()),
			attribute.Int("batch.step.read_count", execution.ReadCount),
			attribute.Int("batch.step.write_count", execution.WriteCount),
			attribute.Int("batch.step.commit_count", execution.CommitCount),
		)
		if execution.Status == model.BatchStatusFailed {
			span.SetStatus(codes.Error, "step failed")
		}
		span.End()
	}
}

// RecordError records err on the current span.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("batch.module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent adds an event to the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	kv := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			kv = append(kv, attribute.String(k, val))
		case int:
			kv = append(kv, attribute.Int(k, val))
		case int64:
			kv = append(kv, attribute.Int64(k, val))
		case bool:
			kv = append(kv, attribute.Bool(k, val))
		case float64:
			kv = append(kv, attribute.Float64(k, val))
		default:
			kv = append(kv, attribute.String(k, fmt.Sprint(val)))
		}
	}
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(kv...))
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
