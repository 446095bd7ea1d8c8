package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
)

const instrumentationName = "github.com/tigerroll/customer-batch/pkg/batch"

// OpenTelemetryRecorder records batch metrics as OpenTelemetry instruments.
type OpenTelemetryRecorder struct {
	jobDuration       otelmetric.Float64Histogram
	jobStatus         otelmetric.Int64Counter
	launchRejected    otelmetric.Int64Counter
	stepDuration      otelmetric.Float64Histogram
	stepStatus        otelmetric.Int64Counter
	itemsRead         otelmetric.Int64Counter
	itemsProcessed    otelmetric.Int64Counter
	itemsWritten      otelmetric.Int64Counter
	chunkCommits      otelmetric.Int64Counter
	chunkRollbacks    otelmetric.Int64Counter
	operationDuration otelmetric.Float64Histogram
}

// NewOpenTelemetryRecorder creates the instruments on a meter of provider.
func NewOpenTelemetryRecorder(provider otelmetric.MeterProvider) (*OpenTelemetryRecorder, error) {
	meter := provider.Meter(instrumentationName)
	r := &OpenTelemetryRecorder{}
	var err error

	histograms := []struct {
		target *otelmetric.Float64Histogram
		name   string
		desc   string
	}{
		{&r.jobDuration, "batch.job.duration", "Duration of batch job executions."},
		{&r.stepDuration, "batch.step.duration", "Duration of batch step executions."},
		{&r.operationDuration, "batch.operation.duration", "Duration of named batch operations."},
	}
	for _, h := range histograms {
		if *h.target, err = meter.Float64Histogram(h.name, otelmetric.WithDescription(h.desc), otelmetric.WithUnit("s")); err != nil {
			return nil, fmt.Errorf("failed to create histogram %s: %w", h.name, err)
		}
	}

	counters := []struct {
		target *otelmetric.Int64Counter
		name   string
		desc   string
	}{
		{&r.jobStatus, "batch.job.executions", "Batch job executions by final status."},
		{&r.launchRejected, "batch.job.launch_rejected", "Launches refused before execution."},
		{&r.stepStatus, "batch.step.executions", "Batch step executions by final status."},
		{&r.itemsRead, "batch.items.read", "Items read."},
		{&r.itemsProcessed, "batch.items.processed", "Items transformed."},
		{&r.itemsWritten, "batch.items.written", "Items written."},
		{&r.chunkCommits, "batch.chunk.commits", "Committed chunks."},
		{&r.chunkRollbacks, "batch.chunk.rollbacks", "Failed chunks."},
	}
	for _, c := range counters {
		if *c.target, err = meter.Int64Counter(c.name, otelmetric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
	}
	return r, nil
}

func (r *OpenTelemetryRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {}

func (r *OpenTelemetryRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	attrs := otelmetric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	)
	r.jobStatus.Add(ctx, 1, attrs)
	if execution.EndTime != nil {
		r.jobDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
	}
}

func (r *OpenTelemetryRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}

func (r *OpenTelemetryRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	attrs := otelmetric.WithAttributes(
		attribute.String("job_name", stepJobName(execution)),
		attribute.String("step_name", execution.StepName),
		attribute.String("status", execution.Status.String()),
	)
	r.stepStatus.Add(ctx, 1, attrs)
	if execution.EndTime != nil {
		r.stepDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
	}
}

func (r *OpenTelemetryRecorder) stepAttrs(ctx context.Context, stepName string, extra ...attribute.KeyValue) otelmetric.MeasurementOption {
	kv := append([]attribute.KeyValue{
		attribute.String("job_name", jobNameFromContext(ctx)),
		attribute.String("step_name", stepName),
	}, extra...)
	return otelmetric.WithAttributes(kv...)
}

func (r *OpenTelemetryRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.itemsRead.Add(ctx, int64(count), r.stepAttrs(ctx, stepName))
}

func (r *OpenTelemetryRecorder) RecordItemProcess(ctx context.Context, stepName string, count int) {
	r.itemsProcessed.Add(ctx, int64(count), r.stepAttrs(ctx, stepName))
}

func (r *OpenTelemetryRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.itemsWritten.Add(ctx, int64(count), r.stepAttrs(ctx, stepName))
}

func (r *OpenTelemetryRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.chunkCommits.Add(ctx, 1, r.stepAttrs(ctx, stepName))
}

func (r *OpenTelemetryRecorder) RecordChunkRollback(ctx context.Context, stepName string, kind string) {
	r.chunkRollbacks.Add(ctx, 1, r.stepAttrs(ctx, stepName, attribute.String("kind", kind)))
}

func (r *OpenTelemetryRecorder) RecordLaunchRejected(ctx context.Context, jobName string, reason string) {
	r.launchRejected.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("job_name", jobName),
		attribute.String("reason", reason),
	))
}

func (r *OpenTelemetryRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	kv := make([]attribute.KeyValue, 0, len(tags)+1)
	kv = append(kv, attribute.String("name", name))
	for k, v := range tags {
		kv = append(kv, attribute.String(k, v))
	}
	r.operationDuration.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(kv...))
}

var _ metrics.MetricRecorder = (*OpenTelemetryRecorder)(nil)
