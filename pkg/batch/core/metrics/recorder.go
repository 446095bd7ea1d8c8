// Package metrics defines the observability abstractions of the batch engine.
// Backends live in pkg/batch/infrastructure/metrics.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

// MetricRecorder is an abstract interface for recording metrics related to batch execution.
//
// Item and chunk methods take the step name; backends that label by job name read the
// running StepExecution from ctx (see port.GetStepExecutionFromContext).
type MetricRecorder interface {
	// RecordJobStart records the start of a JobExecution.
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	// RecordJobEnd records the end of a JobExecution, including its duration.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	// RecordStepStart records the start of a StepExecution.
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	// RecordStepEnd records the end of a StepExecution, including its duration.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordItemRead records count items read.
	RecordItemRead(ctx context.Context, stepName string, count int)
	// RecordItemProcess records count items transformed.
	RecordItemProcess(ctx context.Context, stepName string, count int)
	// RecordItemWrite records count items written.
	RecordItemWrite(ctx context.Context, stepName string, count int)

	// RecordChunkCommit records the commit of a chunk of count items.
	RecordChunkCommit(ctx context.Context, stepName string, count int)
	// RecordChunkRollback records a failed chunk. kind is the error kind, e.g. "SinkWriteError".
	RecordChunkRollback(ctx context.Context, stepName string, kind string)

	// RecordLaunchRejected records a launch refused before execution, e.g. "already_running".
	RecordLaunchRejected(ctx context.Context, jobName string, reason string)

	// RecordDuration records the execution time of a specific operation.
	//
	// ctx: The context for the operation.
	// name: The name of the duration to record (e.g., "chunk_write").
	// duration: The length of the duration to record.
	// tags: Additional labels, e.g. `{"step_name": "importCustomerStep"}`.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution)     {}
func (r *NoOpMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution)       {}
func (r *NoOpMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution)   {}
func (r *NoOpMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution)     {}
func (r *NoOpMetricRecorder) RecordItemRead(ctx context.Context, stepName string, count int)        {}
func (r *NoOpMetricRecorder) RecordItemProcess(ctx context.Context, stepName string, count int)     {}
func (r *NoOpMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int)       {}
func (r *NoOpMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int)     {}
func (r *NoOpMetricRecorder) RecordChunkRollback(ctx context.Context, stepName string, kind string) {}
func (r *NoOpMetricRecorder) RecordLaunchRejected(ctx context.Context, jobName string, reason string) {
}
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)
