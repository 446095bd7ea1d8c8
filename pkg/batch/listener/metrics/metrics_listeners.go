// Package metrics feeds job, step and chunk lifecycle events to a MetricRecorder.
package metrics

import (
	"context"
	"sync"
	"time"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
)

// ChunkDurationMetric is the RecordDuration name of one chunk, from its first transform to commit or rollback.
const ChunkDurationMetric = "chunk"

type jobListener struct {
	recorder metrics.MetricRecorder
}

// NewMetricsJobListener records job starts and ends.
func NewMetricsJobListener(recorder metrics.MetricRecorder) port.JobExecutionListener {
	return &jobListener{recorder: recorder}
}

func (l *jobListener) BeforeJob(ctx context.Context, je *model.JobExecution) {
	l.recorder.RecordJobStart(ctx, je)
}

func (l *jobListener) AfterJob(ctx context.Context, je *model.JobExecution) {
	l.recorder.RecordJobEnd(ctx, je)
}

type stepListener struct {
	recorder metrics.MetricRecorder
}

// NewMetricsStepListener records step starts and ends.
func NewMetricsStepListener(recorder metrics.MetricRecorder) port.StepExecutionListener {
	return &stepListener{recorder: recorder}
}

func (l *stepListener) BeforeStep(ctx context.Context, se *model.StepExecution) {
	l.recorder.RecordStepStart(ctx, se)
}

func (l *stepListener) AfterStep(ctx context.Context, se *model.StepExecution) {
	l.recorder.RecordStepEnd(ctx, se)
}

// ChunkListener times every chunk. Chunks of one step execution never overlap, so the
// start time is kept per step execution.
type ChunkListener struct {
	recorder metrics.MetricRecorder
	now      func() time.Time
	started  sync.Map // step execution ID -> time.Time
}

// NewMetricsChunkListener creates a ChunkListener.
func NewMetricsChunkListener(recorder metrics.MetricRecorder) port.ChunkListener {
	return &ChunkListener{recorder: recorder, now: time.Now}
}

func (l *ChunkListener) BeforeChunk(ctx context.Context, se *model.StepExecution) {
	l.started.Store(se.ID, l.now())
}

func (l *ChunkListener) AfterChunk(ctx context.Context, se *model.StepExecution) {
	l.observe(ctx, se, "commit")
}

func (l *ChunkListener) AfterChunkError(ctx context.Context, se *model.StepExecution, err error) {
	l.observe(ctx, se, "rollback")
}

func (l *ChunkListener) observe(ctx context.Context, se *model.StepExecution, outcome string) {
	v, ok := l.started.LoadAndDelete(se.ID)
	if !ok {
		return
	}
	l.recorder.RecordDuration(ctx, ChunkDurationMetric, l.now().Sub(v.(time.Time)), map[string]string{
		"step_name": se.StepName,
		"outcome":   outcome,
	})
}
