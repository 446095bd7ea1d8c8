// Package logging provides listeners that log job, step and chunk lifecycle events.
package logging

import (
	"context"
	"time"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// --- Job Execution Listener ---

type LoggingJobListener struct{}

func NewLoggingJobListener() port.JobExecutionListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("JobExecutionListener: BeforeJob - JobName: %s, ID: %s, Params: %s, RestartCount: %d",
		jobExecution.JobName, jobExecution.ID, jobExecution.Parameters.String(), jobExecution.RestartCount)
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	if jobExecution.Status == model.BatchStatusFailed {
		logger.Errorf("JobExecutionListener: AfterJob - JobName: %s, ID: %s, Status: %s, Failures: %v",
			jobExecution.JobName, jobExecution.ID, jobExecution.Status, jobExecution.Failures)
		return
	}
	logger.Infof("JobExecutionListener: AfterJob - JobName: %s, ID: %s, Status: %s, ExitStatus: %s, Duration: %s",
		jobExecution.JobName, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus, elapsed(jobExecution.StartTime, jobExecution.EndTime))
}

var _ port.JobExecutionListener = (*LoggingJobListener)(nil)

// --- Step Execution Listener ---

type LoggingStepListener struct{}

func NewLoggingStepListener() port.StepExecutionListener {
	return &LoggingStepListener{}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: BeforeStep - StepName: %s, ID: %s", stepExecution.StepName, stepExecution.ID)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: AfterStep - StepName: %s, Status: %s, Read: %d, Write: %d, Filter: %d, Commits: %d, Rollbacks: %d, Duration: %s",
		stepExecution.StepName, stepExecution.Status, stepExecution.ReadCount, stepExecution.WriteCount,
		stepExecution.FilterCount, stepExecution.CommitCount, stepExecution.RollbackCount,
		elapsed(stepExecution.StartTime, stepExecution.EndTime))
}

var _ port.StepExecutionListener = (*LoggingStepListener)(nil)

// --- Chunk Listener ---

type LoggingChunkListener struct{}

func NewLoggingChunkListener() port.ChunkListener {
	return &LoggingChunkListener{}
}

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("ChunkListener: BeforeChunk - StepName: %s, Chunk: %d", stepExecution.StepName, stepExecution.CommitCount+1)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("ChunkListener: AfterChunk - StepName: %s, Read: %d, Write: %d", stepExecution.StepName, stepExecution.ReadCount, stepExecution.WriteCount)
}

func (l *LoggingChunkListener) AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error) {
	logger.Errorf("ChunkListener: AfterChunkError - StepName: %s, Error: %v", stepExecution.StepName, err)
}

var _ port.ChunkListener = (*LoggingChunkListener)(nil)

func elapsed(start time.Time, end *time.Time) time.Duration {
	if end == nil {
		return time.Since(start).Round(time.Millisecond)
	}
	return end.Sub(start).Round(time.Millisecond)
}
