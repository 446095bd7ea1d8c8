package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

// ErrJobExecutionNotFound is returned when a JobExecution is not found.
var ErrJobExecutionNotFound = errors.New("job execution not found")

// JobExecution defines operations for persisting and retrieving job executions.
type JobExecution interface {
	// SaveJobExecution persists a new JobExecution.
	SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error
	// UpdateJobExecution updates an existing JobExecution, guarded by its Version.
	UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error
	// FindJobExecutionByID finds a JobExecution by its ID, with its StepExecutions loaded.
	FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error)
	// FindRunningJobExecutions returns the executions of jobName that have not finished.
	FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error)
	// FindLastJobExecution returns the most recent execution of the instance identified by
	// jobName and params, with its StepExecutions loaded.
	FindLastJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)
	// FindJobExecutionsByJobInstance returns all executions of the instance, newest first.
	FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error)
}
