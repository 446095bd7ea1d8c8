// Package usecase is the job coordinator: it launches registered jobs under the
// at-most-one-running and already-complete guards, restarts failed runs and lets
// operators stop or abandon executions.
package usecase

import (
	"context"
	"errors"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

var (
	// ErrJobAlreadyRunning is returned when the job has an execution that has not finished.
	ErrJobAlreadyRunning = errors.New("job is already running")
	// ErrJobAlreadyComplete is returned when the same parameters already completed successfully.
	ErrJobAlreadyComplete = errors.New("job instance is already complete")
	// ErrInvalidJobParameters is returned when the parameters fail validation.
	ErrInvalidJobParameters = errors.New("invalid job parameters")
	// ErrNoSuchJob is returned for a job name that is not registered.
	ErrNoSuchJob = errors.New("no such job")
	// ErrJobNotRestartable is returned when restarting an execution that is not FAILED or STOPPED.
	ErrJobNotRestartable = errors.New("job execution is not restartable")
)

// JobLauncher is an interface for launching a Job with JobParameters.
type JobLauncher interface {
	// Launch runs the job to completion and returns its execution.
	// The error reports a refused or broken launch. A run that fails is returned
	// as a FAILED execution with a nil error.
	Launch(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)
}

// JobOperator is an interface for performing operations on jobs and their executions.
type JobOperator interface {
	// Start launches jobName with params.
	Start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)
	// Restart restarts the specified FAILED or STOPPED JobExecution and returns the new execution.
	Restart(ctx context.Context, executionID string) (*model.JobExecution, error)
	// Stop cancels a JobExecution running in this process. It ends STOPPED and can be restarted.
	Stop(ctx context.Context, executionID string) error
	// Abandon marks the specified JobExecution ABANDONED and releases its job lock.
	// An abandoned execution is never restarted.
	Abandon(ctx context.Context, executionID string) error
	// GetExecution returns a JobExecution with its StepExecutions.
	GetExecution(ctx context.Context, executionID string) (*model.JobExecution, error)
	// JobNames returns the registered job names, sorted.
	JobNames() []string
}

// JobExplorer is an interface for querying batch metadata.
type JobExplorer interface {
	// GetJobExecution retrieves a JobExecution by its ID.
	GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error)
	// GetJobExecutions retrieves all JobExecutions of the specified JobInstance, newest first.
	GetJobExecutions(ctx context.Context, instanceID string) ([]*model.JobExecution, error)
	// GetLastJobExecution returns the newest execution of (jobName, params), or nil if there is none.
	GetLastJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)
	// GetJobInstance retrieves a JobInstance by its ID.
	GetJobInstance(ctx context.Context, instanceID string) (*model.JobInstance, error)
	// GetJobNames retrieves the names of all jobs that have run.
	GetJobNames(ctx context.Context) ([]string, error)
}
