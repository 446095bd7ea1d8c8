package usecase

import (
	"context"
	"errors"
	"fmt"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// SimpleJobExplorer queries batch metadata through a JobRepository.
type SimpleJobExplorer struct {
	jobRepository repository.JobRepository
}

var _ JobExplorer = (*SimpleJobExplorer)(nil)

// NewSimpleJobExplorer creates a new instance of SimpleJobExplorer.
func NewSimpleJobExplorer(jobRepository repository.JobRepository) *SimpleJobExplorer {
	return &SimpleJobExplorer{jobRepository: jobRepository}
}

// GetJobExecution retrieves a JobExecution with its StepExecutions. A missing execution
// yields an error wrapping repository.ErrJobExecutionNotFound.
func (e *SimpleJobExplorer) GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error) {
	jobExecution, err := e.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("Failed to retrieve JobExecution (ID: %s)", executionID), err, false, false)
	}
	if len(jobExecution.StepExecutions) == 0 {
		steps, err := e.jobRepository.FindStepExecutionsByJobExecutionID(ctx, executionID)
		if err != nil {
			return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("Failed to retrieve StepExecutions of JobExecution (ID: %s)", executionID), err, false, false)
		}
		for _, se := range steps {
			jobExecution.AddStepExecution(se)
		}
	}
	logger.Debugf("Retrieved JobExecution (ID: %s) with %d StepExecutions.", executionID, len(jobExecution.StepExecutions))
	return jobExecution, nil
}

// GetJobExecutions retrieves all JobExecutions of the specified JobInstance.
func (e *SimpleJobExplorer) GetJobExecutions(ctx context.Context, instanceID string) ([]*model.JobExecution, error) {
	jobInstance, err := e.GetJobInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	jobExecutions, err := e.jobRepository.FindJobExecutionsByJobInstance(ctx, jobInstance)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("Failed to retrieve JobExecutions of JobInstance (ID: %s)", instanceID), err, false, false)
	}
	return jobExecutions, nil
}

// GetLastJobExecution returns the newest execution of (jobName, params), or nil.
func (e *SimpleJobExplorer) GetLastJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	jobExecution, err := e.jobRepository.FindLastJobExecution(ctx, jobName, params)
	if errors.Is(err, repository.ErrJobExecutionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("Failed to retrieve the last JobExecution of '%s'", jobName), err, false, false)
	}
	return jobExecution, nil
}

// GetJobInstance retrieves a JobInstance by its ID.
func (e *SimpleJobExplorer) GetJobInstance(ctx context.Context, instanceID string) (*model.JobInstance, error) {
	jobInstance, err := e.jobRepository.FindJobInstanceByID(ctx, instanceID)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("Failed to retrieve JobInstance (ID: %s)", instanceID), err, false, false)
	}
	return jobInstance, nil
}

// GetJobNames retrieves the names of all jobs that have run.
func (e *SimpleJobExplorer) GetJobNames(ctx context.Context) ([]string, error) {
	names, err := e.jobRepository.GetJobNames(ctx)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", "Failed to retrieve job names", err, false, false)
	}
	return names, nil
}
