package usecase

import (
	"context"
	"fmt"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// SimpleJobOperator implements JobOperator on top of a SimpleJobLauncher.
type SimpleJobOperator struct {
	jobRepository repository.JobRepository
	registry      *JobRegistry
	launcher      *SimpleJobLauncher
	explorer      JobExplorer
}

var _ JobOperator = (*SimpleJobOperator)(nil)

// NewSimpleJobOperator creates a new SimpleJobOperator.
func NewSimpleJobOperator(jobRepository repository.JobRepository, registry *JobRegistry, launcher *SimpleJobLauncher, explorer JobExplorer) *SimpleJobOperator {
	return &SimpleJobOperator{
		jobRepository: jobRepository,
		registry:      registry,
		launcher:      launcher,
		explorer:      explorer,
	}
}

// Start launches jobName with params.
func (o *SimpleJobOperator) Start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	return o.launcher.Launch(ctx, jobName, params)
}

// Restart relaunches the job of a FAILED or STOPPED execution with the same parameters.
// Only the last execution of its instance can be restarted.
func (o *SimpleJobOperator) Restart(ctx context.Context, executionID string) (*model.JobExecution, error) {
	logger.Infof("JobOperator: Restart called. Execution ID: %s", executionID)

	prev, err := o.explorer.GetJobExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if !prev.Status.IsRestartable() {
		return nil, exception.NewBatchError("job_operator",
			fmt.Sprintf("JobExecution (ID: %s) is %s", executionID, prev.Status), ErrJobNotRestartable, false, false)
	}
	last, err := o.explorer.GetLastJobExecution(ctx, prev.JobName, prev.Parameters)
	if err != nil {
		return nil, err
	}
	if last != nil && last.ID != prev.ID {
		return nil, exception.NewBatchError("job_operator",
			fmt.Sprintf("JobExecution (ID: %s) was superseded by %s", executionID, last.ID), ErrJobNotRestartable, false, false)
	}
	return o.launcher.Launch(ctx, prev.JobName, prev.Parameters)
}

// Stop cancels an execution running in this process.
func (o *SimpleJobOperator) Stop(ctx context.Context, executionID string) error {
	logger.Infof("JobOperator: Stop called. Execution ID: %s", executionID)

	jobExecution, err := o.explorer.GetJobExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if jobExecution.Status.IsFinished() {
		return exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) is already finished (%s)", executionID, jobExecution.Status)
	}
	if !o.launcher.Stop(executionID) {
		return exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) is not running in this process", executionID)
	}
	logger.Infof("Sent stop signal for JobExecution (ID: %s).", executionID)
	return nil
}

// Abandon marks an execution ABANDONED and releases its job lock. A run of this process is
// cancelled first and marked once it has stopped. An execution left running by a crashed
// process is marked directly.
func (o *SimpleJobOperator) Abandon(ctx context.Context, executionID string) error {
	logger.Infof("JobOperator: Abandon called. Execution ID: %s", executionID)

	jobExecution, err := o.explorer.GetJobExecution(ctx, executionID)
	if err != nil {
		return err
	}
	switch jobExecution.Status {
	case model.BatchStatusAbandoned:
		logger.Infof("JobExecution (ID: %s) is already ABANDONED.", executionID)
		return nil
	case model.BatchStatusCompleted:
		return exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) is COMPLETED and cannot be abandoned", executionID)
	}

	if o.launcher.RequestAbandon(executionID) {
		logger.Infof("JobExecution (ID: %s) is running in this process. It is abandoned once it stops.", executionID)
		return nil
	}

	jobExecution.MarkAsAbandoned()
	if err := o.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		return exception.NewBatchError("job_operator", fmt.Sprintf("Failed to update JobExecution (ID: %s) to ABANDONED", executionID), err, false, false)
	}
	if err := o.jobRepository.ReleaseJobLock(ctx, jobExecution.JobName, executionID); err != nil {
		return exception.NewBatchError("job_operator", fmt.Sprintf("Failed to release the job lock of '%s'", jobExecution.JobName), err, false, false)
	}
	logger.Infof("Abandoned JobExecution (ID: %s).", executionID)
	return nil
}

// GetExecution returns a JobExecution with its StepExecutions.
func (o *SimpleJobOperator) GetExecution(ctx context.Context, executionID string) (*model.JobExecution, error) {
	return o.explorer.GetJobExecution(ctx, executionID)
}

// JobNames returns the registered job names.
func (o *SimpleJobOperator) JobNames() []string {
	return o.registry.JobNames()
}
