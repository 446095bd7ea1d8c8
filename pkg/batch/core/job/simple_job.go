// Package job provides SimpleJob, a named sequence of steps run one after another.
package job

import (
	"context"
	"errors"
	"fmt"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	exception "github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// SimpleJob runs its steps strictly in order. A failed step fails the job and the steps after it
// do not run. Steps already COMPLETED in the execution (copied from a failed run on restart) are skipped.
type SimpleJob struct {
	name           string
	steps          []port.Step
	requiredParams []string
	jobRepository  repository.JobRepository
	jobListeners   []port.JobExecutionListener
	tracer         metrics.Tracer
}

var _ port.Job = (*SimpleJob)(nil)

// NewSimpleJob creates a new SimpleJob. requiredParams lists the parameter keys every run must carry.
func NewSimpleJob(name string, steps []port.Step, jobRepository repository.JobRepository, jobListeners []port.JobExecutionListener, tracer metrics.Tracer, requiredParams ...string) *SimpleJob {
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &SimpleJob{
		name:           name,
		steps:          steps,
		requiredParams: requiredParams,
		jobRepository:  jobRepository,
		jobListeners:   jobListeners,
		tracer:         tracer,
	}
}

// JobName returns the job name.
func (j *SimpleJob) JobName() string {
	return j.name
}

// Steps returns the steps in execution order.
func (j *SimpleJob) Steps() []port.Step {
	return j.steps
}

// ValidateParameters checks value types and the required keys.
func (j *SimpleJob) ValidateParameters(params model.JobParameters) error {
	logger.Debugf("Job '%s': Validating JobParameters: %s", j.name, params.String())
	if err := params.Validate(j.requiredParams...); err != nil {
		return exception.NewBatchError(j.name, "JobParameters validation error", err, false, false)
	}
	return nil
}

// Run executes the steps of jobExecution and persists the final job status.
func (j *SimpleJob) Run(ctx context.Context, jobExecution *model.JobExecution) error {
	logger.Infof("Starting Job '%s' (Execution ID: %s).", j.name, jobExecution.ID)
	ctx, finishSpan := j.tracer.StartJobSpan(ctx, jobExecution)
	defer finishSpan()

	jobExecution.MarkAsStarted()
	if err := j.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		jobExecution.MarkAsFailed(err)
		return exception.NewBatchError(j.name, "Failed to update JobExecution status to STARTED", err, false, false)
	}
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}

	runErr := j.runSteps(ctx, jobExecution)

	switch {
	case runErr == nil:
		jobExecution.MarkAsCompleted()
	case errors.Is(runErr, context.Canceled):
		jobExecution.MarkAsStopped()
		jobExecution.AddFailureException(runErr)
	default:
		j.tracer.RecordError(ctx, j.name, runErr)
		jobExecution.MarkAsFailed(runErr)
	}

	if err := j.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); err != nil {
		logger.Errorf("Job '%s': Failed to update final JobExecution (ID: %s) state: %v", j.name, jobExecution.ID, err)
		if runErr == nil {
			runErr = exception.NewBatchError(j.name, "Failed to persist final JobExecution state", err, false, false)
		}
	}
	for _, l := range j.jobListeners {
		l.AfterJob(ctx, jobExecution)
	}
	return runErr
}

func (j *SimpleJob) runSteps(ctx context.Context, jobExecution *model.JobExecution) error {
	for _, step := range j.steps {
		stepName := step.StepName()
		jobExecution.CurrentStepName = stepName

		stepExecution, found := jobExecution.StepExecutionByName(stepName)
		if found && stepExecution.Status == model.BatchStatusCompleted {
			logger.Infof("Job '%s': Step '%s' already completed in a previous execution, skipping.", j.name, stepName)
			continue
		}
		if !found {
			stepExecution = model.NewStepExecution(model.NewID(), jobExecution, stepName)
			jobExecution.AddStepExecution(stepExecution)
			if err := j.jobRepository.SaveStepExecution(ctx, stepExecution); err != nil {
				return exception.NewBatchError(j.name, fmt.Sprintf("Failed to save StepExecution for step '%s'", stepName), err, false, false)
			}
		}

		if err := step.Execute(ctx, jobExecution, stepExecution); err != nil {
			logger.Errorf("Job '%s': Step '%s' failed: %v", j.name, stepName, err)
			return err
		}
	}
	return nil
}
