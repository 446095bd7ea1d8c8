package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	exception "github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// Launch rejection reasons reported to the MetricRecorder.
const (
	RejectAlreadyRunning    = "already_running"
	RejectAlreadyComplete   = "already_complete"
	RejectInvalidParameters = "invalid_parameters"
)

type activeRun struct {
	cancel  context.CancelFunc
	abandon bool
}

// SimpleJobLauncher runs jobs synchronously on the caller's goroutine.
//
// A launch is refused when the job has an unfinished execution or when the parameters
// already completed. A FAILED or STOPPED last execution is restarted: its COMPLETED steps
// are carried over and skipped, the failed step resumes from its last checkpoint.
// The persisted job lock is held for the whole run.
type SimpleJobLauncher struct {
	jobRepository  repository.JobRepository
	registry       *JobRegistry
	metricRecorder metrics.MetricRecorder

	// launchMu serializes the guard checks of this process. Other processes are
	// excluded by the job lock.
	launchMu sync.Mutex

	mu     sync.Mutex
	active map[string]*activeRun
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher creates a new SimpleJobLauncher.
func NewSimpleJobLauncher(repo repository.JobRepository, registry *JobRegistry, metricRecorder metrics.MetricRecorder) *SimpleJobLauncher {
	if metricRecorder == nil {
		metricRecorder = metrics.NewNoOpMetricRecorder()
	}
	return &SimpleJobLauncher{
		jobRepository:  repo,
		registry:       registry,
		metricRecorder: metricRecorder,
		active:         make(map[string]*activeRun),
	}
}

// Launch implements JobLauncher.
func (l *SimpleJobLauncher) Launch(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	logger.Infof("Launching Job '%s'. Parameters: %s", jobName, params.String())

	job, err := l.registry.GetJob(jobName)
	if err != nil {
		return nil, err
	}

	jobExecution, previous, err := l.prepare(ctx, job, params)
	if err != nil {
		return nil, err
	}
	defer l.releaseLock(ctx, jobName, jobExecution.ID)

	if previous != nil {
		if err := l.takeOver(ctx, previous, jobExecution); err != nil {
			jobExecution.MarkAsFailed(err)
			if uerr := l.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); uerr != nil {
				logger.Warnf("Failed to persist FAILED JobExecution (ID: %s): %v", jobExecution.ID, uerr)
			}
			return jobExecution, err
		}
	}

	// A run outlives the request that triggered it. Stop and Abandon cancel it.
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	jobExecution.CancelFunc = cancel
	l.register(jobExecution.ID, cancel)
	defer l.unregister(jobExecution.ID)

	logger.Infof("Starting Job '%s' (Execution ID: %s, Job Instance ID: %s, Restart Count: %d).",
		jobName, jobExecution.ID, jobExecution.JobInstanceID, jobExecution.RestartCount)
	if runErr := job.Run(jobCtx, jobExecution); runErr != nil {
		logger.Errorf("Job '%s' (Execution ID: %s) ended %s: %v", jobName, jobExecution.ID, jobExecution.Status, runErr)
	}

	if l.abandonRequested(jobExecution.ID) {
		jobExecution.MarkAsAbandoned()
		if err := l.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); err != nil {
			logger.Warnf("Failed to persist ABANDONED JobExecution (ID: %s): %v", jobExecution.ID, err)
		}
	}
	logger.Infof("Job '%s' (Execution ID: %s) finished with status %s.", jobName, jobExecution.ID, jobExecution.Status)
	return jobExecution, nil
}

// prepare runs the guards, acquires the job lock and then saves the new execution. A launch
// rejected by any guard, the lock included, writes nothing. previous is the execution being
// restarted, if any.
func (l *SimpleJobLauncher) prepare(ctx context.Context, job port.Job, params model.JobParameters) (jobExecution, previous *model.JobExecution, err error) {
	const op = "SimpleJobLauncher.Launch"
	jobName := job.JobName()

	if err := job.ValidateParameters(params); err != nil {
		l.metricRecorder.RecordLaunchRejected(ctx, jobName, RejectInvalidParameters)
		return nil, nil, exception.NewBatchError(op, fmt.Sprintf("JobParameters of '%s' are invalid", jobName), fmt.Errorf("%w: %w", ErrInvalidJobParameters, err), false, false)
	}

	l.launchMu.Lock()
	defer l.launchMu.Unlock()

	running, err := l.jobRepository.FindRunningJobExecutions(ctx, jobName)
	if err != nil {
		return nil, nil, exception.NewBatchError(op, "Failed to search for running JobExecutions", err, false, false)
	}
	if len(running) > 0 {
		l.metricRecorder.RecordLaunchRejected(ctx, jobName, RejectAlreadyRunning)
		return nil, nil, exception.NewBatchError(op,
			fmt.Sprintf("Job '%s' has a running execution (ID: %s, Status: %s)", jobName, running[0].ID, running[0].Status),
			ErrJobAlreadyRunning, false, false)
	}

	last, err := l.jobRepository.FindLastJobExecution(ctx, jobName, params)
	if err != nil && !errors.Is(err, repository.ErrJobExecutionNotFound) {
		return nil, nil, exception.NewBatchError(op, "Failed to search for the last JobExecution", err, false, false)
	}

	newInstance := false
	switch {
	case last == nil:
		// the instance is found or created once the lock is held
		jobExecution = model.NewJobExecution("", jobName, params)
		newInstance = true
	case last.Status == model.BatchStatusCompleted:
		l.metricRecorder.RecordLaunchRejected(ctx, jobName, RejectAlreadyComplete)
		return nil, nil, exception.NewBatchError(op,
			fmt.Sprintf("JobInstance (ID: %s) of '%s' already completed with these parameters (Execution ID: %s)", last.JobInstanceID, jobName, last.ID),
			ErrJobAlreadyComplete, false, false)
	case last.Status.IsRestartable():
		previous = last
		jobExecution = newRestartExecution(last)
		logger.Infof("Restarting JobExecution (ID: %s, Status: %s) of '%s' as %s.", last.ID, last.Status, jobName, jobExecution.ID)
	case last.Status.IsRunning():
		l.metricRecorder.RecordLaunchRejected(ctx, jobName, RejectAlreadyRunning)
		return nil, nil, exception.NewBatchError(op,
			fmt.Sprintf("JobExecution (ID: %s) of '%s' is still %s", last.ID, jobName, last.Status),
			ErrJobAlreadyRunning, false, false)
	default:
		// ABANDONED: the instance runs again from the beginning.
		jobExecution = model.NewJobExecution(last.JobInstanceID, jobName, last.Parameters)
		logger.Infof("Last JobExecution (ID: %s) of '%s' was abandoned. Starting over.", last.ID, jobName)
	}

	if err := l.jobRepository.AcquireJobLock(ctx, jobName, jobExecution.ID); err != nil {
		if errors.Is(err, repository.ErrJobLockHeld) {
			l.metricRecorder.RecordLaunchRejected(ctx, jobName, RejectAlreadyRunning)
			return nil, nil, exception.NewBatchError(op, fmt.Sprintf("Job '%s' is locked by another execution", jobName), fmt.Errorf("%w: %w", ErrJobAlreadyRunning, err), false, false)
		}
		return nil, nil, exception.NewBatchError(op, fmt.Sprintf("Failed to acquire job lock of '%s'", jobName), err, false, false)
	}

	if newInstance {
		instance, err := l.findOrCreateInstance(ctx, jobName, params)
		if err != nil {
			l.releaseLock(ctx, jobName, jobExecution.ID)
			return nil, nil, err
		}
		jobExecution.JobInstanceID = instance.ID
	}
	if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		l.releaseLock(ctx, jobName, jobExecution.ID)
		return nil, nil, exception.NewBatchError(op, "Failed to save JobExecution", err, false, false)
	}
	return jobExecution, previous, nil
}

func (l *SimpleJobLauncher) releaseLock(ctx context.Context, jobName, executionID string) {
	if err := l.jobRepository.ReleaseJobLock(context.WithoutCancel(ctx), jobName, executionID); err != nil {
		logger.Warnf("Failed to release job lock of '%s' (Execution ID: %s): %v", jobName, executionID, err)
	}
}

func (l *SimpleJobLauncher) findOrCreateInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	const op = "SimpleJobLauncher.Launch"
	instance, err := l.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if err == nil {
		return instance, nil
	}
	if !errors.Is(err, repository.ErrJobInstanceNotFound) {
		return nil, exception.NewBatchError(op, "Failed to search for an existing JobInstance", err, false, false)
	}
	instance = model.NewJobInstance(jobName, params)
	if err := l.jobRepository.SaveJobInstance(ctx, instance); err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("Failed to save new JobInstance for '%s'", jobName), err, false, false)
	}
	logger.Infof("Created new JobInstance (ID: %s, JobName: %s).", instance.ID, jobName)
	return instance, nil
}

func newRestartExecution(previous *model.JobExecution) *model.JobExecution {
	je := model.NewJobExecution(previous.JobInstanceID, previous.JobName, previous.Parameters)
	je.ExecutionContext = previous.ExecutionContext.Copy()
	je.RestartCount = previous.RestartCount + 1
	je.CurrentStepName = previous.CurrentStepName
	je.Status = model.BatchStatusRestarting
	for _, se := range previous.StepExecutions {
		je.AddStepExecution(se.CopyForRestart(je.ID))
	}
	return je
}

// takeOver abandons the restarted execution and persists the copied steps of the new one.
func (l *SimpleJobLauncher) takeOver(ctx context.Context, previous, jobExecution *model.JobExecution) error {
	previous.MarkAsAbandoned()
	if err := l.jobRepository.UpdateJobExecution(ctx, previous); err != nil {
		logger.Warnf("Failed to update restarted JobExecution (ID: %s) to ABANDONED: %v", previous.ID, err)
	}
	for _, se := range jobExecution.StepExecutions {
		if err := l.jobRepository.SaveStepExecution(ctx, se); err != nil {
			return exception.NewBatchError("SimpleJobLauncher.Launch", fmt.Sprintf("Failed to save restarted StepExecution '%s'", se.StepName), err, false, false)
		}
	}
	return nil
}

func (l *SimpleJobLauncher) register(executionID string, cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active[executionID] = &activeRun{cancel: cancel}
	logger.Debugf("Registered CancelFunc for JobExecution (ID: %s).", executionID)
}

func (l *SimpleJobLauncher) unregister(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, executionID)
	logger.Debugf("Unregistered CancelFunc for JobExecution (ID: %s).", executionID)
}

func (l *SimpleJobLauncher) abandonRequested(executionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.active[executionID]
	return ok && run.abandon
}

// Stop cancels a run of this process. It reports whether the execution was found.
func (l *SimpleJobLauncher) Stop(executionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.active[executionID]
	if ok {
		run.cancel()
	}
	return ok
}

// RequestAbandon cancels a run of this process and marks it ABANDONED once it has
// stopped. It reports whether the execution was found.
func (l *SimpleJobLauncher) RequestAbandon(executionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.active[executionID]
	if ok {
		run.abandon = true
		run.cancel()
	}
	return ok
}

// StopAll cancels every run of this process.
func (l *SimpleJobLauncher) StopAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, run := range l.active {
		logger.Infof("Stopping JobExecution (ID: %s).", id)
		run.cancel()
	}
}
