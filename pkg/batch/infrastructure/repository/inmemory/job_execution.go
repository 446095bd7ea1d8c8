package inmemory

import (
	"context"
	"fmt"
	"sort"
	"time"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
)

// SaveJobExecution persists a new JobExecution.
func (r *InMemoryJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobExecutions[jobExecution.ID]; exists {
		return fmt.Errorf("JobExecution with ID %s already exists", jobExecution.ID)
	}
	r.jobExecutions[jobExecution.ID] = copyJobExecution(jobExecution)
	r.seq[jobExecution.ID] = r.nextSeq()
	return nil
}

// UpdateJobExecution updates an existing JobExecution, guarded by its Version.
func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.jobExecutions[jobExecution.ID]
	if !exists {
		return fmt.Errorf("%w: %s", repository.ErrJobExecutionNotFound, jobExecution.ID)
	}
	if stored.Version != jobExecution.Version {
		return exception.NewOptimisticLockingFailureException("repository", fmt.Sprintf("JobExecution (ID: %s) with version %d not found for update", jobExecution.ID, jobExecution.Version), nil)
	}
	jobExecution.Version++
	jobExecution.LastUpdated = time.Now()
	r.jobExecutions[jobExecution.ID] = copyJobExecution(jobExecution)
	return nil
}

// FindJobExecutionByID finds a JobExecution by its ID with its StepExecutions attached.
func (r *InMemoryJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	je, ok := r.jobExecutions[id]
	if !ok {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withStepExecutions(je), nil
}

// FindRunningJobExecutions returns the unfinished executions of jobName, newest first.
func (r *InMemoryJobRepository) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.JobExecution
	for _, je := range r.jobExecutions {
		if je.JobName == jobName && je.Status.IsRunning() {
			out = append(out, copyJobExecution(je))
		}
	}
	r.sortNewestFirst(out)
	return out, nil
}

// FindLastJobExecution returns the newest execution of the instance (jobName, params).
func (r *InMemoryJobRepository) FindLastJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, err := r.findInstance(jobName, params)
	if err != nil {
		return nil, repository.ErrJobExecutionNotFound
	}
	executions := r.executionsOf(instance.ID)
	if len(executions) == 0 {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withStepExecutions(r.jobExecutions[executions[0].ID]), nil
}

// FindJobExecutionsByJobInstance returns all executions of jobInstance, newest first.
func (r *InMemoryJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executionsOf(jobInstance.ID), nil
}

func (r *InMemoryJobRepository) executionsOf(instanceID string) []*model.JobExecution {
	var out []*model.JobExecution
	for _, je := range r.jobExecutions {
		if je.JobInstanceID == instanceID {
			out = append(out, copyJobExecution(je))
		}
	}
	r.sortNewestFirst(out)
	return out
}

func (r *InMemoryJobRepository) sortNewestFirst(executions []*model.JobExecution) {
	sort.Slice(executions, func(i, j int) bool {
		return r.seq[executions[i].ID] > r.seq[executions[j].ID]
	})
}

func (r *InMemoryJobRepository) withStepExecutions(je *model.JobExecution) *model.JobExecution {
	out := copyJobExecution(je)
	for _, se := range r.stepsOf(je.ID) {
		out.AddStepExecution(se)
	}
	return out
}
