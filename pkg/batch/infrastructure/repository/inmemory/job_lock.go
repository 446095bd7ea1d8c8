package inmemory

import (
	"context"
	"fmt"
	"time"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
)

// AcquireJobLock claims jobName for jobExecutionID under the repository mutex.
func (r *InMemoryJobRepository) AcquireJobLock(ctx context.Context, jobName, jobExecutionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.jobLocks[jobName]; ok && current.JobExecutionID != jobExecutionID {
		holder, found := r.jobExecutions[current.JobExecutionID]
		if found && holder.Status.IsRunning() {
			return fmt.Errorf("%w: job '%s' is held by execution %s (%s)", repository.ErrJobLockHeld, jobName, holder.ID, holder.Status)
		}
		if !found && time.Since(current.AcquiredAt) < repository.UnsavedLockHolderGrace {
			return fmt.Errorf("%w: job '%s' is held by execution %s, not saved yet", repository.ErrJobLockHeld, jobName, current.JobExecutionID)
		}
	}
	r.jobLocks[jobName] = &model.JobLock{JobName: jobName, JobExecutionID: jobExecutionID, AcquiredAt: time.Now()}
	return nil
}

// ReleaseJobLock drops the lock if jobExecutionID still owns it.
func (r *InMemoryJobRepository) ReleaseJobLock(ctx context.Context, jobName, jobExecutionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.jobLocks[jobName]; ok && current.JobExecutionID == jobExecutionID {
		delete(r.jobLocks, jobName)
	}
	return nil
}

// FindJobLock returns the lock of jobName, or nil.
func (r *InMemoryJobRepository) FindJobLock(ctx context.Context, jobName string) (*model.JobLock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if current, ok := r.jobLocks[jobName]; ok {
		c := *current
		return &c, nil
	}
	return nil, nil
}
