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

// SaveStepExecution persists a new StepExecution.
func (r *InMemoryJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stepExecutions[stepExecution.ID]; exists {
		return fmt.Errorf("StepExecution with ID %s already exists", stepExecution.ID)
	}
	r.stepExecutions[stepExecution.ID] = copyStepExecution(stepExecution)
	r.seq[stepExecution.ID] = r.nextSeq()
	return nil
}

// UpdateStepExecution updates an existing StepExecution, guarded by its Version.
func (r *InMemoryJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.stepExecutions[stepExecution.ID]
	if !exists {
		return fmt.Errorf("%w: %s", repository.ErrStepExecutionNotFound, stepExecution.ID)
	}
	if stored.Version != stepExecution.Version {
		return exception.NewOptimisticLockingFailureException("repository", fmt.Sprintf("StepExecution (ID: %s) with version %d not found for update", stepExecution.ID, stepExecution.Version), nil)
	}
	stepExecution.Version++
	stepExecution.LastUpdated = time.Now()
	r.stepExecutions[stepExecution.ID] = copyStepExecution(stepExecution)
	return nil
}

// FindStepExecutionByID finds a StepExecution by its ID.
func (r *InMemoryJobRepository) FindStepExecutionByID(ctx context.Context, id string) (*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	se, ok := r.stepExecutions[id]
	if !ok {
		return nil, repository.ErrStepExecutionNotFound
	}
	return copyStepExecution(se), nil
}

// FindStepExecutionsByJobExecutionID returns the step executions of a job execution in start order.
func (r *InMemoryJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stepsOf(jobExecutionID), nil
}

func (r *InMemoryJobRepository) stepsOf(jobExecutionID string) []*model.StepExecution {
	out := make([]*model.StepExecution, 0)
	for _, se := range r.stepExecutions {
		if se.JobExecutionID == jobExecutionID {
			out = append(out, copyStepExecution(se))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.seq[out[i].ID] < r.seq[out[j].ID]
	})
	return out
}
