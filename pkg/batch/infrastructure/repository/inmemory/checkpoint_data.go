package inmemory

import (
	"context"
	"time"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
)

// SaveCheckpointData inserts or replaces the checkpoint of a step execution.
func (r *InMemoryJobRepository) SaveCheckpointData(ctx context.Context, data *model.CheckpointData) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lastUpdated := data.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now()
	}
	r.checkpointData[data.StepExecutionID] = &model.CheckpointData{
		StepExecutionID:  data.StepExecutionID,
		ExecutionContext: data.ExecutionContext.Copy(),
		LastUpdated:      lastUpdated,
	}
	return nil
}

// FindCheckpointData retrieves the checkpoint of a step execution.
func (r *InMemoryJobRepository) FindCheckpointData(ctx context.Context, stepExecutionID string) (*model.CheckpointData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, ok := r.checkpointData[stepExecutionID]
	if !ok {
		return nil, repository.ErrCheckpointDataNotFound
	}
	return &model.CheckpointData{
		StepExecutionID:  data.StepExecutionID,
		ExecutionContext: data.ExecutionContext.Copy(),
		LastUpdated:      data.LastUpdated,
	}, nil
}
