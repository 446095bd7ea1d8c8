package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

// ErrStepExecutionNotFound is returned when a StepExecution is not found.
var ErrStepExecutionNotFound = errors.New("step execution not found")

// StepExecution defines operations for persisting and retrieving step executions.
type StepExecution interface {
	// SaveStepExecution persists a new StepExecution.
	SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error
	// UpdateStepExecution updates an existing StepExecution, guarded by its Version.
	UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error
	// FindStepExecutionByID finds a StepExecution by its ID.
	FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error)
	// FindStepExecutionsByJobExecutionID returns the step executions of a job execution in start order.
	FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error)
}
