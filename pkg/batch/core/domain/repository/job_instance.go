package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

// ErrJobInstanceNotFound is returned when a JobInstance is not found.
var ErrJobInstanceNotFound = errors.New("job instance not found")

// JobInstance defines operations for persisting and retrieving job instance metadata.
type JobInstance interface {
	// SaveJobInstance persists a new JobInstance.
	SaveJobInstance(ctx context.Context, instance *model.JobInstance) error
	// FindJobInstanceByID finds a JobInstance by its ID.
	FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error)
	// FindJobInstanceByJobNameAndParameters finds the JobInstance whose parameters hash equals params' hash.
	FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error)
	// GetJobInstanceCount returns the count of JobInstances for a given job name.
	GetJobInstanceCount(ctx context.Context, jobName string) (int, error)
	// GetJobNames returns all distinct job names that have been run.
	GetJobNames(ctx context.Context) ([]string, error)
}
