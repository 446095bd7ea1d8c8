package inmemory

import (
	"context"
	"fmt"
	"sort"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
)

// SaveJobInstance persists a new JobInstance.
// It returns an error if a JobInstance with the same ID already exists.
func (r *InMemoryJobRepository) SaveJobInstance(ctx context.Context, jobInstance *model.JobInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobInstances[jobInstance.ID]; exists {
		return fmt.Errorf("JobInstance with ID %s already exists", jobInstance.ID)
	}
	c := *jobInstance
	r.jobInstances[jobInstance.ID] = &c
	return nil
}

// FindJobInstanceByID finds a JobInstance by its ID.
func (r *InMemoryJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ji, ok := r.jobInstances[id]
	if !ok {
		return nil, repository.ErrJobInstanceNotFound
	}
	c := *ji
	return &c, nil
}

// FindJobInstanceByJobNameAndParameters finds a JobInstance by job name and exact parameters.
func (r *InMemoryJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findInstance(jobName, params)
}

func (r *InMemoryJobRepository) findInstance(jobName string, params model.JobParameters) (*model.JobInstance, error) {
	for _, ji := range r.jobInstances {
		if ji.JobName == jobName && ji.Parameters.Equal(params) {
			c := *ji
			return &c, nil
		}
	}
	return nil, repository.ErrJobInstanceNotFound
}

// GetJobInstanceCount returns the count of JobInstances for a given job name.
func (r *InMemoryJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, ji := range r.jobInstances {
		if ji.JobName == jobName {
			count++
		}
	}
	return count, nil
}

// GetJobNames returns the distinct job names, sorted.
func (r *InMemoryJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	unique := make(map[string]struct{})
	for _, ji := range r.jobInstances {
		unique[ji.JobName] = struct{}{}
	}
	names := make([]string, 0, len(unique))
	for name := range unique {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
