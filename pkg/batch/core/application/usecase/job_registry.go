package usecase

import (
	"fmt"
	"sort"
	"sync"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	exception "github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// JobRegistry maps job names to runnable jobs.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]port.Job
}

// NewJobRegistry creates a JobRegistry holding jobs. A duplicate name is an error.
func NewJobRegistry(jobs []port.Job) (*JobRegistry, error) {
	r := &JobRegistry{jobs: make(map[string]port.Job, len(jobs))}
	for _, j := range jobs {
		if err := r.Register(j); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds job.
func (r *JobRegistry) Register(job port.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := job.JobName()
	if _, exists := r.jobs[name]; exists {
		return exception.NewBatchErrorf("job_registry", "job '%s' is already registered", name)
	}
	r.jobs[name] = job
	logger.Debugf("Registered job '%s'.", name)
	return nil
}

// GetJob returns the job registered under name, or an error wrapping ErrNoSuchJob.
func (r *JobRegistry) GetJob(name string) (port.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[name]
	if !ok {
		return nil, exception.NewBatchError("job_registry", fmt.Sprintf("job '%s' is not registered", name), ErrNoSuchJob, false, false)
	}
	return job, nil
}

// JobNames returns the registered names, sorted.
func (r *JobRegistry) JobNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
